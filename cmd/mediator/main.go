package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gameontext/mediator/internal/adapters"
	"github.com/gameontext/mediator/internal/clients"
	"github.com/gameontext/mediator/internal/config"
	"github.com/gameontext/mediator/internal/domain"
	"github.com/gameontext/mediator/internal/nexus"
	"github.com/gameontext/mediator/internal/room"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}

	signer := clients.NewSigner(cfg.Secret)
	mapClient := clients.NewMapClient(cfg.MapURL, signer, cfg.SiteCacheTTL)
	playerClient := clients.NewPlayerClient(cfg.PlayerURL, signer)

	firstRoomID := domain.RoomID(cfg.FirstRoomID)
	nx := nexus.New(playerClient, firstRoomID)
	builder := room.NewBuilder(mapClient, mapClient, nx, firstRoomID)
	nx.SetBuilder(builder)

	r := adapters.SetupRouter(ctx, cfg, nx, signer)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Mediator started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
