package adapters

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/gameontext/mediator/internal/clients"
	"github.com/gameontext/mediator/internal/config"
	"github.com/gameontext/mediator/internal/nexus"
)

// SetupRouter wires HTTP routes (operational + WS) with the nexus.
func SetupRouter(ctx context.Context, cfg *config.Config, nx *nexus.Nexus, signer *clients.Signer) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "UP",
			"pods":   nx.PodCount(),
			"rooms":  nx.RoomCount(),
		})
	})

	r.GET("/rooms/count", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"count": nx.RoomCount()})
	})

	ctl := &PlayerSocketController{
		Nexus:     nx,
		Signer:    signer,
		ReadLimit: cfg.ReadLimit,
	}
	r.GET("/mediator/v1/ws/:userId", func(c *gin.Context) {
		ctl.HandlePlayer(ctx, c)
	})

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}
