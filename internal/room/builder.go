package room

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/gameontext/mediator/internal/domain"
	"github.com/gameontext/mediator/internal/protocol"
)

// Directory is the slice of the map service the builder consumes.
type Directory interface {
	ResolveSite(ctx context.Context, id domain.RoomID) (*domain.Site, error)
	ResolveExit(ctx context.Context, id domain.RoomID, dir domain.Direction) (*domain.Site, error)
}

// connectFn opens a negotiated connection to a room endpoint. Swappable
// for tests.
type connectFn func(ctx context.Context, details *domain.ConnectionDetails) (*Connection, error)

type updateKind int

const (
	updateHello updateKind = iota
	updateJoin
	updateReconnect
	updateRefresh
)

// Builder resolves room ids and exits into delegates, decides which
// variant to construct, and runs the sick/empty/unknown fallback policy.
// Directory and network work happens on the builder's goroutines, never
// under a pod lock.
type Builder struct {
	directory   Directory
	registrar   Registrar
	views       ViewFactory
	firstRoomID domain.RoomID
	connect     connectFn
}

func NewBuilder(directory Directory, registrar Registrar, views ViewFactory, firstRoomID domain.RoomID) *Builder {
	return &Builder{
		directory:   directory,
		registrar:   registrar,
		views:       views,
		firstRoomID: firstRoomID,
		connect:     DialRoom,
	}
}

// FirstRoom builds the origin delegate, decorated with directory exits
// when the directory has any.
func (b *Builder) FirstRoom() Mediator {
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	site, err := b.directory.ResolveSite(ctx, b.firstRoomID)
	if err != nil {
		site = nil
	}
	return NewFirstRoom(b.views.MultiView(b.firstRoomID), b.registrar, b.firstRoomID, site)
}

// FindMediatorForRoom resolves a room id to a delegate. Unresolvable ids
// fall back to the origin room after telling the player why.
func (b *Builder) FindMediatorForRoom(podView View, user domain.User, roomID domain.RoomID) Mediator {
	if roomID == "" || roomID == b.firstRoomID {
		return b.FirstRoom()
	}
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	site, err := b.directory.ResolveSite(ctx, roomID)
	if err != nil {
		log.Info().Err(err).Str("module", "room.builder").Str("room", string(roomID)).Msg("site lookup failed")
		notify(podView, user.ID, "The way to "+string(roomID)+" has been lost. You head back to where it all began.")
		return b.FirstRoom()
	}
	return b.proxyFor(podView, user, site)
}

// FindMediatorForExit resolves a named exit of the current room. A
// missing exit aborts the transition: the player stays where they are.
func (b *Builder) FindMediatorForExit(podView View, user domain.User, current Mediator, dir domain.Direction) Mediator {
	exit := current.Exits().Get(dir)
	if exit == nil {
		notify(podView, user.ID, "There is no door in that direction.")
		return current
	}
	if exit.ID == "" || exit.ID == b.firstRoomID {
		return b.FirstRoom()
	}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	site, err := b.directory.ResolveExit(ctx, current.ID(), dir)
	if err != nil {
		log.Info().Err(err).Str("module", "room.builder").
			Str("room", string(current.ID())).Str("dir", string(dir)).Msg("exit lookup failed, using cached exit")
		site = siteFromExit(current, dir, exit)
	}
	return b.proxyFor(podView, user, site)
}

// siteFromExit builds a minimal site from cached exit data, with a
// synthesized exit pointing back the way the player came.
func siteFromExit(current Mediator, dir domain.Direction, exit *domain.Exit) *domain.Site {
	back := &domain.Exits{}
	back.Set(domain.Opposite(dir), &domain.Exit{
		ID:       current.ID(),
		Name:     current.Name(),
		FullName: current.FullName(),
		Door:     "The way back to " + current.Name(),
	})
	site := &domain.Site{ID: exit.ID, Exits: back}
	if exit.ConnectionDetails != nil {
		site.Info = &domain.RoomInfo{
			Name:              exit.Name,
			FullName:          exit.FullName,
			ConnectionDetails: exit.ConnectionDetails,
		}
	}
	return site
}

// proxyFor wraps a resolved site in a proxy seeded with a Connecting or
// Empty delegate, depending on whether content is registered.
func (b *Builder) proxyFor(podView View, user domain.User, site *domain.Site) Mediator {
	p := newProxy(b, user, podView)
	if site.Info == nil || site.Info.ConnectionDetails == nil {
		p.seed(newEmptyRoom(p, b.views.MultiView(site.ID), site))
	} else {
		p.seed(newConnectingRoom(p, podView, site))
	}
	return p
}

// updateDelegate is the retry/refresh engine behind proxy replacement.
// It always reports back through updateComplete so the single-flight
// flag clears no matter which path runs.
func (b *Builder) updateDelegate(kind updateKind, p *Proxy, current Mediator, site *domain.Site, user domain.User) {
	var next Mediator
	defer func() { p.updateComplete(next) }()

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	id := current.ID()
	if site == nil {
		resolved, err := b.directory.ResolveSite(ctx, id)
		switch {
		case errors.Is(err, domain.ErrSiteNotFound):
			if current.Type() == TypeUnknown {
				next = current
				return
			}
			next = newUnknownRoom(b.views.MultiView(id), id)
			b.greet(kind, next, user)
			return
		case err != nil:
			// Directory unreachable: keep what we have, let sick rooms
			// keep their retry cadence.
			log.Info().Err(err).Str("module", "room.builder").Str("room", string(id)).Msg("directory unavailable")
			if sick, ok := current.(*sickRoom); ok {
				sick.RetryFailed("directory unavailable")
			}
			next = current
			return
		}
		site = resolved
	}

	if site.Info == nil || site.Info.ConnectionDetails == nil {
		if current.Type() == TypeEmpty {
			current.UpdateInformation(site)
			next = current
			return
		}
		next = newEmptyRoom(p, b.views.MultiView(site.ID), site)
		b.greet(kind, next, user)
		return
	}

	if current.SameConnectionDetails(site) && healthy(current.Type()) {
		// Nothing moved; just refresh cached exits and description.
		current.UpdateInformation(site)
		next = current
		return
	}

	conn, err := b.connect(ctx, site.Info.ConnectionDetails)
	if err != nil {
		log.Info().Err(err).Str("module", "room.builder").Str("room", string(site.ID)).Msg("room connection failed")
		if sick, ok := current.(*sickRoom); ok {
			sick.RetryFailed(err.Error())
			next = current
			return
		}
		next = newSickRoom(p, b.views.FilteredView(site.ID, TypeSick), site, err.Error())
		b.greet(kind, next, user)
		return
	}

	next = newRemoteRoom(p, p.podView, site, conn)
	b.greet(kind, next, user)
}

// greet performs the requested lifecycle call on a replacement delegate
// before it is installed.
func (b *Builder) greet(kind updateKind, next Mediator, user domain.User) {
	switch kind {
	case updateHello:
		next.Hello(user, false)
	case updateJoin:
		next.Join(user)
	case updateReconnect, updateRefresh:
		next.Hello(user, true)
	}
}

func healthy(t Type) bool {
	return t == TypeRemote || t == TypeFirst
}

// notify sends an out-of-band narrative event to one player.
func notify(view View, userID domain.UserID, text string) {
	if view == nil {
		return
	}
	m, _ := protocol.NewMessage(protocol.Player, string(userID), map[string]any{
		"type":    "event",
		"content": map[string]string{string(userID): text},
	})
	view.SendToClients(m)
}
