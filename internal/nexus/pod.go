// Package nexus aggregates a player's connected devices into one pod and
// keeps every pod resident in exactly one room.
package nexus

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/gameontext/mediator/internal/domain"
	"github.com/gameontext/mediator/internal/protocol"
	"github.com/gameontext/mediator/internal/room"
)

// Session is one connected device for a player.
type Session interface {
	ID() string
	UserID() domain.UserID
	Send(msg *protocol.Message)
}

// Pod is the unit of room residency: all of one player's devices observe
// the same current room. opMu serializes join/transition/part per pod;
// different pods proceed fully in parallel.
type Pod struct {
	nexus *Nexus
	user  domain.User

	opMu sync.Mutex
	dead bool

	sessMu   sync.RWMutex
	sessions map[string]Session

	med atomic.Pointer[room.Mediator]
}

func newPod(n *Nexus, user domain.User) *Pod {
	return &Pod{nexus: n, user: user, sessions: make(map[string]Session)}
}

func (p *Pod) mediator() room.Mediator {
	if m := p.med.Load(); m != nil {
		return *m
	}
	return nil
}

func (p *Pod) setMediator(m room.Mediator) {
	if m == nil {
		p.med.Store(nil)
		return
	}
	p.med.Store(&m)
}

func (p *Pod) roomID() domain.RoomID {
	if m := p.mediator(); m != nil {
		return m.ID()
	}
	return ""
}

func (p *Pod) mediatorType() (room.Type, bool) {
	if m := p.mediator(); m != nil {
		return m.Type(), true
	}
	return 0, false
}

func (p *Pod) addSession(s Session) {
	p.sessMu.Lock()
	defer p.sessMu.Unlock()
	p.sessions[s.ID()] = s
}

func (p *Pod) removeSession(id string) {
	p.sessMu.Lock()
	defer p.sessMu.Unlock()
	delete(p.sessions, id)
}

func (p *Pod) sessionCount() int {
	p.sessMu.RLock()
	defer p.sessMu.RUnlock()
	return len(p.sessions)
}

// broadcast fans one envelope to every connected device. Sends go into
// per-connection drains, so this never blocks.
func (p *Pod) broadcast(msg *protocol.Message) {
	p.sessMu.RLock()
	defer p.sessMu.RUnlock()
	for _, s := range p.sessions {
		s.Send(msg)
	}
}

// deliver is the pod's inbound edge for room-originated messages. Exit
// directives ride back through here into the nexus as transitions; the
// expected-from check makes the detached goroutine safe.
func (p *Pod) deliver(msg *protocol.Message) {
	if msg.Target() == protocol.PlayerLocation {
		from := p.roomID()
		if to := msg.StringValue("toRoomId", ""); to != "" {
			go p.transition(from, domain.RoomID(to))
		} else if exitID := msg.StringValue("exitId", ""); exitID != "" {
			go p.transitionViaExit(from, domain.Direction(strings.ToLower(exitID)))
		}
	}
	p.broadcast(msg)
}

func (p *Pod) transition(from, to domain.RoomID) {
	if err := p.nexus.Transition(p.user.ID, from, to); err != nil {
		log.Info().Err(err).Str("module", "nexus.pod").Str("user", string(p.user.ID)).Msg("transition rejected")
	}
}

func (p *Pod) transitionViaExit(from domain.RoomID, dir domain.Direction) {
	if err := p.nexus.TransitionViaExit(p.user.ID, from, dir); err != nil {
		log.Info().Err(err).Str("module", "nexus.pod").Str("user", string(p.user.ID)).Msg("exit transition rejected")
	}
}
