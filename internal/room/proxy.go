package room

import (
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/gameontext/mediator/internal/domain"
	"github.com/gameontext/mediator/internal/protocol"
)

// Proxy is the stable handle callers keep while the delegate underneath
// is replaced. Reads pass straight through the atomic delegate pointer;
// replacement is single-flight: whichever trigger wins the flag runs the
// builder, everyone else no-ops.
type Proxy struct {
	builder *Builder
	user    domain.User
	podView View

	delegate atomic.Pointer[Mediator]
	updating atomic.Bool
	closed   atomic.Bool
}

func newProxy(builder *Builder, user domain.User, podView View) *Proxy {
	return &Proxy{builder: builder, user: user, podView: podView}
}

func (p *Proxy) seed(m Mediator) { p.delegate.Store(&m) }

func (p *Proxy) current() Mediator { return *p.delegate.Load() }

// Read-only passthrough. No synchronization beyond the pointer load.

func (p *Proxy) ID() domain.RoomID { return p.current().ID() }

func (p *Proxy) Name() string { return p.current().Name() }

func (p *Proxy) FullName() string { return p.current().FullName() }

func (p *Proxy) Description() string { return p.current().Description() }

func (p *Proxy) Type() Type { return p.current().Type() }

func (p *Proxy) Exits() *domain.Exits { return p.current().Exits() }

func (p *Proxy) ListExits() map[string]string { return p.current().ListExits() }

func (p *Proxy) Hello(user domain.User, recovery bool) { p.current().Hello(user, recovery) }

func (p *Proxy) Join(user domain.User) { p.current().Join(user) }

func (p *Proxy) Part(user domain.User) { p.current().Part(user) }

func (p *Proxy) Goodbye(user domain.User) { p.current().Goodbye(user) }

func (p *Proxy) SendToRoom(msg *protocol.Message) { p.current().SendToRoom(msg) }

func (p *Proxy) SendToClients(msg *protocol.Message) { p.current().SendToClients(msg) }

func (p *Proxy) SameConnectionDetails(site *domain.Site) bool {
	return p.current().SameConnectionDetails(site)
}

// UpdateInformation begins a delegate-replacement pass with fresh
// directory data (nil asks the builder to resolve it). No-op when a
// replacement is already in flight.
func (p *Proxy) UpdateInformation(site *domain.Site) bool {
	if p.closed.Load() || !p.updating.CompareAndSwap(false, true) {
		return false
	}
	go p.builder.updateDelegate(updateRefresh, p, p.current(), site, p.user)
	return true
}

// ConnectRemote attempts the real remote connection behind a placeholder
// delegate. isHello picks which lifecycle call greets the room once the
// connection lands.
func (p *Proxy) ConnectRemote(isHello bool, user domain.User) {
	if p.closed.Load() || !p.updating.CompareAndSwap(false, true) {
		return
	}
	kind := updateJoin
	if isHello {
		kind = updateHello
	}
	go p.builder.updateDelegate(kind, p, p.current(), nil, user)
}

// Reconnect re-resolves and re-dials after a failure; used by sick-room
// retry timers and dropped remote connections.
func (p *Proxy) Reconnect() {
	if p.closed.Load() || !p.updating.CompareAndSwap(false, true) {
		return
	}
	go p.builder.updateDelegate(updateReconnect, p, p.current(), nil, p.user)
}

// updateComplete installs the replacement delegate and always clears the
// in-flight flag, even when the builder came back empty-handed. A proxy
// disconnected while the replacement was in flight turns it away instead:
// its timers and sockets must not outlive the proxy.
func (p *Proxy) updateComplete(next Mediator) {
	defer p.updating.Store(false)
	if next == nil {
		return
	}
	if p.closed.Load() {
		if next != p.current() {
			next.Disconnect()
		}
		return
	}
	old := p.current()
	if next == old {
		return
	}
	p.delegate.Store(&next)
	log.Debug().Str("module", "room.proxy").
		Str("room", string(next.ID())).
		Str("was", old.Type().String()).
		Str("now", next.Type().String()).
		Msg("delegate replaced")
	old.Disconnect()
	if p.closed.Load() {
		// Disconnect raced the install and only saw the old delegate.
		next.Disconnect()
	}
}

func (p *Proxy) Disconnect() {
	p.closed.Store(true)
	p.current().Disconnect()
}
