package room

import (
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/gameontext/mediator/internal/domain"
	"github.com/gameontext/mediator/internal/drain"
	"github.com/gameontext/mediator/internal/protocol"
)

// remoteRoom holds a live connection to the room's network endpoint.
// Lifecycle calls become protocol control frames; inbound frames are
// relayed to the occupant through the view.
type remoteRoom struct {
	base
	proxy   *Proxy
	conn    *Connection
	sender  *drain.Drain
	version int

	closed atomic.Bool
}

func newRemoteRoom(proxy *Proxy, view View, site *domain.Site, conn *Connection) Mediator {
	r := &remoteRoom{proxy: proxy, conn: conn, version: conn.Version()}
	r.base = newBase(site, view)
	if r.name == "" {
		r.name = string(site.ID)
	}
	r.sender = drain.New("room:"+string(site.ID), conn)
	r.sender.Start()
	go conn.ReadLoop(r.onMessage, r.onClose)
	return r
}

func (r *remoteRoom) Type() Type { return TypeRemote }

func (r *remoteRoom) Hello(user domain.User, recovery bool) {
	r.sender.Send(protocol.HelloMessage(r.id, user, r.version, recovery))
}

func (r *remoteRoom) Join(user domain.User) {
	r.sender.Send(protocol.JoinMessage(r.id, user, r.version))
}

func (r *remoteRoom) Part(user domain.User) {
	r.sender.Send(protocol.PartMessage(r.id, user, r.version))
}

func (r *remoteRoom) Goodbye(user domain.User) {
	r.sender.Send(protocol.GoodbyeMessage(r.id, user))
}

func (r *remoteRoom) SendToRoom(msg *protocol.Message) {
	r.sender.Send(msg)
}

func (r *remoteRoom) onMessage(msg *protocol.Message) {
	switch msg.Target() {
	case protocol.Player, protocol.PlayerLocation:
		r.SendToClients(r.stamp(msg))
	case protocol.Ack:
		// Late ack frames carry nothing new once negotiated.
	default:
		log.Debug().Str("module", "room.remote").Str("room", string(r.id)).
			Str("target", string(msg.Target())).Msg("ignoring frame")
	}
}

// stamp overwrites the relayed frame's bookmark with this room's counter,
// so a client's lastBookmark always refers to something we delivered.
func (r *remoteRoom) stamp(msg *protocol.Message) *protocol.Message {
	payload, err := msg.Payload()
	if err != nil {
		return msg
	}
	payload["bookmark"] = r.nextBookmark()
	stamped, err := protocol.NewMessage(msg.Target(), msg.Destination(), payload)
	if err != nil {
		return msg
	}
	return stamped
}

func (r *remoteRoom) onClose(err error) {
	if r.closed.Load() {
		return
	}
	log.Info().Err(err).Str("module", "room.remote").Str("room", string(r.id)).Msg("room connection dropped")
	r.proxy.Reconnect()
}

func (r *remoteRoom) UpdateInformation(site *domain.Site) bool {
	return r.applyInfo(site)
}

func (r *remoteRoom) Disconnect() {
	r.closed.Store(true)
	r.sender.Stop()
}
