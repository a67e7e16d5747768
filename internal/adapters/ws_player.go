// Package adapters owns the inbound transport: the gin router and the
// per-device player WebSocket.
package adapters

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/gameontext/mediator/internal/clients"
	"github.com/gameontext/mediator/internal/domain"
	"github.com/gameontext/mediator/internal/drain"
	"github.com/gameontext/mediator/internal/nexus"
	"github.com/gameontext/mediator/internal/protocol"
)

const clientWriteTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// PlayerSocketController upgrades player connections and pumps messages
// between the socket and the nexus.
type PlayerSocketController struct {
	Nexus     *nexus.Nexus
	Signer    *clients.Signer
	ReadLimit int64
}

// clientConn adapts one gorilla socket to drain.Sender. The drain is the
// only writer.
type clientConn struct {
	ws        *websocket.Conn
	closeOnce sync.Once
}

func (c *clientConn) Send(msg *protocol.Message) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(clientWriteTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, msg.Encode())
}

func (c *clientConn) Close() error {
	c.closeOnce.Do(func() {
		_ = c.ws.Close()
	})
	return nil
}

// playerSession is one device attached to a pod; outbound messages go
// through the device's drain.
type playerSession struct {
	id     string
	userID domain.UserID
	out    *drain.Drain
}

func (s *playerSession) ID() string { return s.id }

func (s *playerSession) UserID() domain.UserID { return s.userID }

func (s *playerSession) Send(m *protocol.Message) { s.out.Send(m) }

// HandlePlayer validates the identity assertion before upgrading; a bad
// token is a hard close, the only non-narrative failure a client sees.
func (ctl *PlayerSocketController) HandlePlayer(ctx context.Context, c *gin.Context) {
	userID := c.Param("userId")
	token := c.Query("jwt")
	if token == "" {
		token = c.GetHeader("gameon-jwt")
	}
	subject, err := ctl.Signer.Validate(token)
	if err != nil || subject != userID {
		log.Info().Err(err).Str("module", "adapters.ws").Str("user", userID).Msg("identity rejected")
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.ws").Msg("ws upgrade")
		return
	}
	if ctl.ReadLimit > 0 {
		ws.SetReadLimit(ctl.ReadLimit)
	}

	conn := &clientConn{ws: ws}
	session := &playerSession{
		id:     uuid.NewString(),
		userID: domain.UserID(userID),
		out:    drain.New("client:"+userID, conn),
	}
	session.out.Start()
	log.Info().Str("module", "adapters.ws").Str("user", userID).Str("session", session.id).Msg("player connected")

	// Lead with ack so the client knows which protocol versions we speak.
	ack, _ := protocol.NewMessage(protocol.Ack, "", map[string]any{
		"version": []int{1, protocol.MaxSupportedVersion},
	})
	session.out.Send(ack)

	go ctl.readPump(ctx, session, ws)
}

func (ctl *PlayerSocketController) readPump(ctx context.Context, session *playerSession, ws *websocket.Conn) {
	defer func() {
		log.Info().Str("module", "adapters.ws").Str("session", session.id).Msg("readPump closing")
		ctl.Nexus.Part(session)
		session.out.Stop()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := ws.ReadMessage()
			if err != nil {
				log.Info().Err(err).Str("module", "adapters.ws").Str("session", session.id).Msg("readPump read error")
				return
			}
			ctl.route(session, data)
		}
	}
}

// route dispatches one inbound frame. A malformed frame is fatal only to
// itself.
func (ctl *PlayerSocketController) route(session *playerSession, data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "adapters.ws").Str("session", session.id).Msg("bad frame")
		return
	}

	switch msg.Target() {
	case protocol.Ready:
		username := msg.StringValue("username", string(session.userID))
		roomID := domain.RoomID(msg.StringValue("roomId", ""))
		bookmark := msg.StringValue("bookmark", "")
		ctl.Nexus.Join(session, username, roomID, bookmark)
	case protocol.Room:
		ctl.Nexus.SendToRoom(session.userID, msg)
	case protocol.SOS:
		ctl.Nexus.Rescue(session.userID)
	default:
		log.Warn().Str("module", "adapters.ws").Str("target", string(msg.Target())).Msg("unroutable frame")
	}
}
