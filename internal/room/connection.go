package room

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/gameontext/mediator/internal/domain"
	"github.com/gameontext/mediator/internal/protocol"
)

const (
	dialTimeout      = 10 * time.Second
	ackTimeout       = 10 * time.Second
	roomWriteTimeout = 10 * time.Second
)

// Connection is a live outbound WebSocket to a room endpoint. It
// implements drain.Sender; the drain is the only writer.
type Connection struct {
	ws      *websocket.Conn
	version int

	closeOnce sync.Once
}

// DialRoom opens the socket and completes the ack handshake: the room
// leads with `ack,{version:[...]}` and the mediator picks the highest
// version it also supports.
func DialRoom(ctx context.Context, details *domain.ConnectionDetails) (*Connection, error) {
	if details == nil || details.Target == "" {
		return nil, fmt.Errorf("no connection details")
	}
	if details.Type != "" && details.Type != "websocket" {
		return nil, fmt.Errorf("unsupported transport type %q", details.Type)
	}

	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	header := http.Header{}
	if details.Token != "" {
		header.Set("Authorization", "Bearer "+details.Token)
	}
	ws, _, err := dialer.DialContext(ctx, details.Target, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", details.Target, err)
	}

	version, err := awaitAck(ws)
	if err != nil {
		_ = ws.Close()
		return nil, err
	}
	log.Debug().Str("module", "room.connection").Str("target", details.Target).Int("version", version).Msg("connected")
	return &Connection{ws: ws, version: version}, nil
}

func awaitAck(ws *websocket.Conn) (int, error) {
	if err := ws.SetReadDeadline(time.Now().Add(ackTimeout)); err != nil {
		return 0, err
	}
	defer ws.SetReadDeadline(time.Time{})

	_, data, err := ws.ReadMessage()
	if err != nil {
		return 0, fmt.Errorf("waiting for ack: %w", err)
	}
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		return 0, err
	}
	if msg.Target() != protocol.Ack {
		return 0, fmt.Errorf("expected ack, got %q", msg.Target())
	}
	payload, err := msg.Payload()
	if err != nil {
		return 0, err
	}
	var offered []int
	if raw, ok := payload["version"].([]any); ok {
		for _, v := range raw {
			if f, ok := v.(float64); ok {
				offered = append(offered, int(f))
			}
		}
	}
	return protocol.NegotiateVersion(offered), nil
}

func (c *Connection) Version() int { return c.version }

// Send writes one envelope. The drain owns ordering and retry; any error
// here is permanent for this connection.
func (c *Connection) Send(msg *protocol.Message) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(roomWriteTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, msg.Encode())
}

func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		_ = c.ws.Close()
	})
	return nil
}

// ReadLoop relays inbound frames until the socket dies. Malformed frames
// are logged and skipped; they are fatal to the frame, not the session.
func (c *Connection) ReadLoop(onMessage func(*protocol.Message), onClose func(error)) {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			onClose(err)
			return
		}
		msg, err := protocol.ParseMessage(data)
		if err != nil {
			log.Warn().Err(err).Str("module", "room.connection").Msg("dropping malformed frame")
			continue
		}
		onMessage(msg)
	}
}
