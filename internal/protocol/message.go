// Package protocol implements the comma-delimited routed message format
// spoken between clients, the mediator, and rooms:
//
//	<flowTarget>,<destination>,<jsonPayload>
//
// The destination segment is absent for flow targets that do not need one.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gameontext/mediator/internal/domain"
)

// FlowTarget classifies who a routed message is for and what it signifies.
type FlowTarget string

const (
	Ready          FlowTarget = "ready"
	Ack            FlowTarget = "ack"
	Player         FlowTarget = "player"
	PlayerLocation FlowTarget = "playerLocation"
	Room           FlowTarget = "room"
	RoomHello      FlowTarget = "roomHello"
	RoomGoodbye    FlowTarget = "roomGoodbye"
	RoomJoin       FlowTarget = "roomJoin"
	RoomPart       FlowTarget = "roomPart"
	SOS            FlowTarget = "sos"
)

// DestinationAll addresses every occupant of a room.
const DestinationAll = "*"

var (
	ErrMalformedMessage = errors.New("malformed message")
	ErrBadPayload       = errors.New("bad payload")
)

func (t FlowTarget) roomBound() bool {
	switch t {
	case Room, RoomHello, RoomGoodbye, RoomJoin, RoomPart:
		return true
	}
	return false
}

// Message is an immutable routed envelope. The JSON body is decoded at
// most once, by whichever single goroutine owns the message; callers must
// not share one Message across goroutines that both touch the payload.
type Message struct {
	target      FlowTarget
	destination string
	payload     []byte

	decoded   map[string]any
	decodeErr error
	touched   bool
}

// ParseMessage splits wire text on the first two delimiters ahead of the
// JSON body, so commas inside the payload are never tokenized.
func ParseMessage(wire []byte) (*Message, error) {
	i := bytes.IndexByte(wire, ',')
	if i <= 0 {
		return nil, fmt.Errorf("%w: missing flow target: %q", ErrMalformedMessage, wire)
	}
	target := FlowTarget(wire[:i])
	rest := wire[i+1:]

	var destination string
	if len(rest) > 0 && rest[0] != '{' && rest[0] != '[' && rest[0] != '"' {
		j := bytes.IndexByte(rest, ',')
		if j < 0 {
			return nil, fmt.Errorf("%w: missing payload: %q", ErrMalformedMessage, wire)
		}
		destination = string(rest[:j])
		rest = rest[j+1:]
	}
	if len(rest) == 0 {
		return nil, fmt.Errorf("%w: empty payload: %q", ErrMalformedMessage, wire)
	}

	return &Message{
		target:      target,
		destination: destination,
		payload:     append([]byte(nil), rest...),
	}, nil
}

// NewMessage builds an envelope. The payload may be a pre-serialized
// string/[]byte or any JSON-marshalable document.
func NewMessage(target FlowTarget, destination string, payload any) (*Message, error) {
	var raw []byte
	switch p := payload.(type) {
	case string:
		raw = []byte(p)
	case []byte:
		raw = p
	default:
		b, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		raw = b
	}
	return &Message{target: target, destination: destination, payload: raw}, nil
}

func (m *Message) Target() FlowTarget { return m.target }

func (m *Message) Destination() string { return m.destination }

func (m *Message) RawPayload() []byte { return m.payload }

// Encode serializes back to wire form.
func (m *Message) Encode() []byte {
	var b bytes.Buffer
	b.WriteString(string(m.target))
	b.WriteByte(',')
	if m.destination != "" {
		b.WriteString(m.destination)
		b.WriteByte(',')
	}
	b.Write(m.payload)
	return b.Bytes()
}

func (m *Message) String() string { return string(m.Encode()) }

// IsForPlayer reports whether this envelope should reach the given player,
// honoring the wildcard destination.
func (m *Message) IsForPlayer(id domain.UserID) bool {
	if m.target != Player && m.target != PlayerLocation {
		return false
	}
	return m.destination == DestinationAll || m.destination == string(id)
}

func (m *Message) IsForRoom(id domain.RoomID) bool {
	return m.target.roomBound() && m.destination == string(id)
}

// IsTransitionRequest reports whether this envelope asks the mediator to
// move the player: either an emergency sos or a location update.
func (m *Message) IsTransitionRequest() bool {
	return m.target == SOS || m.target == PlayerLocation
}

// Payload decodes the JSON body, caching the result. The first structural
// failure is reported as ErrBadPayload; repeated calls return the cache.
func (m *Message) Payload() (map[string]any, error) {
	if !m.touched {
		m.touched = true
		if err := json.Unmarshal(m.payload, &m.decoded); err != nil {
			m.decodeErr = fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
	}
	return m.decoded, m.decodeErr
}

// StringValue returns the named payload field, or def when the field is
// missing, of the wrong type, or the payload never decoded.
func (m *Message) StringValue(key, def string) string {
	p, err := m.Payload()
	if err != nil {
		return def
	}
	if v, ok := p[key].(string); ok {
		return v
	}
	return def
}

func (m *Message) BoolValue(key string, def bool) bool {
	p, err := m.Payload()
	if err != nil {
		return def
	}
	if v, ok := p[key].(bool); ok {
		return v
	}
	return def
}

func (m *Message) IntValue(key string, def int) int {
	p, err := m.Payload()
	if err != nil {
		return def
	}
	if v, ok := p[key].(float64); ok {
		return int(v)
	}
	return def
}
