// Package room holds the polymorphic stand-ins for "a room" in every
// health state, the proxy that keeps a stable handle across replacement,
// and the builder that decides which variant a room id deserves.
package room

import (
	"sync/atomic"

	"github.com/gameontext/mediator/internal/domain"
	"github.com/gameontext/mediator/internal/protocol"
)

// Type discriminates the concrete delegate variants.
type Type int

const (
	TypeFirst Type = iota
	TypeConnecting
	TypeEmpty
	TypeSick
	TypeRemote
	TypeUnknown
)

func (t Type) String() string {
	switch t {
	case TypeFirst:
		return "first"
	case TypeConnecting:
		return "connecting"
	case TypeEmpty:
		return "empty"
	case TypeSick:
		return "sick"
	case TypeRemote:
		return "remote"
	case TypeUnknown:
		return "unknown"
	}
	return "invalid"
}

// Mediator is the behavioral contract every room delegate satisfies.
// Lifecycle calls are one-way notifications; they may enqueue async I/O
// but return promptly.
type Mediator interface {
	ID() domain.RoomID
	Name() string
	FullName() string
	Description() string
	Type() Type

	Exits() *domain.Exits
	ListExits() map[string]string

	Hello(user domain.User, recovery bool)
	Join(user domain.User)
	Part(user domain.User)
	Goodbye(user domain.User)

	SendToRoom(msg *protocol.Message)
	SendToClients(msg *protocol.Message)

	UpdateInformation(site *domain.Site) bool
	SameConnectionDetails(site *domain.Site) bool

	Disconnect()
}

// View is the outbound fan-out surface the session layer hands to a
// delegate: everything a room needs to reach its occupants.
type View interface {
	SendToClients(msg *protocol.Message)
}

// ViewFactory mints views scoped to a room. The session layer implements
// this; the builder uses it when constructing shared-broadcast delegates.
type ViewFactory interface {
	MultiView(roomID domain.RoomID) View
	FilteredView(roomID domain.RoomID, t Type) View
}

// base carries the attributes common to every delegate variant.
type base struct {
	id          domain.RoomID
	name        string
	fullName    string
	description string
	exits       *domain.Exits
	details     *domain.ConnectionDetails
	view        View

	bookmark atomic.Int64
}

func newBase(site *domain.Site, view View) base {
	b := base{id: site.ID, exits: site.Exits, view: view}
	b.applyInfo(site)
	return b
}

func (b *base) applyInfo(site *domain.Site) bool {
	changed := false
	if site.Exits != nil && site.Exits != b.exits {
		b.exits = site.Exits
		changed = true
	}
	info := site.Info
	if info == nil {
		return changed
	}
	if info.Name != "" && info.Name != b.name {
		b.name = info.Name
		changed = true
	}
	if info.FullName != "" && info.FullName != b.fullName {
		b.fullName = info.FullName
		changed = true
	}
	if info.Description != "" && info.Description != b.description {
		b.description = info.Description
		changed = true
	}
	if info.ConnectionDetails != nil && !info.ConnectionDetails.Equals(b.details) {
		b.details = info.ConnectionDetails
		changed = true
	}
	return changed
}

func (b *base) ID() domain.RoomID { return b.id }

func (b *base) Name() string { return b.name }

func (b *base) FullName() string { return b.fullName }

func (b *base) Description() string { return b.description }

func (b *base) Exits() *domain.Exits { return b.exits }

func (b *base) ListExits() map[string]string { return b.exits.List() }

func (b *base) SendToClients(msg *protocol.Message) {
	if b.view != nil {
		b.view.SendToClients(msg)
	}
}

func (b *base) SameConnectionDetails(site *domain.Site) bool {
	if site == nil || site.Info == nil {
		return b.details == nil
	}
	return b.details.Equals(site.Info.ConnectionDetails)
}

func (b *base) nextBookmark() int64 { return b.bookmark.Add(1) }

// clientEvent builds a player-bound narrative event for one occupant.
func (b *base) clientEvent(userID domain.UserID, content string) *protocol.Message {
	m, _ := protocol.NewMessage(protocol.Player, string(userID), map[string]any{
		"type":     "event",
		"content":  map[string]string{string(userID): content},
		"bookmark": b.nextBookmark(),
	})
	return m
}

// roomEvent builds a player-bound narrative event for all occupants.
func (b *base) roomEvent(content string) *protocol.Message {
	m, _ := protocol.NewMessage(protocol.Player, protocol.DestinationAll, map[string]any{
		"type":     "event",
		"content":  map[string]string{protocol.DestinationAll: content},
		"bookmark": b.nextBookmark(),
	})
	return m
}

// clientChat echoes a chat line to all occupants.
func (b *base) clientChat(username, content string) *protocol.Message {
	m, _ := protocol.NewMessage(protocol.Player, protocol.DestinationAll, map[string]any{
		"type":     "chat",
		"username": username,
		"content":  content,
		"bookmark": b.nextBookmark(),
	})
	return m
}

// clientLocation describes this room to one occupant.
func (b *base) clientLocation(userID domain.UserID) *protocol.Message {
	m, _ := protocol.NewMessage(protocol.Player, string(userID), map[string]any{
		"type":        "location",
		"name":        b.name,
		"fullName":    b.fullName,
		"description": b.description,
		"exits":       b.exits.List(),
		"bookmark":    b.nextBookmark(),
	})
	return m
}
