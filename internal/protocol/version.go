package protocol

import "github.com/gameontext/mediator/internal/domain"

// MaxSupportedVersion caps what the mediator will speak even when a room
// advertises something newer.
const MaxSupportedVersion = 2

// NegotiateVersion picks the highest version both sides support. Rooms
// that advertise nothing usable get version 1.
func NegotiateVersion(offered []int) int {
	best := 1
	for _, v := range offered {
		if v > best && v <= MaxSupportedVersion {
			best = v
		}
	}
	return best
}

// LifecyclePayload is the body of hello/join control frames.
type LifecyclePayload struct {
	Version  int           `json:"version"`
	UserID   domain.UserID `json:"userId"`
	Username string        `json:"username"`
	Recovery bool          `json:"recovery,omitempty"`
}

// FarewellPayload is the body of goodbye/part control frames.
type FarewellPayload struct {
	UserID   domain.UserID `json:"userId"`
	Username string        `json:"username"`
}

// HelloMessage announces a player's arrival to a room.
func HelloMessage(roomID domain.RoomID, user domain.User, version int, recovery bool) *Message {
	m, _ := NewMessage(RoomHello, string(roomID), LifecyclePayload{
		Version:  version,
		UserID:   user.ID,
		Username: user.Username,
		Recovery: recovery,
	})
	return m
}

// JoinMessage quietly resumes a player's session in a room. Protocol
// versions before 2 have no join frame; those rooms get a hello instead.
func JoinMessage(roomID domain.RoomID, user domain.User, version int) *Message {
	if version < 2 {
		return HelloMessage(roomID, user, version, false)
	}
	m, _ := NewMessage(RoomJoin, string(roomID), LifecyclePayload{
		Version:  version,
		UserID:   user.ID,
		Username: user.Username,
	})
	return m
}

// GoodbyeMessage announces a player's departure.
func GoodbyeMessage(roomID domain.RoomID, user domain.User) *Message {
	m, _ := NewMessage(RoomGoodbye, string(roomID), FarewellPayload{
		UserID:   user.ID,
		Username: user.Username,
	})
	return m
}

// PartMessage quietly detaches a player's session. Versions before 2
// degrade to goodbye.
func PartMessage(roomID domain.RoomID, user domain.User, version int) *Message {
	if version < 2 {
		return GoodbyeMessage(roomID, user)
	}
	m, _ := NewMessage(RoomPart, string(roomID), FarewellPayload{
		UserID:   user.ID,
		Username: user.Username,
	})
	return m
}
