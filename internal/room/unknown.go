package room

import (
	"github.com/gameontext/mediator/internal/domain"
	"github.com/gameontext/mediator/internal/protocol"
)

// unknownRoom stands in for a room id the directory cannot resolve at
// all. The only way out is the emergency rescue path.
type unknownRoom struct {
	base
}

func newUnknownRoom(view View, id domain.RoomID) Mediator {
	u := &unknownRoom{}
	u.base = base{
		id:          id,
		name:        string(id),
		fullName:    "Somewhere Unknown",
		description: "A grey fog with no walls and no floor. Nobody seems to know this place exists. Type /sos to be rescued.",
		exits:       &domain.Exits{},
		view:        view,
	}
	return u
}

func (u *unknownRoom) Type() Type { return TypeUnknown }

func (u *unknownRoom) Hello(user domain.User, recovery bool) {
	u.SendToClients(u.clientLocation(user.ID))
}

func (u *unknownRoom) Join(user domain.User) {
	u.SendToClients(u.clientLocation(user.ID))
}

func (u *unknownRoom) Part(user domain.User)    {}
func (u *unknownRoom) Goodbye(user domain.User) {}

func (u *unknownRoom) SendToRoom(msg *protocol.Message) {
	userID := domain.UserID(msg.StringValue("userId", ""))
	u.SendToClients(u.clientEvent(userID, "Your words vanish into the fog. Type /sos to be rescued."))
}

func (u *unknownRoom) UpdateInformation(site *domain.Site) bool { return false }

func (u *unknownRoom) Disconnect() {}
