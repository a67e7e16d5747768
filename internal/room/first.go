package room

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gameontext/mediator/internal/domain"
	"github.com/gameontext/mediator/internal/protocol"
)

const (
	firstRoomName     = "First Room"
	firstRoomFullName = "The First Room"
	firstRoomDesc     = "A helpful place to start. There is a tattered note on the wall; " +
		"type /help to read it, or wander off through any door you like."

	firstRoomHelp = "Commands: /look, /exits, /inventory, /teleport <roomId>, " +
		"/listmyrooms, /deleteroom <roomId>. Anything else is just chat."
)

// Registrar is the slice of the directory service the origin room uses
// for room-management commands.
type Registrar interface {
	ListSitesForOwner(ctx context.Context, owner string) ([]domain.Site, error)
	DeleteSite(ctx context.Context, id domain.RoomID, owner string) error
}

// firstRoom is the always-available origin room. It has no network
// dependency: commands and chat are handled locally.
type firstRoom struct {
	base
	registrar Registrar
}

// NewFirstRoom builds the origin delegate. site may be nil when the
// directory has no record for the origin id; fixed text fills the gaps.
func NewFirstRoom(view View, registrar Registrar, id domain.RoomID, site *domain.Site) Mediator {
	f := &firstRoom{registrar: registrar}
	f.base = base{id: id, name: firstRoomName, fullName: firstRoomFullName, description: firstRoomDesc, view: view}
	if site != nil {
		f.applyInfo(site)
	}
	if f.exits == nil {
		f.exits = &domain.Exits{}
	}
	return f
}

func (f *firstRoom) Type() Type { return TypeFirst }

func (f *firstRoom) Hello(user domain.User, recovery bool) {
	f.SendToClients(f.clientLocation(user.ID))
	if !recovery {
		f.SendToClients(f.roomEvent(user.Username + " is here"))
	}
}

func (f *firstRoom) Join(user domain.User) {
	f.SendToClients(f.clientLocation(user.ID))
}

func (f *firstRoom) Part(user domain.User) {}

func (f *firstRoom) Goodbye(user domain.User) {
	f.SendToClients(f.roomEvent(user.Username + " has gone"))
}

func (f *firstRoom) UpdateInformation(site *domain.Site) bool {
	return f.applyInfo(site)
}

func (f *firstRoom) Disconnect() {}

func (f *firstRoom) SendToRoom(msg *protocol.Message) {
	userID := domain.UserID(msg.StringValue("userId", ""))
	username := msg.StringValue("username", string(userID))
	content := strings.TrimSpace(msg.StringValue("content", ""))
	if content == "" {
		return
	}
	if !strings.HasPrefix(content, "/") {
		f.SendToClients(f.clientChat(username, content))
		return
	}

	cmd, arg, _ := strings.Cut(content, " ")
	arg = strings.TrimSpace(arg)
	switch strings.ToLower(cmd) {
	case "/look":
		f.SendToClients(f.clientLocation(userID))
	case "/exits":
		f.SendToClients(f.clientEvent(userID, f.describeExits()))
	case "/inventory":
		f.SendToClients(f.clientEvent(userID, "You do not appear to be carrying anything."))
	case "/help":
		f.SendToClients(f.clientEvent(userID, firstRoomHelp))
	case "/teleport":
		f.teleport(userID, arg)
	case "/listmyrooms":
		f.listMyRooms(userID)
	case "/deleteroom":
		f.deleteRoom(userID, arg)
	default:
		f.SendToClients(f.clientEvent(userID, "Hmm. That doesn't do anything here. Try /help."))
	}
}

func (f *firstRoom) describeExits() string {
	exits := f.exits.List()
	if len(exits) == 0 {
		return "There are no obvious exits. Try /teleport <roomId>."
	}
	dirs := make([]string, 0, len(exits))
	for d := range exits {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	var sb strings.Builder
	sb.WriteString("Exits:")
	for _, d := range dirs {
		fmt.Fprintf(&sb, "\n  (%s) %s", strings.ToUpper(d), exits[d])
	}
	return sb.String()
}

// teleport emits an exit directive; the session layer turns it into a
// room transition.
func (f *firstRoom) teleport(userID domain.UserID, target string) {
	if target == "" {
		f.SendToClients(f.clientEvent(userID, "Teleport where? /teleport <roomId>"))
		return
	}
	m, _ := protocol.NewMessage(protocol.PlayerLocation, string(userID), map[string]any{
		"type":     "exit",
		"content":  "You feel a strange tug...",
		"toRoomId": target,
		"bookmark": f.nextBookmark(),
	})
	f.SendToClients(m)
}

func (f *firstRoom) listMyRooms(userID domain.UserID) {
	if f.registrar == nil {
		f.SendToClients(f.clientEvent(userID, "The room ledger is missing."))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	sites, err := f.registrar.ListSitesForOwner(ctx, string(userID))
	if err != nil {
		log.Info().Err(err).Str("module", "room.first").Str("user", string(userID)).Msg("list sites")
		f.SendToClients(f.clientEvent(userID, "The room ledger is unreadable right now. Try again later."))
		return
	}
	if len(sites) == 0 {
		f.SendToClients(f.clientEvent(userID, "You don't own any rooms."))
		return
	}
	var sb strings.Builder
	sb.WriteString("Your rooms:")
	for _, s := range sites {
		name := string(s.ID)
		if s.Info != nil && s.Info.FullName != "" {
			name = s.Info.FullName
		}
		fmt.Fprintf(&sb, "\n  %s (%s)", name, s.ID)
	}
	f.SendToClients(f.clientEvent(userID, sb.String()))
}

func (f *firstRoom) deleteRoom(userID domain.UserID, target string) {
	if target == "" {
		f.SendToClients(f.clientEvent(userID, "Delete which room? /deleteroom <roomId>"))
		return
	}
	if f.registrar == nil {
		f.SendToClients(f.clientEvent(userID, "The room ledger is missing."))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := f.registrar.DeleteSite(ctx, domain.RoomID(target), string(userID)); err != nil {
		log.Info().Err(err).Str("module", "room.first").Str("room", target).Msg("delete site")
		f.SendToClients(f.clientEvent(userID, "That room refuses to be deleted."))
		return
	}
	f.SendToClients(f.clientEvent(userID, "Room "+target+" is gone."))
}
