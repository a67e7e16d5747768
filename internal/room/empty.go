package room

import (
	"strings"
	"sync"
	"time"

	"github.com/gameontext/mediator/internal/domain"
	"github.com/gameontext/mediator/internal/protocol"
)

// emptyRecheck is the minimum interval between looks at the directory to
// see whether the room has since been populated.
const emptyRecheck = 30 * time.Second

// emptyRoom stands in for a site that exists in the directory but has no
// registered content behind it.
type emptyRoom struct {
	base
	proxy *Proxy

	mu        sync.Mutex
	lastCheck time.Time
	timer     *time.Timer
	done      bool
}

func newEmptyRoom(proxy *Proxy, view View, site *domain.Site) Mediator {
	e := &emptyRoom{proxy: proxy, lastCheck: time.Now()}
	e.base = newBase(site, view)
	if e.name == "" {
		e.name = string(site.ID)
	}
	if e.fullName == "" {
		e.fullName = "An Empty Room"
	}
	e.description = "A bare room with unpainted walls. Someone claimed this space but never moved in."
	e.timer = time.AfterFunc(emptyRecheck, e.recheck)
	return e
}

func (e *emptyRoom) Type() Type { return TypeEmpty }

func (e *emptyRoom) recheck() {
	e.mu.Lock()
	if e.done {
		e.mu.Unlock()
		return
	}
	e.lastCheck = time.Now()
	e.timer.Reset(emptyRecheck)
	e.mu.Unlock()
	e.proxy.UpdateInformation(nil)
}

// maybeRecheck rate-limits directory lookups triggered by player
// activity; the periodic timer covers idle rooms.
func (e *emptyRoom) maybeRecheck() {
	e.mu.Lock()
	if e.done || time.Since(e.lastCheck) < emptyRecheck {
		e.mu.Unlock()
		return
	}
	e.lastCheck = time.Now()
	e.mu.Unlock()
	e.proxy.UpdateInformation(nil)
}

func (e *emptyRoom) Hello(user domain.User, recovery bool) {
	e.SendToClients(e.clientLocation(user.ID))
	e.maybeRecheck()
}

func (e *emptyRoom) Join(user domain.User) {
	e.SendToClients(e.clientLocation(user.ID))
	e.maybeRecheck()
}

func (e *emptyRoom) Part(user domain.User)    {}
func (e *emptyRoom) Goodbye(user domain.User) {}

func (e *emptyRoom) SendToRoom(msg *protocol.Message) {
	userID := domain.UserID(msg.StringValue("userId", ""))
	username := msg.StringValue("username", string(userID))
	content := strings.TrimSpace(msg.StringValue("content", ""))
	if content == "" {
		return
	}
	if strings.HasPrefix(content, "/") {
		e.SendToClients(e.clientEvent(userID, "Nothing happens. The room is quite empty."))
		return
	}
	e.SendToClients(e.clientChat(username, content))
}

func (e *emptyRoom) UpdateInformation(site *domain.Site) bool {
	return e.applyInfo(site)
}

func (e *emptyRoom) Disconnect() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.done = true
	if e.timer != nil {
		e.timer.Stop()
	}
}
