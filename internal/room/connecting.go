package room

import (
	"github.com/gameontext/mediator/internal/domain"
	"github.com/gameontext/mediator/internal/protocol"
)

// connectingRoom stands in while a remote connection attempt is
// outstanding. The first hello/join kicks the real attempt off through
// the proxy.
type connectingRoom struct {
	base
	proxy *Proxy
}

func newConnectingRoom(proxy *Proxy, view View, site *domain.Site) Mediator {
	c := &connectingRoom{proxy: proxy}
	c.base = newBase(site, view)
	if c.name == "" {
		c.name = string(site.ID)
	}
	if c.fullName == "" {
		c.fullName = "Connecting..."
	}
	c.description = "You are in a dark tunnel. Somewhere ahead there is a faint light."
	return c
}

func (c *connectingRoom) Type() Type { return TypeConnecting }

func (c *connectingRoom) Hello(user domain.User, recovery bool) {
	c.SendToClients(c.clientLocation(user.ID))
	c.proxy.ConnectRemote(!recovery, user)
}

func (c *connectingRoom) Join(user domain.User) {
	c.SendToClients(c.clientLocation(user.ID))
	c.proxy.ConnectRemote(false, user)
}

func (c *connectingRoom) Part(user domain.User)    {}
func (c *connectingRoom) Goodbye(user domain.User) {}

func (c *connectingRoom) SendToRoom(msg *protocol.Message) {
	userID := domain.UserID(msg.StringValue("userId", ""))
	c.SendToClients(c.clientEvent(userID, "The tunnel swallows your words. You are still on your way."))
}

func (c *connectingRoom) UpdateInformation(site *domain.Site) bool {
	return c.applyInfo(site)
}

func (c *connectingRoom) Disconnect() {}
