package nexus

import (
	"github.com/gameontext/mediator/internal/domain"
	"github.com/gameontext/mediator/internal/protocol"
	"github.com/gameontext/mediator/internal/room"
)

// The nexus is the ViewFactory for the delegate builder: delegates talk
// to occupants only through views, never to pods directly.

// MultiView fans a message out to every pod resident in a room, honoring
// wildcard vs specific-player destinations.
func (n *Nexus) MultiView(roomID domain.RoomID) room.View {
	return &multiView{n: n, roomID: roomID}
}

// FilteredView additionally requires the resident pod's current delegate
// type to match; sick-room diagnostics use it so pods that have already
// moved on never see them.
func (n *Nexus) FilteredView(roomID domain.RoomID, t room.Type) room.View {
	return &filteredView{multiView{n: n, roomID: roomID}, t}
}

// singleView scopes delivery to exactly one pod; remote delegates are
// per-connection and use this.
func (n *Nexus) singleView(p *Pod) room.View {
	return &singleView{pod: p}
}

type multiView struct {
	n      *Nexus
	roomID domain.RoomID
}

func (v *multiView) SendToClients(msg *protocol.Message) {
	for _, pod := range v.n.podsInRoom(v.roomID) {
		if msg.IsForPlayer(pod.user.ID) {
			pod.deliver(msg)
		}
	}
}

type filteredView struct {
	multiView
	t room.Type
}

func (v *filteredView) SendToClients(msg *protocol.Message) {
	for _, pod := range v.n.podsInRoom(v.roomID) {
		if t, ok := pod.mediatorType(); !ok || t != v.t {
			continue
		}
		if msg.IsForPlayer(pod.user.ID) {
			pod.deliver(msg)
		}
	}
}

type singleView struct {
	pod *Pod
}

func (v *singleView) SendToClients(msg *protocol.Message) {
	if msg.IsForPlayer(v.pod.user.ID) {
		v.pod.deliver(msg)
	}
}
