package nexus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gameontext/mediator/internal/domain"
	"github.com/gameontext/mediator/internal/protocol"
	"github.com/gameontext/mediator/internal/room"
)

// ErrConcurrentTransition reports a transition that lost a race: the
// pod's actual room no longer matches the caller's expected prior room.
// The caller is resynced and must not retry on its own.
var ErrConcurrentTransition = errors.New("concurrent transition")

const splinchNotice = "Your view of the world went out of sync. Pulling you back together..."

// LocationService is the player-profile collaborator; results are
// informational only.
type LocationService interface {
	UpdateLocation(ctx context.Context, user domain.UserID, from, to domain.RoomID) (domain.RoomID, error)
}

// DelegateBuilder resolves room ids and exits into delegates; satisfied
// by room.Builder.
type DelegateBuilder interface {
	FindMediatorForRoom(podView room.View, user domain.User, roomID domain.RoomID) room.Mediator
	FindMediatorForExit(podView room.View, user domain.User, current room.Mediator, dir domain.Direction) room.Mediator
}

// Nexus maps players to pods and rooms to resident pods, and serializes
// join/transition/part per pod.
type Nexus struct {
	builder     DelegateBuilder
	locations   LocationService
	firstRoomID domain.RoomID

	mu   sync.RWMutex
	pods map[domain.UserID]*Pod

	indexMu   sync.RWMutex
	roomIndex map[domain.RoomID]map[*Pod]struct{}
}

func New(locations LocationService, firstRoomID domain.RoomID) *Nexus {
	return &Nexus{
		locations:   locations,
		firstRoomID: firstRoomID,
		pods:        make(map[domain.UserID]*Pod),
		roomIndex:   make(map[domain.RoomID]map[*Pod]struct{}),
	}
}

// SetBuilder closes the construction cycle: the builder needs the nexus
// as its view factory, the nexus needs the builder to mint delegates.
func (n *Nexus) SetBuilder(b DelegateBuilder) { n.builder = b }

func (n *Nexus) getOrCreatePod(user domain.User) *Pod {
	n.mu.RLock()
	pod, ok := n.pods[user.ID]
	n.mu.RUnlock()
	if ok {
		return pod
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if pod, ok = n.pods[user.ID]; ok {
		return pod
	}
	pod = newPod(n, user)
	n.pods[user.ID] = pod
	log.Info().Str("module", "nexus").Str("user", string(user.ID)).Msg("pod created")
	return pod
}

func (n *Nexus) pod(id domain.UserID) *Pod {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.pods[id]
}

func (n *Nexus) indexAdd(roomID domain.RoomID, pod *Pod) {
	n.indexMu.Lock()
	defer n.indexMu.Unlock()
	set, ok := n.roomIndex[roomID]
	if !ok {
		set = make(map[*Pod]struct{})
		n.roomIndex[roomID] = set
	}
	set[pod] = struct{}{}
}

func (n *Nexus) indexRemove(roomID domain.RoomID, pod *Pod) {
	n.indexMu.Lock()
	defer n.indexMu.Unlock()
	if set, ok := n.roomIndex[roomID]; ok {
		delete(set, pod)
		if len(set) == 0 {
			delete(n.roomIndex, roomID)
		}
	}
}

func (n *Nexus) podsInRoom(roomID domain.RoomID) []*Pod {
	n.indexMu.RLock()
	defer n.indexMu.RUnlock()
	out := make([]*Pod, 0, len(n.roomIndex[roomID]))
	for pod := range n.roomIndex[roomID] {
		out = append(out, pod)
	}
	return out
}

// Join attaches one device to its player's pod. The first device settles
// the pod into a room; later devices targeting the same room attach
// silently; later devices targeting a different room are not honored and
// every device is forced back onto the pod's existing room instead.
func (n *Nexus) Join(s Session, username string, roomID domain.RoomID, lastBookmark string) {
	u, err := domain.NewUser(s.UserID(), username)
	if err != nil {
		log.Warn().Err(err).Str("module", "nexus").Str("user", string(s.UserID())).Msg("unusable username, using player id")
		u = &domain.User{ID: s.UserID(), Username: string(s.UserID())}
	}
	user := *u

	for {
		pod := n.getOrCreatePod(user)

		// Directory work for a fresh pod happens before the pod lock.
		var candidate room.Mediator
		if pod.mediator() == nil {
			candidate = n.builder.FindMediatorForRoom(n.singleView(pod), user, roomID)
		}

		if n.attachSession(pod, s, user, roomID, lastBookmark, candidate) {
			return
		}
		// The pod dissolved between lookup and lock; start over.
	}
}

func (n *Nexus) attachSession(pod *Pod, s Session, user domain.User, roomID domain.RoomID, lastBookmark string, candidate room.Mediator) bool {
	pod.opMu.Lock()
	defer pod.opMu.Unlock()

	if pod.dead {
		if candidate != nil {
			candidate.Disconnect()
		}
		return false
	}

	pod.addSession(s)

	med := pod.mediator()
	if med == nil {
		if candidate == nil {
			// Another device settled the pod and departed again between
			// our check and the lock.
			candidate = n.builder.FindMediatorForRoom(n.singleView(pod), user, roomID)
		}
		pod.setMediator(candidate)
		n.indexAdd(candidate.ID(), pod)
		if lastBookmark != "" {
			candidate.Join(user)
		} else {
			candidate.Hello(user, false)
		}
		return true
	}

	if candidate != nil {
		candidate.Disconnect()
	}

	if roomID == "" || roomID == med.ID() {
		// Same room: quiet snapshot for the new device only.
		s.Send(locationMessage(med, user.ID))
		return true
	}

	// Different room: never move the other devices, never drop this one.
	// Everybody gets pulled onto the pod's authoritative room.
	log.Info().Str("module", "nexus").Str("user", string(user.ID)).
		Str("wanted", string(roomID)).Str("actual", string(med.ID())).Msg("desynced device join")
	n.resync(pod, med)
	return true
}

// Transition moves a pod to an explicit target room, but only when the
// caller's idea of the current room is still true.
func (n *Nexus) Transition(userID domain.UserID, expectedFrom, to domain.RoomID) error {
	pod := n.pod(userID)
	if pod == nil {
		return fmt.Errorf("no pod for player %s", userID)
	}

	if cur := pod.mediator(); cur == nil || cur.ID() == to {
		return nil
	}

	// Resolve the destination before taking the pod lock.
	next := n.builder.FindMediatorForRoom(n.singleView(pod), pod.user, to)

	pod.opMu.Lock()
	defer pod.opMu.Unlock()

	cur := pod.mediator()
	if cur == nil {
		next.Disconnect()
		return nil
	}
	if cur.ID() == next.ID() {
		next.Disconnect()
		return nil
	}
	if expectedFrom != "" && cur.ID() != expectedFrom {
		next.Disconnect()
		n.resync(pod, cur)
		return fmt.Errorf("%w: expected %s, actually in %s", ErrConcurrentTransition, expectedFrom, cur.ID())
	}

	n.swap(pod, cur, next)
	return nil
}

// TransitionViaExit is Transition with the destination resolved through
// the current room's exit table.
func (n *Nexus) TransitionViaExit(userID domain.UserID, expectedFrom domain.RoomID, dir domain.Direction) error {
	pod := n.pod(userID)
	if pod == nil {
		return fmt.Errorf("no pod for player %s", userID)
	}

	cur := pod.mediator()
	if cur == nil {
		return nil
	}
	if expectedFrom != "" && cur.ID() != expectedFrom {
		n.resyncLocked(pod)
		return fmt.Errorf("%w: expected %s, actually in %s", ErrConcurrentTransition, expectedFrom, cur.ID())
	}

	next := n.builder.FindMediatorForExit(n.singleView(pod), pod.user, cur, dir)

	pod.opMu.Lock()
	defer pod.opMu.Unlock()

	actual := pod.mediator()
	if actual != cur {
		if next != cur && next != actual {
			next.Disconnect()
		}
		n.resync(pod, actual)
		return fmt.Errorf("%w: room changed while resolving exit", ErrConcurrentTransition)
	}
	if next == cur {
		// Missing exit: the builder already told the player, nothing moves.
		return nil
	}

	n.swap(pod, cur, next)
	return nil
}

// swap performs the room change under the pod lock: goodbye to the old
// room, index update, hello to the new room, location fan-out.
func (n *Nexus) swap(pod *Pod, old, next room.Mediator) {
	old.Goodbye(pod.user)
	old.Disconnect()
	n.indexRemove(old.ID(), pod)
	pod.broadcast(eventMessage(pod.user.ID, "You have left "+placeName(old)))

	pod.setMediator(next)
	n.indexAdd(next.ID(), pod)
	next.Hello(pod.user, false)
	pod.broadcast(locationMessage(next, pod.user.ID))

	log.Info().Str("module", "nexus").Str("user", string(pod.user.ID)).
		Str("from", string(old.ID())).Str("to", string(next.ID())).Msg("transition complete")

	go n.reportLocation(pod.user.ID, old.ID(), next.ID())
}

func placeName(med room.Mediator) string {
	if name := med.FullName(); name != "" {
		return name
	}
	return string(med.ID())
}

// reportLocation is fire-and-forget; the profile service's answer is
// informational only.
func (n *Nexus) reportLocation(userID domain.UserID, from, to domain.RoomID) {
	if n.locations == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := n.locations.UpdateLocation(ctx, userID, from, to); err != nil {
		log.Info().Err(err).Str("module", "nexus").Str("user", string(userID)).Msg("location update failed")
	}
}

// resync forces every device of a pod back onto the pod's authoritative
// room. Caller holds the pod lock.
func (n *Nexus) resync(pod *Pod, med room.Mediator) {
	pod.broadcast(eventMessage(pod.user.ID, splinchNotice))
	if med != nil {
		pod.broadcast(locationMessage(med, pod.user.ID))
	}
}

func (n *Nexus) resyncLocked(pod *Pod) {
	pod.opMu.Lock()
	defer pod.opMu.Unlock()
	n.resync(pod, pod.mediator())
}

// Part detaches one device. Only the pod's last device departing parts
// the room and dissolves the pod.
func (n *Nexus) Part(s Session) {
	pod := n.pod(s.UserID())
	if pod == nil {
		return
	}

	pod.opMu.Lock()
	defer pod.opMu.Unlock()

	pod.removeSession(s.ID())
	if pod.sessionCount() > 0 {
		return
	}

	if med := pod.mediator(); med != nil {
		med.Part(pod.user)
		med.Disconnect()
		n.indexRemove(med.ID(), pod)
		pod.setMediator(nil)
	}
	pod.dead = true

	n.mu.Lock()
	delete(n.pods, s.UserID())
	n.mu.Unlock()
	log.Info().Str("module", "nexus").Str("user", string(s.UserID())).Msg("pod dissolved")
}

// SendToRoom routes an in-room message from a device to the pod's
// current delegate.
func (n *Nexus) SendToRoom(userID domain.UserID, msg *protocol.Message) {
	pod := n.pod(userID)
	if pod == nil {
		return
	}
	if med := pod.mediator(); med != nil {
		med.SendToRoom(msg)
	}
}

// Rescue is the emergency path back to the origin room.
func (n *Nexus) Rescue(userID domain.UserID) {
	pod := n.pod(userID)
	if pod == nil {
		return
	}
	cur := pod.roomID()
	if cur == "" || cur == n.firstRoomID {
		return
	}
	if err := n.Transition(userID, cur, n.firstRoomID); err != nil {
		log.Info().Err(err).Str("module", "nexus").Str("user", string(userID)).Msg("rescue failed")
	}
}

// PodCount and RoomCount back the operational endpoints.
func (n *Nexus) PodCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.pods)
}

func (n *Nexus) RoomCount() int {
	n.indexMu.RLock()
	defer n.indexMu.RUnlock()
	return len(n.roomIndex)
}

func locationMessage(med room.Mediator, userID domain.UserID) *protocol.Message {
	m, _ := protocol.NewMessage(protocol.Player, string(userID), map[string]any{
		"type":        "location",
		"name":        med.Name(),
		"fullName":    med.FullName(),
		"description": med.Description(),
		"exits":       med.ListExits(),
	})
	return m
}

func eventMessage(userID domain.UserID, text string) *protocol.Message {
	m, _ := protocol.NewMessage(protocol.Player, string(userID), map[string]any{
		"type":    "event",
		"content": map[string]string{string(userID): text},
	})
	return m
}
