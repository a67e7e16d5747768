package room

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gameontext/mediator/internal/domain"
	"github.com/gameontext/mediator/internal/protocol"
)

type fakeDirectory struct {
	mu      sync.Mutex
	sites   map[domain.RoomID]*domain.Site
	err     error
	exitErr error
}

func (d *fakeDirectory) ResolveSite(_ context.Context, id domain.RoomID) (*domain.Site, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	if site, ok := d.sites[id]; ok {
		return site, nil
	}
	return nil, fmt.Errorf("lookup %s: %w", id, domain.ErrSiteNotFound)
}

func (d *fakeDirectory) ResolveExit(ctx context.Context, id domain.RoomID, dir domain.Direction) (*domain.Site, error) {
	d.mu.Lock()
	exitErr := d.exitErr
	d.mu.Unlock()
	if exitErr != nil {
		return nil, exitErr
	}
	site, err := d.ResolveSite(ctx, id)
	if err != nil {
		return nil, err
	}
	exit := site.Exits.Get(dir)
	if exit == nil {
		return nil, fmt.Errorf("exit %s: %w", dir, domain.ErrSiteNotFound)
	}
	return d.ResolveSite(ctx, exit.ID)
}

type recordView struct {
	mu   sync.Mutex
	msgs []*protocol.Message
}

func (v *recordView) SendToClients(m *protocol.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.msgs = append(v.msgs, m)
}

func (v *recordView) contains(substr string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, m := range v.msgs {
		if strings.Contains(string(m.Encode()), substr) {
			return true
		}
	}
	return false
}

type fakeViews struct {
	view *recordView
}

func (f *fakeViews) MultiView(domain.RoomID) View { return f.view }

func (f *fakeViews) FilteredView(domain.RoomID, Type) View { return f.view }

var testUser = domain.User{ID: "u1", Username: "jane"}

func newTestBuilder(dir *fakeDirectory) (*Builder, *recordView) {
	view := &recordView{}
	b := NewBuilder(dir, nil, &fakeViews{view: view}, "firstroom")
	b.connect = func(context.Context, *domain.ConnectionDetails) (*Connection, error) {
		return nil, errors.New("no network in tests")
	}
	return b, view
}

func detailsSite(id domain.RoomID) *domain.Site {
	return &domain.Site{
		ID: id,
		Info: &domain.RoomInfo{
			Name:              string(id),
			FullName:          "The " + string(id),
			ConnectionDetails: &domain.ConnectionDetails{Type: "websocket", Target: "ws://" + string(id)},
		},
	}
}

func TestFindMediatorForRoomOriginIDs(t *testing.T) {
	t.Parallel()

	b, _ := newTestBuilder(&fakeDirectory{})
	podView := &recordView{}

	assert.Equal(t, TypeFirst, b.FindMediatorForRoom(podView, testUser, "").Type())
	assert.Equal(t, TypeFirst, b.FindMediatorForRoom(podView, testUser, "firstroom").Type())
}

func TestFindMediatorForRoomUnresolvedFallsBackToOrigin(t *testing.T) {
	t.Parallel()

	b, _ := newTestBuilder(&fakeDirectory{})
	podView := &recordView{}

	med := b.FindMediatorForRoom(podView, testUser, "nowhere")
	assert.Equal(t, TypeFirst, med.Type())
	assert.True(t, podView.contains("has been lost"))
}

func TestFindMediatorForRoomSeedsVariantByContent(t *testing.T) {
	t.Parallel()

	dir := &fakeDirectory{sites: map[domain.RoomID]*domain.Site{
		"bare": {ID: "bare"},
		"live": detailsSite("live"),
	}}
	b, _ := newTestBuilder(dir)
	podView := &recordView{}

	empty := b.FindMediatorForRoom(podView, testUser, "bare")
	assert.Equal(t, TypeEmpty, empty.Type())
	empty.Disconnect()

	connecting := b.FindMediatorForRoom(podView, testUser, "live")
	assert.Equal(t, TypeConnecting, connecting.Type())
	assert.Equal(t, domain.RoomID("live"), connecting.ID())
}

func TestFindMediatorForExitMissingKeepsCurrent(t *testing.T) {
	t.Parallel()

	b, _ := newTestBuilder(&fakeDirectory{})
	podView := &recordView{}
	current := NewFirstRoom(&recordView{}, nil, "firstroom", nil)

	med := b.FindMediatorForExit(podView, testUser, current, domain.North)
	assert.Same(t, current.(*firstRoom), med.(*firstRoom))
	assert.True(t, podView.contains("no door"))
}

func TestFindMediatorForExitSynthesizesFallbackSite(t *testing.T) {
	t.Parallel()

	exit := &domain.Exit{
		ID:                "R2",
		Name:              "r2",
		FullName:          "Room Two",
		ConnectionDetails: &domain.ConnectionDetails{Type: "websocket", Target: "ws://r2"},
	}
	site := detailsSite("R1")
	site.Exits = &domain.Exits{E: exit}

	dir := &fakeDirectory{
		sites:   map[domain.RoomID]*domain.Site{"R1": site},
		exitErr: errors.New("directory offline"),
	}
	b, _ := newTestBuilder(dir)
	podView := &recordView{}

	current := b.FindMediatorForRoom(podView, testUser, "R1")
	med := b.FindMediatorForExit(podView, testUser, current, domain.East)

	require.Equal(t, TypeConnecting, med.Type())
	assert.Equal(t, domain.RoomID("R2"), med.ID())

	// The synthesized site points back the way the player came.
	back := med.Exits().Get(domain.West)
	require.NotNil(t, back)
	assert.Equal(t, domain.RoomID("R1"), back.ID)
}

func TestUpdateDelegateDowngradesToSickAndBacksOff(t *testing.T) {
	t.Parallel()

	dir := &fakeDirectory{sites: map[domain.RoomID]*domain.Site{"R3": detailsSite("R3")}}
	b, _ := newTestBuilder(dir)
	podView := &recordView{}

	med := b.FindMediatorForRoom(podView, testUser, "R3")
	proxy := med.(*Proxy)
	require.Equal(t, TypeConnecting, proxy.Type())

	// First connection attempt fails: Connecting -> Sick, attempt 1.
	b.updateDelegate(updateHello, proxy, proxy.current(), nil, testUser)
	require.Equal(t, TypeSick, proxy.Type())
	sick := proxy.current().(*sickRoom)
	assert.Equal(t, 1, sick.Attempts())
	firstInterval := sick.Interval()
	assert.GreaterOrEqual(t, firstInterval, time.Second)
	disarm(sick)

	// Retry fails: same sick delegate, attempt 2, strictly larger interval.
	b.updateDelegate(updateReconnect, proxy, proxy.current(), nil, testUser)
	require.Same(t, sick, proxy.current().(*sickRoom))
	assert.Equal(t, 2, sick.Attempts())
	assert.Greater(t, sick.Interval(), firstInterval)

	// Superseding the delegate cancels the pending retry.
	proxy.Disconnect()
	sick.mu.Lock()
	assert.True(t, sick.done)
	sick.mu.Unlock()
}

// disarm stops a sick room's pending retry timer so a parallel test never
// races it against direct builder calls.
func disarm(s *sickRoom) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
}

func TestUpdateDelegateAfterProxyDisconnectInstallsNothing(t *testing.T) {
	t.Parallel()

	dir := &fakeDirectory{sites: map[domain.RoomID]*domain.Site{"R8": detailsSite("R8")}}
	b, _ := newTestBuilder(dir)
	podView := &recordView{}

	proxy := b.FindMediatorForRoom(podView, testUser, "R8").(*Proxy)
	require.True(t, proxy.updating.CompareAndSwap(false, true))
	proxy.Disconnect()

	// The failed connect would normally downgrade to Sick; a disconnected
	// proxy must not end up with an armed retry timer.
	b.updateDelegate(updateHello, proxy, proxy.current(), nil, testUser)
	assert.Equal(t, TypeConnecting, proxy.Type())
	assert.False(t, proxy.updating.Load())
}

func TestUpdateDelegateDowngradesToEmptyWhenContentGone(t *testing.T) {
	t.Parallel()

	dir := &fakeDirectory{sites: map[domain.RoomID]*domain.Site{"R4": detailsSite("R4")}}
	b, _ := newTestBuilder(dir)
	podView := &recordView{}

	proxy := b.FindMediatorForRoom(podView, testUser, "R4").(*Proxy)

	dir.mu.Lock()
	dir.sites["R4"] = &domain.Site{ID: "R4"}
	dir.mu.Unlock()

	b.updateDelegate(updateRefresh, proxy, proxy.current(), nil, testUser)
	assert.Equal(t, TypeEmpty, proxy.Type())
	proxy.Disconnect()
}

func TestUpdateDelegateDowngradesToUnknownWhenUnresolved(t *testing.T) {
	t.Parallel()

	dir := &fakeDirectory{sites: map[domain.RoomID]*domain.Site{"R5": detailsSite("R5")}}
	b, _ := newTestBuilder(dir)
	podView := &recordView{}

	proxy := b.FindMediatorForRoom(podView, testUser, "R5").(*Proxy)

	dir.mu.Lock()
	delete(dir.sites, "R5")
	dir.mu.Unlock()

	b.updateDelegate(updateRefresh, proxy, proxy.current(), nil, testUser)
	assert.Equal(t, TypeUnknown, proxy.Type())
}

func TestUpdateDelegateKeepsCurrentWhenDirectoryUnavailable(t *testing.T) {
	t.Parallel()

	dir := &fakeDirectory{sites: map[domain.RoomID]*domain.Site{"R6": detailsSite("R6")}}
	b, _ := newTestBuilder(dir)
	podView := &recordView{}

	proxy := b.FindMediatorForRoom(podView, testUser, "R6").(*Proxy)
	current := proxy.current()

	dir.mu.Lock()
	dir.err = errors.New("directory down")
	dir.mu.Unlock()

	b.updateDelegate(updateRefresh, proxy, current, nil, testUser)
	assert.Same(t, current.(*connectingRoom), proxy.current().(*connectingRoom))
	assert.False(t, proxy.updating.Load())
}
