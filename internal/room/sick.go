package room

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gameontext/mediator/internal/domain"
	"github.com/gameontext/mediator/internal/protocol"
)

const (
	sickRetrySeed = 1 * time.Second
	sickRetryCap  = 5 * time.Minute
)

// sickRoom stands in for a room that resolved but could not be reached.
// It keeps asking the proxy to retry, backing off between attempts, until
// it is superseded or disconnected.
type sickRoom struct {
	base
	proxy  *Proxy
	reason string

	mu       sync.Mutex
	attempts int
	interval time.Duration
	timer    *time.Timer
	done     bool
}

func newSickRoom(proxy *Proxy, view View, site *domain.Site, reason string) *sickRoom {
	s := &sickRoom{proxy: proxy, reason: reason, attempts: 1, interval: sickRetrySeed}
	s.base = newBase(site, view)
	if s.name == "" {
		s.name = string(site.ID)
	}
	if s.fullName == "" {
		s.fullName = "A Sick Room"
	}
	s.description = "The room shivers and coughs. It does not look well at all."
	s.scheduleRetry()
	return s
}

func (s *sickRoom) Type() Type { return TypeSick }

// scheduleRetry arms the next attempt. Callers hold s.mu or own the room
// exclusively (constructor).
func (s *sickRoom) scheduleRetry() {
	delay := s.interval + time.Duration(rand.Int63n(int64(250*time.Millisecond)))
	s.timer = time.AfterFunc(delay, func() {
		log.Debug().Str("module", "room.sick").Str("room", string(s.id)).Int("attempt", s.Attempts()).Msg("retry fired")
		s.proxy.Reconnect()
	})
}

// RetryFailed records another failed attempt and grows the interval.
// The builder calls this when a retry resolves to the same sick room.
func (s *sickRoom) RetryFailed(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	s.attempts++
	if reason != "" {
		s.reason = reason
	}
	s.interval *= 2
	if s.interval > sickRetryCap {
		s.interval = sickRetryCap
	}
	s.scheduleRetry()
}

func (s *sickRoom) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

func (s *sickRoom) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

func (s *sickRoom) symptoms() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("Symptoms: %s (attempt %d, next check-up in about %s)",
		s.reason, s.attempts, s.interval.Round(time.Second))
}

func (s *sickRoom) Hello(user domain.User, recovery bool) {
	s.SendToClients(s.clientLocation(user.ID))
	s.SendToClients(s.clientEvent(user.ID, s.symptoms()))
}

func (s *sickRoom) Join(user domain.User) {
	s.SendToClients(s.clientLocation(user.ID))
}

func (s *sickRoom) Part(user domain.User)    {}
func (s *sickRoom) Goodbye(user domain.User) {}

func (s *sickRoom) SendToRoom(msg *protocol.Message) {
	userID := domain.UserID(msg.StringValue("userId", ""))
	s.SendToClients(s.clientEvent(userID, "The room only wheezes in reply. "+s.symptoms()))
}

func (s *sickRoom) UpdateInformation(site *domain.Site) bool {
	return s.applyInfo(site)
}

// Disconnect cancels any pending retry; a superseded sick room must never
// fire a dangling timer.
func (s *sickRoom) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done = true
	if s.timer != nil {
		s.timer.Stop()
	}
}
