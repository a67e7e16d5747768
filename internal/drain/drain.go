// Package drain gives every outbound connection a single ordered sender.
package drain

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/gameontext/mediator/internal/protocol"
)

// ErrBusy marks a transient send failure: the message must be retried
// without losing its place in line.
var ErrBusy = errors.New("connection busy")

// Sender is the connection a drain writes to. Close must be safe to call
// more than once.
type Sender interface {
	Send(msg *protocol.Message) error
	Close() error
}

const stopWait = 500 * time.Millisecond

// Drain owns one connection and an unbounded FIFO of pending messages,
// flushed by a dedicated goroutine. Enqueueing never blocks the caller.
type Drain struct {
	name string
	conn Sender

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []*protocol.Message
	stopped bool

	done      chan struct{}
	closeOnce sync.Once
}

func New(name string, conn Sender) *Drain {
	d := &Drain{
		name: name,
		conn: conn,
		done: make(chan struct{}),
	}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// Start begins the sender loop.
func (d *Drain) Start() {
	go d.run()
}

// Send enqueues without blocking. Messages sent after Stop are dropped.
func (d *Drain) Send(msg *protocol.Message) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		log.Debug().Str("module", "drain").Str("drain", d.name).Msg("dropping message after stop")
		return
	}
	d.queue = append(d.queue, msg)
	d.cond.Signal()
}

// Stop interrupts the sender loop, waits briefly for it to acknowledge,
// then force-closes the connection either way.
func (d *Drain) Stop() {
	d.mu.Lock()
	d.stopped = true
	d.cond.Broadcast()
	d.mu.Unlock()

	select {
	case <-d.done:
	case <-time.After(stopWait):
		log.Warn().Str("module", "drain").Str("drain", d.name).Msg("sender loop did not stop in time")
	}
	d.close()
}

func (d *Drain) close() {
	d.closeOnce.Do(func() {
		if err := d.conn.Close(); err != nil {
			log.Debug().Err(err).Str("module", "drain").Str("drain", d.name).Msg("close")
		}
	})
}

// take blocks until a message is available or the drain is stopped.
func (d *Drain) take() (*protocol.Message, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for len(d.queue) == 0 && !d.stopped {
		d.cond.Wait()
	}
	if d.stopped {
		return nil, false
	}
	msg := d.queue[0]
	d.queue = d.queue[1:]
	return msg, true
}

// requeue puts a message back at the head so later messages cannot
// overtake it.
func (d *Drain) requeue(msg *protocol.Message) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.queue = append([]*protocol.Message{msg}, d.queue...)
}

func (d *Drain) run() {
	defer close(d.done)
	for {
		msg, ok := d.take()
		if !ok {
			return
		}
		if err := d.conn.Send(msg); err != nil {
			if errors.Is(err, ErrBusy) {
				d.requeue(msg)
				// Yield so the competing writer can finish.
				time.Sleep(20 * time.Millisecond)
				continue
			}
			log.Info().Err(err).Str("module", "drain").Str("drain", d.name).Msg("send failed, closing connection")
			d.mu.Lock()
			d.stopped = true
			d.queue = nil
			d.mu.Unlock()
			d.close()
			return
		}
	}
}
