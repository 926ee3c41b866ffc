// Package bus is the broadcast channel shared by the engine, the health
// monitor, the print controller and the daemon's outer surfaces.
//
// Every subscriber owns a bounded buffer. Publish never blocks: when a
// subscriber's buffer is full the oldest pending action is evicted to make
// room, so a slow subscriber lags (loses old messages) but never sees them
// out of order.
package bus

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/sweeney/gcode-serial/internal/action"
)

// DefaultCapacity is the per-subscriber buffer size used by New.
const DefaultCapacity = 64

// Bus fans out actions to all current subscribers.
type Bus struct {
	mu       sync.Mutex
	subs     map[*Subscription]struct{}
	capacity int
	closed   bool
}

// Subscription receives actions published after it was created.
type Subscription struct {
	bus    *Bus
	ch     chan action.Action
	name   string
	lagged uint64
}

// New creates a bus with DefaultCapacity.
func New() *Bus {
	return NewWithCapacity(DefaultCapacity)
}

// NewWithCapacity creates a bus whose subscribers buffer up to capacity actions.
func NewWithCapacity(capacity int) *Bus {
	if capacity < 1 {
		capacity = 1
	}
	return &Bus{
		subs:     make(map[*Subscription]struct{}),
		capacity: capacity,
	}
}

// Subscribe registers a new subscriber. The name is only used in log output.
func (b *Bus) Subscribe(name string) *Subscription {
	s := &Subscription{
		bus:  b,
		ch:   make(chan action.Action, b.capacity),
		name: name,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(s.ch)
		return s
	}
	b.subs[s] = struct{}{}
	return s
}

// Publish delivers a to every subscriber without blocking.
func (b *Bus) Publish(a action.Action) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	for s := range b.subs {
		select {
		case s.ch <- a:
			continue
		default:
		}

		// Buffer full: evict the oldest entry. Only publishers send, and they
		// hold b.mu, so the second send cannot fail after a successful evict.
		select {
		case <-s.ch:
			s.lagged++
			if s.lagged == 1 || s.lagged%100 == 0 {
				log.Warn().Str("subscriber", s.name).Uint64("dropped", s.lagged).Msg("bus: subscriber lagging, dropping oldest")
			}
		default:
		}
		select {
		case s.ch <- a:
		default:
		}
	}
}

// Close closes every subscription channel. Later publishes are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		close(s.ch)
		delete(b.subs, s)
	}
}

// Subscribers returns the number of registered subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// C returns the receive channel. It is closed by Unsubscribe or Bus.Close.
func (s *Subscription) C() <-chan action.Action {
	return s.ch
}

// Lagged returns how many actions were dropped for this subscriber.
func (s *Subscription) Lagged() uint64 {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	return s.lagged
}

// Unsubscribe detaches the subscription and closes its channel.
func (s *Subscription) Unsubscribe() {
	b := s.bus
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s]; !ok {
		return
	}
	delete(b.subs, s)
	close(s.ch)
}
