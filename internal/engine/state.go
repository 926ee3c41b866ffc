package engine

import (
	"sync"

	"github.com/sweeney/gcode-serial/internal/action"
)

// Publisher accepts actions for broadcast. Implementations must not block.
type Publisher interface {
	Publish(a action.Action)
}

// State is the authoritative printer status plus the health monitor's
// missed-poll counter. A status is published only when it changes.
type State struct {
	mu     sync.Mutex
	pub    Publisher
	status action.Status
	missed int
}

// NewState starts out Disconnected without publishing anything.
func NewState(pub Publisher) *State {
	return &State{pub: pub, status: action.StatusDisconnected}
}

// Status returns the current status.
func (s *State) Status() action.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SetStatus records st and publishes a StateChange if it differs from the
// current value. It reports whether a change was published.
func (s *State) SetStatus(st action.Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == st {
		return false
	}
	s.status = st
	// Publishing under the lock keeps bus order identical to transition order.
	s.pub.Publish(action.StateChange(st))
	return true
}

// MissPoll increments the missed-poll counter and returns the new value.
func (s *State) MissPoll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.missed++
	return s.missed
}

// ResetMissedPolls zeroes the missed-poll counter.
func (s *State) ResetMissedPolls() {
	s.mu.Lock()
	s.missed = 0
	s.mu.Unlock()
}

// MissedPolls returns the missed-poll counter.
func (s *State) MissedPolls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.missed
}
