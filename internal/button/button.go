// Package button debounces the stop button input.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package button

import "time"

// State is the debounced position of the button.
type State string

const (
	StatePressed  State = "PRESSED"
	StateReleased State = "RELEASED"
)

// EventType is a debounced transition.
type EventType string

const (
	EventPress   EventType = "PRESS"
	EventRelease EventType = "RELEASE"
)

// Event is a debounced transition to be acted on.
type Event struct {
	Timestamp time.Time
	Type      EventType
}

// Debouncer turns raw samples into debounced transitions. A button already
// held when sampling starts establishes the baseline and produces no event.
type Debouncer struct {
	debounce time.Duration

	stable       State
	pending      State
	pendingSince time.Time
	baselined    bool
	presses      int
}

// NewDebouncer creates a debouncer requiring a new position to hold for debounce.
func NewDebouncer(debounce time.Duration) *Debouncer {
	return &Debouncer{debounce: debounce}
}

// Process takes one sample and returns the transition it completes, if any.
func (d *Debouncer) Process(pressed bool, now time.Time) *Event {
	state := StateReleased
	if pressed {
		state = StatePressed
	}

	if !d.baselined {
		if d.pending != state {
			d.pending = state
			d.pendingSince = now
			return nil
		}
		if now.Sub(d.pendingSince) >= d.debounce {
			d.stable = state
			d.baselined = true
			d.pending = ""
		}
		return nil
	}

	if state == d.stable {
		d.pending = ""
		return nil
	}
	if d.pending != state {
		d.pending = state
		d.pendingSince = now
		return nil
	}
	if now.Sub(d.pendingSince) < d.debounce {
		return nil
	}

	d.stable = state
	d.pending = ""
	if state == StatePressed {
		d.presses++
		return &Event{Timestamp: now, Type: EventPress}
	}
	return &Event{Timestamp: now, Type: EventRelease}
}

// Baselined reports whether the initial position has been established.
func (d *Debouncer) Baselined() bool {
	return d.baselined
}

// State returns the debounced position, or "" before the baseline.
func (d *Debouncer) State() State {
	return d.stable
}

// Presses returns the number of debounced presses so far.
func (d *Debouncer) Presses() int {
	return d.presses
}
