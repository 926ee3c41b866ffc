package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sweeney/gcode-serial/internal/action"
	"github.com/sweeney/gcode-serial/internal/queue"
)

// Health monitor defaults.
const (
	HealthInterval = 5 * time.Second
	MaxMissedPolls = 4
)

// HealthMonitor keeps a temperature poll at the head of the queue. A poll
// that is still waiting at the next tick counts as missed; MaxMissedPolls in
// a row mean the printer is gone.
type HealthMonitor struct {
	queue    *queue.Queue
	state    *State
	interval time.Duration
}

// NewHealthMonitor creates a monitor ticking every interval (HealthInterval if zero).
func NewHealthMonitor(q *queue.Queue, state *State, interval time.Duration) *HealthMonitor {
	if interval <= 0 {
		interval = HealthInterval
	}
	return &HealthMonitor{queue: q, state: state, interval: interval}
}

// Run ticks until ctx is cancelled.
func (h *HealthMonitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			h.Check()
		}
	}
}

// Check performs one tick.
func (h *HealthMonitor) Check() {
	if depth, inserted := h.queue.PushFrontUnless(PollCommand); inserted {
		// The previous poll was consumed, so the printer is answering.
		if h.state.Status() == action.StatusDisconnected {
			if depth > queue.BusyThreshold {
				h.state.SetStatus(action.StatusActive)
			} else {
				h.state.SetStatus(action.StatusIdle)
			}
		}
		h.state.ResetMissedPolls()
		return
	}

	missed := h.state.MissPoll()
	log.Debug().Int("missed", missed).Msg("engine: temperature poll still queued")
	if missed >= MaxMissedPolls && h.state.SetStatus(action.StatusDisconnected) {
		log.Warn().Int("missed", missed).Msg("engine: no connection to printer")
	}
	h.queue.Wake()
}
