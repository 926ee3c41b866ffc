// Package controller turns commands and printer actions from the bus into
// queue operations and tracks the file being printed.
package controller

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sweeney/gcode-serial/internal/action"
	"github.com/sweeney/gcode-serial/internal/queue"
)

var (
	// ErrQueueBusy is returned by StartPrint while a print is still queued.
	ErrQueueBusy = errors.New("controller: queue busy, print rejected")

	// ErrNotSupported is returned for printer-initiated pause and resume.
	ErrNotSupported = errors.New("controller: not supported")
)

// ShutdownSequence runs after a stop: park, dwell, reset flow and linear
// advance, heaters off, fan off, motors off.
var ShutdownSequence = []string{
	"G1 X0 Y200 F3600",
	"G4",
	"M221 S100",
	"M900 K0",
	"M104 S0",
	"M140 S0",
	"M107",
	"M84",
}

// Publisher accepts actions for broadcast.
type Publisher interface {
	Publish(a action.Action)
}

// StatusSetter records a status transition, publishing it if it changed.
type StatusSetter interface {
	SetStatus(s action.Status) bool
}

// Controller owns the active file record.
type Controller struct {
	pub    Publisher
	queue  *queue.Queue
	status StatusSetter
	files  fs.FS
	now    func() time.Time

	mu     sync.Mutex
	active *action.ActiveFile
}

// New creates a controller loading print files from files.
func New(pub Publisher, q *queue.Queue, status StatusSetter, files fs.FS) *Controller {
	return NewWithClock(pub, q, status, files, time.Now)
}

// NewWithClock creates a controller with an injectable clock.
func NewWithClock(pub Publisher, q *queue.Queue, status StatusSetter, files fs.FS, now func() time.Time) *Controller {
	return &Controller{pub: pub, queue: q, status: status, files: files, now: now}
}

// Run handles actions until ctx ends or the channel closes.
func (c *Controller) Run(ctx context.Context, actions <-chan action.Action) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case a, ok := <-actions:
			if !ok {
				return nil
			}
			if err := c.Handle(a); err != nil {
				if errors.Is(err, ErrQueueBusy) || errors.Is(err, ErrNotSupported) {
					log.Warn().Err(err).Str("action", a.String()).Msg("controller: action ignored")
				} else {
					log.Error().Err(err).Str("action", a.String()).Msg("controller: action failed")
				}
			}
		}
	}
}

// Handle reacts to a single action. Telemetry is ignored.
func (c *Controller) Handle(a action.Action) error {
	switch a.Kind {
	case action.KindCommand:
		switch a.Command.Type {
		case action.CommandSetTemps:
			c.SetTemps(a.Command.Bed, a.Command.Extruder)
		case action.CommandStartPrint:
			return c.StartPrint(a.Command.Path)
		case action.CommandStopPrint:
			c.StopPrint()
		default:
			return fmt.Errorf("controller: unknown command %q", a.Command.Type)
		}

	case action.KindPrinterAction:
		switch a.Printer {
		case action.PrinterCancel:
			c.StopPrint()
		case action.PrinterPause:
			return c.Pause()
		case action.PrinterResume:
			return c.Resume()
		}

	case action.KindStateChange:
		if a.Status == action.StatusIdle {
			c.finish()
		}
	}
	return nil
}

// SetTemps queues new bed and extruder targets.
func (c *Controller) SetTemps(bed, extruder uint16) {
	c.queue.PushBack(
		fmt.Sprintf("M140 S%d", bed),
		fmt.Sprintf("M104 S%d", extruder),
	)
}

// StartPrint loads the named file into the queue and marks the printer
// Active. It returns ErrQueueBusy without touching anything when more than
// queue.BusyThreshold lines are waiting.
func (c *Controller) StartPrint(name string) error {
	if n := c.queue.Len(); n > queue.BusyThreshold {
		return fmt.Errorf("%w: %d lines queued", ErrQueueBusy, n)
	}

	f, file, err := openModel(c.files, name, c.now())
	if err != nil {
		return err
	}
	defer f.Close()

	c.mu.Lock()
	c.active = &file
	c.mu.Unlock()
	c.publish(action.ActiveFileChange(&file))

	err = load(f, c.queue.PushBack, func(z float32) {
		c.publish(action.MaxZHeight(z))
	})
	if err != nil {
		// Whatever was read stays queued; the print runs truncated.
		log.Error().Err(err).Str("file", name).Msg("controller: reading print file")
	}

	total := c.queue.Len()
	log.Info().Str("file", name).Int("commands", total).Msg("controller: print started")
	c.publish(action.TotalCommandCount(uint32(total)))
	c.status.SetStatus(action.StatusActive)
	c.queue.Wake()
	return nil
}

// StopPrint replaces the queue with ShutdownSequence.
func (c *Controller) StopPrint() {
	c.queue.Replace(ShutdownSequence...)
	log.Info().Msg("controller: print stopped")
	c.publish(action.TotalCommandCount(0))
	c.status.SetStatus(action.StatusIdle)
	c.queue.Wake()
	// The Idle transition may already have been current, in which case no
	// StateChange reaches Handle; close the print out here as well.
	c.finish()
}

// Pause is not implemented for printer-initiated requests.
func (c *Controller) Pause() error {
	return fmt.Errorf("%w: pause", ErrNotSupported)
}

// Resume is not implemented for printer-initiated requests.
func (c *Controller) Resume() error {
	return fmt.Errorf("%w: resume", ErrNotSupported)
}

// ActiveFile returns the file being printed, if any.
func (c *Controller) ActiveFile() (action.ActiveFile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return action.ActiveFile{}, false
	}
	return *c.active, true
}

// finish turns the active file into a FinishedPrint.
func (c *Controller) finish() {
	c.mu.Lock()
	active := c.active
	c.active = nil
	c.mu.Unlock()

	if active == nil {
		return
	}
	done := active.Finish(c.now())
	log.Info().Str("file", done.Name).Dur("duration", done.FinishTime.Sub(done.StartTime)).Msg("controller: print finished")
	c.publish(action.PrintFinished(done))
}

func (c *Controller) publish(t action.Telemetry) {
	c.pub.Publish(action.TelemetryAction(t))
}
