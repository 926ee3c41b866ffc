// Package engine drives the printer over its serial line: it connects,
// drains the command queue one line at a time, waits for each
// acknowledgement, and turns the traffic into telemetry.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sweeney/gcode-serial/internal/action"
	"github.com/sweeney/gcode-serial/internal/extract"
	"github.com/sweeney/gcode-serial/internal/queue"
	"github.com/sweeney/gcode-serial/internal/serial"
)

// PollCommand requests a temperature report. The health monitor also uses it
// as a liveness probe.
const PollCommand = "M105"

// Protocol timing.
const (
	DiscoveryInterval = 5 * time.Second
	OpenTimeout       = 10 * time.Second
	SettleDelay       = 2 * time.Second
	ReadTimeout       = 100 * time.Millisecond
	ResponseTimeout   = 5 * time.Second
)

const wakeSequence = "\r\n\r\n"

// ErrNoResponse is returned when the printer stays silent for ResponseTimeout.
var ErrNoResponse = errors.New("engine: no response received")

// ErrNotConnected is returned by Run before Connect succeeded.
var ErrNotConnected = errors.New("engine: not connected")

// ProtocolError carries the lines of an exchange the firmware rejected.
type ProtocolError struct {
	Lines []string
}

func (e *ProtocolError) Error() string {
	return "engine: printer reported an error: " + strings.Join(e.Lines, ";")
}

// Timing overrides the protocol timing. Zero fields keep the defaults.
type Timing struct {
	DiscoveryInterval time.Duration
	OpenTimeout       time.Duration
	SettleDelay       time.Duration
	ReadTimeout       time.Duration
	ResponseTimeout   time.Duration
}

func (t Timing) withDefaults() Timing {
	if t.DiscoveryInterval <= 0 {
		t.DiscoveryInterval = DiscoveryInterval
	}
	if t.OpenTimeout <= 0 {
		t.OpenTimeout = OpenTimeout
	}
	if t.SettleDelay <= 0 {
		t.SettleDelay = SettleDelay
	}
	if t.ReadTimeout <= 0 {
		t.ReadTimeout = ReadTimeout
	}
	if t.ResponseTimeout <= 0 {
		t.ResponseTimeout = ResponseTimeout
	}
	return t
}

// Engine is the queue's only consumer and the transport's only user.
type Engine struct {
	pub     Publisher
	queue   *queue.Queue
	state   *State
	extract *extract.Extractor
	dialer  serial.Dialer
	timing  Timing
	now     func() time.Time

	port serial.Port
	path string
}

// New creates an engine. Call Connect before Run.
func New(pub Publisher, q *queue.Queue, state *State, dialer serial.Dialer, timing Timing) *Engine {
	return &Engine{
		pub:     pub,
		queue:   q,
		state:   state,
		extract: extract.New(),
		dialer:  dialer,
		timing:  timing.withDefaults(),
		now:     time.Now,
	}
}

// Connect resolves the device, opens it and brings the line up. Discovery
// retries until a device appears or ctx ends; any open or bring-up failure
// is returned and leaves the engine unconnected.
func (e *Engine) Connect(ctx context.Context, c serial.Connector) error {
	path := c.Port
	if c.Auto() {
		var err error
		if path, err = e.discover(ctx); err != nil {
			return err
		}
	}
	baud := c.BaudOrDefault()

	log.Info().Str("port", path).Int("baud", baud).Msg("engine: opening serial port")
	port, err := e.dialer.Open(path, baud, e.timing.OpenTimeout)
	if err != nil {
		return fmt.Errorf("engine: cannot open port: %w", err)
	}

	if err := e.bringUp(ctx, port); err != nil {
		port.Close()
		return err
	}

	e.port = port
	e.path = path
	log.Info().Str("port", path).Msg("engine: connected")
	return nil
}

func (e *Engine) discover(ctx context.Context) (string, error) {
	for {
		ports, err := e.dialer.ListPorts()
		if err != nil {
			log.Warn().Err(err).Msg("engine: listing serial ports failed")
		}
		log.Debug().Int("count", len(ports)).Strs("ports", ports).Msg("engine: serial ports")
		if len(ports) > 0 {
			return serial.DevicePath(ports[0]), nil
		}

		log.Warn().Dur("retry", e.timing.DiscoveryInterval).Msg("engine: no serial port found, retrying")
		if err := sleep(ctx, e.timing.DiscoveryInterval); err != nil {
			return "", err
		}
	}
}

// bringUp wakes the line, waits for a possible controller reset and
// discards whatever the boot banner left behind.
func (e *Engine) bringUp(ctx context.Context, port serial.Port) error {
	if _, err := port.Write([]byte(wakeSequence)); err != nil {
		return fmt.Errorf("engine: write wake sequence: %w", err)
	}
	if err := port.Drain(); err != nil {
		return fmt.Errorf("engine: flush wake sequence: %w", err)
	}
	if err := sleep(ctx, e.timing.SettleDelay); err != nil {
		return err
	}
	if err := port.ResetBuffers(); err != nil {
		return fmt.Errorf("engine: clear buffers: %w", err)
	}
	if err := port.SetReadTimeout(e.timing.ReadTimeout); err != nil {
		return fmt.Errorf("engine: set read timeout: %w", err)
	}
	return nil
}

// Path returns the device the engine is connected to, or "" before Connect.
func (e *Engine) Path() string {
	return e.path
}

// Close releases the port.
func (e *Engine) Close() error {
	if e.port == nil {
		return nil
	}
	err := e.port.Close()
	e.port = nil
	return err
}

// Run drains the queue until ctx ends. Transport and protocol failures are
// logged and never end the loop.
func (e *Engine) Run(ctx context.Context) error {
	if e.port == nil {
		return ErrNotConnected
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		cmd, ok := e.queue.PopFront()
		if !ok {
			e.state.SetStatus(action.StatusIdle)
			if err := e.queue.Wait(ctx); err != nil {
				return err
			}
			continue
		}

		remaining := e.queue.Len()
		if remaining != 0 {
			log.Debug().Int("queue", remaining).Msg("engine: queue size")
			if cmd != PollCommand {
				e.publish(action.Progress(uint32(remaining)))
			}
		}

		if err := e.exchange(ctx, cmd); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().Err(err).Str("cmd", cmd).Msg("engine: exchange failed, clearing queue")
			e.queue.Clear()
		}
	}
}

// exchange sends one command and waits for its verdict. A failed write is
// logged and swallowed: the command is abandoned but the queue is kept.
func (e *Engine) exchange(ctx context.Context, cmd string) error {
	for _, t := range e.extract.PreSend(cmd) {
		e.publish(t)
	}

	if _, err := e.port.Write([]byte(cmd + "\n")); err != nil {
		log.Error().Err(err).Str("cmd", cmd).Msg("engine: error while writing command")
		return nil
	}
	if err := e.port.Drain(); err != nil {
		log.Error().Err(err).Str("cmd", cmd).Msg("engine: error while flushing command")
		return nil
	}
	if cmd != PollCommand {
		log.Info().Msgf(">>> %s", cmd)
	}

	_, err := e.awaitResponse(ctx)
	return err
}

// awaitResponse reads until an acknowledgement, an error marker, or
// ResponseTimeout of silence.
func (e *Engine) awaitResponse(ctx context.Context) ([]string, error) {
	var (
		lines     []string
		remainder string
		buf       = make([]byte, 1024)
		lastData  = e.now()
	)

	for {
		if err := ctx.Err(); err != nil {
			return lines, err
		}

		n, err := e.port.Read(buf)
		if err != nil {
			return lines, fmt.Errorf("engine: read response: %w", err)
		}
		if n == 0 {
			if e.now().Sub(lastData) > e.timing.ResponseTimeout {
				log.Warn().Strs("lines", lines).Msg("engine: no message received within timeout")
				return lines, ErrNoResponse
			}
			continue
		}
		lastData = e.now()

		data := remainder + string(buf[:n])
		parts := strings.Split(data, "\n")
		remainder = parts[len(parts)-1]
		for _, raw := range parts[:len(parts)-1] {
			line := strings.TrimSpace(strings.ToValidUTF8(raw, "\uFFFD"))
			if line == "" {
				continue
			}
			log.Info().Msgf("<<< %s", line)
			e.handleLine(line)
			lines = append(lines, line)
		}

		switch extract.Classify(lines) {
		case extract.Success:
			return lines, nil
		case extract.Failure:
			return lines, &ProtocolError{Lines: lines}
		}
	}
}

func (e *Engine) handleLine(line string) {
	r := e.extract.Response(line)
	for _, t := range r.Telemetry {
		e.publish(t)
	}

	switch r.Printer {
	case action.PrinterCancel:
		log.Warn().Msg("engine: printer requested cancel")
	case action.PrinterPause:
		log.Warn().Msg("engine: printer requested pause")
	case action.PrinterResume:
		log.Warn().Msg("engine: printer requested resume")
	}
	if r.Printer != "" {
		e.pub.Publish(action.PrinterAction(r.Printer))
	}
	if r.UnknownAction != "" {
		log.Warn().Str("action", r.UnknownAction).Msg("engine: unknown action command received")
	}

	if r.DonePrinting {
		e.state.SetStatus(action.StatusIdle)
	}
}

func (e *Engine) publish(t action.Telemetry) {
	e.pub.Publish(action.TelemetryAction(t))
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
