// Package status provides a thread-safe view of the printer for the status
// page, the MQTT heartbeat and anything else that wants the current state
// without subscribing to the bus itself.
package status

import (
	"context"
	"sync"
	"time"

	"github.com/sweeney/gcode-serial/internal/action"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	Port        string
	Baud        int
	ModelsDir   string
	HeartbeatMs int64
	Broker      string
	TopicPrefix string
	HTTPPort    string
	StopPin     int
	DebounceMs  int64
}

// Snapshot is a point-in-time view of printer and daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Status action.Status
	Port   string

	// Temps is nil until the first temperature report.
	Temps          *action.Temperature
	TargetBed      uint32
	TargetExtruder uint32

	Remaining     uint32
	Total         uint32
	PercentDone   uint32
	MinsRemaining uint32
	Z             float32
	MaxZ          float32
	Fan           float32

	ActiveFile        *action.ActiveFile
	LastFinished      *action.FinishedPrint
	LastPrinterAction action.PrinterActionKind

	StopPresses   int
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
// The printer starts out Disconnected.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Status:    action.StatusDisconnected,
			Port:      cfg.Port,
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// Run applies bus actions until ctx ends or the channel closes.
func (t *Tracker) Run(ctx context.Context, actions <-chan action.Action) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case a, ok := <-actions:
			if !ok {
				return nil
			}
			t.Apply(a)
		}
	}
}

// Apply folds one bus action into the snapshot. Commands are ignored.
func (t *Tracker) Apply(a action.Action) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch a.Kind {
	case action.KindStateChange:
		t.snap.Status = a.Status
	case action.KindPrinterAction:
		t.snap.LastPrinterAction = a.Printer
	case action.KindTelemetry:
		t.applyTelemetry(a.Telemetry)
	}
}

func (t *Tracker) applyTelemetry(tel action.Telemetry) {
	s := &t.snap
	switch tel.Type {
	case action.TelemetryTemps:
		temps := tel.Temps
		s.Temps = &temps
	case action.TelemetryProgress:
		s.Remaining = tel.Count
	case action.TelemetryPercentDone:
		s.PercentDone = tel.Count
	case action.TelemetryMinsRemaining:
		s.MinsRemaining = tel.Count
	case action.TelemetryTotalCommandCount:
		s.Total = tel.Count
		s.Remaining = tel.Count
	case action.TelemetryTargetBedTemp:
		s.TargetBed = tel.Count
	case action.TelemetryTargetExtruderTemp:
		s.TargetExtruder = tel.Count
	case action.TelemetryZHeight:
		s.Z = tel.Value
	case action.TelemetryMaxZHeight:
		s.MaxZ = tel.Value
	case action.TelemetryFanSpeed:
		s.Fan = tel.Value
	case action.TelemetryActiveFileChange:
		if tel.File == nil {
			s.ActiveFile = nil
			return
		}
		f := *tel.File
		s.ActiveFile = &f
		s.PercentDone = 0
		s.MinsRemaining = 0
		s.MaxZ = 0
	case action.TelemetryPrintFinished:
		if tel.Finished != nil {
			done := *tel.Finished
			s.LastFinished = &done
		}
		s.ActiveFile = nil
	}
}

// SetPort records the serial device in use.
func (t *Tracker) SetPort(path string) {
	t.mu.Lock()
	t.snap.Port = path
	t.mu.Unlock()
}

// SetStopPresses records how many times the stop button has been pressed.
func (t *Tracker) SetStopPresses(n int) {
	t.mu.Lock()
	t.snap.StopPresses = n
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
