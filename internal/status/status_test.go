package status

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/gcode-serial/internal/action"
)

var start = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestNewTracker(t *testing.T) {
	cfg := Config{Port: "/dev/ttyACM0", Baud: 115200, DebounceMs: 250, Broker: "tcp://localhost:1883", HTTPPort: ":80"}
	tr := NewTracker(start, cfg)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Status != action.StatusDisconnected {
		t.Errorf("Status: got %q, want DISCONNECTED", snap.Status)
	}
	if snap.Port != "/dev/ttyACM0" {
		t.Errorf("Port: got %q, want /dev/ttyACM0", snap.Port)
	}
	if snap.Config.HTTPPort != ":80" {
		t.Errorf("Config.HTTPPort: got %q, want %q", snap.Config.HTTPPort, ":80")
	}
	if snap.Temps != nil {
		t.Error("expected no temps initially")
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
}

func TestApplyStatusAndPrinterAction(t *testing.T) {
	tr := NewTracker(start, Config{})

	tr.Apply(action.StateChange(action.StatusActive))
	tr.Apply(action.PrinterAction(action.PrinterPause))
	tr.Apply(action.CommandAction(action.StopPrint()))

	snap := tr.Snapshot()
	if snap.Status != action.StatusActive {
		t.Errorf("Status: got %q, want ACTIVE", snap.Status)
	}
	if snap.LastPrinterAction != action.PrinterPause {
		t.Errorf("LastPrinterAction: got %q, want PAUSE", snap.LastPrinterAction)
	}
}

func TestApplyTelemetry(t *testing.T) {
	tr := NewTracker(start, Config{})

	for _, tel := range []action.Telemetry{
		action.Temps(action.Temperature{Timestamp: start, BedTemp: 59.8, ExTemp: 214.1}),
		action.TargetBedTemp(60),
		action.TargetExtruderTemp(215),
		action.TotalCommandCount(1000),
		action.Progress(400),
		action.PercentDone(61),
		action.MinsRemaining(12),
		action.ZHeight(3.2),
		action.MaxZHeight(12.4),
		action.FanSpeed(0.5),
	} {
		tr.Apply(action.TelemetryAction(tel))
	}

	snap := tr.Snapshot()
	if snap.Temps == nil || snap.Temps.BedTemp != 59.8 || snap.Temps.ExTemp != 214.1 {
		t.Errorf("Temps: got %+v", snap.Temps)
	}
	if snap.TargetBed != 60 || snap.TargetExtruder != 215 {
		t.Errorf("targets: got %d/%d, want 60/215", snap.TargetBed, snap.TargetExtruder)
	}
	if snap.Total != 1000 || snap.Remaining != 400 {
		t.Errorf("progress: got %d of %d, want 400 of 1000", snap.Remaining, snap.Total)
	}
	if snap.PercentDone != 61 || snap.MinsRemaining != 12 {
		t.Errorf("sd progress: got %d%% %dm", snap.PercentDone, snap.MinsRemaining)
	}
	if snap.Z != 3.2 || snap.MaxZ != 12.4 {
		t.Errorf("z: got %v of %v", snap.Z, snap.MaxZ)
	}
	if snap.Fan != 0.5 {
		t.Errorf("Fan: got %v, want 0.5", snap.Fan)
	}
}

func TestApplyTotalResetsRemaining(t *testing.T) {
	tr := NewTracker(start, Config{})
	tr.Apply(action.TelemetryAction(action.Progress(3)))
	tr.Apply(action.TelemetryAction(action.TotalCommandCount(0)))

	if got := tr.Snapshot().Remaining; got != 0 {
		t.Errorf("Remaining: got %d, want 0", got)
	}
}

func TestApplyFileLifecycle(t *testing.T) {
	tr := NewTracker(start, Config{})
	file := action.ActiveFile{Name: "benchy.gcode", Size: 1024, StartTime: start}

	tr.Apply(action.TelemetryAction(action.PercentDone(99)))
	tr.Apply(action.TelemetryAction(action.ActiveFileChange(&file)))

	snap := tr.Snapshot()
	if snap.ActiveFile == nil || snap.ActiveFile.Name != "benchy.gcode" {
		t.Fatalf("ActiveFile: got %+v", snap.ActiveFile)
	}
	if snap.PercentDone != 0 {
		t.Errorf("new file should reset PercentDone, got %d", snap.PercentDone)
	}

	// The snapshot holds its own copy.
	file.Name = "changed.gcode"
	if tr.Snapshot().ActiveFile.Name != "benchy.gcode" {
		t.Error("tracker should copy the active file")
	}

	tr.Apply(action.TelemetryAction(action.PrintFinished(file.Finish(start.Add(time.Hour)))))

	snap = tr.Snapshot()
	if snap.ActiveFile != nil {
		t.Error("expected no active file after PrintFinished")
	}
	if snap.LastFinished == nil || !snap.LastFinished.FinishTime.Equal(start.Add(time.Hour)) {
		t.Errorf("LastFinished: got %+v", snap.LastFinished)
	}

	tr.Apply(action.TelemetryAction(action.ActiveFileChange(&file)))
	tr.Apply(action.TelemetryAction(action.ActiveFileChange(nil)))
	if tr.Snapshot().ActiveFile != nil {
		t.Error("nil ActiveFileChange should clear the active file")
	}
}

func TestRun(t *testing.T) {
	tr := NewTracker(start, Config{})
	ch := make(chan action.Action, 2)
	ch <- action.StateChange(action.StatusIdle)
	ch <- action.TelemetryAction(action.ZHeight(0.2))
	close(ch)

	if err := tr.Run(context.Background(), ch); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap := tr.Snapshot()
	if snap.Status != action.StatusIdle || snap.Z != 0.2 {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
}

func TestRunCancelled(t *testing.T) {
	tr := NewTracker(start, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := tr.Run(ctx, make(chan action.Action)); err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestSetters(t *testing.T) {
	tr := NewTracker(start, Config{})

	tr.SetPort("/dev/usb-Prusa_MK3S")
	tr.SetStopPresses(2)
	tr.SetMQTTConnected(true)

	snap := tr.Snapshot()
	if snap.Port != "/dev/usb-Prusa_MK3S" {
		t.Errorf("Port: got %q", snap.Port)
	}
	if snap.StopPresses != 2 {
		t.Errorf("StopPresses: got %d, want 2", snap.StopPresses)
	}
	if !snap.MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}

	tr.SetMQTTConnected(false)
	if tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=false")
	}
}

func TestSetNetwork(t *testing.T) {
	tr := NewTracker(start, Config{})

	if tr.Snapshot().Network != nil {
		t.Error("expected nil Network initially")
	}

	tr.SetNetwork(&NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected"})

	snap := tr.Snapshot()
	if snap.Network == nil {
		t.Fatal("expected non-nil Network")
	}
	if snap.Network.IP != "192.168.1.42" {
		t.Errorf("Network.IP: got %q, want %q", snap.Network.IP, "192.168.1.42")
	}
}

func TestSnapshotUptime(t *testing.T) {
	snap := Snapshot{
		StartTime: start,
		Now:       start.Add(15 * time.Minute),
	}

	if snap.Uptime() != 15*time.Minute {
		t.Errorf("Uptime: got %v, want 15m", snap.Uptime())
	}
}

func TestSnapshotNowIsSet(t *testing.T) {
	tr := NewTracker(start, Config{})

	before := time.Now()
	snap := tr.Snapshot()
	after := time.Now()

	if snap.Now.Before(before) || snap.Now.After(after) {
		t.Errorf("Now (%v) not between %v and %v", snap.Now, before, after)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(start, Config{})
	tr.Apply(action.StateChange(action.StatusActive))

	snap1 := tr.Snapshot()

	tr.Apply(action.StateChange(action.StatusIdle))

	if snap1.Status != action.StatusActive {
		t.Error("snapshot should be a copy; Status was modified")
	}
}

func testSnapshot() Snapshot {
	file := action.ActiveFile{Name: "benchy.gcode", Size: 2048, StartTime: start}
	return Snapshot{
		Status:         action.StatusActive,
		Port:           "/dev/ttyACM0",
		Temps:          &action.Temperature{Timestamp: start, BedTemp: 60, ExTemp: 215},
		TargetBed:      60,
		TargetExtruder: 215,
		Remaining:      250,
		Total:          1000,
		Z:              1.2,
		MaxZ:           12.4,
		ActiveFile:     &file,
		StopPresses:    1,
		StartTime:      start,
		Now:            start.Add(15 * time.Minute),
		MQTTConnected:  true,
		Config:         Config{Port: "/dev/ttyACM0", Baud: 115200, HeartbeatMs: 900000, Broker: "tcp://localhost:1883", HTTPPort: ":80"},
	}
}

func TestFormatJSON(t *testing.T) {
	data := FormatJSON(testSnapshot())

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	p := parsed.Status.Printer
	if p.Status != "ACTIVE" {
		t.Errorf("Status: got %q, want ACTIVE", p.Status)
	}
	if p.Temps.Bed == nil || *p.Temps.Bed != 60 {
		t.Errorf("Temps.Bed: got %v, want 60", p.Temps.Bed)
	}
	if p.Temps.TargetExtruder != 215 {
		t.Errorf("Temps.TargetExtruder: got %d, want 215", p.Temps.TargetExtruder)
	}
	if p.Progress.Remaining != 250 || p.Progress.Total != 1000 {
		t.Errorf("Progress: got %+v", p.Progress)
	}
	if p.ActiveFile == nil || p.ActiveFile.Name != "benchy.gcode" {
		t.Errorf("ActiveFile: got %+v", p.ActiveFile)
	}
	if parsed.Status.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", parsed.Status.UptimeSeconds)
	}
	if !parsed.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if parsed.Status.Config.Baud != 115200 {
		t.Errorf("Config.Baud: got %d, want 115200", parsed.Status.Config.Baud)
	}
	// Event and Reason should be omitted
	if parsed.Status.Event != "" {
		t.Errorf("expected empty Event for web format, got %q", parsed.Status.Event)
	}
	if parsed.Status.Reason != "" {
		t.Errorf("expected empty Reason for web format, got %q", parsed.Status.Reason)
	}
}

func TestFormatJSONBeforeFirstReport(t *testing.T) {
	snap := Snapshot{
		StartTime: start,
		Now:       start.Add(time.Second),
	}

	var raw map[string]map[string]json.RawMessage
	if err := json.Unmarshal(FormatJSON(snap), &raw); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	var printer map[string]interface{}
	if err := json.Unmarshal(raw["status"]["printer"], &printer); err != nil {
		t.Fatalf("invalid printer JSON: %v", err)
	}
	if printer["status"] != "DISCONNECTED" {
		t.Errorf("status: got %v, want DISCONNECTED", printer["status"])
	}
	temps := printer["temps"].(map[string]interface{})
	if temps["bed"] != nil || temps["extruder"] != nil {
		t.Errorf("temps should be null before the first report: %v", temps)
	}
	if _, ok := printer["active_file"]; !ok {
		t.Error("active_file should be present as null")
	}
}

func TestFormatStatusEvent(t *testing.T) {
	data := FormatStatusEvent(testSnapshot(), "HEARTBEAT", "")

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Status.Event != "HEARTBEAT" {
		t.Errorf("Event: got %q, want HEARTBEAT", parsed.Status.Event)
	}
	if parsed.Status.Reason != "" {
		t.Errorf("Reason: got %q, want empty", parsed.Status.Reason)
	}
	if parsed.Status.Printer.Status != "ACTIVE" {
		t.Errorf("Status: got %q, want ACTIVE", parsed.Status.Printer.Status)
	}
	if parsed.Status.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", parsed.Status.UptimeSeconds)
	}
}

func TestFormatStatusEventShutdown(t *testing.T) {
	data := FormatStatusEvent(testSnapshot(), "SHUTDOWN", "SIGTERM")

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Status.Event != "SHUTDOWN" {
		t.Errorf("Event: got %q, want SHUTDOWN", parsed.Status.Event)
	}
	if parsed.Status.Reason != "SIGTERM" {
		t.Errorf("Reason: got %q, want SIGTERM", parsed.Status.Reason)
	}
}

func TestFormatStatusEventOmitsReasonWhenEmpty(t *testing.T) {
	snap := Snapshot{
		StartTime: start,
		Now:       start.Add(time.Second),
	}

	data := FormatStatusEvent(snap, "STARTUP", "")

	var raw map[string]interface{}
	json.Unmarshal(data, &raw)
	status := raw["status"].(map[string]interface{})
	if _, exists := status["reason"]; exists {
		t.Error("reason should be omitted when empty")
	}
	if status["event"] != "STARTUP" {
		t.Errorf("event: got %v, want STARTUP", status["event"])
	}
}

func TestFormatJSONWithNetwork(t *testing.T) {
	snap := testSnapshot()
	snap.Network = &NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected", SSID: "MyNet"}

	var parsed StatusJSON
	json.Unmarshal(FormatJSON(snap), &parsed)

	if parsed.Status.Network == nil {
		t.Fatal("expected Network in JSON")
	}
	if parsed.Status.Network.IP != "192.168.1.42" {
		t.Errorf("Network.IP: got %q, want 192.168.1.42", parsed.Status.Network.IP)
	}
	if parsed.Status.Network.SSID != "MyNet" {
		t.Errorf("Network.SSID: got %q, want MyNet", parsed.Status.Network.SSID)
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(start, Config{})
	var wg sync.WaitGroup

	// Writer
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tr.Apply(action.TelemetryAction(action.Progress(uint32(i))))
			tr.SetMQTTConnected(i%2 == 0)
			tr.SetNetwork(&NetworkInfo{IP: "1.2.3.4"})
		}
	}()

	// Reader
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			snap := tr.Snapshot()
			_ = snap.Uptime()
		}
	}()

	wg.Wait()
}
