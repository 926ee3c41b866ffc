package action

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalJSON(t *testing.T) {
	at := time.Date(2026, 5, 2, 14, 0, 0, 0, time.UTC)
	file := ActiveFile{Name: "benchy.gcode", Size: 42, LastModified: at, StartTime: at}

	tests := []struct {
		name   string
		action Action
		want   string
	}{
		{"state", StateChange(StatusActive), `{"kind":"STATE_CHANGE","status":"ACTIVE"}`},
		{"printer action", PrinterAction(PrinterCancel), `{"kind":"PRINTER_ACTION","type":"CANCEL"}`},
		{"progress", TelemetryAction(Progress(12)), `{"kind":"TELEMETRY","type":"PROGRESS","value":12}`},
		{"zero count kept", TelemetryAction(TotalCommandCount(0)), `{"kind":"TELEMETRY","type":"TOTAL_COMMAND_COUNT","value":0}`},
		{"z height", TelemetryAction(ZHeight(0.5)), `{"kind":"TELEMETRY","type":"Z_HEIGHT","value":0.5}`},
		{"temps", TelemetryAction(Temps(Temperature{Timestamp: at, BedTemp: 60, ExTemp: 215})),
			`{"kind":"TELEMETRY","type":"TEMPS","value":{"timestamp":"2026-05-02T14:00:00Z","bed_temp":60,"ex_temp":215}}`},
		{"active file", TelemetryAction(ActiveFileChange(&file)),
			`{"kind":"TELEMETRY","type":"ACTIVE_FILE_CHANGE","value":{"name":"benchy.gcode","size":42,"last_modified":"2026-05-02T14:00:00Z","start_time":"2026-05-02T14:00:00Z"}}`},
		{"cleared file", TelemetryAction(ActiveFileChange(nil)), `{"kind":"TELEMETRY","type":"ACTIVE_FILE_CHANGE","value":null}`},
		{"command", CommandAction(StartPrint("benchy.gcode")),
			`{"kind":"COMMAND","type":"start_print","value":{"command":"start_print","path":"benchy.gcode"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := json.Marshal(tt.action)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestPrintFinishedJSON(t *testing.T) {
	start := time.Date(2026, 5, 2, 14, 0, 0, 0, time.UTC)
	done := ActiveFile{Name: "a.gcode", StartTime: start}.Finish(start.Add(time.Hour))

	got, err := json.Marshal(TelemetryAction(PrintFinished(done)))
	require.NoError(t, err)

	var parsed struct {
		Value map[string]any `json:"value"`
	}
	require.NoError(t, json.Unmarshal(got, &parsed))
	assert.Equal(t, "a.gcode", parsed.Value["name"])
	assert.Equal(t, "2026-05-02T15:00:00Z", parsed.Value["finish_time"])
}

func TestString(t *testing.T) {
	assert.Equal(t, "state IDLE", StateChange(StatusIdle).String())
	assert.Equal(t, "printer action PAUSE", PrinterAction(PrinterPause).String())
	assert.Equal(t, "command set_temps bed=60 extruder=215", CommandAction(SetTemps(60, 215)).String())
	assert.Equal(t, "command stop_print", CommandAction(StopPrint()).String())
	assert.Equal(t, "telemetry PROGRESS=3", TelemetryAction(Progress(3)).String())
	assert.Equal(t, "telemetry ACTIVE_FILE_CHANGE=none", TelemetryAction(ActiveFileChange(nil)).String())
	assert.Equal(t, "Bed: (60.5), Extruder: (210)", Temperature{BedTemp: 60.5, ExTemp: 210}.String())
	assert.Equal(t, "unknown action", Action{}.String())
}

func TestPayloadSelectsVariant(t *testing.T) {
	assert.Equal(t, uint32(7), PercentDone(7).Payload())
	assert.Equal(t, uint32(210), TargetExtruderTemp(210).Payload())
	assert.Equal(t, float32(0.5), FanSpeed(0.5).Payload())
	assert.Equal(t, float32(12.4), MaxZHeight(12.4).Payload())
}
