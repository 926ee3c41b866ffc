package extract

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/gcode-serial/internal/action"
)

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func newTestExtractor() *Extractor {
	return NewWithClock(func() time.Time { return fixedNow })
}

func TestResponseFullTemperatureReport(t *testing.T) {
	e := newTestExtractor()

	for _, line := range []string{
		"T:200.0 /200.0 B:60.0 /60.0 @:0 B@:0",
		"ok T:200.0 /200.0 B:60.0 /60.0 @:0 B@:0",
	} {
		t.Run(line, func(t *testing.T) {
			r := e.Response(line)
			require.Len(t, r.Telemetry, 3)

			assert.Equal(t, action.TelemetryTemps, r.Telemetry[0].Type)
			assert.Equal(t, float32(200), r.Telemetry[0].Temps.ExTemp)
			assert.Equal(t, float32(60), r.Telemetry[0].Temps.BedTemp)
			assert.Equal(t, fixedNow, r.Telemetry[0].Temps.Timestamp)

			assert.Equal(t, action.TargetExtruderTemp(200), r.Telemetry[1])
			assert.Equal(t, action.TargetBedTemp(60), r.Telemetry[2])
			assert.False(t, r.DonePrinting)
			assert.Empty(t, r.Printer)
		})
	}
}

func TestResponseHeatingReport(t *testing.T) {
	e := newTestExtractor()

	r := e.Response("T:187.3 E:0 W:? B:58.2")
	require.Len(t, r.Telemetry, 1)
	assert.Equal(t, action.TelemetryTemps, r.Telemetry[0].Type)
	assert.InDelta(t, 187.3, r.Telemetry[0].Temps.ExTemp, 0.001)
	assert.InDelta(t, 58.2, r.Telemetry[0].Temps.BedTemp, 0.001)
}

func TestResponseReportWithoutTrailingSpaceFallsBackToHeating(t *testing.T) {
	e := newTestExtractor()

	r := e.Response("T:20.1 /0.0 B:21.5 /0.0")
	require.Len(t, r.Telemetry, 1)
	assert.InDelta(t, 20.1, r.Telemetry[0].Temps.ExTemp, 0.001)
	assert.InDelta(t, 21.5, r.Telemetry[0].Temps.BedTemp, 0.001)
}

func TestResponseMalformedNumberDefaultsToZero(t *testing.T) {
	e := newTestExtractor()

	r := e.Response("T:1.2.3 /200 B:60 /60 @:0")
	require.Len(t, r.Telemetry, 3)
	assert.Equal(t, float32(0), r.Telemetry[0].Temps.ExTemp)
	assert.Equal(t, action.TargetExtruderTemp(200), r.Telemetry[1])
}

func TestResponseOversizedTargetSaturates(t *testing.T) {
	e := newTestExtractor()

	r := e.Response("T:200.0 /99999999999 B:60.0 /60.0 @:0")
	require.Len(t, r.Telemetry, 3)
	assert.Equal(t, action.TargetExtruderTemp(math.MaxUint32), r.Telemetry[1])
	assert.Equal(t, action.TargetBedTemp(60), r.Telemetry[2])
}

func TestToUint32(t *testing.T) {
	tests := []struct {
		in   float32
		want uint32
	}{
		{0, 0},
		{215.9, 215},
		{-5, 0},
		{float32(math.NaN()), 0},
		{float32(math.Inf(-1)), 0},
		{float32(math.Inf(1)), math.MaxUint32},
		{1e12, math.MaxUint32},
		{math.MaxUint32, math.MaxUint32},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, toUint32(tt.in), "toUint32(%v)", tt.in)
	}
}

func TestResponseSDProgress(t *testing.T) {
	e := newTestExtractor()

	r := e.Response("NORMAL MODE: Percent done: 42; print time remaining in mins: 17; Change in mins: -1")
	assert.Equal(t, []action.Telemetry{
		action.PercentDone(42),
		action.MinsRemaining(17),
	}, r.Telemetry)
}

func TestResponseActionComments(t *testing.T) {
	e := newTestExtractor()

	tests := []struct {
		line        string
		wantPrinter action.PrinterActionKind
		wantUnknown string
	}{
		{"// action:cancel", action.PrinterCancel, ""},
		{"echo: // action:pause", action.PrinterPause, ""},
		{"//   action:resume now", action.PrinterResume, ""},
		{"// action:notification Heating", "", "notification"},
		{"//action:cancel", "", ""},
		{"ok", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			r := e.Response(tt.line)
			assert.Equal(t, tt.wantPrinter, r.Printer)
			assert.Equal(t, tt.wantUnknown, r.UnknownAction)
		})
	}
}

func TestResponseDonePrinting(t *testing.T) {
	e := newTestExtractor()
	assert.True(t, e.Response("Done printing file").DonePrinting)
	assert.False(t, e.Response("ok").DonePrinting)
}

func TestPreSend(t *testing.T) {
	e := newTestExtractor()

	tests := []struct {
		cmd  string
		want []action.Telemetry
	}{
		{"M104 S205", []action.Telemetry{action.TargetExtruderTemp(205)}},
		{"M104 S0", nil},
		{"M140 S60", []action.Telemetry{action.TargetBedTemp(60)}},
		{"M140 S0", nil},
		{"M104 Sabc", nil},
		{"G1 X10 Y10 Z1.25 F1500", []action.Telemetry{action.ZHeight(1.25)}},
		{"G1 X10 Y10 F1500", nil},
		{"G10 Z3", nil},
		{"G28", nil},
		{"M106 S255", []action.Telemetry{action.FanSpeed(1)}},
		{"M106 P1 S", nil},
		{"M106", nil},
		{"M107", nil},
	}

	for _, tt := range tests {
		t.Run(tt.cmd, func(t *testing.T) {
			assert.Equal(t, tt.want, e.PreSend(tt.cmd))
		})
	}
}

func TestPreSendFanSpeedRatio(t *testing.T) {
	e := newTestExtractor()

	got := e.PreSend("M106 S128")
	require.Len(t, got, 1)
	assert.Equal(t, action.TelemetryFanSpeed, got[0].Type)
	assert.InDelta(t, 0.502, got[0].Value, 0.001)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		want  Outcome
	}{
		{"empty", nil, Pending},
		{"ok", []string{"ok"}, Success},
		{"start after reset", []string{"start"}, Success},
		{"busy", []string{"echo:busy: processing"}, Pending},
		{"error", []string{"Error:Printer halted. kill() called!"}, Failure},
		{"lowercase error", []string{"error: checksum mismatch"}, Failure},
		{"err prefix", []string{"Err: line 12"}, Failure},
		{"ack beats error", []string{"Error:Unknown command", "ok"}, Success},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.lines))
		})
	}
}

func TestMaxLayerZ(t *testing.T) {
	tests := []struct {
		line string
		want float32
		ok   bool
	}{
		{"; max_layer_z = 12.400", 12.4, true},
		{";max_layer_z=0.2", 0.2, true},
		{"G1 X1 ; max_layer_z = 3", 3, true},
		{"; max_layer_z = 1.2.3", 0, true},
		{"; max_layer_z = ", 0, false},
		{"; layer_height = 0.2", 0, false},
		{"max_layer_z = 5", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, ok := MaxLayerZ(tt.line)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.want, got, 0.0001)
		})
	}
}
