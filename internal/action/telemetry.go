package action

import "fmt"

// TelemetryType selects the telemetry variant.
type TelemetryType string

const (
	TelemetryTemps              TelemetryType = "TEMPS"
	TelemetryProgress           TelemetryType = "PROGRESS"
	TelemetryPercentDone        TelemetryType = "PERCENT_DONE"
	TelemetryMinsRemaining      TelemetryType = "MINS_REMAINING"
	TelemetryTotalCommandCount  TelemetryType = "TOTAL_COMMAND_COUNT"
	TelemetryTargetExtruderTemp TelemetryType = "TARGET_EXTRUDER_TEMP"
	TelemetryTargetBedTemp      TelemetryType = "TARGET_BED_TEMP"
	TelemetryZHeight            TelemetryType = "Z_HEIGHT"
	TelemetryMaxZHeight         TelemetryType = "MAX_Z_HEIGHT"
	TelemetryFanSpeed           TelemetryType = "FAN_SPEED"
	TelemetryActiveFileChange   TelemetryType = "ACTIVE_FILE_CHANGE"
	TelemetryPrintFinished      TelemetryType = "PRINT_FINISHED"
)

// Telemetry is a single measurement or lifecycle notification.
//
// Count carries the integer variants (progress, percent, minutes, command
// count, targets). Value carries the float variants (z, max z, fan ratio).
// File is nil for an ActiveFileChange that clears the active file.
type Telemetry struct {
	Type     TelemetryType
	Temps    Temperature
	Count    uint32
	Value    float32
	File     *ActiveFile
	Finished *FinishedPrint
}

func Temps(t Temperature) Telemetry { return Telemetry{Type: TelemetryTemps, Temps: t} }

// Progress reports the number of commands left in the queue.
func Progress(remaining uint32) Telemetry {
	return Telemetry{Type: TelemetryProgress, Count: remaining}
}

func PercentDone(p uint32) Telemetry   { return Telemetry{Type: TelemetryPercentDone, Count: p} }
func MinsRemaining(m uint32) Telemetry { return Telemetry{Type: TelemetryMinsRemaining, Count: m} }

// TotalCommandCount reports the queue length right after a file was loaded.
func TotalCommandCount(n uint32) Telemetry {
	return Telemetry{Type: TelemetryTotalCommandCount, Count: n}
}

func TargetExtruderTemp(t uint32) Telemetry {
	return Telemetry{Type: TelemetryTargetExtruderTemp, Count: t}
}

func TargetBedTemp(t uint32) Telemetry { return Telemetry{Type: TelemetryTargetBedTemp, Count: t} }
func ZHeight(z float32) Telemetry      { return Telemetry{Type: TelemetryZHeight, Value: z} }
func MaxZHeight(z float32) Telemetry   { return Telemetry{Type: TelemetryMaxZHeight, Value: z} }

// FanSpeed reports the part cooling fan duty as a 0..1 ratio.
func FanSpeed(ratio float32) Telemetry { return Telemetry{Type: TelemetryFanSpeed, Value: ratio} }

// ActiveFileChange announces a new active file, or none when f is nil.
func ActiveFileChange(f *ActiveFile) Telemetry {
	return Telemetry{Type: TelemetryActiveFileChange, File: f}
}

func PrintFinished(p FinishedPrint) Telemetry {
	return Telemetry{Type: TelemetryPrintFinished, Finished: &p}
}

// Payload returns the value carried by the telemetry's variant.
func (t Telemetry) Payload() any {
	switch t.Type {
	case TelemetryTemps:
		return t.Temps
	case TelemetryZHeight, TelemetryMaxZHeight, TelemetryFanSpeed:
		return t.Value
	case TelemetryActiveFileChange:
		return t.File
	case TelemetryPrintFinished:
		return t.Finished
	}
	return t.Count
}

func (t Telemetry) String() string {
	switch t.Type {
	case TelemetryActiveFileChange:
		if t.File == nil {
			return fmt.Sprintf("%s=none", t.Type)
		}
		return fmt.Sprintf("%s=%s", t.Type, t.File.Name)
	case TelemetryPrintFinished:
		return fmt.Sprintf("%s=%s", t.Type, t.Finished.Name)
	}
	return fmt.Sprintf("%s=%v", t.Type, t.Payload())
}
