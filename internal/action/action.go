// Package action defines the messages exchanged on the printer bus.
// Values are immutable once published; subscribers receive copies.
package action

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind identifies which branch of an Action is populated.
type Kind string

const (
	KindTelemetry     Kind = "TELEMETRY"
	KindStateChange   Kind = "STATE_CHANGE"
	KindPrinterAction Kind = "PRINTER_ACTION"
	KindCommand       Kind = "COMMAND"
)

// Status is the coarse printer state.
type Status string

const (
	StatusDisconnected Status = "DISCONNECTED"
	StatusActive       Status = "ACTIVE"
	StatusIdle         Status = "IDLE"
	StatusErrored      Status = "ERRORED"
)

// PrinterActionKind is a signal raised by the firmware through an action comment.
type PrinterActionKind string

const (
	PrinterCancel PrinterActionKind = "CANCEL"
	PrinterPause  PrinterActionKind = "PAUSE"
	PrinterResume PrinterActionKind = "RESUME"
)

// Action is the single message type carried by the bus.
// Exactly one of Telemetry, Status, Printer or Command is meaningful, selected by Kind.
type Action struct {
	Kind      Kind
	Telemetry Telemetry
	Status    Status
	Printer   PrinterActionKind
	Command   Command
}

// TelemetryAction wraps a telemetry value.
func TelemetryAction(t Telemetry) Action {
	return Action{Kind: KindTelemetry, Telemetry: t}
}

// StateChange wraps a status transition.
func StateChange(s Status) Action {
	return Action{Kind: KindStateChange, Status: s}
}

// PrinterAction wraps a firmware-initiated signal.
func PrinterAction(k PrinterActionKind) Action {
	return Action{Kind: KindPrinterAction, Printer: k}
}

// CommandAction wraps an externally issued command.
func CommandAction(c Command) Action {
	return Action{Kind: KindCommand, Command: c}
}

func (a Action) String() string {
	switch a.Kind {
	case KindTelemetry:
		return fmt.Sprintf("telemetry %s", a.Telemetry)
	case KindStateChange:
		return fmt.Sprintf("state %s", a.Status)
	case KindPrinterAction:
		return fmt.Sprintf("printer action %s", a.Printer)
	case KindCommand:
		return fmt.Sprintf("command %s", a.Command)
	}
	return "unknown action"
}

// wireAction is the JSON shape shared by the MQTT bridge and the websocket feed.
type wireAction struct {
	Kind   Kind   `json:"kind"`
	Type   string `json:"type,omitempty"`
	Value  any    `json:"value,omitempty"`
	Status Status `json:"status,omitempty"`
}

// MarshalJSON flattens the populated branch into {"kind","type","value"}.
func (a Action) MarshalJSON() ([]byte, error) {
	w := wireAction{Kind: a.Kind}
	switch a.Kind {
	case KindTelemetry:
		w.Type = string(a.Telemetry.Type)
		w.Value = a.Telemetry.Payload()
	case KindStateChange:
		w.Status = a.Status
	case KindPrinterAction:
		w.Type = string(a.Printer)
	case KindCommand:
		w.Type = string(a.Command.Type)
		w.Value = a.Command
	}
	return json.Marshal(w)
}

// CommandType selects the command variant.
type CommandType string

const (
	CommandSetTemps   CommandType = "set_temps"
	CommandStartPrint CommandType = "start_print"
	CommandStopPrint  CommandType = "stop_print"
)

// Command is a request issued to the print controller.
type Command struct {
	Type     CommandType `json:"command"`
	Bed      uint16      `json:"bed,omitempty"`
	Extruder uint16      `json:"extruder,omitempty"`
	Path     string      `json:"path,omitempty"`
}

// SetTemps requests new bed and extruder targets.
func SetTemps(bed, extruder uint16) Command {
	return Command{Type: CommandSetTemps, Bed: bed, Extruder: extruder}
}

// StartPrint requests printing of the file at path.
func StartPrint(path string) Command {
	return Command{Type: CommandStartPrint, Path: path}
}

// StopPrint aborts the active print and runs the shutdown sequence.
func StopPrint() Command {
	return Command{Type: CommandStopPrint}
}

func (c Command) String() string {
	switch c.Type {
	case CommandSetTemps:
		return fmt.Sprintf("%s bed=%d extruder=%d", c.Type, c.Bed, c.Extruder)
	case CommandStartPrint:
		return fmt.Sprintf("%s %s", c.Type, c.Path)
	}
	return string(c.Type)
}

// Temperature is one temperature report from the firmware.
type Temperature struct {
	Timestamp time.Time `json:"timestamp"`
	BedTemp   float32   `json:"bed_temp"`
	ExTemp    float32   `json:"ex_temp"`
}

func (t Temperature) String() string {
	return fmt.Sprintf("Bed: (%g), Extruder: (%g)", t.BedTemp, t.ExTemp)
}

// ActiveFile describes the file currently being printed.
type ActiveFile struct {
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
	StartTime    time.Time `json:"start_time"`
}

// Finish closes out the print at the given time.
func (f ActiveFile) Finish(at time.Time) FinishedPrint {
	return FinishedPrint{ActiveFile: f, FinishTime: at}
}

// FinishedPrint is an ActiveFile stamped with its completion time.
type FinishedPrint struct {
	ActiveFile
	FinishTime time.Time `json:"finish_time"`
}
