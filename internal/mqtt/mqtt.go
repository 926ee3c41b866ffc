// Package mqtt bridges the printer bus to an MQTT broker: bus actions go
// out as JSON, commands come in on a command topic.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sweeney/gcode-serial/internal/action"
)

// Topic suffixes below the configured prefix.
const (
	TopicTelemetry = "telemetry"
	TopicStatus    = "status"
	TopicAction    = "action"
	TopicSystem    = "system"
	TopicCommand   = "command"
)

// DefaultPrefix is used when no topic prefix is configured.
const DefaultPrefix = "printer"

// Topics holds the full topic names for one printer.
type Topics struct {
	Telemetry string
	Status    string
	Action    string
	System    string
	Command   string
}

// NewTopics builds the topic set below prefix.
func NewTopics(prefix string) Topics {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return Topics{
		Telemetry: prefix + "/" + TopicTelemetry,
		Status:    prefix + "/" + TopicStatus,
		Action:    prefix + "/" + TopicAction,
		System:    prefix + "/" + TopicSystem,
		Command:   prefix + "/" + TopicCommand,
	}
}

// Route returns where a bus action is published. Commands are inbound only
// and are never routed.
func (t Topics) Route(a action.Action) (topic string, qos byte, retained bool, ok bool) {
	switch a.Kind {
	case action.KindTelemetry:
		return t.Telemetry, 0, false, true
	case action.KindStateChange:
		return t.Status, 1, true, true
	case action.KindPrinterAction:
		return t.Action, 1, false, true
	}
	return "", 0, false, false
}

// Publisher publishes printer actions to MQTT.
type Publisher interface {
	// Publish sends a bus action to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(a action.Action) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// CommandHandler receives commands parsed from the command topic.
type CommandHandler func(cmd action.Command)

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Printer PrinterPayload `json:"printer"`
}

// PrinterPayload wraps one bus action with the time it was published.
type PrinterPayload struct {
	Timestamp string        `json:"timestamp"`
	Event     action.Action `json:"event"`
}

// FormatPayload creates the JSON payload for a bus action.
func FormatPayload(a action.Action, at time.Time) ([]byte, error) {
	return json.Marshal(Payload{
		Printer: PrinterPayload{
			Timestamp: at.UTC().Format(time.RFC3339),
			Event:     a,
		},
	})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// ErrBadCommand is returned by ParseCommand for payloads that are not a valid command.
var ErrBadCommand = errors.New("mqtt: bad command")

// ParseCommand decodes a command topic payload, e.g.
//
//	{"command":"set_temps","bed":60,"extruder":215}
//	{"command":"start_print","path":"benchy.gcode"}
//	{"command":"stop_print"}
func ParseCommand(payload []byte) (action.Command, error) {
	var cmd action.Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return action.Command{}, fmt.Errorf("%w: %v", ErrBadCommand, err)
	}

	switch cmd.Type {
	case action.CommandSetTemps:
		return action.SetTemps(cmd.Bed, cmd.Extruder), nil
	case action.CommandStartPrint:
		if cmd.Path == "" {
			return action.Command{}, fmt.Errorf("%w: start_print requires a path", ErrBadCommand)
		}
		return action.StartPrint(cmd.Path), nil
	case action.CommandStopPrint:
		return action.StopPrint(), nil
	case "":
		return action.Command{}, fmt.Errorf("%w: missing command", ErrBadCommand)
	}
	return action.Command{}, fmt.Errorf("%w: unknown command %q", ErrBadCommand, cmd.Type)
}

// Forward publishes bus actions until ctx ends or the channel closes.
// Publish failures are logged and never stop forwarding.
func Forward(ctx context.Context, actions <-chan action.Action, pub Publisher) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case a, ok := <-actions:
			if !ok {
				return nil
			}
			if a.Kind == action.KindCommand {
				continue
			}
			if err := pub.Publish(a); err != nil {
				log.Warn().Err(err).Str("action", a.String()).Msg("mqtt: publish error")
			}
		}
	}
}
