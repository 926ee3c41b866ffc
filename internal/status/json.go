package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/gcode-serial/internal/action"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Printer       PrinterJSON  `json:"printer"`
	StopPresses   int          `json:"stop_presses"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// PrinterJSON is the printer half of the status.
type PrinterJSON struct {
	Status       string                `json:"status"`
	Port         string                `json:"port"`
	Temps        TempsJSON             `json:"temps"`
	Progress     ProgressJSON          `json:"progress"`
	Z            float32               `json:"z"`
	MaxZ         float32               `json:"max_z"`
	Fan          float32               `json:"fan"`
	ActiveFile   *action.ActiveFile    `json:"active_file"`
	LastFinished *action.FinishedPrint `json:"last_finished,omitempty"`
	LastAction   string                `json:"last_action,omitempty"`
}

// TempsJSON reports current and target temperatures. Current values are
// null until the printer has reported them.
type TempsJSON struct {
	Bed            *float32 `json:"bed"`
	Extruder       *float32 `json:"extruder"`
	TargetBed      uint32   `json:"target_bed"`
	TargetExtruder uint32   `json:"target_extruder"`
	Reported       string   `json:"reported,omitempty"`
}

// ProgressJSON reports how far through the queue the printer is.
type ProgressJSON struct {
	Remaining     uint32 `json:"remaining"`
	Total         uint32 `json:"total"`
	PercentDone   uint32 `json:"percent_done"`
	MinsRemaining uint32 `json:"mins_remaining"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Port        string `json:"port"`
	Baud        int    `json:"baud"`
	ModelsDir   string `json:"models_dir"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	TopicPrefix string `json:"topic_prefix"`
	HTTPPort    string `json:"http_port"`
	StopPin     int    `json:"stop_pin"`
	DebounceMs  int64  `json:"debounce_ms"`
}

func buildInner(snap Snapshot) StatusInner {
	st := string(snap.Status)
	if st == "" {
		st = string(action.StatusDisconnected)
	}

	temps := TempsJSON{TargetBed: snap.TargetBed, TargetExtruder: snap.TargetExtruder}
	if snap.Temps != nil {
		bed, ex := snap.Temps.BedTemp, snap.Temps.ExTemp
		temps.Bed = &bed
		temps.Extruder = &ex
		temps.Reported = snap.Temps.Timestamp.UTC().Format(time.RFC3339)
	}

	return StatusInner{
		Printer: PrinterJSON{
			Status: st,
			Port:   snap.Port,
			Temps:  temps,
			Progress: ProgressJSON{
				Remaining:     snap.Remaining,
				Total:         snap.Total,
				PercentDone:   snap.PercentDone,
				MinsRemaining: snap.MinsRemaining,
			},
			Z:            snap.Z,
			MaxZ:         snap.MaxZ,
			Fan:          snap.Fan,
			ActiveFile:   snap.ActiveFile,
			LastFinished: snap.LastFinished,
			LastAction:   string(snap.LastPrinterAction),
		},
		StopPresses:   snap.StopPresses,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			Port:        snap.Config.Port,
			Baud:        snap.Config.Baud,
			ModelsDir:   snap.Config.ModelsDir,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			TopicPrefix: snap.Config.TopicPrefix,
			HTTPPort:    snap.Config.HTTPPort,
			StopPin:     snap.Config.StopPin,
			DebounceMs:  snap.Config.DebounceMs,
		},
	}
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
