package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Ready         bool         `json:"ready"`
	Spa           SpaJSON      `json:"spa"`
	Bus           BusJSON      `json:"bus"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// SpaJSON is the decoded panel state. Unknown temperatures are null.
type SpaJSON struct {
	Power          bool     `json:"power"`
	HeatingEnabled bool     `json:"heating_enabled"`
	Heating        bool     `json:"heating"`
	Filter         bool     `json:"filter"`
	Bubbles        bool     `json:"bubbles"`
	Temp           *int     `json:"temp"`
	TargetTemp     *int     `json:"target_temp"`
	AirTemp        *float64 `json:"air_temp"`
	TempUnits      string   `json:"temp_units"`
	Error          string   `json:"error,omitempty"`
	Pending        int      `json:"pending_commands"`
}

// BusJSON reports capture counters.
type BusJSON struct {
	Frames   uint32 `json:"frames"`
	Dropped  uint32 `json:"dropped"`
	Buffered int    `json:"buffered"`
	Digits   uint64 `json:"digit_frames"`
	LEDs     uint64 `json:"led_frames"`
	Buttons  uint64 `json:"button_frames"`
	Unknown  uint64 `json:"unknown_frames"`
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
	PollMs      int64  `json:"poll_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	Name        string `json:"name"`
	HTTPAddr    string `json:"http_addr"`
	Transport   string `json:"transport"`
	Device      string `json:"device"`
	AirSensor   string `json:"air_sensor,omitempty"`
}

// BuildSpa converts the engine state for JSON output.
func BuildSpa(snap Snapshot) SpaJSON {
	s := snap.Spa
	out := SpaJSON{
		Power:          s.Power,
		HeatingEnabled: s.HeatingEnabled,
		Heating:        s.Heating,
		Filter:         s.Filter,
		Bubbles:        s.Bubbles,
		TempUnits:      s.Unit(),
		Error:          s.ErrorCode,
		Pending:        s.Pending,
	}
	if s.HasCurrentTemp {
		v := s.CurrentTemp
		out.Temp = &v
	}
	if s.HasTargetTemp {
		v := s.TargetTemp
		out.TargetTemp = &v
	}
	if s.HasAirTemp {
		v := s.AirTemp
		out.AirTemp = &v
	}
	return out
}

// BuildInner assembles the status body for a snapshot.
func BuildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Ready: snap.Ready,
		Spa:   BuildSpa(snap),
		Bus: BusJSON{
			Frames:   snap.Bus.Frames,
			Dropped:  snap.Bus.Dropped,
			Buffered: snap.Bus.Buffered,
			Digits:   snap.Spa.Frames.Digits,
			LEDs:     snap.Spa.Frames.LEDs,
			Buttons:  snap.Spa.Frames.Buttons,
			Unknown:  snap.Spa.Frames.Unknown,
		},
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			PollMs:      snap.Config.PollMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			Name:        snap.Config.Name,
			HTTPAddr:    snap.Config.HTTPAddr,
			Transport:   snap.Config.Transport,
			Device:      snap.Config.Device,
			AirSensor:   snap.Config.AirSensor,
		},
	}
	if n := snap.Network; n != nil {
		inner.Network = &NetworkJSON{
			Type:       n.Type,
			IP:         n.IP,
			Status:     n.Status,
			Gateway:    n.Gateway,
			WifiStatus: n.WifiStatus,
			SSID:       n.SSID,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: BuildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := BuildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
