// Package mqtt bridges engine change events to MQTT state topics and turns
// "<attribute>/set" messages into engine intents.
package mqtt

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sweeney/spa-bridge/internal/spa"
)

// DefaultName is the topic prefix and client ID used unless overridden.
const DefaultName = "spa"

// Availability payloads, published retained on the availability topic.
const (
	Online  = "online"
	Offline = "offline"
)

// Publisher publishes state and system events to MQTT.
type Publisher interface {
	// Publish sends one attribute value to its retained state topic.
	// Returns error if publishing fails (should not crash the process).
	Publish(update StateUpdate) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// Topics derives every topic from the base name.
type Topics struct {
	Base string
}

// NewTopics returns the topic set rooted at name.
func NewTopics(name string) Topics {
	name = strings.Trim(name, "/")
	if name == "" {
		name = DefaultName
	}
	return Topics{Base: name}
}

// State returns the retained topic for an attribute.
func (t Topics) State(c spa.ChangeType) string {
	return t.Base + "/" + c.String()
}

// System returns the topic for lifecycle events.
func (t Topics) System() string {
	return t.Base + "/system"
}

// Availability returns the online/offline topic.
func (t Topics) Availability() string {
	return t.Base + "/availability"
}

// SetFilter is the subscription covering every command topic.
func (t Topics) SetFilter() string {
	return t.Base + "/+/set"
}

// Attribute extracts the attribute from a "<base>/<attribute>/set" topic.
func (t Topics) Attribute(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, t.Base+"/")
	if !ok {
		return "", false
	}
	attr, ok := strings.CutSuffix(rest, "/set")
	if !ok || attr == "" || strings.Contains(attr, "/") {
		return "", false
	}
	return attr, true
}

// ParseCommand turns a command message into an intent.
func (t Topics) ParseCommand(topic string, payload []byte) (spa.Intent, error) {
	attr, ok := t.Attribute(topic)
	if !ok {
		return spa.Intent{}, fmt.Errorf("not a command topic: %s", topic)
	}
	return spa.ParseIntent(attr, string(payload))
}

// StateUpdate is one attribute value ready to publish.
type StateUpdate struct {
	Timestamp time.Time
	Change    spa.ChangeType
	Value     string
}

// FormatValue renders the current value of the attribute c. ok is false
// while the value is still unknown.
func FormatValue(c spa.ChangeType, s spa.State) (value string, ok bool) {
	switch c {
	case spa.ChangePower:
		return onOff(s.Power), true
	case spa.ChangeHeatingEnabled:
		return trueFalse(s.HeatingEnabled), true
	case spa.ChangeHeating:
		return onOff(s.Heating), true
	case spa.ChangeFilter:
		return onOff(s.Filter), true
	case spa.ChangeBubbles:
		return onOff(s.Bubbles), true
	case spa.ChangeTargetTemp:
		return strconv.Itoa(s.TargetTemp), s.HasTargetTemp
	case spa.ChangeTemp:
		return strconv.Itoa(s.CurrentTemp), s.HasCurrentTemp
	case spa.ChangeAirTemp:
		return strconv.FormatFloat(s.AirTemp, 'f', 1, 64), s.HasAirTemp
	case spa.ChangeTempUnits:
		return s.Unit(), true
	case spa.ChangeErrorCode:
		return s.ErrorCode, true
	}
	return "", false
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

func trueFalse(v bool) string {
	if v {
		return "TRUE"
	}
	return "FALSE"
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT", "CONFIG_REQUEST"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (RECONNECTED) that don't carry a full status snapshot.
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
