// Package status provides a thread-safe status tracker for the spa-bridge daemon.
// The main loop writes it; HTTP handlers and system events read snapshots.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/spa-bridge/internal/bus"
	"github.com/sweeney/spa-bridge/internal/spa"
)

// NetworkInfo contains network state as reported by pi-helper.
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
	PollMs      int64
	HeartbeatMs int64
	Broker      string
	Name        string
	HTTPAddr    string
	Transport   string // "gpio" or "uart"
	Device      string // GPIO chip or serial port
	AirSensor   string // w1 device id, empty if none
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Spa           spa.State
	Bus           bus.Stats
	Ready         bool // at least one display frame decoded
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

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
			Spa:       spa.State{Celsius: true},
		},
	}
}

// Update sets the engine state and bus counters.
// Called from runLoop on every tick.
func (t *Tracker) Update(state spa.State, stats bus.Stats) {
	t.mu.Lock()
	t.snap.Spa = state
	t.snap.Bus = stats
	t.snap.Ready = state.Frames.Digits > 0
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

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
