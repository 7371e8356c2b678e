// Package spa decodes the spa panel's display and LED frames into device
// state and turns user intents into emulated button presses.
//
// An Engine is owned by a single goroutine (the main loop). Nothing in this
// package blocks; timing is driven by calling Loop frequently against the
// injected clock.
package spa

import (
	"math"
	"time"

	"github.com/rs/zerolog/log"
	"periph.io/x/conn/v3/physic"
)

const (
	// DefaultPrimeAfter is how long after start-up a single down press is
	// sent so the panel blinks, and the engine learns, the target.
	DefaultPrimeAfter = 10 * time.Second

	// buttonExpiry cancels a press the panel never scanned.
	buttonExpiry = 2 * time.Second

	// Four unit changes, each within unitBurstWindow of the previous one,
	// trigger the config request callback.
	unitBurstWindow = 500 * time.Millisecond
	unitBurstCount  = 4
)

// Panel is the link to the front-panel bus. It is implemented by
// bus.Capture (GPIO) and uart.Link (serial sniffer).
type Panel interface {
	// Pop returns the oldest captured word.
	Pop() (uint16, bool)
	// RequestButton starts a press; false while one is still pulsing.
	RequestButton(code uint16) bool
	// ButtonPending reports whether the last press is still pulsing.
	ButtonPending() bool
	// CancelButton abandons the pending press.
	CancelButton()
}

// FrameCounts tallies dequeued words by kind.
type FrameCounts struct {
	Digits  uint64
	LEDs    uint64
	Buttons uint64
	Unknown uint64
}

// Engine is the decoding and command state machine.
type Engine struct {
	panel     Panel
	now       func() time.Time
	listeners registry

	disp display

	power          debounced
	bubbles        debounced
	heating        debounced
	heatingEnabled debounced
	filter         debounced

	celsius    bool
	current    int
	hasCurrent bool
	target     int
	hasTarget  bool
	air        physic.Temperature
	hasAir     bool
	errorCode  string

	queue    []*command
	buttonAt time.Time

	started    time.Time
	primeAfter time.Duration
	primed     bool

	lastUnitChange  time.Time
	quickUnitChange int
	onConfigRequest func()

	counts FrameCounts
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the time source. Defaults to time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithTargetPriming sets the delay before the start-up down press.
// Zero disables priming.
func WithTargetPriming(after time.Duration) Option {
	return func(e *Engine) { e.primeAfter = after }
}

// WithConfigRequest sets the callback for a rapid burst of unit changes
// made on the physical panel.
func WithConfigRequest(fn func()) Option {
	return func(e *Engine) { e.onConfigRequest = fn }
}

// New creates an Engine reading from and pressing buttons on panel.
func New(panel Panel, opts ...Option) *Engine {
	e := &Engine{
		panel:      panel,
		now:        time.Now,
		disp:       newDisplay(),
		celsius:    true,
		primeAfter: DefaultPrimeAfter,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Loop decodes every buffered frame and advances the command queue.
// Call it at least every few milliseconds.
func (e *Engine) Loop() {
	now := e.now()
	if e.started.IsZero() {
		e.started = now
	}
	e.primeTarget(now)
	e.processMessages()
	e.expireButton(now)
	e.runCommands(now)
}

func (e *Engine) processMessages() {
	for {
		w, ok := e.panel.Pop()
		if !ok {
			return
		}
		e.processWord(w)
	}
}

func (e *Engine) processWord(w uint16) {
	switch k := Classify(w); k {
	case FrameButton:
		e.counts.Buttons++
	case FrameDigit0, FrameDigit1, FrameDigit2, FrameDigit3:
		e.counts.Digits++
		e.readDigit(int(k-FrameDigit0), w)
	case FrameLEDs:
		e.counts.LEDs++
		e.readLEDs(w)
	default:
		e.counts.Unknown++
	}
}

func (e *Engine) primeTarget(now time.Time) {
	if e.primed || e.primeAfter <= 0 || now.Sub(e.started) < e.primeAfter {
		return
	}
	if e.writeButton(BtnDown, now) {
		e.primed = true
	}
}

func (e *Engine) expireButton(now time.Time) {
	if e.buttonAt.IsZero() {
		return
	}
	if !e.panel.ButtonPending() {
		e.buttonAt = time.Time{}
		return
	}
	if now.Sub(e.buttonAt) >= buttonExpiry {
		log.Warn().Dur("after", now.Sub(e.buttonAt)).Msg("button press never scanned, cancelling")
		e.panel.CancelButton()
		e.buttonAt = time.Time{}
	}
}

// AddListener registers l for change events.
func (e *Engine) AddListener(l Listener) ListenerID {
	return e.listeners.add(l)
}

// RemoveListener unregisters a listener. It reports whether id was known.
func (e *Engine) RemoveListener(id ListenerID) bool {
	return e.listeners.remove(id)
}

func (e *Engine) emit(t ChangeType) {
	e.listeners.emit(ChangeEvent{Type: t})
}

func (e *Engine) setCelsius(c bool) {
	if e.celsius == c {
		return
	}
	e.celsius = c
	e.emit(ChangeTempUnits)
	if e.hasAir {
		// The air value is reported in the active unit.
		e.emit(ChangeAirTemp)
	}

	now := e.now()
	if !e.lastUnitChange.IsZero() && now.Sub(e.lastUnitChange) < unitBurstWindow {
		e.quickUnitChange++
		if e.quickUnitChange == unitBurstCount && e.onConfigRequest != nil {
			e.onConfigRequest()
		}
	} else {
		e.quickUnitChange = 0
	}
	e.lastUnitChange = now
}

// SetAirTemperature publishes an ambient temperature reading. Changes
// smaller than a tenth of a degree in the active unit are ignored.
func (e *Engine) SetAirTemperature(t physic.Temperature) {
	if e.hasAir && e.airIn(t) == e.airIn(e.air) {
		return
	}
	e.air = t
	e.hasAir = true
	e.emit(ChangeAirTemp)
}

func (e *Engine) airIn(t physic.Temperature) float64 {
	c := float64(t-physic.ZeroCelsius) / float64(physic.Kelvin)
	if !e.celsius {
		c = c*9/5 + 32
	}
	return math.Round(c*10) / 10
}

// PowerEnabled reports the debounced power LED.
func (e *Engine) PowerEnabled() bool { return e.power.value }

// HeatingEnabled reports whether either heater LED is lit.
func (e *Engine) HeatingEnabled() bool { return e.heatingEnabled.value }

// Heating reports whether the heater is actively heating (red LED).
func (e *Engine) Heating() bool { return e.heating.value }

// FilterEnabled reports the debounced filter LED.
func (e *Engine) FilterEnabled() bool { return e.filter.value }

// BubblesEnabled reports the debounced bubbles LED.
func (e *Engine) BubblesEnabled() bool { return e.bubbles.value }

// Celsius reports whether the panel shows Celsius.
func (e *Engine) Celsius() bool { return e.celsius }

// Unit returns "C" or "F".
func (e *Engine) Unit() string {
	if e.celsius {
		return "C"
	}
	return "F"
}

// CurrentTemperature returns the water temperature. ok is false until the
// first reading has been promoted.
func (e *Engine) CurrentTemperature() (v int, ok bool) { return e.current, e.hasCurrent }

// TargetTemperature returns the set point. ok is false until it has been
// seen blinking on the panel.
func (e *Engine) TargetTemperature() (v int, ok bool) { return e.target, e.hasTarget }

// AirTemperature returns the ambient temperature in the active unit.
func (e *Engine) AirTemperature() (v float64, ok bool) {
	if !e.hasAir {
		return 0, false
	}
	return e.airIn(e.air), true
}

// ErrorCode returns the panel error code (for example "E90"), or "".
func (e *Engine) ErrorCode() string { return e.errorCode }

// PendingCommands returns the number of queued commands.
func (e *Engine) PendingCommands() int { return len(e.queue) }

// State is a copy of every published value.
type State struct {
	Power          bool
	HeatingEnabled bool
	Heating        bool
	Filter         bool
	Bubbles        bool
	Celsius        bool
	CurrentTemp    int
	HasCurrentTemp bool
	TargetTemp     int
	HasTargetTemp  bool
	AirTemp        float64
	HasAirTemp     bool
	ErrorCode      string
	Pending        int
	Frames         FrameCounts
}

// Unit returns "C" or "F".
func (s State) Unit() string {
	if s.Celsius {
		return "C"
	}
	return "F"
}

// State returns a snapshot of the published values.
func (e *Engine) State() State {
	air, hasAir := e.AirTemperature()
	return State{
		Power:          e.power.value,
		HeatingEnabled: e.heatingEnabled.value,
		Heating:        e.heating.value,
		Filter:         e.filter.value,
		Bubbles:        e.bubbles.value,
		Celsius:        e.celsius,
		CurrentTemp:    e.current,
		HasCurrentTemp: e.hasCurrent,
		TargetTemp:     e.target,
		HasTargetTemp:  e.hasTarget,
		AirTemp:        air,
		HasAirTemp:     hasAir,
		ErrorCode:      e.errorCode,
		Pending:        len(e.queue),
		Frames:         e.counts,
	}
}

// SetPowerEnabled queues a power change.
func (e *Engine) SetPowerEnabled(on bool) {
	e.enqueue(&command{kind: CmdPower, wantBool: on})
}

// SetHeatingEnabled queues a heater change.
func (e *Engine) SetHeatingEnabled(on bool) {
	e.enqueue(&command{kind: CmdHeating, wantBool: on})
}

// SetFilterEnabled queues a filter pump change.
func (e *Engine) SetFilterEnabled(on bool) {
	e.enqueue(&command{kind: CmdFilter, wantBool: on})
}

// SetBubblesEnabled queues a bubbles change.
func (e *Engine) SetBubblesEnabled(on bool) {
	e.enqueue(&command{kind: CmdBubbles, wantBool: on})
}

// SetTempInC queues a unit change.
func (e *Engine) SetTempInC(c bool) {
	e.enqueue(&command{kind: CmdUnits, wantBool: c})
}

// SetTargetTemperature queues a set point change, clamped to the legal
// range of the active unit. It does nothing while the spa is off.
func (e *Engine) SetTargetTemperature(v int) {
	lo, hi := e.targetRange()
	v = min(max(v, lo), hi)
	if !e.PowerEnabled() {
		log.Debug().Int("target", v).Msg("ignoring target temperature while power is off")
		return
	}
	e.enqueue(&command{kind: CmdTemperature, wantInt: v})
}

// Submit dispatches a parsed intent to the matching setter.
func (e *Engine) Submit(in Intent) {
	switch in.Kind {
	case CmdPower:
		e.SetPowerEnabled(in.On)
	case CmdHeating:
		e.SetHeatingEnabled(in.On)
	case CmdFilter:
		e.SetFilterEnabled(in.On)
	case CmdBubbles:
		e.SetBubblesEnabled(in.On)
	case CmdUnits:
		e.SetTempInC(in.On)
	case CmdTemperature:
		e.SetTargetTemperature(in.Value)
	}
}
