package spa

import (
	"testing"
	"time"

	"periph.io/x/conn/v3/physic"
)

// fakePanel is a scripted bus. Presses complete immediately unless hold is set.
type fakePanel struct {
	words     []uint16
	pending   bool
	hold      bool
	presses   []uint16
	cancelled int
}

func (p *fakePanel) Pop() (uint16, bool) {
	if len(p.words) == 0 {
		return 0, false
	}
	w := p.words[0]
	p.words = p.words[1:]
	return w, true
}

func (p *fakePanel) RequestButton(code uint16) bool {
	if p.pending {
		return false
	}
	p.presses = append(p.presses, code)
	p.pending = p.hold
	return true
}

func (p *fakePanel) ButtonPending() bool { return p.pending }

func (p *fakePanel) CancelButton() {
	p.pending = false
	p.cancelled++
}

// showFrame queues the four digit words for s, which must be 4 characters.
func (p *fakePanel) showFrame(t *testing.T, s string) {
	t.Helper()
	if len(s) != NumDigits {
		t.Fatalf("frame %q: want %d characters", s, NumDigits)
	}
	for pos := 0; pos < NumDigits; pos++ {
		w, ok := EncodeDigit(pos, s[pos])
		if !ok {
			t.Fatalf("frame %q: no glyph for %q", s, s[pos])
		}
		p.words = append(p.words, w)
	}
}

func (p *fakePanel) showFrames(t *testing.T, s string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		p.showFrame(t, s)
	}
}

func (p *fakePanel) showLEDs(l LEDs, n int) {
	for i := 0; i < n; i++ {
		p.words = append(p.words, EncodeLEDs(l))
	}
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

// eventLog records change events.
type eventLog struct {
	events []ChangeType
}

func (l *eventLog) OnChange(ev ChangeEvent) {
	l.events = append(l.events, ev.Type)
}

func (l *eventLog) count(t ChangeType) int {
	n := 0
	for _, e := range l.events {
		if e == t {
			n++
		}
	}
	return n
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *fakePanel, *fakeClock, *eventLog) {
	t.Helper()
	p := &fakePanel{}
	clk := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	all := append([]Option{WithClock(clk.now), WithTargetPriming(0)}, opts...)
	e := New(p, all...)
	log := &eventLog{}
	e.AddListener(log)
	return e, p, clk, log
}

func TestNewEngineDefaults(t *testing.T) {
	e, _, _, _ := newTestEngine(t)
	if !e.Celsius() {
		t.Error("expected Celsius by default")
	}
	if e.PowerEnabled() || e.HeatingEnabled() || e.Heating() || e.FilterEnabled() || e.BubblesEnabled() {
		t.Error("expected all switches off by default")
	}
	if _, ok := e.CurrentTemperature(); ok {
		t.Error("current temperature should be unknown")
	}
	if _, ok := e.TargetTemperature(); ok {
		t.Error("target temperature should be unknown")
	}
	if _, ok := e.AirTemperature(); ok {
		t.Error("air temperature should be unknown")
	}
	if e.Unit() != "C" {
		t.Errorf("unit: got %s, want C", e.Unit())
	}
}

func TestLoopCountsFrames(t *testing.T) {
	e, p, _, _ := newTestEngine(t)
	p.showFrame(t, "25C ")
	p.showLEDs(LEDs{}, 1)
	p.words = append(p.words, BtnPower.Code(), 0xFFFF)
	e.Loop()

	got := e.State().Frames
	want := FrameCounts{Digits: 4, LEDs: 1, Buttons: 1, Unknown: 1}
	if got != want {
		t.Errorf("frame counts: got %+v, want %+v", got, want)
	}
}

func TestListenerRemoval(t *testing.T) {
	e, p, _, first := newTestEngine(t)
	second := &eventLog{}
	id := e.AddListener(second)

	p.showLEDs(LEDs{Power: true}, 2)
	e.Loop()
	if first.count(ChangePower) != 1 || second.count(ChangePower) != 1 {
		t.Fatalf("expected both listeners notified, got %d and %d", first.count(ChangePower), second.count(ChangePower))
	}

	if !e.RemoveListener(id) {
		t.Fatal("RemoveListener returned false for registered id")
	}
	if e.RemoveListener(id) {
		t.Error("RemoveListener returned true for removed id")
	}

	p.showLEDs(LEDs{}, 2)
	e.Loop()
	if first.count(ChangePower) != 2 {
		t.Errorf("first listener: expected 2 power events, got %d", first.count(ChangePower))
	}
	if second.count(ChangePower) != 1 {
		t.Errorf("removed listener still notified: %d power events", second.count(ChangePower))
	}
}

func TestListenerFunc(t *testing.T) {
	e, p, _, _ := newTestEngine(t)
	var got []ChangeType
	e.AddListener(ListenerFunc(func(ev ChangeEvent) { got = append(got, ev.Type) }))
	p.showLEDs(LEDs{Bubbles: true}, 2)
	e.Loop()
	if len(got) != 1 || got[0] != ChangeBubbles {
		t.Errorf("got %v, want [bubbles]", got)
	}
}

func TestAirTemperature(t *testing.T) {
	e, _, _, log := newTestEngine(t)

	e.SetAirTemperature(physic.ZeroCelsius + 21500*physic.MilliKelvin)
	v, ok := e.AirTemperature()
	if !ok || v != 21.5 {
		t.Fatalf("air temperature: got (%v, %v), want (21.5, true)", v, ok)
	}
	if log.count(ChangeAirTemp) != 1 {
		t.Fatalf("expected 1 air temp event, got %d", log.count(ChangeAirTemp))
	}

	// Below display resolution: no event.
	e.SetAirTemperature(physic.ZeroCelsius + 21520*physic.MilliKelvin)
	if log.count(ChangeAirTemp) != 1 {
		t.Errorf("expected no event for sub-resolution change, got %d", log.count(ChangeAirTemp))
	}

	e.SetAirTemperature(physic.ZeroCelsius + 22000*physic.MilliKelvin)
	if log.count(ChangeAirTemp) != 2 {
		t.Errorf("expected 2 air temp events, got %d", log.count(ChangeAirTemp))
	}
}

func TestAirTemperatureFollowsUnit(t *testing.T) {
	e, p, _, _ := newTestEngine(t)
	e.SetAirTemperature(physic.ZeroCelsius + 20*physic.Kelvin)

	// Switch the panel to Fahrenheit.
	p.showFrames(t, "77F ", reqCycles+1)
	e.Loop()
	if e.Celsius() {
		t.Fatal("expected Fahrenheit after F frames")
	}
	v, _ := e.AirTemperature()
	if v != 68 {
		t.Errorf("air temperature in F: got %v, want 68", v)
	}
}

func TestUnitChangeRepublishesAirTemperature(t *testing.T) {
	e, p, _, log := newTestEngine(t)
	air := physic.ZeroCelsius + 20*physic.Kelvin
	e.SetAirTemperature(air)

	p.showFrames(t, "68F ", reqCycles+2)
	e.Loop()
	if e.Celsius() {
		t.Fatal("expected Fahrenheit after F frames")
	}
	if log.count(ChangeAirTemp) != 2 {
		t.Fatalf("air temp events after unit change: got %d, want 2", log.count(ChangeAirTemp))
	}
	units := -1
	for i, ev := range log.events {
		if ev == ChangeTempUnits {
			units = i
		}
	}
	if units < 0 || units+1 >= len(log.events) || log.events[units+1] != ChangeAirTemp {
		t.Errorf("events: got %v, want air temp right after units", log.events)
	}

	// Same reading in the new unit: nothing to publish.
	e.SetAirTemperature(air)
	if log.count(ChangeAirTemp) != 2 {
		t.Errorf("air temp events after repeat reading: got %d, want 2", log.count(ChangeAirTemp))
	}

	// No reading yet: a unit change alone emits no air event.
	e2, p2, _, log2 := newTestEngine(t)
	p2.showFrames(t, "68F ", reqCycles+2)
	e2.Loop()
	if log2.count(ChangeAirTemp) != 0 {
		t.Errorf("air temp events without a reading: got %d, want 0", log2.count(ChangeAirTemp))
	}
}

func TestStateSnapshot(t *testing.T) {
	e, p, _, _ := newTestEngine(t)
	p.showLEDs(LEDs{Power: true, Filter: true, HeaterRed: true}, 2)
	p.showFrames(t, "37C ", reqCycles+1)
	e.Loop()

	s := e.State()
	if !s.Power || !s.Filter || !s.Heating || !s.HeatingEnabled || s.Bubbles {
		t.Errorf("unexpected switches: %+v", s)
	}
	if !s.HasCurrentTemp || s.CurrentTemp != 37 {
		t.Errorf("current temp: got (%d, %v), want (37, true)", s.CurrentTemp, s.HasCurrentTemp)
	}
	if s.Unit() != "C" {
		t.Errorf("unit: got %s, want C", s.Unit())
	}
}
