package spa

import (
	"testing"
	"time"
)

func TestCurrentTemperaturePromotion(t *testing.T) {
	e, p, _, log := newTestEngine(t)

	p.showFrames(t, "25C ", reqCycles)
	e.Loop()
	if _, ok := e.CurrentTemperature(); ok {
		t.Fatal("current temperature published before the countdown expired")
	}
	if log.count(ChangeTemp) != 0 {
		t.Fatalf("expected no temp events yet, got %d", log.count(ChangeTemp))
	}

	p.showFrames(t, "25C ", 1)
	e.Loop()
	v, ok := e.CurrentTemperature()
	if !ok || v != 25 {
		t.Fatalf("current temperature: got (%d, %v), want (25, true)", v, ok)
	}
	if log.count(ChangeTemp) != 1 {
		t.Fatalf("expected 1 temp event, got %d", log.count(ChangeTemp))
	}

	// A steady display keeps promoting the same value without new events.
	p.showFrames(t, "25C ", 300)
	e.Loop()
	if log.count(ChangeTemp) != 1 {
		t.Errorf("expected still 1 temp event, got %d", log.count(ChangeTemp))
	}
	if log.count(ChangeTargetTemp) != 0 {
		t.Errorf("steady display produced %d target events", log.count(ChangeTargetTemp))
	}
}

func TestCurrentTemperatureChange(t *testing.T) {
	e, p, _, log := newTestEngine(t)
	p.showFrames(t, "25C ", reqCycles+1)
	p.showFrames(t, "26C ", 2)
	e.Loop()

	v, _ := e.CurrentTemperature()
	if v != 26 {
		t.Errorf("current temperature: got %d, want 26", v)
	}
	if log.count(ChangeTemp) != 2 {
		t.Errorf("expected 2 temp events, got %d", log.count(ChangeTemp))
	}
}

func TestUnitDetection(t *testing.T) {
	e, p, _, log := newTestEngine(t)
	p.showFrames(t, "100F", reqCycles+1)
	e.Loop()

	if e.Celsius() {
		t.Error("expected Fahrenheit")
	}
	if log.count(ChangeTempUnits) != 1 {
		t.Errorf("expected 1 units event, got %d", log.count(ChangeTempUnits))
	}
	v, _ := e.CurrentTemperature()
	if v != 100 {
		t.Errorf("current temperature: got %d, want 100", v)
	}
}

func TestTargetTemperatureFromBlink(t *testing.T) {
	e, p, _, log := newTestEngine(t)

	// Countdown passes 89..70, so the last ten frames fall in the window.
	p.showFrames(t, "30C ", 20)
	p.showFrame(t, "    ")
	e.Loop()

	v, ok := e.TargetTemperature()
	if !ok || v != 30 {
		t.Fatalf("target temperature: got (%d, %v), want (30, true)", v, ok)
	}
	if log.count(ChangeTargetTemp) != 1 {
		t.Fatalf("expected 1 target event, got %d", log.count(ChangeTargetTemp))
	}

	// Further blank frames in the same run do nothing.
	p.showFrames(t, "    ", 5)
	e.Loop()
	if log.count(ChangeTargetTemp) != 1 {
		t.Errorf("expected still 1 target event, got %d", log.count(ChangeTargetTemp))
	}
	if _, ok := e.CurrentTemperature(); ok {
		t.Error("blink frames must not publish a current temperature")
	}
}

func TestTargetTemperatureOutOfRange(t *testing.T) {
	e, p, _, log := newTestEngine(t)
	p.showFrames(t, "99C ", 20)
	p.showFrame(t, "    ")
	e.Loop()

	if _, ok := e.TargetTemperature(); ok {
		t.Error("out of range target accepted")
	}
	if log.count(ChangeTargetTemp) != 0 {
		t.Errorf("expected no target events, got %d", log.count(ChangeTargetTemp))
	}
}

func TestTargetTemperatureFahrenheitRange(t *testing.T) {
	e, p, _, _ := newTestEngine(t)
	p.showFrames(t, "80F ", reqCycles+1)
	p.showFrame(t, "    ")
	p.showFrames(t, "99F ", 20)
	p.showFrame(t, "    ")
	e.Loop()

	v, ok := e.TargetTemperature()
	if !ok || v != 99 {
		t.Errorf("target temperature: got (%d, %v), want (99, true)", v, ok)
	}
}

func TestTargetBlinkLeavesCurrentTemperature(t *testing.T) {
	e, p, _, log := newTestEngine(t)
	p.showFrames(t, "25C ", reqCycles+1)

	// Panel blinks the set point twice.
	for i := 0; i < 2; i++ {
		p.showFrame(t, "    ")
		p.showFrames(t, "35C ", 20)
	}
	p.showFrame(t, "    ")
	e.Loop()

	cur, _ := e.CurrentTemperature()
	if cur != 25 {
		t.Errorf("current temperature: got %d, want 25", cur)
	}
	target, _ := e.TargetTemperature()
	if target != 35 {
		t.Errorf("target temperature: got %d, want 35", target)
	}
	if log.count(ChangeTargetTemp) != 1 {
		t.Errorf("expected 1 target event, got %d", log.count(ChangeTargetTemp))
	}
}

func TestShortBlinkIsNotTarget(t *testing.T) {
	e, p, _, _ := newTestEngine(t)
	// Only frames with countdown 89..85: outside the window.
	p.showFrames(t, "30C ", 5)
	p.showFrame(t, "    ")
	e.Loop()

	if _, ok := e.TargetTemperature(); ok {
		t.Error("reading outside the target window was published")
	}
}

func TestUnknownGlyphKeepsDigit(t *testing.T) {
	e, p, _, _ := newTestEngine(t)
	p.showFrame(t, "25C ")
	e.Loop()

	// Only segment a lit: not in the glyph table.
	w := uint16(0xFFFF &^ (1 << selDigit1) &^ (1 << 13))
	if _, ok := DecodeGlyph(w); ok {
		t.Fatal("test pattern unexpectedly decodes")
	}
	p.words = append(p.words, w)
	e.Loop()

	if got := string(e.disp.digits[:]); got != "25C " {
		t.Errorf("digits: got %q, want %q", got, "25C ")
	}
}

func TestErrorCode(t *testing.T) {
	e, p, _, log := newTestEngine(t)

	p.showFrame(t, "E90 ")
	e.Loop()
	if e.ErrorCode() != "" {
		t.Fatalf("error code published after a single frame: %q", e.ErrorCode())
	}

	p.showFrame(t, "E90 ")
	e.Loop()
	if e.ErrorCode() != "E90" {
		t.Fatalf("error code: got %q, want E90", e.ErrorCode())
	}
	if log.count(ChangeErrorCode) != 1 {
		t.Fatalf("expected 1 error event, got %d", log.count(ChangeErrorCode))
	}
	if _, ok := e.CurrentTemperature(); ok {
		t.Error("error display produced a temperature")
	}

	// A promoted temperature clears the error.
	p.showFrames(t, "28C ", reqCycles+1)
	e.Loop()
	if e.ErrorCode() != "" {
		t.Errorf("error code not cleared: %q", e.ErrorCode())
	}
	if log.count(ChangeErrorCode) != 2 {
		t.Errorf("expected 2 error events, got %d", log.count(ChangeErrorCode))
	}
}

func TestUnitToggleBurst(t *testing.T) {
	requests := 0
	e, p, _, _ := newTestEngine(t, WithConfigRequest(func() { requests++ }))

	p.showFrames(t, "25C ", reqCycles)
	for i := 0; i < 5; i++ {
		if i%2 == 0 {
			p.showFrame(t, "77F ")
		} else {
			p.showFrame(t, "25C ")
		}
	}
	e.Loop()

	if requests != 1 {
		t.Errorf("expected 1 config request, got %d", requests)
	}
}

func TestUnitTogglesSlowlyNoRequest(t *testing.T) {
	requests := 0
	e, p, clk, _ := newTestEngine(t, WithConfigRequest(func() { requests++ }))

	p.showFrames(t, "25C ", reqCycles)
	e.Loop()
	for i := 0; i < 6; i++ {
		clk.advance(time.Second)
		if i%2 == 0 {
			p.showFrame(t, "77F ")
		} else {
			p.showFrame(t, "25C ")
		}
		e.Loop()
	}
	if requests != 0 {
		t.Errorf("expected no config request, got %d", requests)
	}
}

func TestParseReading(t *testing.T) {
	tests := []struct {
		in       string
		wantV    int
		wantUnit byte
		wantOK   bool
	}{
		{"25C ", 25, 'C', true},
		{"104F", 104, 'F', true},
		{" 38C", 38, 'C', true},
		{"38  ", 38, 0, true},
		{"E90 ", 0, 0, false},
		{"C   ", 0, 0, false},
		{"    ", 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var d [NumDigits]byte
			copy(d[:], tt.in)
			v, unit, ok := parseReading(d)
			if ok != tt.wantOK || v != tt.wantV || unit != tt.wantUnit {
				t.Errorf("got (%d, %q, %v), want (%d, %q, %v)", v, unit, ok, tt.wantV, tt.wantUnit, tt.wantOK)
			}
		})
	}
}
