package spa

import (
	"strconv"
	"strings"
)

// The panel blinks the target temperature and shows the current temperature
// steadily. Neither is tagged on the wire, so the two are told apart by
// counting display frames between blank (blink-off) frames.
const (
	// reqCycles non-blank frames must pass without a blank one before a
	// reading is trusted as the current temperature.
	reqCycles = 90

	// A reading seen while the countdown is strictly inside this window is
	// a target temperature candidate.
	targetWindowLow  = 20
	targetWindowHigh = 80
)

// Legal target temperature ranges per unit.
const (
	minTargetC = 20
	maxTargetC = 40
	minTargetF = 68
	maxTargetF = 104
)

// display holds the per-position glyphs and the temperature classifier state.
type display struct {
	digits [NumDigits]byte

	lastValue    int
	current      int
	currentValid bool
	target       int
	targetValid  bool
	countdown    int
	blankRun     int

	errCandidate string
}

func newDisplay() display {
	return display{countdown: reqCycles}
}

// readDigit updates one digit position and classifies the frame after the
// last position. Unknown segment patterns leave the digit unchanged.
func (e *Engine) readDigit(pos int, w uint16) {
	if ch, ok := DecodeGlyph(w); ok {
		e.disp.digits[pos] = ch
	}
	if pos == NumDigits-1 {
		e.classifyTemperature()
	}
}

func (e *Engine) classifyTemperature() {
	d := &e.disp

	if d.digits[0] == ' ' {
		if d.blankRun == 0 {
			// Blink transition: the reading before it was the target.
			lo, hi := e.targetRange()
			if d.targetValid && lo <= d.target && d.target <= hi {
				e.setTargetTemperature(d.target)
			}
			d.countdown = reqCycles
			d.currentValid = false
		}
		d.blankRun++
		return
	}

	v, unit, ok := parseReading(d.digits)
	if !ok {
		e.readErrorCode(d.digits)
		return
	}
	d.errCandidate = ""
	d.lastValue = v
	d.countdown--

	if d.countdown > targetWindowLow && d.countdown < targetWindowHigh {
		d.target = v
		d.targetValid = true
	} else if d.countdown <= 0 {
		if d.currentValid {
			e.setCurrentTemperature(d.current)
			if unit != 0 {
				e.setCelsius(unit == 'C')
			}
			e.setErrorCode("")
		}
		// Stay at zero: a steady display keeps promoting.
		d.countdown = 0
		d.current = v
		d.currentValid = true
		d.targetValid = false
	}
	d.blankRun = 0
}

// parseReading reads a numeric display such as "38C " or "104F". unit is
// 'C', 'F' or 0 when no unit letter is shown.
func parseReading(digits [NumDigits]byte) (v int, unit byte, ok bool) {
	s := strings.TrimSpace(string(digits[:]))
	if n := len(s); n > 0 && (s[n-1] == 'C' || s[n-1] == 'F') {
		unit = s[n-1]
		s = strings.TrimSpace(s[:n-1])
	}
	if s == "" {
		return 0, 0, false
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0, 0, false
	}
	return v, unit, true
}

// readErrorCode publishes an "Exx" display once it has been seen on two
// consecutive frames.
func (e *Engine) readErrorCode(digits [NumDigits]byte) {
	s := strings.TrimSpace(string(digits[:]))
	if len(s) < 2 || s[0] != 'E' {
		e.disp.errCandidate = ""
		return
	}
	if _, err := strconv.Atoi(s[1:]); err != nil {
		e.disp.errCandidate = ""
		return
	}
	if e.disp.errCandidate == s {
		e.setErrorCode(s)
	}
	e.disp.errCandidate = s
}

func (e *Engine) targetRange() (lo, hi int) {
	if e.celsius {
		return minTargetC, maxTargetC
	}
	return minTargetF, maxTargetF
}

func (e *Engine) setCurrentTemperature(v int) {
	if e.hasCurrent && e.current == v {
		return
	}
	e.current = v
	e.hasCurrent = true
	e.emit(ChangeTemp)
}

func (e *Engine) setTargetTemperature(v int) {
	if e.hasTarget && e.target == v {
		return
	}
	e.target = v
	e.hasTarget = true
	e.emit(ChangeTargetTemp)
}

func (e *Engine) setErrorCode(code string) {
	if e.errorCode == code {
		return
	}
	e.errorCode = code
	e.emit(ChangeErrorCode)
}
