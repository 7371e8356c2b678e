package spa

import "github.com/sweeney/spa-bridge/internal/bus"

// Button identifies a front-panel button.
type Button int

const (
	BtnPower Button = iota
	BtnUp
	BtnDown
	BtnFilter
	BtnHeater
	BtnBubble
	BtnUnits
)

// buttonCodes are the scan words the main board sends for each button slot,
// with the buzzer bit set.
var buttonCodes = [...]uint16{
	BtnPower:  0xFBFF,
	BtnUp:     0xEFFF,
	BtnDown:   0xFF7F,
	BtnFilter: 0xFFFD,
	BtnHeater: 0x7FFF,
	BtnBubble: 0xFFF7,
	BtnUnits:  0xDFFF,
}

var buttonNames = [...]string{
	BtnPower:  "power",
	BtnUp:     "up",
	BtnDown:   "down",
	BtnFilter: "filter",
	BtnHeater: "heater",
	BtnBubble: "bubble",
	BtnUnits:  "units",
}

// Code returns the scan word for b.
func (b Button) Code() uint16 {
	return buttonCodes[b]
}

func (b Button) String() string {
	if b < 0 || int(b) >= len(buttonNames) {
		return "unknown"
	}
	return buttonNames[b]
}

// FrameKind is what a captured word carries.
type FrameKind int

const (
	FrameUnknown FrameKind = iota
	FrameButton
	FrameDigit0
	FrameDigit1
	FrameDigit2
	FrameDigit3
	FrameLEDs
)

// NumDigits is the number of seven-segment positions on the panel.
const NumDigits = 4

// Bits that select the frame kind. A cleared bit selects; they are tested in
// this order.
const (
	selDigit0 = 6
	selDigit1 = 5
	selDigit2 = 11
	selDigit3 = 2
	selLEDs   = 14
)

// Classify decides what a captured word encodes. Echoed button scan words
// are reported as FrameButton so they can be ignored.
func Classify(w uint16) FrameKind {
	b := w | bus.BuzzerMask
	for _, code := range buttonCodes {
		if b == code {
			return FrameButton
		}
	}
	switch {
	case bitClear(w, selDigit0):
		return FrameDigit0
	case bitClear(w, selDigit1):
		return FrameDigit1
	case bitClear(w, selDigit2):
		return FrameDigit2
	case bitClear(w, selDigit3):
		return FrameDigit3
	case bitClear(w, selLEDs):
		return FrameLEDs
	}
	return FrameUnknown
}

func bitClear(w uint16, n uint) bool {
	return w>>n&1 == 0
}

// Segment bit positions in a digit word (active low):
//
//	15 14 13 12 11 10  9  8  7  6  5  4  3  2  1  0
//	dp     a  b     d  c     e        g  f
var segmentBits = [7]uint{
	13, // a
	12, // b
	9,  // c
	10, // d
	7,  // e
	3,  // f
	4,  // g
}

// glyphs maps a gfedcba pattern to the character it shows.
var glyphs = map[uint8]byte{
	0x3F: '0',
	0x06: '1',
	0x5B: '2',
	0x4F: '3',
	0x66: '4',
	0x6D: '5',
	0x7D: '6',
	0x07: '7',
	0x7F: '8',
	0x6F: '9',
	0x67: '9',
	0x39: 'C',
	0x71: 'F',
	0x79: 'E',
	0x00: ' ',
}

// segments extracts the gfedcba pattern from a digit word.
func segments(w uint16) uint8 {
	lit := ^w
	var p uint8
	for i, bit := range segmentBits {
		if lit>>bit&1 == 1 {
			p |= 1 << uint(i)
		}
	}
	return p
}

// DecodeGlyph returns the character a digit word shows. ok is false for
// patterns not in the glyph table.
func DecodeGlyph(w uint16) (ch byte, ok bool) {
	ch, ok = glyphs[segments(w)]
	return ch, ok
}

// LED bit positions in an LED-bank word (active low).
const (
	ledPower       = 0
	ledBubbles     = 1
	ledHeaterGreen = 2
	ledHeaterRed   = 3
	ledFilter      = 4
)

// LEDs is the decoded LED bank.
type LEDs struct {
	Power       bool
	Bubbles     bool
	HeaterGreen bool
	HeaterRed   bool
	Filter      bool
}

// DecodeLEDs extracts the LED states from an LED-bank word.
func DecodeLEDs(w uint16) LEDs {
	return LEDs{
		Power:       bitClear(w, ledPower),
		Bubbles:     bitClear(w, ledBubbles),
		HeaterGreen: bitClear(w, ledHeaterGreen),
		HeaterRed:   bitClear(w, ledHeaterRed),
		Filter:      bitClear(w, ledFilter),
	}
}

var digitSelect = [NumDigits]uint{selDigit0, selDigit1, selDigit2, selDigit3}

// EncodeDigit builds the word the main board sends to show ch at position
// pos. It is the inverse of Classify + DecodeGlyph and is used by simulators
// and tests. ok is false if ch has no glyph.
func EncodeDigit(pos int, ch byte) (w uint16, ok bool) {
	if pos < 0 || pos >= NumDigits {
		return 0, false
	}
	var pattern uint8
	found := false
	for p, g := range glyphs {
		if g == ch && (!found || p > pattern) {
			// '9' has two patterns; prefer the full one.
			pattern, found = p, true
		}
	}
	if !found {
		return 0, false
	}
	w = 0xFFFF &^ (1 << digitSelect[pos])
	for i, bit := range segmentBits {
		if pattern>>uint(i)&1 == 1 {
			w &^= 1 << bit
		}
	}
	return w, true
}

// EncodeLEDs builds an LED-bank word for l.
func EncodeLEDs(l LEDs) uint16 {
	w := uint16(0xFFFF &^ (1 << selLEDs))
	set := func(on bool, bit uint) {
		if on {
			w &^= 1 << bit
		}
	}
	set(l.Power, ledPower)
	set(l.Bubbles, ledBubbles)
	set(l.HeaterGreen, ledHeaterGreen)
	set(l.HeaterRed, ledHeaterRed)
	set(l.Filter, ledFilter)
	return w
}
