// Package bus captures 16-bit words from the spa panel's clock/latch/data
// link and emulates button presses on the data-out line.
//
// OnClock and OnLatch run in edge-handler context. They only touch atomic
// scalars and the Ring, never allocate, and never log. Everything else in
// this package is called from the main loop.
package bus

import "sync/atomic"

// WordBits is the number of clock edges in one latch cycle.
const WordBits = 16

// BuzzerMask is OR-ed into a scanned word before comparing it to a button code.
const BuzzerMask = 0x0100

// PressPulses is how many matching latch cycles a button request is held for.
const PressPulses = 5

// OutputPin drives the data-out line. High is idle; low pulls the panel's
// data line to register a press.
type OutputPin interface {
	Set(high bool)
}

// Capture assembles words from clock edges and pushes them into a Ring on
// each latch. It also owns the single active button request.
type Capture struct {
	ring Ring
	out  OutputPin

	shift atomic.Uint32
	edges atomic.Uint32
	pulse atomic.Bool

	request   atomic.Uint32 // button code, 0 = none
	remaining atomic.Int32

	frames atomic.Uint32
}

// NewCapture creates a Capture that drives out for button emulation.
// out may be nil when the transport has no data-out line (replay, tests).
func NewCapture(out OutputPin) *Capture {
	return &Capture{out: out}
}

// OnClock handles one clock rising edge. bit is the sampled data-in level.
func (c *Capture) OnClock(bit bool) {
	c.edges.Add(1)
	v := (c.shift.Load() << 1) & 0xFFFF
	if bit {
		v |= 1
	}
	c.shift.Store(v)
}

// OnLatch handles one latch rising edge.
func (c *Capture) OnLatch() {
	if c.pulse.Load() {
		// End of the press window started on the previous latch.
		c.setOut(true)
		c.pulse.Store(false)
	} else if c.edges.Load() == WordBits {
		word := uint16(c.shift.Load())
		c.ring.Push(word)
		c.frames.Add(1)
		c.simulatePress(word)
	}
	c.shift.Store(0)
	c.edges.Store(0)
}

// simulatePress pulls data-out low for one latch window when the word just
// shifted in is the scan slot of the requested button.
func (c *Capture) simulatePress(word uint16) {
	code := c.request.Load()
	if code == 0 || uint32(word|BuzzerMask) != code {
		return
	}
	c.setOut(false)
	c.pulse.Store(true)
	if c.remaining.Add(-1) <= 0 {
		c.request.Store(0)
	}
}

func (c *Capture) setOut(high bool) {
	if c.out != nil {
		c.out.Set(high)
	}
}

// Pop returns the oldest captured word.
func (c *Capture) Pop() (uint16, bool) {
	return c.ring.Pop()
}

// RequestButton starts emulating a press of the button with the given scan
// code. It is refused (false) while a previous request is still pulsing.
func (c *Capture) RequestButton(code uint16) bool {
	if code == 0 || c.request.Load() != 0 {
		return false
	}
	// remaining must be visible before the handler can see the code.
	c.remaining.Store(PressPulses)
	c.request.Store(uint32(code))
	return true
}

// ButtonPending reports whether a button request has not finished pulsing.
func (c *Capture) ButtonPending() bool {
	return c.request.Load() != 0
}

// CancelButton drops the active button request, if any.
func (c *Capture) CancelButton() {
	c.request.Store(0)
}

// Stats is a point-in-time view of capture counters.
type Stats struct {
	Frames   uint32
	Dropped  uint32
	Buffered int
}

// Stats returns the capture counters.
func (c *Capture) Stats() Stats {
	return Stats{
		Frames:   c.frames.Load(),
		Dropped:  c.ring.Dropped(),
		Buffered: c.ring.Len(),
	}
}
