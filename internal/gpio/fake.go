package gpio

import "github.com/sweeney/spa-bridge/internal/bus"

// FakeBoard is a test double that plays the main board: it clocks scripted
// words into a Capture and records what the Capture drives on data-out.
type FakeBoard struct {
	// Levels records every data-out write, in order.
	Levels []bool

	// Presses counts the latch windows data-out was held low for.
	Presses int

	// Closed tracks if Close was called
	Closed bool

	capture *bus.Capture
	low     bool
}

// NewFakeBoard returns a board wired to a fresh Capture that drives the
// board's own data-out recorder.
func NewFakeBoard() *FakeBoard {
	b := &FakeBoard{}
	b.capture = bus.NewCapture(b)
	return b
}

// Capture returns the capture fed by the board.
func (b *FakeBoard) Capture() *bus.Capture {
	return b.capture
}

// Set records a data-out write. It implements bus.OutputPin.
func (b *FakeBoard) Set(high bool) {
	b.Levels = append(b.Levels, high)
	if !high && !b.low {
		b.Presses++
	}
	b.low = !high
}

// Low reports whether data-out is currently pulled low.
func (b *FakeBoard) Low() bool {
	return b.low
}

// Send clocks each word MSB first and latches it.
func (b *FakeBoard) Send(words ...uint16) {
	for _, w := range words {
		for i := bus.WordBits - 1; i >= 0; i-- {
			b.capture.OnClock(w>>uint(i)&1 == 1)
		}
		b.capture.OnLatch()
	}
}

// SendBits clocks n bits of w without checking n, for framing errors.
func (b *FakeBoard) SendBits(w uint16, n int) {
	for i := n - 1; i >= 0; i-- {
		b.capture.OnClock(w>>uint(i%bus.WordBits)&1 == 1)
	}
	b.capture.OnLatch()
}

// Close marks the board as closed.
func (b *FakeBoard) Close() error {
	b.Closed = true
	return nil
}

// Reset clears the recorded output.
func (b *FakeBoard) Reset() {
	b.Levels = nil
	b.Presses = 0
	b.Closed = false
	b.low = false
}
