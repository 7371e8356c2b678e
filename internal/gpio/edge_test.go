package gpio

import (
	"testing"

	"github.com/sweeney/spa-bridge/internal/bus"
)

// sendEdges plays w as line events: data-in edges only when the level
// changes, then the clock pair, then the latch pair.
func sendEdges(r *edgeRouter, w uint16) {
	pins := r.pins
	level := r.data
	for i := bus.WordBits - 1; i >= 0; i-- {
		bit := w>>uint(i)&1 == 1
		if bit != level {
			r.edge(pins.DataIn, bit)
			level = bit
		}
		r.edge(pins.Clock, true)
		r.edge(pins.Clock, false)
	}
	r.edge(pins.Latch, true)
	r.edge(pins.Latch, false)
}

func TestEdgeRouterSamplesTrackedLevel(t *testing.T) {
	c := bus.NewCapture(nil)
	r := &edgeRouter{pins: DefaultPins, c: c}

	words := []uint16{0xA5F0, 0x0001, 0xFFFF, 0x0000, 0x8000}
	for _, w := range words {
		sendEdges(r, w)
	}

	got := drain(c)
	if len(got) != len(words) {
		t.Fatalf("words: got %#04x, want %#04x", got, words)
	}
	for i := range words {
		if got[i] != words[i] {
			t.Errorf("word %d: got %#04x, want %#04x", i, got[i], words[i])
		}
	}
}

func TestEdgeRouterSeededLevel(t *testing.T) {
	c := bus.NewCapture(nil)
	r := &edgeRouter{pins: DefaultPins, c: c, data: true}

	// No data-in edges at all: every bit is the seeded level.
	for i := 0; i < bus.WordBits; i++ {
		r.edge(DefaultPins.Clock, true)
	}
	r.edge(DefaultPins.Latch, true)

	got := drain(c)
	if len(got) != 1 || got[0] != 0xFFFF {
		t.Errorf("words: got %#04x, want [0xffff]", got)
	}
}

func TestEdgeRouterIgnoresFallingAndUnknown(t *testing.T) {
	c := bus.NewCapture(nil)
	r := &edgeRouter{pins: DefaultPins, c: c}

	for i := 0; i < bus.WordBits; i++ {
		r.edge(DefaultPins.Clock, false)
		r.edge(99, true)
	}
	r.edge(DefaultPins.Latch, false)
	if got := drain(c); len(got) != 0 {
		t.Errorf("falling edges produced words: %#04x", got)
	}
	if s := c.Stats(); s.Frames != 0 {
		t.Errorf("frames: got %d, want 0", s.Frames)
	}
}
