// Package gpio binds the spa panel bus to GPIO lines.
// The real implementation uses the Linux GPIO character device and feeds
// edge events straight into a bus.Capture.
// The fake implementation plays the main board for tests and simulators.
package gpio

import "github.com/sweeney/spa-bridge/internal/bus"

// Pins holds the BCM line offsets of the four bus signals.
type Pins struct {
	Clock   int
	Latch   int
	DataIn  int
	DataOut int
}

// DefaultChip is the GPIO character device used unless overridden.
const DefaultChip = "gpiochip0"

// DefaultPins is the wiring of the reference board (BCM numbering).
var DefaultPins = Pins{
	Clock:   17,
	Latch:   27,
	DataIn:  22,
	DataOut: 23,
}

// edgeRouter feeds line events into a Capture. Data-in is tracked from its
// own edge events, which arrive in order with the clock and latch events,
// so each clock sample sees the level data-in had when the clock rose even
// if the event is handled late.
type edgeRouter struct {
	pins Pins
	c    *bus.Capture
	data bool
}

func (r *edgeRouter) edge(offset int, rising bool) {
	switch offset {
	case r.pins.DataIn:
		r.data = rising
	case r.pins.Clock:
		if rising {
			r.c.OnClock(r.data)
		}
	case r.pins.Latch:
		if rising {
			r.c.OnLatch()
		}
	}
}
