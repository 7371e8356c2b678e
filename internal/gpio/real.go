//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"

	"github.com/sweeney/spa-bridge/internal/bus"
)

const consumer = "spa-bridge"

// RealBus drives the panel bus from Linux GPIO lines.
type RealBus struct {
	pins    Pins
	chip    *gpiocdev.Chip
	dataOut *gpiocdev.Line
	edges   *gpiocdev.Lines
}

// NewRealBus opens the chip and requests data-out. The edge lines are
// requested later by Attach, once the Capture exists.
func NewRealBus(chipName string, pins Pins) (*RealBus, error) {
	chip, err := gpiocdev.NewChip(chipName, gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", chipName, err)
	}

	// Idle high: the panel only sees a press while the line is pulled low.
	dataOut, err := chip.RequestLine(pins.DataOut, gpiocdev.AsOutput(1))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request data-out pin %d: %w", pins.DataOut, err)
	}

	return &RealBus{
		pins:    pins,
		chip:    chip,
		dataOut: dataOut,
	}, nil
}

// Set drives data-out. It implements bus.OutputPin.
func (r *RealBus) Set(high bool) {
	v := 0
	if high {
		v = 1
	}
	// No error path from edge-handler context; a failed write shows up as a
	// press the panel never registers.
	_ = r.dataOut.SetValue(v)
}

// Attach requests clock, latch and data-in together so all their edges are
// delivered in order on one goroutine, and routes them into c.
func (r *RealBus) Attach(c *bus.Capture) error {
	if r.edges != nil {
		return fmt.Errorf("edge handlers already installed")
	}
	router := &edgeRouter{pins: r.pins, c: c}

	// Seed the data level; from here on it follows data-in's own edges.
	in, err := r.chip.RequestLine(r.pins.DataIn, gpiocdev.AsInput)
	if err != nil {
		return fmt.Errorf("request data-in pin %d: %w", r.pins.DataIn, err)
	}
	v, err := in.Value()
	in.Close()
	if err != nil {
		return fmt.Errorf("read data-in pin %d: %w", r.pins.DataIn, err)
	}
	router.data = v == 1

	handler := func(evt gpiocdev.LineEvent) {
		router.edge(evt.Offset, evt.Type == gpiocdev.LineEventRisingEdge)
	}
	edges, err := r.chip.RequestLines([]int{r.pins.Clock, r.pins.Latch, r.pins.DataIn},
		gpiocdev.AsInput,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(handler),
	)
	if err != nil {
		return fmt.Errorf("request clock/latch/data-in pins %d/%d/%d: %w",
			r.pins.Clock, r.pins.Latch, r.pins.DataIn, err)
	}
	r.edges = edges
	return nil
}

// DisableInterrupts stops edge delivery. It must be called before anything
// that cannot tolerate the handlers running, such as a self-update.
func (r *RealBus) DisableInterrupts() error {
	if r.edges == nil {
		return nil
	}
	err := r.edges.Close()
	r.edges = nil
	if err != nil {
		return fmt.Errorf("close edge pins: %w", err)
	}
	return nil
}

// Close releases GPIO resources.
// Data-out is returned to input with pull-up before closing so the panel's
// data line is never left driven low.
func (r *RealBus) Close() error {
	var errs []error

	if err := r.DisableInterrupts(); err != nil {
		errs = append(errs, err)
	}
	if r.dataOut != nil {
		if err := r.dataOut.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullUp); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure data-out pin: %w", err))
		}
		if err := r.dataOut.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close data-out pin: %w", err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
