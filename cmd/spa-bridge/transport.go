package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sweeney/spa-bridge/internal/bus"
	"github.com/sweeney/spa-bridge/internal/gpio"
	"github.com/sweeney/spa-bridge/internal/spa"
	"github.com/sweeney/spa-bridge/internal/uart"
)

// transportFlags selects how the panel bus is reached.
type transportFlags struct {
	chip   string
	pins   gpio.Pins
	serial string
	baud   int
}

func addTransportFlags(cmd *cobra.Command, f *transportFlags) {
	fl := cmd.Flags()
	fl.StringVar(&f.chip, "chip", gpio.DefaultChip, "GPIO character device")
	fl.IntVar(&f.pins.Clock, "pin-clock", gpio.DefaultPins.Clock, "BCM line for the bus clock")
	fl.IntVar(&f.pins.Latch, "pin-latch", gpio.DefaultPins.Latch, "BCM line for the bus latch")
	fl.IntVar(&f.pins.DataIn, "pin-data-in", gpio.DefaultPins.DataIn, "BCM line for data from the main board")
	fl.IntVar(&f.pins.DataOut, "pin-data-out", gpio.DefaultPins.DataOut, "BCM line driving button presses")
	fl.StringVar(&f.serial, "serial", "", "Read the bus through a sniffer on this serial port instead of GPIO")
	fl.IntVar(&f.baud, "baud", uart.DefaultBaud, "Sniffer baud rate")
}

// transport is an open panel connection.
type transport struct {
	Panel  spa.Panel
	Stats  func() bus.Stats
	Kind   string
	Device string
	close  func() error
}

// Close disables interrupts and releases the hardware.
func (t *transport) Close() error {
	if t.close == nil {
		return nil
	}
	return t.close()
}

// open connects to the panel. A serial transport reads until ctx is done.
func (f transportFlags) open(ctx context.Context) (*transport, error) {
	if f.serial != "" {
		link, err := uart.Open(f.serial, f.baud)
		if err != nil {
			return nil, err
		}
		go func() {
			if err := link.Run(ctx); err != nil {
				log.Error().Err(err).Str("port", f.serial).Msg("serial link stopped")
			}
		}()
		return &transport{
			Panel:  link,
			Stats:  link.Stats,
			Kind:   "uart",
			Device: f.serial,
			close:  link.Close,
		}, nil
	}

	rb, err := gpio.NewRealBus(f.chip, f.pins)
	if err != nil {
		return nil, fmt.Errorf("init gpio: %w", err)
	}
	capture := bus.NewCapture(rb)
	if err := rb.Attach(capture); err != nil {
		return nil, errors.Join(fmt.Errorf("attach gpio: %w", err), rb.Close())
	}
	return &transport{
		Panel:  capture,
		Stats:  capture.Stats,
		Kind:   "gpio",
		Device: f.chip,
		close:  rb.Close,
	}, nil
}
