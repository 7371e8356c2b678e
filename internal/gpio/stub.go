//go:build !linux

package gpio

import (
	"errors"

	"github.com/sweeney/spa-bridge/internal/bus"
)

// RealBus is not available on non-Linux platforms.
type RealBus struct{}

// NewRealBus returns an error on non-Linux platforms.
func NewRealBus(chipName string, pins Pins) (*RealBus, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Set is a no-op on non-Linux platforms.
func (r *RealBus) Set(high bool) {}

// Attach is not implemented on non-Linux platforms.
func (r *RealBus) Attach(c *bus.Capture) error {
	return errors.New("gpio: not supported")
}

// DisableInterrupts is a no-op on non-Linux platforms.
func (r *RealBus) DisableInterrupts() error {
	return nil
}

// Close is a no-op on non-Linux platforms.
func (r *RealBus) Close() error {
	return nil
}
