// Package airtemp reads the ambient air temperature from a DS18B20 1-Wire
// sensor exposed by the Linux w1-gpio and w1-therm drivers.
package airtemp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"periph.io/x/conn/v3/physic"
)

const (
	// DefaultBase is where the kernel lists 1-Wire slaves.
	DefaultBase = "/sys/bus/w1/devices"
	// DefaultInterval is how often the sensor is read.
	DefaultInterval = 10 * time.Second

	ds18b20Family = "28-"
	// Reported by a DS18B20 that has not completed a conversion.
	powerOnReset = 85000
)

var (
	ErrNoSensor     = errors.New("no DS18B20 found")
	ErrCRC          = errors.New("crc check failed")
	ErrPowerOnReset = errors.New("power-on reset value")
	ErrFormat       = errors.New("unexpected w1_slave format")
)

// Reader yields one temperature reading.
type Reader interface {
	Read() (physic.Temperature, error)
}

// Sensor reads one DS18B20 through its w1_slave file.
type Sensor struct {
	path string
}

// NewSensor returns a Sensor for device, which is either a 1-Wire id such as
// "28-0316a2793dff" (looked up under DefaultBase) or a path to a w1_slave
// file.
func NewSensor(device string) *Sensor {
	if strings.ContainsRune(device, os.PathSeparator) {
		return &Sensor{path: device}
	}
	return &Sensor{path: filepath.Join(DefaultBase, device, "w1_slave")}
}

// Path returns the file the sensor reads.
func (s *Sensor) Path() string { return s.path }

// Read performs a conversion and returns the reading.
func (s *Sensor) Read() (physic.Temperature, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", s.path, err)
	}
	return Parse(data)
}

// Discover returns the id of the first DS18B20 under base.
func Discover(base string) (string, error) {
	entries, err := os.ReadDir(base)
	if err != nil {
		return "", fmt.Errorf("list %s: %w", base, err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ds18b20Family) {
			return e.Name(), nil
		}
	}
	return "", ErrNoSensor
}

// Parse decodes w1_slave contents:
//
//	72 01 4b 46 7f ff 0e 10 57 : crc=57 YES
//	72 01 4b 46 7f ff 0e 10 57 t=23125
func Parse(data []byte) (physic.Temperature, error) {
	lines := bytes.Split(bytes.TrimSpace(data), []byte("\n"))
	if len(lines) < 2 {
		return 0, ErrFormat
	}
	if !bytes.HasSuffix(bytes.TrimSpace(lines[0]), []byte("YES")) {
		return 0, ErrCRC
	}
	i := bytes.Index(lines[1], []byte("t="))
	if i < 0 {
		return 0, ErrFormat
	}
	milli, err := strconv.Atoi(string(bytes.TrimSpace(lines[1][i+2:])))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if milli == powerOnReset {
		return 0, ErrPowerOnReset
	}
	return physic.ZeroCelsius + physic.Temperature(milli)*physic.MilliKelvin, nil
}

// Celsius converts a reading to degrees Celsius.
func Celsius(t physic.Temperature) float64 {
	return float64(t-physic.ZeroCelsius) / float64(physic.Kelvin)
}

// Poll reads r immediately and then every interval, sending good readings to
// out. Failed reads are logged when the failure first appears. It returns when
// ctx is cancelled.
func Poll(ctx context.Context, r Reader, interval time.Duration, out chan<- physic.Temperature) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	failing := false
	for {
		t, err := r.Read()
		switch {
		case err != nil && !failing:
			log.Warn().Err(err).Msg("airtemp: read failed")
			failing = true
		case err == nil:
			if failing {
				log.Info().Float64("celsius", Celsius(t)).Msg("airtemp: sensor recovered")
				failing = false
			}
			select {
			case out <- t:
			case <-ctx.Done():
				return
			}
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}
