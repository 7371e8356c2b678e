// Package uart is the serial alternative to GPIO capture: a microcontroller
// sniffs the panel bus and streams each latched word to the host, and
// performs button presses on request.
//
// Wire format, one frame per message:
//
//	MCU -> host  0xA5 hi lo   captured word
//	MCU -> host  0xA6         requested press finished
//	host -> MCU  0x5A hi lo   press the button with scan code hi<<8|lo
//	host -> MCU  0x5B         cancel the pending press
package uart

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/sweeney/spa-bridge/internal/bus"
)

// Frame markers.
const (
	FrameWord   = 0xA5
	FrameDone   = 0xA6
	FramePress  = 0x5A
	FrameCancel = 0x5B
)

// DefaultBaud is the sniffer firmware's line rate.
const DefaultBaud = 115200

// Link is a panel connection over a serial sniffer. It implements the
// engine's Panel interface; Run must be running for words to arrive.
type Link struct {
	conn io.ReadWriteCloser
	ring bus.Ring

	wmu     sync.Mutex
	pending atomic.Bool

	frames  atomic.Uint32
	resyncs atomic.Uint32
}

// NewLink wraps an open connection.
func NewLink(conn io.ReadWriteCloser) *Link {
	return &Link{conn: conn}
}

// Open opens a serial port at 8N1.
func Open(portName string, baud int) (*Link, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", portName, err)
	}
	return NewLink(port), nil
}

// Ports lists the serial ports the OS knows about, sorted by name.
func Ports() ([]string, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("enumerate serial ports: %w", err)
	}
	out := make([]string, 0, len(details))
	for _, p := range details {
		if p == nil || p.Name == "" {
			continue
		}
		out = append(out, p.Name)
	}
	sort.Strings(out)
	return out, nil
}

// Run reads frames until ctx is cancelled or the connection fails. It closes
// the connection on return.
func (l *Link) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { l.conn.Close() })
	defer func() {
		if stop() {
			l.conn.Close()
		}
	}()

	err := l.read(bufio.NewReader(l.conn))
	if ctx.Err() != nil {
		return nil
	}
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("serial link closed: %w", err)
	}
	return err
}

func (l *Link) read(r *bufio.Reader) error {
	var buf [2]byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		switch b {
		case FrameWord:
			if _, err := io.ReadFull(r, buf[:]); err != nil {
				return err
			}
			l.ring.Push(uint16(buf[0])<<8 | uint16(buf[1]))
			l.frames.Add(1)
		case FrameDone:
			l.pending.Store(false)
		default:
			if l.resyncs.Add(1) == 1 {
				log.Warn().Uint8("byte", b).Msg("uart: unexpected byte, resynchronising")
			}
		}
	}
}

func (l *Link) write(p []byte) error {
	l.wmu.Lock()
	defer l.wmu.Unlock()
	_, err := l.conn.Write(p)
	return err
}

// Pop returns the oldest received word.
func (l *Link) Pop() (uint16, bool) {
	return l.ring.Pop()
}

// RequestButton asks the sniffer to press a button. It is refused while a
// previous press is still pending or when the write fails.
func (l *Link) RequestButton(code uint16) bool {
	if code == 0 || l.pending.Load() {
		return false
	}
	l.pending.Store(true)
	if err := l.write([]byte{FramePress, byte(code >> 8), byte(code)}); err != nil {
		l.pending.Store(false)
		log.Error().Err(err).Msg("uart: button request failed")
		return false
	}
	return true
}

// ButtonPending reports whether the sniffer has not yet confirmed the press.
func (l *Link) ButtonPending() bool {
	return l.pending.Load()
}

// CancelButton abandons the pending press.
func (l *Link) CancelButton() {
	l.pending.Store(false)
	if err := l.write([]byte{FrameCancel}); err != nil {
		log.Error().Err(err).Msg("uart: cancel failed")
	}
}

// Stats returns the link counters in the same shape as GPIO capture.
func (l *Link) Stats() bus.Stats {
	return bus.Stats{
		Frames:   l.frames.Load(),
		Dropped:  l.ring.Dropped(),
		Buffered: l.ring.Len(),
	}
}

// Resyncs returns the number of unexpected bytes skipped.
func (l *Link) Resyncs() uint32 {
	return l.resyncs.Load()
}

// Close closes the connection.
func (l *Link) Close() error {
	return l.conn.Close()
}
