package capture

import (
	"time"

	"github.com/sweeney/spa-bridge/internal/spa"
)

// Tap wraps a live panel and records every word the engine dequeues.
type Tap struct {
	spa.Panel
	w   *Writer
	now func() time.Time
	err error
}

// NewTap records words popped from p to w, timestamped with now.
func NewTap(p spa.Panel, w *Writer, now func() time.Time) *Tap {
	return &Tap{Panel: p, w: w, now: now}
}

// Pop forwards to the wrapped panel. Recording stops at the first write error.
func (t *Tap) Pop() (uint16, bool) {
	word, ok := t.Panel.Pop()
	if ok && t.err == nil {
		t.err = t.w.Write(t.now(), word)
	}
	return word, ok
}

// Err returns the first write error.
func (t *Tap) Err() error { return t.err }

// Player is a read-only panel that releases recorded words as its virtual
// clock passes their offsets. Button presses are refused.
type Player struct {
	records []Record
	next    int
	start   time.Time
	now     time.Time
}

// NewPlayer returns a Player positioned at the header start time.
func NewPlayer(h Header, records []Record) *Player {
	start := h.StartTime()
	return &Player{records: records, start: start, now: start}
}

// Now is the virtual clock, suitable for spa.WithClock.
func (p *Player) Now() time.Time { return p.now }

// Advance moves the virtual clock forward by d.
func (p *Player) Advance(d time.Duration) { p.now = p.now.Add(d) }

// Done reports whether every record has been released.
func (p *Player) Done() bool { return p.next >= len(p.records) }

// Remaining returns the number of records not yet released.
func (p *Player) Remaining() int { return len(p.records) - p.next }

// Pop returns the next record due at the current virtual time.
func (p *Player) Pop() (uint16, bool) {
	if p.Done() {
		return 0, false
	}
	rec := p.records[p.next]
	if p.start.Add(rec.At()).After(p.now) {
		return 0, false
	}
	p.next++
	return rec.Word, true
}

func (p *Player) RequestButton(uint16) bool { return false }
func (p *Player) ButtonPending() bool       { return false }
func (p *Player) CancelButton()             {}
