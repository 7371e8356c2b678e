package capture

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/sweeney/spa-bridge/internal/spa"
)

var t0 = time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC)

func TestWriteRead(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, Header{Transport: "gpio", Device: "gpiochip0"}, t0)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	words := []struct {
		at   time.Duration
		word uint16
	}{
		{0, 0xFFBF},
		{5 * time.Millisecond, 0xFF7F},
		{1500 * time.Millisecond, 0x4600},
	}
	for _, x := range words {
		if err := w.Write(t0.Add(x.at), x.word); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if w.Count() != 3 {
		t.Errorf("count: got %d, want 3", w.Count())
	}

	r, err := NewReader(&buf)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	h := r.Header()
	if h.Version != Version || h.Transport != "gpio" || h.Device != "gpiochip0" {
		t.Errorf("header: got %+v", h)
	}
	if !h.StartTime().Equal(t0) {
		t.Errorf("start: got %v, want %v", h.StartTime(), t0)
	}

	recs, err := r.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(recs) != len(words) {
		t.Fatalf("records: got %d, want %d", len(recs), len(words))
	}
	for i, x := range words {
		if recs[i].At() != x.at || recs[i].Word != x.word {
			t.Errorf("record %d: got (%v, %#04x), want (%v, %#04x)", i, recs[i].At(), recs[i].Word, x.at, x.word)
		}
	}
	if _, err := r.Next(); err != io.EOF {
		t.Errorf("after end: got %v, want io.EOF", err)
	}
}

func TestRecordIsCompactArray(t *testing.T) {
	data, err := cbor.Marshal(Record{Offset: 5, Word: 0x0102})
	if err != nil {
		t.Fatal(err)
	}
	// [5, 258]: array(2), uint 5, uint16 0x0102.
	want := []byte{0x82, 0x05, 0x19, 0x01, 0x02}
	if !bytes.Equal(data, want) {
		t.Errorf("got % x, want % x", data, want)
	}
}

func TestWriteBeforeStartClamps(t *testing.T) {
	var buf bytes.Buffer
	w, _ := NewWriter(&buf, Header{}, t0)
	w.Write(t0.Add(-time.Second), 1)

	r, _ := NewReader(&buf)
	rec, err := r.Next()
	if err != nil {
		t.Fatal(err)
	}
	if rec.Offset != 0 {
		t.Errorf("offset: got %d, want 0", rec.Offset)
	}
}

func TestReaderRejectsVersion(t *testing.T) {
	data, _ := cbor.Marshal(Header{Version: 9})
	if _, err := NewReader(bytes.NewReader(data)); !errors.Is(err, ErrVersion) {
		t.Errorf("got %v, want ErrVersion", err)
	}
	if _, err := NewReader(bytes.NewReader(nil)); err == nil {
		t.Error("expected an error for an empty stream")
	}
}

func TestReaderTruncated(t *testing.T) {
	var buf bytes.Buffer
	w, _ := NewWriter(&buf, Header{}, t0)
	w.Write(t0, 0xFFFF)
	data := buf.Bytes()[:buf.Len()-1]

	r, err := NewReader(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Next(); err == nil || err == io.EOF {
		t.Errorf("got %v, want a decode error", err)
	}
}

type stubPanel struct {
	words   []uint16
	presses []uint16
}

func (p *stubPanel) Pop() (uint16, bool) {
	if len(p.words) == 0 {
		return 0, false
	}
	w := p.words[0]
	p.words = p.words[1:]
	return w, true
}
func (p *stubPanel) RequestButton(code uint16) bool { p.presses = append(p.presses, code); return true }
func (p *stubPanel) ButtonPending() bool            { return false }
func (p *stubPanel) CancelButton()                  {}

func TestTapRecordsPoppedWords(t *testing.T) {
	var buf bytes.Buffer
	now := t0
	w, _ := NewWriter(&buf, Header{}, t0)
	inner := &stubPanel{words: []uint16{0x1111, 0x2222}}
	tap := NewTap(inner, w, func() time.Time { return now })

	var _ spa.Panel = tap
	tap.Pop()
	now = now.Add(10 * time.Millisecond)
	tap.Pop()
	if _, ok := tap.Pop(); ok {
		t.Error("pop from an empty panel succeeded")
	}
	if !tap.RequestButton(0x0042) || len(inner.presses) != 1 {
		t.Error("RequestButton not forwarded")
	}
	if tap.Err() != nil {
		t.Fatalf("Err: %v", tap.Err())
	}

	r, _ := NewReader(&buf)
	recs, _ := r.ReadAll()
	if len(recs) != 2 || recs[1].Word != 0x2222 || recs[1].At() != 10*time.Millisecond {
		t.Errorf("records: got %+v", recs)
	}
}

func TestPlayerReleasesOnSchedule(t *testing.T) {
	h := Header{Version: Version, Started: t0.UnixMilli()}
	p := NewPlayer(h, []Record{
		{Offset: 0, Word: 1},
		{Offset: 0, Word: 2},
		{Offset: 20, Word: 3},
	})
	var _ spa.Panel = p

	if !p.Now().Equal(t0) {
		t.Errorf("now: got %v, want %v", p.Now(), t0)
	}
	for _, want := range []uint16{1, 2} {
		if w, ok := p.Pop(); !ok || w != want {
			t.Errorf("pop: got (%d, %v), want %d", w, ok, want)
		}
	}
	if _, ok := p.Pop(); ok {
		t.Error("released a word before its offset")
	}
	p.Advance(20 * time.Millisecond)
	if w, ok := p.Pop(); !ok || w != 3 {
		t.Errorf("pop: got (%d, %v), want 3", w, ok)
	}
	if !p.Done() || p.Remaining() != 0 {
		t.Error("player should be done")
	}
	if p.RequestButton(0x0042) || p.ButtonPending() {
		t.Error("player must refuse presses")
	}
}
