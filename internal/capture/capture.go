// Package capture records raw panel bus words to a CBOR stream and plays
// them back, so decoder behaviour can be reproduced away from the spa.
//
// A file is a header item followed by one [offset_ms, word] array per word.
package capture

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Version is the current file format version.
const Version = 1

// Header opens every capture file.
type Header struct {
	Version   int    `cbor:"1,keyasint"`
	Started   int64  `cbor:"2,keyasint"` // unix milliseconds
	Transport string `cbor:"3,keyasint,omitempty"`
	Device    string `cbor:"4,keyasint,omitempty"`
	Note      string `cbor:"5,keyasint,omitempty"`
}

// StartTime returns Started as a time.
func (h Header) StartTime() time.Time {
	return time.UnixMilli(h.Started)
}

// Record is one captured word and when it was dequeued.
type Record struct {
	_      struct{} `cbor:",toarray"`
	Offset uint64   // milliseconds since Header.Started
	Word   uint16
}

// At returns the record's offset as a duration.
func (r Record) At() time.Duration {
	return time.Duration(r.Offset) * time.Millisecond
}

var ErrVersion = errors.New("unsupported capture version")

// Writer appends records to a capture stream.
type Writer struct {
	enc   *cbor.Encoder
	start time.Time
	count int
}

// NewWriter writes the header and returns a Writer. A zero h.Version is set
// to Version; a zero h.Started is taken from start.
func NewWriter(w io.Writer, h Header, start time.Time) (*Writer, error) {
	if h.Version == 0 {
		h.Version = Version
	}
	if h.Started == 0 {
		h.Started = start.UnixMilli()
	}
	enc := cbor.NewEncoder(w)
	if err := enc.Encode(h); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	return &Writer{enc: enc, start: h.StartTime()}, nil
}

// Write records word as seen at t.
func (w *Writer) Write(t time.Time, word uint16) error {
	off := t.Sub(w.start).Milliseconds()
	if off < 0 {
		off = 0
	}
	if err := w.enc.Encode(Record{Offset: uint64(off), Word: word}); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	w.count++
	return nil
}

// Count returns the number of records written.
func (w *Writer) Count() int { return w.count }

// Reader decodes a capture stream.
type Reader struct {
	dec    *cbor.Decoder
	header Header
}

// NewReader reads and validates the header.
func NewReader(r io.Reader) (*Reader, error) {
	dec := cbor.NewDecoder(r)
	var h Header
	if err := dec.Decode(&h); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if h.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrVersion, h.Version)
	}
	return &Reader{dec: dec, header: h}, nil
}

// Header returns the file header.
func (r *Reader) Header() Header { return r.header }

// Next returns the next record, or io.EOF at the end of the stream.
func (r *Reader) Next() (Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("read record: %w", err)
	}
	return rec, nil
}

// ReadAll returns every remaining record.
func (r *Reader) ReadAll() ([]Record, error) {
	var out []Record
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}
