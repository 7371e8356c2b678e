package airtemp

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"periph.io/x/conn/v3/physic"
)

const goodSlave = "72 01 4b 46 7f ff 0e 10 57 : crc=57 YES\n72 01 4b 46 7f ff 0e 10 57 t=23125\n"

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    float64
		wantErr error
	}{
		{"good", goodSlave, 23.125, nil},
		{"negative", "ff ff : crc=ff YES\nff ff t=-1250\n", -1.25, nil},
		{"crc", "72 01 : crc=57 NO\n72 01 t=23125\n", 0, ErrCRC},
		{"reset", "50 05 : crc=1c YES\n50 05 t=85000\n", 0, ErrPowerOnReset},
		{"short", "72 01 : crc=57 YES\n", 0, ErrFormat},
		{"no value", "72 01 : crc=57 YES\n72 01\n", 0, ErrFormat},
		{"garbage", "72 01 : crc=57 YES\n72 01 t=abc\n", 0, ErrFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse([]byte(tt.in))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error: got %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if c := Celsius(got); math.Abs(c-tt.want) > 1e-9 {
				t.Errorf("got %v°C, want %v°C", c, tt.want)
			}
		})
	}
}

func writeSlave(t *testing.T, base, id, content string) string {
	t.Helper()
	dir := filepath.Join(base, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	p := filepath.Join(dir, "w1_slave")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestSensorRead(t *testing.T) {
	base := t.TempDir()
	p := writeSlave(t, base, "28-0316a2793dff", goodSlave)

	s := NewSensor(p)
	if s.Path() != p {
		t.Errorf("path: got %q, want %q", s.Path(), p)
	}
	got, err := s.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if want := physic.ZeroCelsius + 23125*physic.MilliKelvin; got != want {
		t.Errorf("got %v, want %v", got, want)
	}

	if _, err := NewSensor(filepath.Join(base, "missing")).Read(); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestNewSensorByID(t *testing.T) {
	s := NewSensor("28-0316a2793dff")
	want := filepath.Join(DefaultBase, "28-0316a2793dff", "w1_slave")
	if s.Path() != want {
		t.Errorf("path: got %q, want %q", s.Path(), want)
	}
}

func TestDiscover(t *testing.T) {
	base := t.TempDir()
	if _, err := Discover(base); !errors.Is(err, ErrNoSensor) {
		t.Fatalf("empty dir: got %v, want ErrNoSensor", err)
	}

	os.Mkdir(filepath.Join(base, "w1_bus_master1"), 0o755)
	writeSlave(t, base, "28-0000072431d2", goodSlave)
	id, err := Discover(base)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if id != "28-0000072431d2" {
		t.Errorf("id: got %q", id)
	}
}

type fakeReader struct {
	mu       sync.Mutex
	readings []physic.Temperature
	errs     []error
	calls    int
}

func (f *fakeReader) Read() (physic.Temperature, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return 0, f.errs[i]
	}
	if i < len(f.readings) {
		return f.readings[i], nil
	}
	return f.readings[len(f.readings)-1], nil
}

func TestPollSkipsFailedReads(t *testing.T) {
	r := &fakeReader{
		readings: []physic.Temperature{0, physic.ZeroCelsius + 20*physic.Kelvin, physic.ZeroCelsius + 21*physic.Kelvin},
		errs:     []error{ErrCRC},
	}
	out := make(chan physic.Temperature)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Poll(ctx, r, time.Millisecond, out)
		close(done)
	}()

	for _, want := range []float64{20, 21} {
		select {
		case got := <-out:
			if c := Celsius(got); c != want {
				t.Errorf("got %v°C, want %v°C", c, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for a reading")
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Poll did not return after cancel")
	}
}
