package bus

import "sync/atomic"

// RingSize is the number of samples the ring retains.
const RingSize = 64

// Ring is a fixed-capacity FIFO of 16-bit bus samples with one producer
// (the edge handler) and one consumer (the main loop). It never blocks and
// never allocates. When full, Push drops the oldest unread sample.
//
// head and tail are free-running counters; a slot index is counter % RingSize.
// The producer only stores tail and the slots. head is advanced by the
// consumer on Pop, and by the producer with a CAS when it must evict.
type Ring struct {
	slots   [RingSize]atomic.Uint32
	head    atomic.Uint32
	tail    atomic.Uint32
	dropped atomic.Uint32
}

// Push appends a sample, evicting the oldest unread one if the ring is full.
func (r *Ring) Push(v uint16) {
	t := r.tail.Load()
	h := r.head.Load()
	if t-h >= RingSize {
		// Evict before overwriting so a concurrent Pop of this slot fails its CAS.
		if r.head.CompareAndSwap(h, h+1) {
			r.dropped.Add(1)
		}
	}
	r.slots[t%RingSize].Store(uint32(v))
	r.tail.Store(t + 1)
}

// Pop removes and returns the oldest sample. ok is false when empty.
func (r *Ring) Pop() (v uint16, ok bool) {
	for {
		h := r.head.Load()
		if h == r.tail.Load() {
			return 0, false
		}
		v = uint16(r.slots[h%RingSize].Load())
		if r.head.CompareAndSwap(h, h+1) {
			return v, true
		}
		// Producer evicted h while we were reading it; take the next one.
	}
}

// Len returns the number of unread samples.
func (r *Ring) Len() int {
	n := int(r.tail.Load() - r.head.Load())
	if n > RingSize {
		n = RingSize
	}
	return n
}

// Dropped returns how many samples were evicted by overflow.
func (r *Ring) Dropped() uint32 {
	return r.dropped.Load()
}
