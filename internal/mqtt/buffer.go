package mqtt

import "github.com/rs/zerolog/log"

// bufferedMsg stores a serialized MQTT message for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer holds messages produced while disconnected. Retained state
// messages are coalesced per topic, so only the latest value of each
// attribute is replayed. Once full, the oldest message is dropped.
// Not safe for concurrent use; the caller must synchronize.
type ringBuffer struct {
	buf      []bufferedMsg
	capacity int
	head     int // next write position
	count    int
	dropped  int
	overflow bool // true if any message was dropped since last drain
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{
		buf:      make([]bufferedMsg, capacity),
		capacity: capacity,
	}
}

func (r *ringBuffer) at(i int) *bufferedMsg {
	return &r.buf[(r.head-r.count+i+r.capacity)%r.capacity]
}

func (r *ringBuffer) push(msg bufferedMsg) {
	if msg.retained {
		for i := 0; i < r.count; i++ {
			if m := r.at(i); m.retained && m.topic == msg.topic {
				*m = msg
				return
			}
		}
	}
	if r.count == r.capacity {
		if !r.overflow {
			log.Warn().Int("capacity", r.capacity).Msg("mqtt: offline buffer full, dropping oldest")
			r.overflow = true
		}
		r.dropped++
		r.count--
	}
	r.buf[r.head] = msg
	r.head = (r.head + 1) % r.capacity
	r.count++
}

func (r *ringBuffer) drainAll() []bufferedMsg {
	if r.count == 0 {
		return nil
	}
	result := make([]bufferedMsg, r.count)
	for i := range result {
		result[i] = *r.at(i)
	}
	r.count = 0
	r.head = 0
	r.overflow = false
	return result
}

func (r *ringBuffer) len() int {
	return r.count
}
