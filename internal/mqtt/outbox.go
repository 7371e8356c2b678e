package mqtt

import (
	"errors"
	"sync"
)

// outboxSize bounds the messages waiting for the publisher goroutine.
const outboxSize = 256

var errOutboxFull = errors.New("publish queue full")

// outbox hands messages from the main loop to a single sender goroutine so
// a slow broker never stalls the caller. Order is preserved.
type outbox struct {
	mu     sync.Mutex
	ch     chan bufferedMsg
	closed bool
	done   chan struct{}
}

// newOutbox starts a goroutine calling send for each queued message.
func newOutbox(size int, send func(bufferedMsg)) *outbox {
	o := &outbox{
		ch:   make(chan bufferedMsg, size),
		done: make(chan struct{}),
	}
	go func() {
		defer close(o.done)
		for m := range o.ch {
			send(m)
		}
	}()
	return o
}

// enqueue queues m without blocking. It reports false when the queue is
// full or closed.
func (o *outbox) enqueue(m bufferedMsg) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false
	}
	select {
	case o.ch <- m:
		return true
	default:
		return false
	}
}

// close stops accepting messages and waits until the queued ones are sent.
func (o *outbox) close() {
	o.mu.Lock()
	if !o.closed {
		o.closed = true
		close(o.ch)
	}
	o.mu.Unlock()
	<-o.done
}
