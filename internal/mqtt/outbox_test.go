package mqtt

import (
	"errors"
	"fmt"
	"testing"

	"github.com/sweeney/spa-bridge/internal/spa"
)

func TestOutboxDeliversInOrder(t *testing.T) {
	var got []string
	o := newOutbox(8, func(m bufferedMsg) {
		got = append(got, m.topic)
	})
	for i := 0; i < 5; i++ {
		if !o.enqueue(bufferedMsg{topic: fmt.Sprint(i)}) {
			t.Fatalf("enqueue %d refused", i)
		}
	}
	o.close()

	if fmt.Sprint(got) != "[0 1 2 3 4]" {
		t.Errorf("delivered: got %v, want [0 1 2 3 4]", got)
	}
	if o.enqueue(bufferedMsg{topic: "late"}) {
		t.Error("enqueue accepted after close")
	}
	o.close() // second close is a no-op
}

func TestOutboxFullDoesNotBlock(t *testing.T) {
	release := make(chan struct{})
	delivered := make(chan string, 16)
	o := newOutbox(2, func(m bufferedMsg) {
		<-release
		delivered <- m.topic
	})

	// The sender holds at most one message while blocked, so the queue
	// refuses within size+2 attempts.
	accepted := 0
	for i := 0; i < 10; i++ {
		if !o.enqueue(bufferedMsg{topic: fmt.Sprint(i)}) {
			break
		}
		accepted++
	}
	if accepted < 2 || accepted > 3 {
		t.Fatalf("accepted %d messages with a stalled sender, want 2 or 3", accepted)
	}

	close(release)
	o.close()
	if len(delivered) != accepted {
		t.Fatalf("delivered %d, want %d", len(delivered), accepted)
	}
	for i := 0; i < accepted; i++ {
		if got := <-delivered; got != fmt.Sprint(i) {
			t.Errorf("message %d: got %s", i, got)
		}
	}
}

func TestRealPublisherPublishIsQueued(t *testing.T) {
	release := make(chan struct{})
	delivered := make(chan bufferedMsg, 16)
	p := &RealPublisher{topics: NewTopics("spa")}
	p.out = newOutbox(1, func(m bufferedMsg) {
		<-release
		delivered <- m
	})

	// With the sender stalled, Publish still returns and eventually
	// reports a full queue instead of waiting.
	var err error
	for i := 0; i < 5 && err == nil; i++ {
		err = p.Publish(StateUpdate{Change: spa.ChangePower, Value: "ON"})
	}
	if !errors.Is(err, errOutboxFull) {
		t.Fatalf("expected errOutboxFull, got %v", err)
	}

	close(release)
	p.out.close()
	m := <-delivered
	if m.topic != "spa/power" || string(m.payload) != "ON" || !m.retained || m.qos != 1 {
		t.Errorf("queued message: got %+v", m)
	}
}
