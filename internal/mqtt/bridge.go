package mqtt

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sweeney/spa-bridge/internal/spa"
)

// Bridge is an engine listener that publishes every change to its state
// topic. It runs on the main loop, like all listeners.
type Bridge struct {
	pub   Publisher
	state func() spa.State
	now   func() time.Time
}

// NewBridge creates a bridge reading values through state, normally
// Engine.State.
func NewBridge(pub Publisher, state func() spa.State, now func() time.Time) *Bridge {
	return &Bridge{pub: pub, state: state, now: now}
}

// OnChange implements spa.Listener.
func (b *Bridge) OnChange(ev spa.ChangeEvent) {
	b.publish(ev.Type, b.state())
}

// PublishAll publishes every known attribute, used at start-up so retained
// topics reflect this run.
func (b *Bridge) PublishAll() {
	s := b.state()
	for _, c := range spa.ChangeTypes() {
		b.publish(c, s)
	}
}

func (b *Bridge) publish(c spa.ChangeType, s spa.State) {
	v, ok := FormatValue(c, s)
	if !ok {
		return
	}
	log.Info().Str("attribute", c.String()).Str("value", v).Msg("state change")
	if err := b.pub.Publish(StateUpdate{Timestamp: b.now(), Change: c, Value: v}); err != nil {
		log.Error().Err(err).Str("attribute", c.String()).Msg("publish error")
	}
}
