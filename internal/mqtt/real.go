package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/sweeney/spa-bridge/internal/spa"
)

// offlineBufferSize bounds the messages kept while the broker is unreachable.
const offlineBufferSize = 256

var errNotConnected = errors.New("not connected")

// Config configures a RealPublisher.
type Config struct {
	Broker string
	Name   string

	// Intents receives parsed "<attribute>/set" commands. Nil disables
	// the subscription.
	Intents chan<- spa.Intent
}

// RealPublisher publishes to an actual MQTT broker.
type RealPublisher struct {
	client  paho.Client
	topics  Topics
	intents chan<- spa.Intent
	out     *outbox

	mu        sync.Mutex
	buf       *ringBuffer
	connected bool
	everUp    bool
}

// NewRealPublisher creates a publisher and starts connecting in the
// background. Messages published before the first connection are buffered.
func NewRealPublisher(cfg Config) *RealPublisher {
	p := &RealPublisher{
		topics:  NewTopics(cfg.Name),
		intents: cfg.Intents,
		buf:     newRingBuffer(offlineBufferSize),
	}

	opts := paho.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(p.topics.Base + "-bridge").
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(p.topics.Availability(), Offline, 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)

	p.client = paho.NewClient(opts)
	p.out = newOutbox(outboxSize, p.deliver)
	p.client.Connect()
	return p
}

func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	p.connected = true
	reconnect := p.everUp
	p.everUp = true
	pending := p.buf.drainAll()
	p.mu.Unlock()

	log.Info().Bool("reconnect", reconnect).Int("buffered", len(pending)).Msg("mqtt: connected")

	if err := p.send(p.topics.Availability(), 1, true, []byte(Online)); err != nil {
		log.Error().Err(err).Msg("mqtt: availability publish failed")
	}

	if p.intents != nil {
		token := c.Subscribe(p.topics.SetFilter(), 1, p.handleSet)
		if !token.WaitTimeout(5 * time.Second) {
			log.Error().Msg("mqtt: subscribe timeout")
		} else if err := token.Error(); err != nil {
			log.Error().Err(err).Msg("mqtt: subscribe failed")
		}
	}

	for _, m := range pending {
		if err := p.send(m.topic, m.qos, m.retained, m.payload); err != nil {
			log.Error().Err(err).Str("topic", m.topic).Msg("mqtt: replay failed")
		}
	}

	if reconnect {
		payload, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"})
		if err := p.send(p.topics.System(), 1, false, payload); err != nil {
			log.Error().Err(err).Msg("mqtt: reconnected event failed")
		}
	}
}

func (p *RealPublisher) onConnectionLost(_ paho.Client, err error) {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	log.Warn().Err(err).Msg("mqtt: connection lost")
}

// handleSet runs on the paho goroutine. It never touches the engine.
func (p *RealPublisher) handleSet(_ paho.Client, m paho.Message) {
	in, err := p.topics.ParseCommand(m.Topic(), m.Payload())
	if err != nil {
		log.Warn().Err(err).Str("topic", m.Topic()).Msg("mqtt: ignoring command")
		return
	}
	select {
	case p.intents <- in:
		log.Info().Stringer("intent", in).Msg("mqtt: command received")
	default:
		log.Warn().Stringer("intent", in).Msg("mqtt: intent queue full, dropping command")
	}
}

// send publishes immediately, waiting for the broker.
func (p *RealPublisher) send(topic string, qos byte, retained bool, payload []byte) error {
	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// publish sends or, while disconnected, buffers for replay on reconnect.
// It blocks on the broker and only runs on the outbox goroutine.
func (p *RealPublisher) publish(topic string, qos byte, retained bool, payload []byte) error {
	p.mu.Lock()
	if !p.connected {
		p.buf.push(bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained})
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	err := p.send(topic, qos, retained, payload)
	if err != nil && !p.client.IsConnectionOpen() {
		p.mu.Lock()
		p.buf.push(bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained})
		p.mu.Unlock()
		return fmt.Errorf("%w, buffered: %w", errNotConnected, err)
	}
	return err
}

// deliver runs on the outbox goroutine.
func (p *RealPublisher) deliver(m bufferedMsg) {
	if err := p.publish(m.topic, m.qos, m.retained, m.payload); err != nil {
		log.Error().Err(err).Str("topic", m.topic).Msg("mqtt: publish failed")
	}
}

// enqueue hands a message to the outbox. It never waits for the broker.
func (p *RealPublisher) enqueue(topic string, retained bool, payload []byte) error {
	if !p.out.enqueue(bufferedMsg{topic: topic, payload: payload, qos: 1, retained: retained}) {
		return fmt.Errorf("publish %s: %w", topic, errOutboxFull)
	}
	return nil
}

// Publish queues an attribute value, retained, at QoS 1.
func (p *RealPublisher) Publish(update StateUpdate) error {
	return p.enqueue(p.topics.State(update.Change), true, []byte(update.Value))
}

// PublishSystem queues a system lifecycle event.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.enqueue(p.topics.System(), event.Retained, payload)
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// Close sends what is queued, marks the bridge offline and disconnects
// from the broker.
func (p *RealPublisher) Close() error {
	p.out.close()
	if p.IsConnected() {
		if err := p.send(p.topics.Availability(), 1, true, []byte(Offline)); err != nil {
			log.Error().Err(err).Msg("mqtt: offline publish failed")
		}
	}
	p.client.Disconnect(1000)
	return nil
}
