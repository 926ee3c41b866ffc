package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/sweeney/gcode-serial/internal/action"
)

// BufferSize is how many telemetry and action messages are held while the
// broker is unreachable. Retained messages are kept separately, newest per topic.
const BufferSize = 256

// Options configures a RealPublisher.
type Options struct {
	Broker      string
	ClientID    string
	TopicPrefix string

	// OnCommand, if set, receives every valid command from the command topic.
	OnCommand CommandHandler
}

// RealPublisher publishes to an actual MQTT broker.
type RealPublisher struct {
	client    paho.Client
	topics    Topics
	onCommand CommandHandler
	now       func() time.Time

	mu        sync.Mutex
	buf       *replayBuffer
	connected bool
	everUp    bool
}

// NewRealPublisher creates a publisher for the given broker. An unreachable
// broker is not an error: messages are buffered and the client keeps retrying.
func NewRealPublisher(o Options) (*RealPublisher, error) {
	p := &RealPublisher{
		topics:    NewTopics(o.TopicPrefix),
		onCommand: o.OnCommand,
		now:       time.Now,
		buf:       newReplayBuffer(BufferSize),
	}

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: p.now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(p.topics.System, string(will), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		log.Warn().Str("broker", o.Broker).Msg("mqtt: broker not reachable yet, buffering")
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	p.connected = true
	reconnect := p.everUp
	p.everUp = true
	p.mu.Unlock()

	log.Info().Bool("reconnect", reconnect).Msg("mqtt: connected")

	if token := c.Subscribe(p.topics.Command, 1, p.handleCommand); token.WaitTimeout(5*time.Second) && token.Error() != nil {
		log.Error().Err(token.Error()).Str("topic", p.topics.Command).Msg("mqtt: subscribe failed")
	}

	// Handlers run on the client's goroutine; publishing with waits must not.
	go func() {
		if reconnect {
			if err := p.PublishSystem(SystemEvent{Timestamp: p.now(), Event: "RECONNECTED"}); err != nil {
				log.Warn().Err(err).Msg("mqtt: publish reconnected event")
			}
		}
		p.flush()
	}()
}

func (p *RealPublisher) onConnectionLost(_ paho.Client, err error) {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	log.Warn().Err(err).Msg("mqtt: connection lost")
}

func (p *RealPublisher) handleCommand(_ paho.Client, m paho.Message) {
	cmd, err := ParseCommand(m.Payload())
	if err != nil {
		log.Warn().Err(err).Str("topic", m.Topic()).Msg("mqtt: ignoring command")
		return
	}
	log.Info().Str("command", cmd.String()).Msg("mqtt: command received")
	if p.onCommand != nil {
		p.onCommand(cmd)
	}
}

// flush replays buffered messages in order.
func (p *RealPublisher) flush() {
	p.mu.Lock()
	msgs := p.buf.drainAll()
	p.mu.Unlock()

	if len(msgs) > 0 {
		log.Info().Int("count", len(msgs)).Msg("mqtt: replaying buffered messages")
	}
	for _, m := range msgs {
		if err := p.send(m); err != nil {
			log.Warn().Err(err).Str("topic", m.topic).Msg("mqtt: replay failed")
		}
	}
}

// send publishes m, buffering it instead while disconnected.
func (p *RealPublisher) send(m bufferedMsg) error {
	p.mu.Lock()
	if !p.connected {
		p.buf.push(m)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(5 * time.Second) {
		p.mu.Lock()
		p.buf.push(m)
		p.mu.Unlock()
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Publish sends a bus action to its topic. Commands are ignored.
func (p *RealPublisher) Publish(a action.Action) error {
	topic, qos, retained, ok := p.topics.Route(a)
	if !ok {
		return nil
	}
	payload, err := FormatPayload(a, p.now())
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	return p.send(bufferedMsg{topic: topic, payload: payload, qos: qos, retained: retained})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 (at-least-once) for lifecycle events - we want to ensure delivery
	return p.send(bufferedMsg{topic: p.topics.System, payload: payload, qos: 1, retained: event.Retained})
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Buffered returns how many messages are waiting for the broker.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
