package mqtt

import (
	"sync"
	"time"

	"github.com/sweeney/gcode-serial/internal/action"
)

// FakePublisher records published messages for test assertions.
type FakePublisher struct {
	mu sync.Mutex

	topics Topics
	now    func() time.Time

	actions        []action.Action
	topicsSent     []string
	payloads       [][]byte
	systemEvents   []SystemEvent
	systemPayloads [][]byte

	// PublishError, if set, will be returned by Publish.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool

	// OnCommand receives commands passed to Deliver.
	OnCommand CommandHandler
}

// NewFakePublisher creates a FakePublisher for testing, routing with the default prefix.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{topics: NewTopics(DefaultPrefix), now: time.Now}
}

// Publish records the action and the payload the real publisher would send.
func (f *FakePublisher) Publish(a action.Action) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.PublishError != nil {
		return f.PublishError
	}
	topic, _, _, ok := f.topics.Route(a)
	if !ok {
		return nil
	}

	payload, err := FormatPayload(a, f.now())
	if err != nil {
		return err
	}
	f.actions = append(f.actions, a)
	f.topicsSent = append(f.topicsSent, topic)
	f.payloads = append(f.payloads, payload)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.systemEvents = append(f.systemEvents, event)
	f.systemPayloads = append(f.systemPayloads, payload)
	return nil
}

// Deliver simulates a message arriving on the command topic.
func (f *FakePublisher) Deliver(payload []byte) error {
	cmd, err := ParseCommand(payload)
	if err != nil {
		return err
	}
	f.mu.Lock()
	handler := f.OnCommand
	f.mu.Unlock()
	if handler != nil {
		handler(cmd)
	}
	return nil
}

// Actions returns the published actions in order.
func (f *FakePublisher) Actions() []action.Action {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]action.Action(nil), f.actions...)
}

// Topics returns the topic used for each published action.
func (f *FakePublisher) Topics() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.topicsSent...)
}

// Payloads returns the JSON payloads of the published actions.
func (f *FakePublisher) Payloads() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.payloads...)
}

// SystemEvents returns the published system events in order.
func (f *FakePublisher) SystemEvents() []SystemEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SystemEvent(nil), f.systemEvents...)
}

// SystemPayloads returns the JSON payloads of the published system events.
func (f *FakePublisher) SystemPayloads() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.systemPayloads...)
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// Reset clears recorded messages.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = nil
	f.topicsSent = nil
	f.payloads = nil
	f.systemEvents = nil
	f.systemPayloads = nil
	f.Closed = false
	f.PublishError = nil
	f.PublishSystemError = nil
	f.Connected = false
}
