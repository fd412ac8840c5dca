package session

import (
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// PublishRecord captures one publish for test assertions.
type PublishRecord struct {
	Topic    string
	QoS      byte
	Retained bool
	Payload  []byte
}

// SubscribeRecord captures one subscription.
type SubscribeRecord struct {
	Topic string
	QoS   byte
}

// fakeClient is an in-memory transport. Deliver injects inbound
// messages through the registered subscription handlers.
type fakeClient struct {
	mu sync.Mutex

	// ConnectErr, if set, fails Connect.
	ConnectErr error
	// PublishErr, if set, fails every Publish.
	PublishErr error

	connected    bool
	disconnected bool
	publishes    []PublishRecord
	subscribes   []SubscribeRecord
	handlers     map[string]paho.MessageHandler
}

func newFakeClient() *fakeClient {
	return &fakeClient{handlers: make(map[string]paho.MessageHandler)}
}

func (f *fakeClient) Connect() paho.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ConnectErr != nil {
		return &fakeToken{err: f.ConnectErr}
	}
	f.connected = true
	return &fakeToken{}
}

func (f *fakeClient) Disconnect(quiesce uint) {
	f.mu.Lock()
	f.connected = false
	f.disconnected = true
	f.mu.Unlock()
}

func (f *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishErr != nil {
		return &fakeToken{err: f.PublishErr}
	}
	f.publishes = append(f.publishes, PublishRecord{
		Topic:    topic,
		QoS:      qos,
		Retained: retained,
		Payload:  toBytes(payload),
	})
	return &fakeToken{}
}

func (f *fakeClient) Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribes = append(f.subscribes, SubscribeRecord{Topic: topic, QoS: qos})
	f.handlers[topic] = callback
	return &fakeToken{}
}

func (f *fakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// Deliver routes an inbound message to the first subscription whose
// pattern matches, mimicking broker delivery.
func (f *fakeClient) Deliver(topic string, payload []byte) {
	f.mu.Lock()
	var handler paho.MessageHandler
	for pattern, h := range f.handlers {
		if topicMatches(pattern, topic) {
			handler = h
			break
		}
	}
	f.mu.Unlock()

	if handler != nil {
		handler(nil, &fakeMessage{topic: topic, payload: payload})
	}
}

// Publishes returns a copy of all recorded publishes.
func (f *fakeClient) Publishes() []PublishRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]PublishRecord, len(f.publishes))
	copy(out, f.publishes)
	return out
}

// PublishesTo returns the publishes recorded for one topic.
func (f *fakeClient) PublishesTo(topic string) []PublishRecord {
	var out []PublishRecord
	for _, p := range f.Publishes() {
		if p.Topic == topic {
			out = append(out, p)
		}
	}
	return out
}

// Subscribes returns a copy of all recorded subscriptions.
func (f *fakeClient) Subscribes() []SubscribeRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]SubscribeRecord, len(f.subscribes))
	copy(out, f.subscribes)
	return out
}

func (f *fakeClient) Disconnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnected
}

func toBytes(payload interface{}) []byte {
	switch v := payload.(type) {
	case []byte:
		out := make([]byte, len(v))
		copy(out, v)
		return out
	case string:
		return []byte(v)
	default:
		return nil
	}
}

// topicMatches checks a topic against a pattern with + single-segment
// wildcards.
func topicMatches(pattern, topic string) bool {
	pp := strings.Split(pattern, "/")
	tp := strings.Split(topic, "/")
	if len(pp) != len(tp) {
		return false
	}
	for i, seg := range pp {
		if seg != "+" && seg != tp[i] {
			return false
		}
	}
	return true
}

// fakeToken is an immediately resolved paho.Token.
type fakeToken struct {
	err  error
	once sync.Once
	done chan struct{}
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Error() error                   { return t.err }

func (t *fakeToken) Done() <-chan struct{} {
	t.once.Do(func() {
		t.done = make(chan struct{})
		close(t.done)
	})
	return t.done
}

// fakeMessage implements paho.Message for delivered payloads.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 0 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}
