// Package session owns the broker connection lifecycle: connect with a
// bounded acknowledgment wait, last-will registration, retained presence
// publication, subscription restore on reconnect, and the periodic
// heartbeat. Publishes while disconnected are dropped, not queued.
package session

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/iamfiro/mqtt-bus/internal/config"
	"github.com/iamfiro/mqtt-bus/internal/logging"
)

// transport is the subset of the paho client the manager drives.
// paho.Client satisfies it; the fake in fake.go backs tests.
type transport interface {
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
	IsConnected() bool
}

// MessageHandler receives every inbound message. Called from the
// transport's network goroutine; it should only hand the message off.
type MessageHandler func(topic string, payload []byte)

// Subscription names one inbound topic pattern.
type Subscription struct {
	Topic string
	QoS   byte
}

// Options configures a Manager. DeviceID and StatusTopic are required.
type Options struct {
	Broker config.MQTTConfig

	// DeviceID identifies this device; combined with ClientPrefix and a
	// random suffix it forms a client id unique per process start.
	DeviceID     string
	ClientPrefix string

	// StatusTopic carries the retained presence message and the last
	// will. Status supplies the role-specific payload fields.
	StatusTopic string
	Status      Status

	Subscriptions []Subscription

	// HeartbeatInterval is the period of the retained online status
	// refresh; zero disables the heartbeat.
	HeartbeatInterval time.Duration

	// ConnectTimeout bounds Connect; zero means the 10s default.
	ConnectTimeout time.Duration

	Logger *logging.Logger
}

// Manager is the broker session. All methods are safe for concurrent use.
type Manager struct {
	opts     Options
	log      *logging.Logger
	clientID string
	client   transport
	now      func() time.Time

	mu            sync.RWMutex
	connected     bool
	everConnected bool
	handler       MessageHandler

	hbMu      sync.Mutex
	hbStop    chan struct{}
	hbDone    chan struct{}
	hbRunning bool
}

// New builds a session descriptor and its transport. It does not connect.
func New(opts Options) (*Manager, error) {
	if opts.DeviceID == "" || opts.StatusTopic == "" {
		return nil, ErrMissingIdentity
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	clientID := fmt.Sprintf("%s-%s-%s", opts.ClientPrefix, opts.DeviceID, uuid.NewString()[:8])
	will := opts.Status.Payload("offline", time.Now())

	m := newManager(opts, nil)
	m.clientID = clientID

	pahoOpts := buildClientOptions(opts.Broker, clientID, opts.StatusTopic, will)
	pahoOpts.SetOnConnectHandler(func(_ paho.Client) {
		m.handleConnect()
	})
	pahoOpts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		m.handleDisconnect(err)
	})
	m.client = paho.NewClient(pahoOpts)

	m.log.Info("session initialized", "client_id", clientID, "status_topic", opts.StatusTopic)
	return m, nil
}

// newManager wires a Manager around an existing transport. Tests use it
// with the fake client.
func newManager(opts Options, cli transport) *Manager {
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}
	return &Manager{
		opts:   opts,
		log:    log,
		client: cli,
		now:    time.Now,
	}
}

// ClientID returns the per-start client identifier.
func (m *Manager) ClientID() string {
	return m.clientID
}

// SetMessageHandler registers the inbound message sink. Must be called
// before Connect so no subscription delivery is missed.
func (m *Manager) SetMessageHandler(h MessageHandler) {
	m.mu.Lock()
	m.handler = h
	m.mu.Unlock()
}

// Connect opens the transport and blocks up to ConnectTimeout for the
// broker's acknowledgment. On success it subscribes the inbound topic
// set, publishes the retained online status, and starts the heartbeat.
func (m *Manager) Connect() error {
	m.log.Info("connecting to broker",
		"host", m.opts.Broker.Host, "port", m.opts.Broker.Port)

	token := m.client.Connect()
	if !token.WaitTimeout(m.opts.ConnectTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, m.opts.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	m.handleConnect()
	return nil
}

// handleConnect runs the post-connect sequence. Invoked from Connect and
// from paho's reconnect callback; both paths must be safe to repeat.
func (m *Manager) handleConnect() {
	m.mu.Lock()
	alreadyConnected := m.connected
	m.connected = true
	m.everConnected = true
	m.mu.Unlock()

	if alreadyConnected {
		return
	}

	for _, sub := range m.opts.Subscriptions {
		token := m.client.Subscribe(sub.Topic, sub.QoS, m.dispatch)
		if !token.WaitTimeout(publishTimeout) || token.Error() != nil {
			m.log.Warn("subscribe failed", "topic", sub.Topic, "error", token.Error())
			continue
		}
		m.log.Debug("subscribed", "topic", sub.Topic, "qos", sub.QoS)
	}

	m.publishStatus("online", m.now())
	m.startHeartbeat()
	m.log.Info("broker connected")
}

// handleDisconnect transitions to disconnected. A nil error is a clean
// close; anything else is an unexpected drop, warned not failed.
func (m *Manager) handleDisconnect(err error) {
	m.mu.Lock()
	m.connected = false
	m.mu.Unlock()

	if err != nil {
		m.log.Warn("broker connection lost", "error", err)
	} else {
		m.log.Info("broker disconnected")
	}
}

// dispatch forwards one inbound message to the registered handler,
// recovering from handler panics so the network loop survives.
func (m *Manager) dispatch(_ paho.Client, msg paho.Message) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("message handler panic recovered", "topic", msg.Topic(), "panic", r)
		}
	}()

	m.mu.RLock()
	h := m.handler
	m.mu.RUnlock()
	if h != nil {
		h(msg.Topic(), msg.Payload())
	}
}

// IsConnected reports the session state.
func (m *Manager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected && m.client.IsConnected()
}

// EverConnected reports whether the session was connected at any point.
func (m *Manager) EverConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.everConnected
}

// Publish sends a message if connected and reports whether the transport
// accepted it. While disconnected the message is dropped and logged;
// callers must not assume delivery beyond the QoS contract.
func (m *Manager) Publish(topic string, payload []byte, qos byte, retain bool) bool {
	if !m.IsConnected() {
		m.log.Debug("publish dropped while disconnected", "topic", topic)
		return false
	}

	token := m.client.Publish(topic, qos, retain, payload)
	if !token.WaitTimeout(publishTimeout) {
		m.log.Warn("publish timed out", "topic", topic)
		return false
	}
	if err := token.Error(); err != nil {
		m.log.Warn("publish failed", "topic", topic, "error", err)
		return false
	}
	return true
}

// publishStatus publishes the retained presence message.
func (m *Manager) publishStatus(state string, now time.Time) bool {
	return m.Publish(m.opts.StatusTopic, m.opts.Status.Payload(state, now), 1, true)
}

// Disconnect stops the heartbeat, publishes the retained offline status
// if connected, and tears down the transport. The heartbeat is joined
// first so a late tick cannot republish the retained online status after
// the offline one. Safe to call at any time, including before Connect or
// twice.
func (m *Manager) Disconnect() {
	m.stopHeartbeat()
	if m.IsConnected() {
		m.publishStatus("offline", m.now())
	}

	m.mu.Lock()
	wasConnected := m.connected
	m.connected = false
	m.mu.Unlock()

	if m.client != nil {
		m.client.Disconnect(disconnectQuiesce)
	}
	if wasConnected {
		m.log.Info("session closed")
	}
}

// startHeartbeat launches the ticker-driven status refresh.
func (m *Manager) startHeartbeat() {
	if m.opts.HeartbeatInterval <= 0 {
		return
	}

	m.hbMu.Lock()
	defer m.hbMu.Unlock()
	if m.hbRunning {
		return
	}
	m.hbRunning = true
	m.hbStop = make(chan struct{})
	m.hbDone = make(chan struct{})

	ticker := time.NewTicker(m.opts.HeartbeatInterval)
	go func() {
		defer ticker.Stop()
		defer close(m.hbDone)
		m.runHeartbeat(ticker.C, m.hbStop)
	}()
}

// runHeartbeat republishes the retained online status on every tick
// while connected. The tick channel is injected so tests drive time.
func (m *Manager) runHeartbeat(tick <-chan time.Time, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case now := <-tick:
			if !m.IsConnected() {
				continue
			}
			if m.publishStatus("online", now) {
				m.log.Debug("heartbeat published")
			}
		}
	}
}

// stopHeartbeat cancels the heartbeat task and waits for it to exit so
// no in-flight status publish can follow.
func (m *Manager) stopHeartbeat() {
	m.hbMu.Lock()
	defer m.hbMu.Unlock()
	if !m.hbRunning {
		return
	}
	close(m.hbStop)
	<-m.hbDone
	m.hbRunning = false
}
