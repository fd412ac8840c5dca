// Package bridge connects physical button edges and inbound broker
// messages to publishes, feedback patterns, and registered callbacks.
// It is the only writer of per-channel state, so a press and the
// command that clears it are always applied in a fixed order.
package bridge

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/iamfiro/mqtt-bus/internal/debounce"
	"github.com/iamfiro/mqtt-bus/internal/feedback"
	"github.com/iamfiro/mqtt-bus/internal/logging"
	"github.com/iamfiro/mqtt-bus/internal/routing"
	"github.com/iamfiro/mqtt-bus/internal/status"
)

// Feedback pattern timings.
const (
	confirmDuration = time.Second
	confirmInterval = 200 * time.Millisecond

	errorDuration = 2 * time.Second
	errorInterval = 100 * time.Millisecond

	notifyDuration = 3 * time.Second
	notifyInterval = 300 * time.Millisecond

	beepPulse = 150 * time.Millisecond
	beepCount = 3

	defaultBlinkDuration = 3 * time.Second
	defaultBlinkInterval = 500 * time.Millisecond
)

// eventQueueSize bounds the inbound event queue. Messages beyond it are
// dropped rather than blocking the broker callback.
const eventQueueSize = 64

// Publisher is the outbound side of the broker session. Publish reports
// whether the message was handed to the transport.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retain bool) bool
}

// Channel binds one served route to its button and LED pins.
type Channel struct {
	RouteID   string
	RouteName string
	Color     string
	ButtonPin int
	LEDPin    int
}

// Callback receives events of one type after the bridge's own handling.
type Callback func(evt routing.Event)

// Options configures a Bridge for one device role. Stop devices set
// StopID and Channels; vehicles set NotifyLEDPin.
type Options struct {
	StopID   string
	Channels []Channel

	// NotifyLEDPin blinks when a vehicle receives a stop call.
	NotifyLEDPin int
	BuzzerPin    int

	Debounce  time.Duration
	Publisher Publisher
	Scheduler *feedback.Scheduler
	Router    *routing.Router
	Tracker   *status.Tracker
	Logger    *logging.Logger
}

// callEvent is the wire form of a published stop call.
type callEvent struct {
	StopID         string `json:"stopId"`
	RouteID        string `json:"routeId"`
	RouteName      string `json:"routeName"`
	ButtonColor    string `json:"buttonColor"`
	Timestamp      string `json:"timestamp"`
	PassengerCount int    `json:"passengerCount"`
}

// controlCommand is the wire form of an inbound LED command. Duration
// and Interval are seconds.
type controlCommand struct {
	Status   string  `json:"status"`
	Duration float64 `json:"duration"`
	Interval float64 `json:"interval"`
}

// Bridge routes edges and messages for one device.
type Bridge struct {
	opts     Options
	filter   *debounce.Filter
	byButton map[int]Channel
	byRoute  map[string]Channel
	log      *logging.Logger

	mu      sync.Mutex
	pressed map[string]bool
	closed  bool

	cbMu      sync.RWMutex
	callbacks map[routing.EventType]Callback

	events chan routing.Event
	edges  chan edgeEvent
	done   chan struct{}
}

// edgeEvent is one accepted button press queued for the dispatcher.
type edgeEvent struct {
	ch Channel
	at time.Time
}

// New creates a Bridge. Start must be called before inbound messages
// are handled.
func New(opts Options) *Bridge {
	b := &Bridge{
		opts:      opts,
		filter:    debounce.New(opts.Debounce),
		byButton:  make(map[int]Channel),
		byRoute:   make(map[string]Channel),
		log:       opts.Logger.With("component", "bridge"),
		pressed:   make(map[string]bool),
		callbacks: make(map[routing.EventType]Callback),
		events:    make(chan routing.Event, eventQueueSize),
		edges:     make(chan edgeEvent, eventQueueSize),
		done:      make(chan struct{}),
	}
	for _, ch := range opts.Channels {
		b.byButton[ch.ButtonPin] = ch
		b.byRoute[ch.RouteID] = ch
	}
	return b
}

// Start launches the dispatch goroutine that drains inbound events.
func (b *Bridge) Start() {
	go b.dispatch()
}

// Close stops accepting events and waits for the dispatcher to drain.
func (b *Bridge) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	close(b.events)
	<-b.done
}

// RegisterCallback installs fn for one event type, replacing any
// previous registration. Callbacks run on the dispatch goroutine.
func (b *Bridge) RegisterCallback(t routing.EventType, fn Callback) {
	b.cbMu.Lock()
	b.callbacks[t] = fn
	b.cbMu.Unlock()
}

// OnPhysicalEdge handles one falling edge from a button pin. It only
// filters and enqueues, so the GPIO driver's event goroutine never waits
// on a publish; the dispatcher does the rest. Edges inside the debounce
// window are dropped.
func (b *Bridge) OnPhysicalEdge(pin int, at time.Time) {
	ch, ok := b.byButton[pin]
	if !ok {
		b.log.Debug("edge on unmapped pin", "pin", pin)
		return
	}
	if !b.filter.OnEdge(ch.RouteID, at) {
		b.log.Debug("edge debounced", "route", ch.RouteID)
		return
	}

	select {
	case b.edges <- edgeEvent{ch: ch, at: at}:
	default:
		b.log.Warn("edge queue full, dropping", "route", ch.RouteID)
	}
}

// handleEdge publishes the stop call for an accepted press and plays the
// confirmation blink, or the error blink when the publish is rejected.
func (b *Bridge) handleEdge(e edgeEvent) {
	ch, at := e.ch, e.at

	b.mu.Lock()
	b.pressed[ch.RouteID] = true
	b.mu.Unlock()
	b.trackChannel(ch.RouteID)

	payload, err := json.Marshal(callEvent{
		StopID:         b.opts.StopID,
		RouteID:        ch.RouteID,
		RouteName:      ch.RouteName,
		ButtonColor:    ch.Color,
		Timestamp:      at.UTC().Format(time.RFC3339),
		PassengerCount: 1,
	})
	if err != nil {
		b.log.Error("encode call event", "error", err)
		return
	}

	topic := routing.ButtonPressTopic(b.opts.StopID, ch.RouteID)
	if b.opts.Publisher.Publish(topic, payload, 1, false) {
		b.log.Info("stop call published", "route", ch.RouteID, "topic", topic)
		if b.opts.Tracker != nil {
			b.opts.Tracker.IncCallsSent()
		}
		b.opts.Scheduler.Play(feedback.Pattern{
			Pin: ch.LEDPin, Kind: feedback.Blink,
			Duration: confirmDuration, Interval: confirmInterval,
		})
		return
	}

	b.log.Warn("stop call dropped", "route", ch.RouteID)
	if b.opts.Tracker != nil {
		b.opts.Tracker.IncCallsFailed()
	}
	b.opts.Scheduler.Play(feedback.Pattern{
		Pin: ch.LEDPin, Kind: feedback.Blink,
		Duration: errorDuration, Interval: errorInterval,
	})
}

// HandleMessage classifies one inbound broker message and queues it for
// the dispatcher. Unrecognized topics and queue overflow drop the
// message. Safe to call from the broker's delivery goroutine.
func (b *Bridge) HandleMessage(topic string, payload []byte) {
	evt := b.opts.Router.Route(topic, payload)
	if evt.Type == routing.Unrecognized {
		b.log.Debug("unrecognized topic", "topic", topic)
		return
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	select {
	case b.events <- evt:
	default:
		b.log.Warn("event queue full, dropping", "topic", topic)
	}
	b.mu.Unlock()
}

// Pressed reports whether a route has an outstanding stop call.
func (b *Bridge) Pressed(routeID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pressed[routeID]
}

func (b *Bridge) dispatch() {
	defer close(b.done)
	for {
		select {
		case evt, ok := <-b.events:
			if !ok {
				return
			}
			b.handleEvent(evt)
		case e := <-b.edges:
			b.handleEdge(e)
		}
	}
}

func (b *Bridge) handleEvent(evt routing.Event) {
	switch evt.Type {
	case routing.ButtonPress:
		b.onStopCall(evt)
	case routing.ControlCommand:
		b.onControlCommand(evt)
	case routing.HealthCheck:
		b.log.Debug("health check received")
	}
	b.invokeCallback(evt)
}

// onStopCall announces a received stop call on the vehicle's notify LED
// and buzzer.
func (b *Bridge) onStopCall(evt routing.Event) {
	b.log.Info("stop call received", "stop", evt.StopID, "route", evt.RouteID)
	if b.opts.Tracker != nil {
		b.opts.Tracker.IncCallsReceived()
	}
	b.opts.Scheduler.Play(feedback.Pattern{
		Pin: b.opts.NotifyLEDPin, Kind: feedback.Blink,
		Duration: notifyDuration, Interval: notifyInterval,
	})
	if b.opts.BuzzerPin > 0 {
		b.opts.Scheduler.Play(feedback.Pattern{
			Pin: b.opts.BuzzerPin, Kind: feedback.BeepBurst,
			Duration: beepPulse, Repeat: beepCount,
		})
	}
}

// onControlCommand applies an LED command to the addressed channel.
// OFF also clears the route's outstanding press.
func (b *Bridge) onControlCommand(evt routing.Event) {
	ch, ok := b.byRoute[evt.RouteID]
	if !ok {
		b.log.Warn("command for unknown route", "route", evt.RouteID)
		return
	}
	var cmd controlCommand
	if err := json.Unmarshal(evt.Raw, &cmd); err != nil {
		b.log.Warn("malformed control command", "route", evt.RouteID, "error", err)
		return
	}
	if b.opts.Tracker != nil {
		b.opts.Tracker.IncCommandsReceived()
	}

	switch cmd.Status {
	case "ON":
		b.opts.Scheduler.Play(feedback.Pattern{Pin: ch.LEDPin, Kind: feedback.SteadyOn})
		b.trackChannel(ch.RouteID)
	case "OFF":
		b.opts.Scheduler.Play(feedback.Pattern{Pin: ch.LEDPin, Kind: feedback.SteadyOff})
		b.mu.Lock()
		delete(b.pressed, ch.RouteID)
		b.mu.Unlock()
		b.trackChannel(ch.RouteID)
	case "BLINK":
		duration := defaultBlinkDuration
		if cmd.Duration > 0 {
			duration = time.Duration(cmd.Duration * float64(time.Second))
		}
		interval := defaultBlinkInterval
		if cmd.Interval > 0 {
			interval = time.Duration(cmd.Interval * float64(time.Second))
		}
		b.opts.Scheduler.Play(feedback.Pattern{
			Pin: ch.LEDPin, Kind: feedback.Blink,
			Duration: duration, Interval: interval,
		})
	default:
		b.log.Warn("unknown command status", "route", ch.RouteID, "status", cmd.Status)
	}
}

func (b *Bridge) invokeCallback(evt routing.Event) {
	b.cbMu.RLock()
	fn := b.callbacks[evt.Type]
	b.cbMu.RUnlock()
	if fn != nil {
		fn(evt)
	}
}

// trackChannel pushes a channel's current state to the status tracker.
func (b *Bridge) trackChannel(routeID string) {
	if b.opts.Tracker == nil {
		return
	}
	ch := b.byRoute[routeID]
	led, _ := b.opts.Scheduler.Read(ch.LEDPin)
	b.mu.Lock()
	pressed := b.pressed[routeID]
	b.mu.Unlock()
	b.opts.Tracker.UpdateChannel(routeID, led, pressed)
}
