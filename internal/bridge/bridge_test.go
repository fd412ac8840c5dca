package bridge

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/iamfiro/mqtt-bus/internal/feedback"
	"github.com/iamfiro/mqtt-bus/internal/gpio"
	"github.com/iamfiro/mqtt-bus/internal/logging"
	"github.com/iamfiro/mqtt-bus/internal/routing"
	"github.com/iamfiro/mqtt-bus/internal/status"
)

type publishRecord struct {
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool
}

// fakePublisher records publishes and can be told to reject them.
type fakePublisher struct {
	mu      sync.Mutex
	records []publishRecord
	reject  bool
}

func (p *fakePublisher) Publish(topic string, payload []byte, qos byte, retain bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.reject {
		return false
	}
	p.records = append(p.records, publishRecord{topic, payload, qos, retain})
	return true
}

func (p *fakePublisher) published() []publishRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]publishRecord, len(p.records))
	copy(out, p.records)
	return out
}

type stopFixture struct {
	bridge *Bridge
	conn   *gpio.Fake
	sched  *feedback.Scheduler
	pub    *fakePublisher
	track  *status.Tracker
}

func newStopFixture(t *testing.T) *stopFixture {
	t.Helper()
	conn := gpio.NewFake()
	for _, pin := range []int{17, 27} {
		if err := conn.RequestOutput(pin); err != nil {
			t.Fatal(err)
		}
	}
	sched := feedback.New(conn, logging.Discard())
	pub := &fakePublisher{}
	track := status.NewTracker("stop", "stop-103", time.Now(), status.Config{})
	b := New(Options{
		StopID: "stop-103",
		Channels: []Channel{
			{RouteID: "route-10", RouteName: "Route 10", Color: "red", ButtonPin: 4, LEDPin: 17},
			{RouteID: "route-22", RouteName: "Route 22", Color: "blue", ButtonPin: 5, LEDPin: 27},
		},
		Debounce:  300 * time.Millisecond,
		Publisher: pub,
		Scheduler: sched,
		Router:    routing.New(routing.Config{StopID: "stop-103"}),
		Tracker:   track,
		Logger:    logging.Discard(),
	})
	b.Start()
	t.Cleanup(func() {
		b.Close()
		sched.Shutdown()
	})
	return &stopFixture{bridge: b, conn: conn, sched: sched, pub: pub, track: track}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestButtonPressPublishesCall(t *testing.T) {
	f := newStopFixture(t)
	at := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	f.bridge.OnPhysicalEdge(4, at)

	waitFor(t, func() bool {
		return len(f.pub.published()) == 1
	}, "stop call was never published")
	rec := f.pub.published()[0]
	if rec.Topic != "device/button/stop-103/route-10" {
		t.Errorf("topic = %q", rec.Topic)
	}
	if rec.QoS != 1 || rec.Retain {
		t.Errorf("qos = %d retain = %v", rec.QoS, rec.Retain)
	}

	var evt map[string]any
	if err := json.Unmarshal(rec.Payload, &evt); err != nil {
		t.Fatalf("payload: %v", err)
	}
	want := map[string]any{
		"stopId": "stop-103", "routeId": "route-10",
		"routeName": "Route 10", "buttonColor": "red",
		"timestamp": "2026-03-01T09:30:00Z", "passengerCount": float64(1),
	}
	for k, v := range want {
		if evt[k] != v {
			t.Errorf("payload[%s] = %v, want %v", k, evt[k], v)
		}
	}

	if !f.bridge.Pressed("route-10") {
		t.Error("route-10 should be pressed")
	}
	if f.bridge.Pressed("route-22") {
		t.Error("route-22 should not be pressed")
	}

	waitFor(t, func() bool {
		for _, w := range f.conn.Writes() {
			if w.Pin == 17 && w.High {
				return true
			}
		}
		return false
	}, "confirmation blink never touched the LED")

	waitFor(t, func() bool {
		return f.track.Snapshot().Counts.CallsSent == 1
	}, "sent counter never incremented")
}

func TestButtonPressDebounced(t *testing.T) {
	f := newStopFixture(t)
	at := time.Now()

	f.bridge.OnPhysicalEdge(4, at)
	f.bridge.OnPhysicalEdge(4, at.Add(100*time.Millisecond))
	f.bridge.OnPhysicalEdge(4, at.Add(200*time.Millisecond))

	waitFor(t, func() bool {
		return len(f.pub.published()) == 1
	}, "accepted press was never published")
	time.Sleep(20 * time.Millisecond)
	if got := len(f.pub.published()); got != 1 {
		t.Errorf("publishes = %d, want 1", got)
	}
}

func TestButtonPressIndependentChannels(t *testing.T) {
	f := newStopFixture(t)
	at := time.Now()

	f.bridge.OnPhysicalEdge(4, at)
	f.bridge.OnPhysicalEdge(5, at.Add(50*time.Millisecond))

	waitFor(t, func() bool {
		return len(f.pub.published()) == 2
	}, "both channels should publish independently")
}

func TestEdgeOnUnmappedPin(t *testing.T) {
	f := newStopFixture(t)
	f.bridge.OnPhysicalEdge(26, time.Now())
	if got := len(f.pub.published()); got != 0 {
		t.Errorf("publishes = %d, want 0", got)
	}
}

func TestPublishFailurePlaysErrorPattern(t *testing.T) {
	f := newStopFixture(t)
	f.pub.reject = true

	f.bridge.OnPhysicalEdge(4, time.Now())

	waitFor(t, func() bool {
		return len(f.conn.Writes()) > 0
	}, "error blink never touched the LED")

	waitFor(t, func() bool {
		return f.track.Snapshot().Counts.CallsFailed == 1
	}, "failed counter never incremented")
	if got := f.track.Snapshot().Counts.CallsSent; got != 0 {
		t.Errorf("calls sent = %d, want 0", got)
	}
}

// stuckPublisher blocks every publish until released.
type stuckPublisher struct {
	release chan struct{}
}

func (p *stuckPublisher) Publish(string, []byte, byte, bool) bool {
	<-p.release
	return true
}

func TestEdgeHandlerReturnsWhilePublishStalls(t *testing.T) {
	conn := gpio.NewFake()
	if err := conn.RequestOutput(17); err != nil {
		t.Fatal(err)
	}
	sched := feedback.New(conn, logging.Discard())
	pub := &stuckPublisher{release: make(chan struct{})}
	b := New(Options{
		StopID:    "stop-103",
		Channels:  []Channel{{RouteID: "route-10", ButtonPin: 4, LEDPin: 17}},
		Debounce:  time.Millisecond,
		Publisher: pub,
		Scheduler: sched,
		Router:    routing.New(routing.Config{StopID: "stop-103"}),
		Logger:    logging.Discard(),
	})
	b.Start()
	t.Cleanup(func() {
		close(pub.release)
		b.Close()
		sched.Shutdown()
	})

	// The edge handler runs on the GPIO driver's event goroutine; it must
	// hand the press off and return even while the publish is stalled.
	returned := make(chan struct{})
	go func() {
		b.OnPhysicalEdge(4, time.Now())
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("edge handler waited on the stalled publish")
	}
}

// deliver routes a message through the bridge and waits for the
// dispatcher to handle it, using a callback as the fence.
func deliver(t *testing.T, b *Bridge, typ routing.EventType, topic string, payload []byte) {
	t.Helper()
	handled := make(chan struct{}, 1)
	b.RegisterCallback(typ, func(routing.Event) {
		select {
		case handled <- struct{}{}:
		default:
		}
	})
	b.HandleMessage(topic, payload)
	select {
	case <-handled:
	case <-time.After(2 * time.Second):
		t.Fatal("event was never dispatched")
	}
}

func TestControlCommandOnOff(t *testing.T) {
	f := newStopFixture(t)
	f.bridge.OnPhysicalEdge(4, time.Now())
	waitFor(t, func() bool {
		return f.bridge.Pressed("route-10")
	}, "press was never handled")

	deliver(t, f.bridge, routing.ControlCommand,
		"device/led/stop-103/route-10", []byte(`{"status":"ON"}`))
	if on, _ := f.conn.Read(17); !on {
		t.Error("LED should be on after ON command")
	}
	if !f.bridge.Pressed("route-10") {
		t.Error("ON must not clear the press")
	}

	deliver(t, f.bridge, routing.ControlCommand,
		"device/led/stop-103/route-10", []byte(`{"status":"OFF"}`))
	if on, _ := f.conn.Read(17); on {
		t.Error("LED should be off after OFF command")
	}
	if f.bridge.Pressed("route-10") {
		t.Error("OFF must clear the press")
	}

	if got := f.track.Snapshot().Counts.CommandsReceived; got != 2 {
		t.Errorf("commands = %d, want 2", got)
	}
}

func TestControlCommandBlink(t *testing.T) {
	f := newStopFixture(t)

	deliver(t, f.bridge, routing.ControlCommand,
		"device/led/stop-103/route-22", []byte(`{"status":"BLINK","duration":0.2,"interval":0.05}`))

	waitFor(t, func() bool {
		for _, w := range f.conn.Writes() {
			if w.Pin == 27 && w.High {
				return true
			}
		}
		return false
	}, "blink never touched the LED")
}

func TestControlCommandUnknownStatus(t *testing.T) {
	f := newStopFixture(t)

	deliver(t, f.bridge, routing.ControlCommand,
		"device/led/stop-103/route-10", []byte(`{"status":"PURPLE"}`))

	if got := len(f.conn.Writes()); got != 0 {
		t.Errorf("writes = %d, want 0", got)
	}
	if got := f.track.Snapshot().Counts.CommandsReceived; got != 1 {
		t.Errorf("commands = %d, want 1", got)
	}
}

func TestControlCommandMalformedPayload(t *testing.T) {
	f := newStopFixture(t)
	f.bridge.HandleMessage("device/led/stop-103/route-10", []byte(`not json`))
	f.bridge.HandleMessage("device/led/stop-103/route-99", []byte(`{"status":"ON"}`))

	// Neither message may reach the scheduler or the counters.
	deliver(t, f.bridge, routing.HealthCheck, "system/health", []byte(`{}`))
	if got := f.track.Snapshot().Counts.CommandsReceived; got != 0 {
		t.Errorf("commands = %d, want 0", got)
	}
	if got := len(f.conn.Writes()); got != 0 {
		t.Errorf("writes = %d, want 0", got)
	}
}

func TestUnrecognizedTopicDropped(t *testing.T) {
	f := newStopFixture(t)
	var called bool
	f.bridge.RegisterCallback(routing.ControlCommand, func(routing.Event) { called = true })

	f.bridge.HandleMessage("some/other/topic", []byte(`{}`))

	deliver(t, f.bridge, routing.HealthCheck, "system/health", []byte(`{}`))
	if called {
		t.Error("unrecognized topic reached a callback")
	}
}

func TestVehicleStopCallFeedback(t *testing.T) {
	conn := gpio.NewFake()
	for _, pin := range []int{6, 13} {
		if err := conn.RequestOutput(pin); err != nil {
			t.Fatal(err)
		}
	}
	sched := feedback.New(conn, logging.Discard())
	track := status.NewTracker("bus", "bus-7", time.Now(), status.Config{})
	b := New(Options{
		NotifyLEDPin: 6,
		BuzzerPin:    13,
		Debounce:     300 * time.Millisecond,
		Publisher:    &fakePublisher{},
		Scheduler:    sched,
		Router:       routing.New(routing.Config{RouteID: "route-10"}),
		Tracker:      track,
		Logger:       logging.Discard(),
	})
	b.Start()
	defer func() {
		b.Close()
		sched.Shutdown()
	}()

	var got routing.Event
	handled := make(chan struct{})
	b.RegisterCallback(routing.ButtonPress, func(evt routing.Event) {
		got = evt
		close(handled)
	})

	b.HandleMessage("device/button/stop-103/route-10",
		[]byte(`{"stopId":"stop-103","routeId":"route-10"}`))
	select {
	case <-handled:
	case <-time.After(2 * time.Second):
		t.Fatal("stop call was never dispatched")
	}

	if got.StopID != "stop-103" || got.RouteID != "route-10" {
		t.Errorf("event ids = %s/%s", got.StopID, got.RouteID)
	}
	if got.Payload["stopId"] != "stop-103" {
		t.Errorf("payload = %v", got.Payload)
	}

	waitFor(t, func() bool {
		var led, buzzer bool
		for _, w := range conn.Writes() {
			if w.Pin == 6 && w.High {
				led = true
			}
			if w.Pin == 13 && w.High {
				buzzer = true
			}
		}
		return led && buzzer
	}, "notify LED and buzzer never fired")

	if got := track.Snapshot().Counts.CallsReceived; got != 1 {
		t.Errorf("calls received = %d, want 1", got)
	}
}

func TestVehicleIgnoresOtherRoutes(t *testing.T) {
	b := New(Options{
		NotifyLEDPin: 6,
		Debounce:     time.Millisecond,
		Publisher:    &fakePublisher{},
		Scheduler:    feedback.New(gpio.NewFake(), logging.Discard()),
		Router:       routing.New(routing.Config{RouteID: "route-10"}),
		Logger:       logging.Discard(),
	})
	b.Start()
	defer b.Close()

	var called bool
	b.RegisterCallback(routing.ButtonPress, func(routing.Event) { called = true })
	b.HandleMessage("device/button/stop-103/route-99", []byte(`{}`))

	deliver(t, b, routing.HealthCheck, "system/health", []byte(`{}`))
	if called {
		t.Error("other route's call reached the callback")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	f := newStopFixture(t)
	f.bridge.Close()
	f.bridge.Close()
	f.bridge.HandleMessage("system/health", []byte(`{}`))
}
