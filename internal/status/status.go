// Package status provides a thread-safe status tracker for the device
// daemons. It is read by the HTTP status page.
package status

import (
	"sort"
	"sync"
	"time"
)

// ChannelStatus is the observable state of one route channel.
type ChannelStatus struct {
	ID      string
	Name    string
	LED     bool
	Pressed bool
}

// Counts tracks event totals since startup.
type Counts struct {
	CallsSent        int
	CallsFailed      int
	CommandsReceived int
	CallsReceived    int
}

// Config contains daemon configuration for display.
type Config struct {
	Broker      string
	DebounceMs  int64
	HeartbeatMs int64
	HTTPAddr    string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Role      string
	DeviceID  string
	Channels  []ChannelStatus
	Connected bool
	Counts    Counts
	StartTime time.Time
	Now       time.Time
	Config    Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu        sync.RWMutex
	role      string
	deviceID  string
	channels  map[string]ChannelStatus
	connected bool
	counts    Counts
	startTime time.Time
	cfg       Config
}

// NewTracker creates a Tracker for one device.
func NewTracker(role, deviceID string, startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		role:      role,
		deviceID:  deviceID,
		channels:  make(map[string]ChannelStatus),
		startTime: startTime,
		cfg:       cfg,
	}
}

// SetChannel registers or updates a channel's display name.
func (t *Tracker) SetChannel(id, name string) {
	t.mu.Lock()
	ch := t.channels[id]
	ch.ID = id
	ch.Name = name
	t.channels[id] = ch
	t.mu.Unlock()
}

// UpdateChannel sets a channel's LED and pressed state.
func (t *Tracker) UpdateChannel(id string, led, pressed bool) {
	t.mu.Lock()
	ch, ok := t.channels[id]
	if !ok {
		ch = ChannelStatus{ID: id}
	}
	ch.LED = led
	ch.Pressed = pressed
	t.channels[id] = ch
	t.mu.Unlock()
}

// SetConnected sets the broker connection status.
func (t *Tracker) SetConnected(connected bool) {
	t.mu.Lock()
	t.connected = connected
	t.mu.Unlock()
}

// IncCallsSent counts one successfully published button call.
func (t *Tracker) IncCallsSent() {
	t.mu.Lock()
	t.counts.CallsSent++
	t.mu.Unlock()
}

// IncCallsFailed counts one dropped or rejected button call.
func (t *Tracker) IncCallsFailed() {
	t.mu.Lock()
	t.counts.CallsFailed++
	t.mu.Unlock()
}

// IncCommandsReceived counts one inbound LED control command.
func (t *Tracker) IncCommandsReceived() {
	t.mu.Lock()
	t.counts.CommandsReceived++
	t.mu.Unlock()
}

// IncCallsReceived counts one inbound stop call notification.
func (t *Tracker) IncCallsReceived() {
	t.mu.Lock()
	t.counts.CallsReceived++
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state, with Now
// set at the moment of the call and channels ordered by id.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	snap := Snapshot{
		Role:      t.role,
		DeviceID:  t.deviceID,
		Connected: t.connected,
		Counts:    t.counts,
		StartTime: t.startTime,
		Config:    t.cfg,
	}
	for _, ch := range t.channels {
		snap.Channels = append(snap.Channels, ch)
	}
	t.mu.RUnlock()

	sort.Slice(snap.Channels, func(i, j int) bool {
		return snap.Channels[i].ID < snap.Channels[j].ID
	})
	snap.Now = time.Now()
	return snap
}
