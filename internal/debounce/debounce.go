// Package debounce filters spurious rapid edge events per input channel.
// Time is always injectable; the package never reads the clock itself.
package debounce

import (
	"sync"
	"time"
)

// Filter accepts at most one edge per channel within the window.
type Filter struct {
	window time.Duration

	mu   sync.Mutex
	last map[string]time.Time
}

// New creates a Filter with the given window.
func New(window time.Duration) *Filter {
	return &Filter{
		window: window,
		last:   make(map[string]time.Time),
	}
}

// OnEdge reports whether the edge at now should be accepted. The stored
// timestamp moves only on acceptance, so a burst of bounces inside the
// window is collapsed to the first edge.
func (f *Filter) OnEdge(channelID string, now time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	prev, seen := f.last[channelID]
	if seen && now.Sub(prev) < f.window {
		return false
	}
	f.last[channelID] = now
	return true
}
