package debounce

import (
	"testing"
	"time"
)

func TestFirstEdgeAccepted(t *testing.T) {
	f := New(300 * time.Millisecond)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	if !f.OnEdge("1", now) {
		t.Error("first edge should be accepted")
	}
}

func TestBounceSuppressed(t *testing.T) {
	f := New(300 * time.Millisecond)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	if !f.OnEdge("1", now) {
		t.Fatal("first edge should be accepted")
	}

	// A burst of bounces inside the window: none accepted.
	accepted := 0
	for _, offset := range []time.Duration{
		10 * time.Millisecond,
		50 * time.Millisecond,
		299 * time.Millisecond,
	} {
		if f.OnEdge("1", now.Add(offset)) {
			accepted++
		}
	}
	if accepted != 0 {
		t.Errorf("expected 0 accepted bounces, got %d", accepted)
	}

	// Exactly at the window boundary: accepted.
	if !f.OnEdge("1", now.Add(300*time.Millisecond)) {
		t.Error("edge at window boundary should be accepted")
	}
}

func TestRejectedEdgeLeavesTimestamp(t *testing.T) {
	f := New(300 * time.Millisecond)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	f.OnEdge("1", now)
	f.OnEdge("1", now.Add(200*time.Millisecond)) // rejected

	// Window is measured from the accepted edge, not the rejected one:
	// 350ms after the first edge is past the window even though only
	// 150ms have passed since the bounce.
	if !f.OnEdge("1", now.Add(350*time.Millisecond)) {
		t.Error("rejected edge must not extend the window")
	}
}

func TestChannelsIndependent(t *testing.T) {
	f := New(300 * time.Millisecond)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	if !f.OnEdge("1", now) {
		t.Fatal("channel 1 first edge")
	}
	if !f.OnEdge("2", now.Add(10*time.Millisecond)) {
		t.Error("channel 2 must not be affected by channel 1's timestamp")
	}
}
