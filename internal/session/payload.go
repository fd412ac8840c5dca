package session

import (
	"encoding/json"
	"time"
)

// Status carries the role-specific identity fields of the retained
// presence message. Unset fields stay off the wire.
type Status struct {
	BusID    string   `json:"busId,omitempty"`
	StopID   string   `json:"stopId,omitempty"`
	StopName string   `json:"stopName,omitempty"`
	RouteID  string   `json:"routeId,omitempty"`
	Routes   []string `json:"routes,omitempty"`
}

// statusPayload is the wire form of a presence message.
type statusPayload struct {
	Status
	State     string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// Payload renders the presence message for the given state ("online" or
// "offline") at the given time.
func (s Status) Payload(state string, now time.Time) []byte {
	data, _ := json.Marshal(statusPayload{
		Status:    s,
		State:     state,
		Timestamp: now.UTC().Format(time.RFC3339),
	})
	return data
}
