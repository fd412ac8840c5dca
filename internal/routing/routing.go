// Package routing maps inbound topic strings to logical events and
// extracts the identifiers embedded in topic segments. Route is a pure
// function; malformed payloads degrade to their raw form, never to an
// error.
package routing

import (
	"encoding/json"
	"strings"
)

// EventType classifies an inbound message.
type EventType string

const (
	// ButtonPress is a stop call the vehicle should announce.
	ButtonPress EventType = "BUTTON_PRESS"
	// ControlCommand drives a stop LED from the backend.
	ControlCommand EventType = "CONTROL_COMMAND"
	// HealthCheck is the shared system health ping.
	HealthCheck EventType = "HEALTH_CHECK"
	// Unrecognized topics are dropped by the bridge.
	Unrecognized EventType = "UNRECOGNIZED"
)

// Event is the result of routing one inbound message.
type Event struct {
	Type  EventType
	Topic string

	// Identifiers extracted from topic segments, when present.
	StopID  string
	RouteID string

	// Payload holds the decoded JSON object, nil if the payload was not
	// a JSON object. Raw always holds the original bytes.
	Payload map[string]any
	Raw     []byte
}

// Config fixes the patterns one device instance routes on. Empty fields
// disable their rule, so each role configures only what it subscribes to.
type Config struct {
	// RouteID accepts button presses whose trailing topic segment equals
	// this device's route.
	RouteID string
	// StopID accepts LED commands addressed to this stop.
	StopID string
}

// Router routes inbound messages for one device.
type Router struct {
	cfg Config
}

// New creates a Router.
func New(cfg Config) *Router {
	return &Router{cfg: cfg}
}

// Route classifies a message by topic and decodes its payload.
//
// Topic namespaces are disjoint by construction, so the rules are checked
// in order of specificity without runtime ambiguity.
func (r *Router) Route(topic string, payload []byte) Event {
	evt := Event{Type: Unrecognized, Topic: topic, Raw: payload}
	evt.Payload = decodePayload(payload)

	if topic == TopicSystemHealth {
		evt.Type = HealthCheck
		return evt
	}

	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != "device" {
		return evt
	}

	switch parts[1] {
	case "button":
		// device/button/{stopId}/{routeId}, filtered to our route.
		if r.cfg.RouteID != "" && parts[3] == r.cfg.RouteID {
			evt.Type = ButtonPress
			evt.StopID = parts[2]
			evt.RouteID = parts[3]
		}
	case "led":
		// device/led/{stopId}/{routeId}, addressed to this stop.
		if r.cfg.StopID != "" && parts[2] == r.cfg.StopID {
			evt.Type = ControlCommand
			evt.RouteID = parts[3]
		}
	}
	return evt
}

// decodePayload parses JSON objects; anything else stays raw-only.
func decodePayload(payload []byte) map[string]any {
	var m map[string]any
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil
	}
	return m
}
