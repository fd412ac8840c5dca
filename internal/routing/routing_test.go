package routing

import (
	"testing"
)

func TestRouteButtonPress(t *testing.T) {
	r := New(Config{RouteID: "100"})

	evt := r.Route("device/button/STOP1/100", []byte(`{"stopId":"STOP1"}`))
	if evt.Type != ButtonPress {
		t.Fatalf("type: got %s, want %s", evt.Type, ButtonPress)
	}
	if evt.StopID != "STOP1" {
		t.Errorf("stop id: got %q", evt.StopID)
	}
	if evt.RouteID != "100" {
		t.Errorf("route id: got %q", evt.RouteID)
	}
	if evt.Payload["stopId"] != "STOP1" {
		t.Errorf("payload: got %v", evt.Payload)
	}
}

func TestRouteButtonPressWrongRoute(t *testing.T) {
	r := New(Config{RouteID: "200"})

	evt := r.Route("device/button/STOP1/100", []byte(`{}`))
	if evt.Type != Unrecognized {
		t.Errorf("non-matching route id should be unrecognized, got %s", evt.Type)
	}
}

func TestRouteControlCommand(t *testing.T) {
	r := New(Config{StopID: "STOP001"})

	evt := r.Route("device/led/STOP001/2", []byte(`{"status":"ON"}`))
	if evt.Type != ControlCommand {
		t.Fatalf("type: got %s", evt.Type)
	}
	if evt.RouteID != "2" {
		t.Errorf("route id: got %q", evt.RouteID)
	}
	if evt.Payload["status"] != "ON" {
		t.Errorf("payload: got %v", evt.Payload)
	}
}

func TestRouteControlCommandOtherStop(t *testing.T) {
	r := New(Config{StopID: "STOP001"})

	evt := r.Route("device/led/STOP999/2", []byte(`{"status":"ON"}`))
	if evt.Type != Unrecognized {
		t.Errorf("another stop's command should be unrecognized, got %s", evt.Type)
	}
}

func TestRouteHealthCheck(t *testing.T) {
	r := New(Config{RouteID: "100", StopID: "STOP001"})

	evt := r.Route("system/health", []byte(`{"check":1}`))
	if evt.Type != HealthCheck {
		t.Errorf("type: got %s", evt.Type)
	}
}

func TestRouteUnrecognized(t *testing.T) {
	r := New(Config{RouteID: "100", StopID: "STOP001"})

	for _, topic := range []string{
		"bus/location/BUS042",
		"device/button/STOP1",          // too few segments
		"device/button/STOP1/100/more", // too many segments
		"other/button/STOP1/100",
		"",
	} {
		if evt := r.Route(topic, nil); evt.Type != Unrecognized {
			t.Errorf("topic %q: got %s, want %s", topic, evt.Type, Unrecognized)
		}
	}
}

func TestRouteMalformedPayload(t *testing.T) {
	r := New(Config{RouteID: "100"})

	raw := []byte("not json at all")
	evt := r.Route("device/button/STOP1/100", raw)
	if evt.Type != ButtonPress {
		t.Fatalf("malformed payload must not change routing, got %s", evt.Type)
	}
	if evt.Payload != nil {
		t.Errorf("payload should be nil for non-JSON, got %v", evt.Payload)
	}
	if string(evt.Raw) != "not json at all" {
		t.Errorf("raw fallback: got %q", evt.Raw)
	}
}

func TestRouteIsPure(t *testing.T) {
	r := New(Config{RouteID: "100"})
	topic := "device/button/STOP1/100"
	payload := []byte(`{"a":1}`)

	first := r.Route(topic, payload)
	second := r.Route(topic, payload)
	if first.Type != second.Type || first.StopID != second.StopID || first.RouteID != second.RouteID {
		t.Error("routing the same input twice must give the same result")
	}
}

func TestTopicBuilders(t *testing.T) {
	tests := []struct {
		got  string
		want string
	}{
		{ButtonPressTopic("STOP1", "100"), "device/button/STOP1/100"},
		{ButtonWildcard(), "device/button/+/+"},
		{LEDControlTopic("STOP1", "2"), "device/led/STOP1/2"},
		{LEDControlWildcard("STOP1"), "device/led/STOP1/+"},
		{StopStatusTopic("STOP1"), "device/status/STOP1"},
		{BusStatusTopic("BUS042"), "bus/status/BUS042"},
		{BusLocationTopic("BUS042"), "bus/location/BUS042"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}
