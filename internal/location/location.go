// Package location publishes periodic vehicle position reports. The
// device has no GPS receiver, so positions come from a Source; the
// simulated source drifts around a configured origin.
package location

import (
	"encoding/json"
	"math/rand"
	"time"

	"github.com/iamfiro/mqtt-bus/internal/logging"
	"github.com/iamfiro/mqtt-bus/internal/routing"
)

// Fix is one position report.
type Fix struct {
	Latitude  float64
	Longitude float64
	Speed     float64
	Heading   float64
}

// Source produces position fixes.
type Source interface {
	Fix() Fix
}

// report is the wire form of a location message.
type report struct {
	BusID     string  `json:"busId"`
	RouteID   string  `json:"routeId"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Speed     float64 `json:"speed"`
	Heading   float64 `json:"heading"`
	Timestamp string  `json:"timestamp"`
}

// Sender is the outbound side of the broker session.
type Sender interface {
	Publish(topic string, payload []byte, qos byte, retain bool) bool
}

// Publisher periodically publishes the vehicle's position.
type Publisher struct {
	busID   string
	routeID string
	source  Source
	sender  Sender
	log     *logging.Logger

	now func() time.Time
}

// New creates a Publisher.
func New(busID, routeID string, source Source, sender Sender, log *logging.Logger) *Publisher {
	return &Publisher{
		busID:   busID,
		routeID: routeID,
		source:  source,
		sender:  sender,
		log:     log.With("component", "location"),
		now:     time.Now,
	}
}

// Run publishes one report per tick until stop is closed. Reports are
// fire-and-forget; a drop while disconnected is logged by the session.
func (p *Publisher) Run(tick <-chan time.Time, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case at := <-tick:
			p.publish(at)
		}
	}
}

func (p *Publisher) publish(at time.Time) {
	fix := p.source.Fix()
	payload, err := json.Marshal(report{
		BusID:     p.busID,
		RouteID:   p.routeID,
		Latitude:  fix.Latitude,
		Longitude: fix.Longitude,
		Speed:     fix.Speed,
		Heading:   fix.Heading,
		Timestamp: at.UTC().Format(time.RFC3339),
	})
	if err != nil {
		p.log.Error("encode location report", "error", err)
		return
	}
	p.sender.Publish(routing.BusLocationTopic(p.busID), payload, 0, false)
}

// Simulated wanders around an origin point. Not safe for concurrent
// use; the Publisher calls it from a single goroutine.
type Simulated struct {
	lat, lon float64
	heading  float64
	rng      *rand.Rand
}

// NewSimulated creates a Simulated source starting at the origin.
func NewSimulated(lat, lon float64, seed int64) *Simulated {
	return &Simulated{
		lat: lat,
		lon: lon,
		rng: rand.New(rand.NewSource(seed)),
	}
}

// Fix advances the simulated vehicle by a small random step.
func (s *Simulated) Fix() Fix {
	s.heading += (s.rng.Float64() - 0.5) * 30
	for s.heading < 0 {
		s.heading += 360
	}
	for s.heading >= 360 {
		s.heading -= 360
	}
	s.lat += (s.rng.Float64() - 0.5) * 0.0005
	s.lon += (s.rng.Float64() - 0.5) * 0.0005

	return Fix{
		Latitude:  s.lat,
		Longitude: s.lon,
		Speed:     20 + s.rng.Float64()*20,
		Heading:   s.heading,
	}
}
