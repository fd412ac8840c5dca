package routing

import "fmt"

// TopicSystemHealth is the fixed system health check topic shared by all
// devices.
const TopicSystemHealth = "system/health"

// ButtonPressTopic returns the topic a stop publishes a button call on.
//
// Example: device/button/STOP001/100
func ButtonPressTopic(stopID, routeID string) string {
	return fmt.Sprintf("device/button/%s/%s", stopID, routeID)
}

// ButtonWildcard returns the pattern a vehicle subscribes to for calls
// from any stop on any route. The router filters to its own route.
func ButtonWildcard() string {
	return "device/button/+/+"
}

// LEDControlTopic returns the topic the backend uses to drive one stop
// LED.
//
// Example: device/led/STOP001/100
func LEDControlTopic(stopID, routeID string) string {
	return fmt.Sprintf("device/led/%s/%s", stopID, routeID)
}

// LEDControlWildcard returns the pattern a stop subscribes to for LED
// commands on any of its routes.
func LEDControlWildcard(stopID string) string {
	return fmt.Sprintf("device/led/%s/+", stopID)
}

// StopStatusTopic returns the retained presence topic for a stop.
func StopStatusTopic(stopID string) string {
	return fmt.Sprintf("device/status/%s", stopID)
}

// BusStatusTopic returns the retained presence topic for a vehicle.
func BusStatusTopic(busID string) string {
	return fmt.Sprintf("bus/status/%s", busID)
}

// BusLocationTopic returns the topic a vehicle publishes its position on.
func BusLocationTopic(busID string) string {
	return fmt.Sprintf("bus/location/%s", busID)
}
