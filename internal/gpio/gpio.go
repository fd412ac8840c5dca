// Package gpio provides GPIO access with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing and hardware-free runs.
package gpio

import "time"

// EdgeFunc is called when a watched input pin sees a falling edge
// (button press against a pull-up). Called from the driver's event
// goroutine; implementations must not block.
type EdgeFunc func(pin int, at time.Time)

// Conn drives output lines and delivers input edge events.
type Conn interface {
	// RequestOutput claims a pin as an output, initially low.
	RequestOutput(pin int) error

	// RequestInput claims a pin as a pulled-up input and delivers
	// falling-edge events to fn.
	RequestInput(pin int, fn EdgeFunc) error

	// Write sets an output pin high or low.
	Write(pin int, high bool) error

	// Read returns the last state written to an output pin.
	Read(pin int) (bool, error)

	// Close releases all claimed lines.
	Close() error
}
