//go:build !linux

package gpio

import "errors"

// Real is not available on non-Linux platforms.
type Real struct{}

// NewReal returns an error on non-Linux platforms. Use the fake driver
// for development runs.
func NewReal(chipName string) (*Real, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

func (r *Real) RequestOutput(pin int) error             { return errors.New("gpio: not supported") }
func (r *Real) RequestInput(pin int, fn EdgeFunc) error { return errors.New("gpio: not supported") }
func (r *Real) Write(pin int, high bool) error          { return errors.New("gpio: not supported") }
func (r *Real) Read(pin int) (bool, error)              { return false, errors.New("gpio: not supported") }
func (r *Real) Close() error                            { return nil }
