//go:build linux

package gpio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// Real drives actual hardware through the Linux GPIO character device.
type Real struct {
	chip *gpiocdev.Chip

	mu      sync.Mutex
	lines   map[int]*gpiocdev.Line
	outputs map[int]bool // last written state per output pin
}

// NewReal opens the named GPIO chip (e.g. "gpiochip0").
func NewReal(chipName string) (*Real, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	return &Real{
		chip:    chip,
		lines:   make(map[int]*gpiocdev.Line),
		outputs: make(map[int]bool),
	}, nil
}

// RequestOutput claims a pin as an output, initially low.
func (r *Real) RequestOutput(pin int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.lines[pin]; ok {
		return fmt.Errorf("pin %d already requested", pin)
	}
	line, err := r.chip.RequestLine(pin, gpiocdev.AsOutput(0))
	if err != nil {
		return fmt.Errorf("request output pin %d: %w", pin, err)
	}
	r.lines[pin] = line
	r.outputs[pin] = false
	return nil
}

// RequestInput claims a pin as a pulled-up input watching falling edges.
// Buttons short the pin to ground, so a press arrives as a falling edge.
func (r *Real) RequestInput(pin int, fn EdgeFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.lines[pin]; ok {
		return fmt.Errorf("pin %d already requested", pin)
	}
	line, err := r.chip.RequestLine(pin,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithFallingEdge,
		gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
			fn(evt.Offset, time.Now())
		}))
	if err != nil {
		return fmt.Errorf("request input pin %d: %w", pin, err)
	}
	r.lines[pin] = line
	return nil
}

// Write sets an output pin.
func (r *Real) Write(pin int, high bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	line, ok := r.lines[pin]
	if !ok {
		return fmt.Errorf("pin %d not requested", pin)
	}
	if _, isOut := r.outputs[pin]; !isOut {
		return fmt.Errorf("pin %d is not an output", pin)
	}
	v := 0
	if high {
		v = 1
	}
	if err := line.SetValue(v); err != nil {
		return fmt.Errorf("write pin %d: %w", pin, err)
	}
	r.outputs[pin] = high
	return nil
}

// Read returns the last state written to an output pin.
func (r *Real) Read(pin int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.outputs[pin]
	if !ok {
		return false, fmt.Errorf("pin %d is not an output", pin)
	}
	return state, nil
}

// Close drives all outputs low and releases the lines and the chip.
// Reconfiguring inputs back to plain inputs matches Pi boot defaults so
// external modules see a clean state across restarts.
func (r *Real) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for pin, line := range r.lines {
		if _, isOut := r.outputs[pin]; isOut {
			if err := line.SetValue(0); err != nil {
				errs = append(errs, fmt.Errorf("clear pin %d: %w", pin, err))
			}
		} else {
			if err := line.Reconfigure(gpiocdev.AsInput); err != nil {
				errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", pin, err))
			}
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin %d: %w", pin, err))
		}
	}
	r.lines = make(map[int]*gpiocdev.Line)
	if err := r.chip.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close chip: %w", err))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
