package gpio

import (
	"fmt"
	"sync"
	"time"
)

// Write records a single output write for test assertions.
type WriteRecord struct {
	Pin  int
	High bool
}

// Fake is an in-memory Conn. It backs tests and hardware-free
// development runs: writes are recorded, and edges are injected
// manually with Press.
type Fake struct {
	mu      sync.Mutex
	outputs map[int]bool
	inputs  map[int]EdgeFunc
	writes  []WriteRecord
	closed  bool

	// WriteError, if set, is returned by Write.
	WriteError error
}

// NewFake creates an empty Fake.
func NewFake() *Fake {
	return &Fake{
		outputs: make(map[int]bool),
		inputs:  make(map[int]EdgeFunc),
	}
}

// RequestOutput claims a pin as an output, initially low.
func (f *Fake) RequestOutput(pin int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.outputs[pin]; ok {
		return fmt.Errorf("pin %d already requested", pin)
	}
	if _, ok := f.inputs[pin]; ok {
		return fmt.Errorf("pin %d already requested", pin)
	}
	f.outputs[pin] = false
	return nil
}

// RequestInput claims a pin as an input with the given edge handler.
func (f *Fake) RequestInput(pin int, fn EdgeFunc) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.outputs[pin]; ok {
		return fmt.Errorf("pin %d already requested", pin)
	}
	if _, ok := f.inputs[pin]; ok {
		return fmt.Errorf("pin %d already requested", pin)
	}
	f.inputs[pin] = fn
	return nil
}

// Write records and applies an output write.
func (f *Fake) Write(pin int, high bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WriteError != nil {
		return f.WriteError
	}
	if _, ok := f.outputs[pin]; !ok {
		return fmt.Errorf("pin %d is not an output", pin)
	}
	f.outputs[pin] = high
	f.writes = append(f.writes, WriteRecord{Pin: pin, High: high})
	return nil
}

// Read returns the last state written to an output pin.
func (f *Fake) Read(pin int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	state, ok := f.outputs[pin]
	if !ok {
		return false, fmt.Errorf("pin %d is not an output", pin)
	}
	return state, nil
}

// Close marks the connection closed.
func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Press injects a falling edge on an input pin, invoking its handler
// synchronously. No-op if the pin has no handler.
func (f *Fake) Press(pin int, at time.Time) {
	f.mu.Lock()
	fn := f.inputs[pin]
	f.mu.Unlock()
	if fn != nil {
		fn(pin, at)
	}
}

// Writes returns a copy of all recorded output writes.
func (f *Fake) Writes() []WriteRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]WriteRecord, len(f.writes))
	copy(out, f.writes)
	return out
}

// Closed reports whether Close was called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Reset clears recorded writes and output states.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = nil
	for pin := range f.outputs {
		f.outputs[pin] = false
	}
	f.closed = false
}
