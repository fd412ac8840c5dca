// Package feedback drives timed LED and buzzer patterns without blocking
// the caller. Each output pin has at most one running timeline; starting
// a new pattern on a pin cancels the previous one, so the final state of
// the pin is decided by the latest request.
package feedback

import (
	"context"
	"sync"
	"time"

	"github.com/iamfiro/mqtt-bus/internal/logging"
)

// Kind selects the animation played on an output pin.
type Kind string

const (
	SteadyOn  Kind = "STEADY_ON"
	SteadyOff Kind = "STEADY_OFF"
	Blink     Kind = "BLINK"
	BeepBurst Kind = "BEEP_BURST"
)

// beepGap is the pause between buzzer pulses.
const beepGap = 50 * time.Millisecond

// Pattern is one timed animation request.
type Pattern struct {
	Pin  int
	Kind Kind

	// Duration is the total blink time, or the length of one beep pulse.
	Duration time.Duration
	// Interval is the blink half-period.
	Interval time.Duration
	// Repeat is the number of beep pulses.
	Repeat int
}

// Writer is the subset of the GPIO capability the scheduler drives.
// Write failures are logged and absorbed; feedback is best effort.
type Writer interface {
	Write(pin int, high bool) error
	Read(pin int) (bool, error)
}

// Scheduler runs patterns, one timeline per pin.
type Scheduler struct {
	conn Writer
	log  *logging.Logger

	root       context.Context
	cancelRoot context.CancelFunc

	mu      sync.Mutex
	running map[int]*timeline
	wg      sync.WaitGroup
	closed  bool
}

// timeline identifies one running animation so a finished goroutine only
// clears its own registration, never a successor's. done is closed when
// the goroutine has exited and can no longer write.
type timeline struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Scheduler writing through conn.
func New(conn Writer, log *logging.Logger) *Scheduler {
	root, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		conn:       conn,
		log:        log,
		root:       root,
		cancelRoot: cancel,
		running:    make(map[int]*timeline),
	}
}

// Play starts the pattern's timeline and returns once any predecessor on
// the same pin has fully stopped. The predecessor is cancelled and joined
// before the first write, so a stale timeline can never write over the
// new pattern. Steady writes are applied synchronously so a read
// immediately after Play sees the state.
func (s *Scheduler) Play(p Pattern) {
	if !s.evict(p.Pin) {
		return
	}

	switch p.Kind {
	case SteadyOn, SteadyOff:
		s.write(p.Pin, p.Kind == SteadyOn)
		return
	}

	ctx, cancel := context.WithCancel(s.root)
	tl := &timeline{cancel: cancel, done: make(chan struct{})}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		close(tl.done)
		return
	}
	s.running[p.Pin] = tl
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer close(tl.done)
		defer s.clear(p.Pin, tl)

		switch p.Kind {
		case Blink:
			s.blink(ctx, p)
		case BeepBurst:
			s.beep(ctx, p)
		default:
			s.log.Warn("unknown feedback kind", "kind", string(p.Kind))
		}
	}()
}

// Stop cancels the timeline running on a pin, if any, and waits for it to
// exit. The pin is left in whatever state the timeline last wrote.
func (s *Scheduler) Stop(pin int) {
	s.evict(pin)
}

// evict cancels and joins the timeline registered on a pin. The join
// happens outside the lock; the exiting goroutine needs it to clear
// itself. Returns false when the scheduler is closed.
func (s *Scheduler) evict(pin int) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	tl, ok := s.running[pin]
	if ok {
		delete(s.running, pin)
	}
	s.mu.Unlock()

	if ok {
		tl.cancel()
		<-tl.done
	}
	return true
}

// Shutdown cancels every running timeline and waits for them to exit.
// Cancelled timelines do not restore prior state.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancelRoot()
	s.wg.Wait()
}

// Read returns the last state written to a pin.
func (s *Scheduler) Read(pin int) (bool, error) {
	return s.conn.Read(pin)
}

// Wait blocks until all currently running timelines finish. Test helper.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// blink alternates the pin until the duration elapses, then restores the
// state the pin had before the pattern started.
func (s *Scheduler) blink(ctx context.Context, p Pattern) {
	prior, err := s.conn.Read(p.Pin)
	if err != nil {
		s.log.Warn("feedback read failed", "pin", p.Pin, "error", err)
	}

	end := time.Now().Add(p.Duration)
	for time.Now().Before(end) {
		s.write(p.Pin, true)
		if !sleep(ctx, p.Interval) {
			return
		}
		s.write(p.Pin, false)
		if !sleep(ctx, p.Interval) {
			return
		}
	}
	s.write(p.Pin, prior)
}

// beep pulses the buzzer Repeat times and leaves it silent.
func (s *Scheduler) beep(ctx context.Context, p Pattern) {
	for i := 0; i < p.Repeat; i++ {
		s.write(p.Pin, true)
		if !sleep(ctx, p.Duration) {
			s.write(p.Pin, false)
			return
		}
		s.write(p.Pin, false)
		if !sleep(ctx, beepGap) {
			return
		}
	}
}

// clear removes the pin's registration if this timeline still owns it.
func (s *Scheduler) clear(pin int, tl *timeline) {
	s.mu.Lock()
	if current, ok := s.running[pin]; ok && current == tl {
		delete(s.running, pin)
	}
	s.mu.Unlock()
}

func (s *Scheduler) write(pin int, high bool) {
	if err := s.conn.Write(pin, high); err != nil {
		s.log.Warn("feedback write failed", "pin", pin, "high", high, "error", err)
	}
}

// sleep waits for d or until the context is cancelled. Returns false on
// cancellation.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
