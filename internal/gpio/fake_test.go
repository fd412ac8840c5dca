package gpio

import (
	"errors"
	"testing"
	"time"
)

func TestFakeOutputs(t *testing.T) {
	f := NewFake()
	if err := f.RequestOutput(19); err != nil {
		t.Fatalf("request output: %v", err)
	}

	state, err := f.Read(19)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if state {
		t.Error("fresh output should be low")
	}

	if err := f.Write(19, true); err != nil {
		t.Fatalf("write: %v", err)
	}
	state, _ = f.Read(19)
	if !state {
		t.Error("output should be high after Write(true)")
	}

	writes := f.Writes()
	if len(writes) != 1 || writes[0].Pin != 19 || !writes[0].High {
		t.Errorf("unexpected write records: %+v", writes)
	}
}

func TestFakeUnknownPin(t *testing.T) {
	f := NewFake()
	if err := f.Write(7, true); err == nil {
		t.Error("expected error writing unrequested pin")
	}
	if _, err := f.Read(7); err == nil {
		t.Error("expected error reading unrequested pin")
	}
}

func TestFakeDoubleRequest(t *testing.T) {
	f := NewFake()
	if err := f.RequestOutput(5); err != nil {
		t.Fatalf("request output: %v", err)
	}
	if err := f.RequestOutput(5); err == nil {
		t.Error("expected error on second request of same pin")
	}
	if err := f.RequestInput(5, nil); err == nil {
		t.Error("expected error requesting output pin as input")
	}
}

func TestFakePress(t *testing.T) {
	f := NewFake()
	var gotPin int
	var gotAt time.Time
	err := f.RequestInput(18, func(pin int, at time.Time) {
		gotPin = pin
		gotAt = at
	})
	if err != nil {
		t.Fatalf("request input: %v", err)
	}

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	f.Press(18, at)
	if gotPin != 18 {
		t.Errorf("handler pin: got %d", gotPin)
	}
	if !gotAt.Equal(at) {
		t.Errorf("handler time: got %v", gotAt)
	}

	// Press on an unwatched pin must not panic.
	f.Press(99, at)
}

func TestFakeWriteError(t *testing.T) {
	f := NewFake()
	f.RequestOutput(13)
	f.WriteError = errors.New("boom")
	if err := f.Write(13, true); err == nil {
		t.Error("expected injected write error")
	}
}
