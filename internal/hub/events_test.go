package hub

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestEventBusEmitOn(t *testing.T) {
	eb := NewEventBus(testLogger())
	var received Event

	eb.On(EventState, func(e Event) {
		received = e
	})

	eb.Emit(Event{Type: EventState, Data: "test"})

	if received.Type != EventState {
		t.Errorf("type = %q, want %q", received.Type, EventState)
	}
	if received.Data != "test" {
		t.Errorf("data = %v, want %q", received.Data, "test")
	}
}

func TestEventBusOnDoesNotReceiveOtherTypes(t *testing.T) {
	eb := NewEventBus(testLogger())
	called := false

	eb.On(EventDeviceInterview, func(e Event) {
		called = true
	})

	eb.Emit(Event{Type: EventDeviceLeft})

	if called {
		t.Error("handler called for wrong event type")
	}
}

func TestEventBusOnAllAndUnsubscribe(t *testing.T) {
	eb := NewEventBus(testLogger())
	var all, one atomic.Int32

	unsubAll := eb.OnAll(func(e Event) { all.Add(1) })
	unsub := eb.On(EventMessage, func(e Event) { one.Add(1) })

	eb.Emit(Event{Type: EventMessage})
	eb.Emit(Event{Type: EventState})
	if all.Load() != 2 || one.Load() != 1 {
		t.Fatalf("calls = %d/%d, want 2/1", all.Load(), one.Load())
	}

	unsub()
	unsubAll()
	eb.Emit(Event{Type: EventMessage})
	if all.Load() != 2 || one.Load() != 1 {
		t.Errorf("calls after unsubscribe = %d/%d, want 2/1", all.Load(), one.Load())
	}
}

func TestEventBusPanicRecovery(t *testing.T) {
	eb := NewEventBus(testLogger())
	var called atomic.Int32

	eb.On(EventState, func(e Event) {
		called.Add(1)
		panic("test panic")
	})
	eb.On(EventState, func(e Event) {
		called.Add(1)
	})

	eb.Emit(Event{Type: EventState})

	if c := called.Load(); c != 2 {
		t.Errorf("expected 2 handlers called, got %d", c)
	}
}

func TestEventBusConcurrentEmit(t *testing.T) {
	eb := NewEventBus(testLogger())
	var count atomic.Int32

	eb.OnAll(func(e Event) {
		count.Add(1)
	})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			eb.Emit(Event{Type: EventPropertyUpdate})
		}()
	}
	wg.Wait()

	if count.Load() != 100 {
		t.Errorf("got %d, want 100", count.Load())
	}
}
