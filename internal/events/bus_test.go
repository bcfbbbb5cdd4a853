package events

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New()
	received := make(chan DeviceOpenedEvent, 1)

	unsub := bus.Subscribe(func(e DeviceOpenedEvent) {
		received <- e
	})
	defer unsub()

	event := DeviceOpenedEvent{
		Path:      "/dev/input/event3",
		Name:      "AT Translated Set 2 keyboard",
		Timestamp: time.Now(),
	}
	bus.Publish(event)

	select {
	case got := <-received:
		if got.Path != event.Path {
			t.Errorf("Expected path %s, got %s", event.Path, got.Path)
		}
		if got.Name != event.Name {
			t.Errorf("Expected name %s, got %s", event.Name, got.Name)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBus_MultipleSubscribers(t *testing.T) {
	bus := New()
	received1 := make(chan StateChangedEvent, 1)
	received2 := make(chan StateChangedEvent, 1)

	unsub1 := bus.Subscribe(func(e StateChangedEvent) {
		received1 <- e
	})
	defer unsub1()

	unsub2 := bus.Subscribe(func(e StateChangedEvent) {
		received2 <- e
	})
	defer unsub2()

	bus.Publish(StateChangedEvent{On: true})

	for i, ch := range []chan StateChangedEvent{received1, received2} {
		select {
		case e := <-ch:
			if !e.On {
				t.Errorf("subscriber %d: expected On=true", i+1)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d timed out", i+1)
		}
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New()
	received := make(chan LEDFailedEvent, 1)

	unsub := bus.Subscribe(func(e LEDFailedEvent) {
		received <- e
	})

	bus.Publish(LEDFailedEvent{LED: "a::kbd_backlight"})
	<-received

	unsub()

	bus.Publish(LEDFailedEvent{LED: "b::kbd_backlight"})
	select {
	case <-received:
		t.Fatal("Should not have received event after unsubscribe")
	case <-time.After(10 * time.Millisecond):
		// Expected - no event
	}
}

func TestBus_TypeIsolation(t *testing.T) {
	bus := New()
	opened := make(chan DeviceOpenedEvent, 1)
	closed := make(chan DeviceClosedEvent, 1)

	defer bus.Subscribe(func(e DeviceOpenedEvent) { opened <- e })()
	defer bus.Subscribe(func(e DeviceClosedEvent) { closed <- e })()

	bus.Publish(DeviceClosedEvent{Path: "/dev/input/event5", Removed: true, Err: errors.New("gone")})

	select {
	case e := <-closed:
		if !e.Removed || e.Err == nil {
			t.Errorf("unexpected closed event: %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for closed event")
	}

	select {
	case <-opened:
		t.Error("opened handler received a closed event")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestBus_UnknownHandler(t *testing.T) {
	bus := New()
	unsub := bus.Subscribe(func(string) {})
	if unsub == nil {
		t.Fatal("expected non-nil unsubscribe function")
	}
	unsub()
}

func TestBus_Nil(_ *testing.T) {
	var bus *Bus
	bus.Publish(StateChangedEvent{On: true})
	bus.Subscribe(func(StateChangedEvent) {})()
	SubscribeToChannel[StateChangedEvent](bus, make(chan any, 1))()
}

func TestBus_ConcurrentPublish(t *testing.T) {
	bus := New()

	var mu sync.Mutex
	count := 0
	done := make(chan struct{})
	const total = 100

	unsub := bus.Subscribe(func(FadeCompletedEvent) {
		mu.Lock()
		count++
		if count == total {
			close(done)
		}
		mu.Unlock()
	})
	defer unsub()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range total / 10 {
				bus.Publish(FadeCompletedEvent{On: true, Duration: 100 * time.Millisecond})
			}
		}()
	}
	wg.Wait()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		mu.Lock()
		t.Fatalf("received %d of %d events", count, total)
		mu.Unlock()
	}
}

func TestSubscribeToChannel(t *testing.T) {
	bus := New()
	ch := make(chan any, 1)

	unsub := SubscribeToChannel[ConfigReloadedEvent](bus, ch)
	defer unsub()

	bus.Publish(ConfigReloadedEvent{Timeout: 5 * time.Second})

	select {
	case got := <-ch:
		e, ok := got.(ConfigReloadedEvent)
		if !ok {
			t.Fatalf("unexpected type %T", got)
		}
		if e.Timeout != 5*time.Second {
			t.Errorf("Timeout = %v, want 5s", e.Timeout)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel event")
	}
}
