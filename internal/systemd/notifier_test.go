package systemd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smazurov/kbdlight/internal/events"
)

type recorder struct {
	mu     sync.Mutex
	states []string
	err    error
}

func (r *recorder) notify(state string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
	return r.err == nil, r.err
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.states...)
}

func (r *recorder) waitFor(t *testing.T, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, s := range r.all() {
			if s == want {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("notification %q never sent, got %q", want, r.all())
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func TestReadyAndStopping(t *testing.T) {
	rec := &recorder{}
	n := newNotifier(rec.notify, 0, testLogger())

	n.Ready(2)
	n.Stopping()

	got := rec.all()
	want := []string{
		"READY=1\nSTATUS=Backlight off, 0 input devices, 2 LEDs",
		"STOPPING=1",
	}
	if len(got) != len(want) {
		t.Fatalf("notifications = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("notification[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestStatusFollowsBus(t *testing.T) {
	rec := &recorder{}
	n := newNotifier(rec.notify, 0, testLogger())
	var open atomic.Int32
	n.TrackDevices(func() int { return int(open.Load()) })
	n.Ready(2)

	bus := events.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	n.Start(ctx, bus)

	open.Add(1)
	bus.Publish(events.DeviceOpenedEvent{Path: "/dev/input/event3", Timestamp: time.Now()})
	rec.waitFor(t, "STATUS=Backlight off, 1 input devices, 2 LEDs")

	bus.Publish(events.StateChangedEvent{On: true, Timestamp: time.Now()})
	rec.waitFor(t, "STATUS=Backlight on, 1 input devices, 2 LEDs")

	bus.Publish(events.LEDFailedEvent{LED: "a::kbd_backlight", Remaining: 1, Timestamp: time.Now()})
	rec.waitFor(t, "STATUS=Backlight on, 1 input devices, 1 LEDs")
}

func TestApply(t *testing.T) {
	n := newNotifier(func(string) (bool, error) { return false, nil }, 0, testLogger())
	devices := 0
	n.TrackDevices(func() int { return devices })

	tests := []struct {
		name    string
		ev      any
		devices int
		changed bool
		want    string
	}{
		// Event order across types is not guaranteed, so the count never
		// comes from the events themselves.
		{"closed before opened", events.DeviceClosedEvent{Removed: true}, 0, true, "Backlight off, 0 input devices, 0 LEDs"},
		{"opened after close", events.DeviceOpenedEvent{}, 0, true, "Backlight off, 0 input devices, 0 LEDs"},
		{"opened", events.DeviceOpenedEvent{}, 1, true, "Backlight off, 1 input devices, 0 LEDs"},
		{"on", events.StateChangedEvent{On: true}, 1, true, "Backlight on, 1 input devices, 0 LEDs"},
		{"closed", events.DeviceClosedEvent{}, 0, true, "Backlight on, 0 input devices, 0 LEDs"},
		{"fade", events.FadeCompletedEvent{}, 0, false, "Backlight on, 0 input devices, 0 LEDs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			devices = tt.devices
			if got := n.apply(tt.ev); got != tt.changed {
				t.Errorf("apply() = %v, want %v", got, tt.changed)
			}
			if got := n.Status(); got != tt.want {
				t.Errorf("Status() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStatusWithoutDeviceSource(t *testing.T) {
	n := newNotifier(func(string) (bool, error) { return false, nil }, 0, testLogger())
	n.apply(events.DeviceOpenedEvent{})
	if got, want := n.Status(), "Backlight off, 0 input devices, 0 LEDs"; got != want {
		t.Errorf("Status() = %q, want %q", got, want)
	}
}

func TestWatchdog(t *testing.T) {
	rec := &recorder{}
	n := newNotifier(rec.notify, 20*time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := n.Start(ctx, nil)

	rec.waitFor(t, "WATCHDOG=1")
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("notifier loop did not exit after cancel")
	}
}

func TestNotifyErrorIsLogged(t *testing.T) {
	rec := &recorder{err: errors.New("socket gone")}
	n := newNotifier(rec.notify, 0, testLogger())

	n.Stopping()
	if got := rec.all(); len(got) != 1 {
		t.Errorf("notifications = %q, want one attempt", got)
	}
}

func TestNewNotifierWithoutSocket(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	t.Setenv("WATCHDOG_USEC", "")

	n := NewNotifier(testLogger())
	if n.watchdog != 0 {
		t.Errorf("watchdog = %v, want 0", n.watchdog)
	}
	n.Ready(1)
	n.Stopping()
}
