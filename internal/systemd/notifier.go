// Package systemd reports daemon state to the service manager over the
// sd_notify protocol. All calls are no-ops when NOTIFY_SOCKET is unset.
package systemd

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/smazurov/kbdlight/internal/events"
)

// NotifyFunc sends a raw notification and reports whether it was delivered.
type NotifyFunc func(state string) (bool, error)

func sdNotify(state string) (bool, error) {
	return daemon.SdNotify(false, state)
}

// Notifier tracks daemon state from the event bus and mirrors it into the
// unit's STATUS line. It also pings the watchdog when WatchdogSec is set.
type Notifier struct {
	notify   NotifyFunc
	logger   *slog.Logger
	watchdog time.Duration

	mu      sync.Mutex
	on      bool
	devices func() int
	leds    int
}

// NewNotifier creates a notifier bound to the real NOTIFY_SOCKET.
func NewNotifier(logger *slog.Logger) *Notifier {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.Warn("Ignoring watchdog settings", "error", err)
		interval = 0
	}
	return newNotifier(sdNotify, interval, logger)
}

func newNotifier(notify NotifyFunc, watchdog time.Duration, logger *slog.Logger) *Notifier {
	return &Notifier{
		notify:   notify,
		logger:   logger,
		watchdog: watchdog,
	}
}

// TrackDevices sets the source of the input device count shown in STATUS.
// Device events only trigger a refresh; the count itself is read from count.
func (n *Notifier) TrackDevices(count func() int) {
	n.mu.Lock()
	n.devices = count
	n.mu.Unlock()
}

// Ready reports startup completion along with the initial status.
func (n *Notifier) Ready(leds int) {
	n.mu.Lock()
	n.leds = leds
	status := n.statusLocked()
	n.mu.Unlock()

	n.send(daemon.SdNotifyReady + "\nSTATUS=" + status)
}

// Stopping reports that shutdown has begun.
func (n *Notifier) Stopping() {
	n.send(daemon.SdNotifyStopping)
}

// Status returns the current STATUS line.
func (n *Notifier) Status() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.statusLocked()
}

// Start subscribes to bus and then consumes its events and pings the
// watchdog in the background until ctx is cancelled. The returned channel is
// closed once the background loop has exited.
func (n *Notifier) Start(ctx context.Context, bus *events.Bus) <-chan struct{} {
	ch := make(chan any, 32)
	unsubs := []func(){
		events.SubscribeToChannel[events.StateChangedEvent](bus, ch),
		events.SubscribeToChannel[events.DeviceOpenedEvent](bus, ch),
		events.SubscribeToChannel[events.DeviceClosedEvent](bus, ch),
		events.SubscribeToChannel[events.LEDFailedEvent](bus, ch),
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			for _, unsub := range unsubs {
				unsub()
			}
		}()
		n.run(ctx, ch)
	}()
	return done
}

func (n *Notifier) run(ctx context.Context, ch <-chan any) {
	var ping <-chan time.Time
	if n.watchdog > 0 {
		ticker := time.NewTicker(n.watchdog / 2)
		defer ticker.Stop()
		ping = ticker.C
		n.logger.Debug("Watchdog enabled", "interval", n.watchdog)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ping:
			n.send(daemon.SdNotifyWatchdog)
		case ev := <-ch:
			if n.apply(ev) {
				n.send("STATUS=" + n.Status())
			}
		}
	}
}

func (n *Notifier) apply(ev any) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch e := ev.(type) {
	case events.StateChangedEvent:
		n.on = e.On
	case events.DeviceOpenedEvent, events.DeviceClosedEvent:
	case events.LEDFailedEvent:
		n.leds = e.Remaining
	default:
		return false
	}
	return true
}

func (n *Notifier) statusLocked() string {
	state := "off"
	if n.on {
		state = "on"
	}
	devices := 0
	if n.devices != nil {
		devices = n.devices()
	}
	return fmt.Sprintf("Backlight %s, %d input devices, %d LEDs", state, devices, n.leds)
}

func (n *Notifier) send(state string) {
	sent, err := n.notify(state)
	if err != nil {
		n.logger.Warn("sd_notify failed", "error", err)
		return
	}
	if sent {
		n.logger.Debug("Notified service manager", "state", state)
	}
}
