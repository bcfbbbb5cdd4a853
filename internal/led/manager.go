package led

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/smazurov/kbdlight/internal/events"
	"github.com/smazurov/kbdlight/internal/logging"
)

// Manager turns activity notifications into backlight on/off decisions.
//
// Each iteration waits for activity until lastChange+timeout. Activity
// switches the backlight on, reaching the deadline switches it off, and
// lastChange is reset either way. A notification already pending when the
// deadline has passed still counts as activity.
type Manager struct {
	controller Controller
	activity   <-chan struct{}
	timeout    time.Duration
	logger     logging.Logger
	eventBus   *events.Bus
	reload     chan Tuning

	on         atomic.Bool
	lastChange time.Time
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithEventBus publishes state changes and fade results on bus.
func WithEventBus(bus *events.Bus) ManagerOption {
	return func(m *Manager) { m.eventBus = bus }
}

// NewManager creates a Manager in the OFF state.
func NewManager(controller Controller, activity <-chan struct{}, timeout time.Duration, logger logging.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		controller: controller,
		activity:   activity,
		timeout:    timeout,
		logger:     logger,
		reload:     make(chan Tuning, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// On reports whether the backlight is currently on.
func (m *Manager) On() bool {
	return m.on.Load()
}

// Reload hands new tuning to the Run loop. A pending reload that has not been
// applied yet is replaced.
func (m *Manager) Reload(t Tuning) {
	for {
		select {
		case m.reload <- t:
			return
		default:
		}
		select {
		case <-m.reload:
		default:
		}
	}
}

// Run drives the state machine until ctx is cancelled. Controller failures
// are logged and the loop carries on.
func (m *Manager) Run(ctx context.Context) error {
	m.lastChange = time.Now()
	m.logger.Info("Backlight manager started", "timeout", m.timeout)

	for {
		next, err := m.wait(ctx)
		if err != nil {
			m.logger.Info("Backlight manager stopped")
			return nil
		}
		m.lastChange = time.Now()

		if next != m.on.Load() {
			m.transition(next)
		}
	}
}

// wait returns true on activity and false once the deadline passes.
func (m *Manager) wait(ctx context.Context) (bool, error) {
	select {
	case <-m.activity:
		return true, nil
	default:
	}

	timer := time.NewTimer(time.Until(m.lastChange.Add(m.timeout)))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-m.activity:
			return true, nil
		case <-timer.C:
			return false, nil
		case t := <-m.reload:
			m.apply(t)
			timer.Reset(time.Until(m.lastChange.Add(m.timeout)))
		}
	}
}

func (m *Manager) transition(on bool) {
	m.on.Store(on)
	if on {
		m.logger.Info("Backlight on")
	} else {
		m.logger.Info("Backlight off")
	}
	m.eventBus.Publish(events.StateChangedEvent{On: on, Timestamp: time.Now()})

	m.fade(on)
}

func (m *Manager) fade(on bool) {
	start := time.Now()
	err := m.controller.SetState(on)
	if err != nil {
		m.logger.Error("Failed to set LED brightness", "error", err)
	}
	m.eventBus.Publish(events.FadeCompletedEvent{
		On:        on,
		Duration:  time.Since(start),
		Err:       err,
		Timestamp: time.Now(),
	})
}

// apply installs new tuning without touching lastChange.
func (m *Manager) apply(t Tuning) {
	if t.Timeout > 0 {
		m.timeout = t.Timeout
	}

	retargeted := false
	if tunable, ok := m.controller.(Tunable); ok {
		tunable.SetFade(t.Fade)
		retargeted = tunable.Retune(t.Brightness, t.Overrides)
	}

	m.logger.Info("Tuning reloaded",
		"timeout", m.timeout,
		"fade", t.Fade,
		"brightness", t.Brightness)
	m.eventBus.Publish(events.ConfigReloadedEvent{
		Timeout:    m.timeout,
		Fade:       t.Fade,
		Brightness: t.Brightness,
		Timestamp:  time.Now(),
	})

	// Move a lit backlight to its new target.
	if retargeted && m.on.Load() {
		m.fade(true)
	}
}
