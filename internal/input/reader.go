package input

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/smazurov/kbdlight/internal/events"
	"github.com/smazurov/kbdlight/internal/logging"
	"github.com/smazurov/kbdlight/pkg/linuxinput/evdev"
)

// Device is an open input device as used by the monitor and its readers.
// *evdev.Device satisfies it.
type Device interface {
	Capabilities
	Path() string
	WaitReadable() error
	ReadEvents(buf []evdev.Event) (int, error)
	Close() error
}

const readBatchSize = 32

// reader watches one device and turns its readiness into activity
// notifications.
type reader struct {
	dev          Device
	name         string
	activity     *Activity
	pollInterval time.Duration
	maxBatches   int
	logger       logging.Logger
	bus          *events.Bus
	onExit       func()

	closeOnce sync.Once
	buf       [readBatchSize]evdev.Event
}

func (r *reader) close() {
	r.closeOnce.Do(func() { _ = r.dev.Close() })
}

// run blocks until the device fails, the consumer goes away or ctx is done.
func (r *reader) run(ctx context.Context) {
	stop := context.AfterFunc(ctx, r.close)
	defer stop()
	defer r.close()

	err := r.loop(ctx)
	if ctx.Err() != nil {
		err = nil
	}

	removed := errors.Is(err, evdev.ErrDeviceGone)
	switch {
	case err == nil:
		r.logger.Debug("Input reader stopped", "name", r.name, "path", r.dev.Path())
	case removed:
		r.logger.Info("Input device removed", "name", r.name, "path", r.dev.Path())
	default:
		r.logger.Error("Input reader failed", "name", r.name, "path", r.dev.Path(), "error", err)
	}

	if r.onExit != nil {
		r.onExit()
	}
	r.bus.Publish(events.DeviceClosedEvent{
		Path:      r.dev.Path(),
		Name:      r.name,
		Removed:   removed,
		Err:       err,
		Timestamp: time.Now(),
	})
}

func (r *reader) loop(ctx context.Context) error {
	for {
		if err := r.dev.WaitReadable(); err != nil {
			return err
		}

		if !r.activity.Notify() {
			return nil
		}

		if err := r.drain(); err != nil {
			return err
		}

		// Only the presence of events matters, so back off instead of waking
		// for every trackpad report. The kernel buffer may overflow meanwhile.
		select {
		case <-time.After(r.pollInterval):
		case <-ctx.Done():
			return nil
		case <-r.activity.Done():
			return nil
		}
	}
}

func (r *reader) drain() error {
	for range r.maxBatches {
		n, err := r.dev.ReadEvents(r.buf[:])
		if errors.Is(err, evdev.ErrWouldBlock) || (err == nil && n == 0) {
			return nil
		}
		if err != nil {
			return err
		}
	}
	return nil
}
