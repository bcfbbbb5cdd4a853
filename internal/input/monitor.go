// Package input watches keyboards and trackpads for activity.
//
// A Monitor enumerates the evdev nodes present at startup, then follows a
// hotplug source for new ones. Every device accepted by the Filter gets its
// own reader goroutine, which signals a shared Activity whenever the device
// has events queued.
package input

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smazurov/kbdlight/internal/events"
	"github.com/smazurov/kbdlight/internal/logging"
	"github.com/smazurov/kbdlight/pkg/linuxinput/evdev"
)

var (
	// ErrPermission is returned by Spawn when input devices cannot be opened.
	ErrPermission = errors.New("no permission to open input devices")
	// ErrHotplugClosed is delivered on Done when the hotplug stream ends.
	ErrHotplugClosed = errors.New("hotplug stream closed")
)

// Defaults used when Options leaves a field zero.
const (
	DefaultPollInterval = 350 * time.Millisecond
	DefaultMaxBatches   = 16
)

// HotplugSource yields paths of newly added input device nodes.
type HotplugSource interface {
	Next(ctx context.Context) (string, error)
}

// Options configures a Monitor.
type Options struct {
	Filter  Filter
	Hotplug HotplugSource

	// Open and List default to the evdev implementations.
	Open func(path string) (Device, error)
	List func() ([]string, error)

	// PollInterval is how long a reader sleeps after each wakeup.
	PollInterval time.Duration
	// MaxBatches bounds how many 32-event reads drain a device per wakeup.
	MaxBatches int

	Bus *events.Bus
}

func (o *Options) setDefaults() {
	if o.Filter == nil {
		o.Filter = AutoFilter{}
	}
	if o.Open == nil {
		o.Open = openEvdev
	}
	if o.List == nil {
		o.List = evdev.ListPaths
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.MaxBatches <= 0 {
		o.MaxBatches = DefaultMaxBatches
	}
}

func openEvdev(path string) (Device, error) {
	dev, err := evdev.Open(path)
	if err != nil {
		return nil, err
	}
	return dev, nil
}

// Monitor owns the hotplug goroutine and the device readers it spawns.
type Monitor struct {
	opts     Options
	logger   logging.Logger
	activity *Activity
	done     chan error
	readers  sync.WaitGroup
	open     atomic.Int32
}

// Spawn probes for permission, then starts watching devices in the
// background. Enumeration and hotplug handling happen on the returned
// Monitor's goroutine, so Spawn does not block on slow devices.
func Spawn(ctx context.Context, opts Options, logger logging.Logger) (*Monitor, error) {
	if opts.Hotplug == nil {
		return nil, errors.New("hotplug source is required")
	}
	opts.setDefaults()

	paths, err := opts.List()
	if err != nil {
		return nil, fmt.Errorf("enumerate input devices: %w", err)
	}
	if err := probe(opts.Open, paths); err != nil {
		return nil, err
	}

	m := &Monitor{
		opts:     opts,
		logger:   logger,
		activity: NewActivity(),
		done:     make(chan error, 1),
	}
	go m.run(ctx, paths)
	return m, nil
}

// probe opens the first device node so a missing permission fails startup
// instead of silently watching nothing.
func probe(open func(string) (Device, error), paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	dev, err := open(paths[0])
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return fmt.Errorf("%w: %w", ErrPermission, err)
		}
		return nil
	}
	_ = dev.Close()
	return nil
}

// Activity returns the channel readers signal on.
func (m *Monitor) Activity() *Activity {
	return m.activity
}

// Done delivers exactly one value when the monitor stops: nil after context
// cancellation, otherwise an error wrapping ErrHotplugClosed.
func (m *Monitor) Done() <-chan error {
	return m.done
}

// OpenDevices returns the number of running readers.
func (m *Monitor) OpenDevices() int {
	return int(m.open.Load())
}

func (m *Monitor) run(ctx context.Context, paths []string) {
	for _, path := range paths {
		if ctx.Err() != nil {
			break
		}
		m.consider(ctx, path)
	}

	err := m.follow(ctx)
	if err == nil {
		// Readers exit on cancellation too.
		m.readers.Wait()
	}
	m.done <- err
}

func (m *Monitor) follow(ctx context.Context) error {
	for {
		path, err := m.opts.Hotplug.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%w: %w", ErrHotplugClosed, err)
		}
		m.logger.Debug("Input device added", "path", path)
		m.consider(ctx, path)
	}
}

// consider opens path and hands it to a reader if the filter accepts it.
// Failures affect only this device.
func (m *Monitor) consider(ctx context.Context, path string) {
	dev, err := m.opts.Open(path)
	if err != nil {
		m.logger.Error("Failed to open input device", "path", path, "error", err)
		return
	}

	ok, err := m.opts.Filter.Matches(dev)
	if err != nil {
		m.logger.Error("Failed to query input device", "path", path, "error", err)
		_ = dev.Close()
		return
	}
	if !ok {
		_ = dev.Close()
		return
	}

	name, err := dev.Name()
	if err != nil {
		m.logger.Error("Failed to query input device", "path", path, "error", err)
		_ = dev.Close()
		return
	}


	r := &reader{
		dev:          dev,
		name:         name,
		activity:     m.activity,
		pollInterval: m.opts.PollInterval,
		maxBatches:   m.opts.MaxBatches,
		logger:       m.logger,
		bus:          m.opts.Bus,
		onExit:       func() { m.open.Add(-1) },
	}

	m.open.Add(1)
	m.logger.Info("Opened input device", "name", name, "path", path)
	m.opts.Bus.Publish(events.DeviceOpenedEvent{Path: path, Name: name, Timestamp: time.Now()})

	m.readers.Add(1)
	go func() {
		defer m.readers.Done()
		r.run(ctx)
	}()
}
