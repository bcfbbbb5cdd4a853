package led

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/smazurov/kbdlight/internal/events"
	"github.com/smazurov/kbdlight/internal/logging"
)

// ErrNoLEDs is returned by SetState once every LED has failed.
var ErrNoLEDs = errors.New("all controlled LEDs encountered errors")

const (
	// fadeHeadStart backdates the fade start so the first frame already
	// moves away from the start brightness.
	fadeHeadStart = 10 * time.Millisecond
	// DefaultFrameInterval paces fade frames.
	DefaultFrameInterval = 4 * time.Millisecond
)

// Set is the group of LEDs driven together. It is not safe for concurrent
// use; the Manager goroutine owns it.
type Set struct {
	leds   []*led
	fade   time.Duration
	frame  time.Duration
	logger logging.Logger
	bus    *events.Bus
}

func newSet(leds []*led, fade time.Duration, opts Options) *Set {
	s := &Set{
		leds:   leds,
		fade:   fade,
		frame:  opts.FrameInterval,
		logger: opts.Logger,
		bus:    opts.Bus,
	}
	if s.frame <= 0 {
		s.frame = DefaultFrameInterval
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	return s
}

// Len returns the number of LEDs still active.
func (s *Set) Len() int {
	return len(s.leds)
}

// Names returns the names of the active LEDs.
func (s *Set) Names() []string {
	names := make([]string, len(s.leds))
	for i, l := range s.leds {
		names[i] = l.name
	}
	return names
}

// SetState fades all LEDs from their current brightness to their target (on)
// or to zero (off). An LED that fails a read or write is dropped for good.
func (s *Set) SetState(on bool) error {
	if err := s.each(func(l *led) error {
		v, err := l.read()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		l.start = v
		return nil
	}); err != nil {
		return err
	}

	start := time.Now().Add(-fadeHeadStart)
	for {
		t := float64(time.Since(start)) / float64(s.fade)
		progress := min(max(t, 0), 1)

		if err := s.each(func(l *led) error {
			var target uint32
			if on {
				target = l.target
			}
			if err := l.write(sample(l.start, target, progress)); err != nil {
				return fmt.Errorf("write: %w", err)
			}
			return nil
		}); err != nil {
			return err
		}

		if t >= 1 {
			return nil
		}
		time.Sleep(s.frame)
	}
}

// each applies fn to every LED, dropping those that fail.
func (s *Set) each(fn func(*led) error) error {
	type failure struct {
		led *led
		err error
	}
	var failed []failure

	kept := s.leds[:0]
	for _, l := range s.leds {
		if err := fn(l); err != nil {
			failed = append(failed, failure{l, err})
			continue
		}
		kept = append(kept, l)
	}
	clear(s.leds[len(kept):])
	s.leds = kept

	for _, f := range failed {
		s.drop(f.led, f.err)
	}

	if len(s.leds) == 0 {
		return ErrNoLEDs
	}
	return nil
}

func (s *Set) drop(l *led, err error) {
	_ = l.file.Close()
	s.logger.Error("LED failed, no longer controlling it", "led", l.name, "remaining", len(s.leds), "error", err)
	s.bus.Publish(events.LEDFailedEvent{
		LED:       l.name,
		Remaining: len(s.leds),
		Err:       err,
		Timestamp: time.Now(),
	})
}

// Retune recomputes every LED's target from its maximum and reports whether
// any target moved. overrides maps LED
// names to percentages that replace percent for that LED.
func (s *Set) Retune(percent int, overrides map[string]int) bool {
	changed := false
	for _, l := range s.leds {
		p := percent
		if o, ok := overrides[l.name]; ok {
			p = o
		}
		target := targetBrightness(p, l.max)
		if target != l.target {
			l.target = target
			changed = true
		}
	}
	return changed
}

// SetFade changes the fade duration for subsequent transitions.
func (s *Set) SetFade(d time.Duration) {
	if d > 0 {
		s.fade = d
	}
}

// Close releases all brightness handles.
func (s *Set) Close() error {
	var errs []error
	for _, l := range s.leds {
		if err := l.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("LED %q: %w", l.name, err))
		}
	}
	s.leds = nil
	return errors.Join(errs...)
}

// sample interpolates between start and target at progress t in [0, 1] and
// rounds to the nearest integer.
func sample(start, target uint32, t float64) uint32 {
	v := float64(start) + t*(float64(target)-float64(start))
	return uint32(math.Round(v))
}
