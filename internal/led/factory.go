package led

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/smazurov/kbdlight/internal/events"
	"github.com/smazurov/kbdlight/internal/logging"
)

// ErrNoBacklight is returned by Open in automatic mode when no keyboard
// backlight LED exists.
var ErrNoBacklight = errors.New("no keyboard backlight LEDs found")

// Spec names an LED to control. A nil Brightness uses the default percentage.
type Spec struct {
	Name       string
	Brightness *int
}

// Options configures Open.
type Options struct {
	// Dir is the LED class directory, DefaultClassDir when empty.
	Dir string
	// FrameInterval paces fade frames, DefaultFrameInterval when zero.
	FrameInterval time.Duration

	Logger logging.Logger
	Bus    *events.Bus
}

// Open opens the LEDs named in specs. With no specs it picks every LED whose
// name contains "kbd_backlight". Any LED that cannot be opened fails the call.
func Open(specs []Spec, defaultPercent int, fade time.Duration, opts Options) (*Set, error) {
	if fade <= 0 {
		return nil, fmt.Errorf("fade duration must be positive, got %v", fade)
	}
	if opts.Dir == "" {
		opts.Dir = DefaultClassDir
	}

	if len(specs) == 0 {
		var err error
		if specs, err = detect(opts.Dir); err != nil {
			return nil, err
		}
	}

	leds := make([]*led, 0, len(specs))
	for _, spec := range specs {
		percent := defaultPercent
		if spec.Brightness != nil {
			percent = *spec.Brightness
		}

		l, err := openLED(opts.Dir, spec.Name, percent)
		if err != nil {
			for _, opened := range leds {
				_ = opened.file.Close()
			}
			return nil, err
		}
		if opts.Logger != nil {
			opts.Logger.Info("Opened LED", "led", l.name, "max_brightness", l.max, "target", l.target)
		}
		leds = append(leds, l)
	}

	return newSet(leds, fade, opts), nil
}

// detect returns a Spec for every backlight LED in dir.
func detect(dir string) ([]Spec, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}

	var specs []Spec
	for _, entry := range entries {
		if isBacklight(entry.Name()) {
			specs = append(specs, Spec{Name: entry.Name()})
		}
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoBacklight, dir)
	}

	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs, nil
}
