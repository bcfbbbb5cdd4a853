package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/smazurov/kbdlight/internal/led"
	"github.com/smazurov/kbdlight/internal/logging"
)

// DefaultPath is the config file read when --config is not given.
const DefaultPath = "/etc/kbdlight/config.toml"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Options is the flat set of scalar settings. Field names map to flags,
// toml tags to file keys and env tags to KBDLIGHT_* variables.
type Options struct {
	Config string

	Timeout    float64 `toml:"general.timeout" env:"TIMEOUT"`
	Fade       float64 `toml:"general.fade" env:"FADE"`
	Brightness int     `toml:"general.brightness" env:"BRIGHTNESS"`

	Hotplug       string `toml:"hotplug.source" env:"HOTPLUG"`
	MetricsListen string `toml:"metrics.listen" env:"METRICS_LISTEN"`

	Verbose   bool   `env:"VERBOSE"`
	LogLevel  string `toml:"logging.level" env:"LOG_LEVEL"`
	LogFormat string `toml:"logging.format" env:"LOG_FORMAT"`
}

// DefaultOptions returns the built-in defaults.
func DefaultOptions() Options {
	return Options{
		Config:     DefaultPath,
		Timeout:    10,
		Fade:       0.1,
		Brightness: 100,
		Hotplug:    "udev",
		LogLevel:   "info",
		LogFormat:  "text",
	}
}

// tables holds the array-of-tables sections the flat loader cannot express.
type tables struct {
	Input []struct {
		Name string `toml:"name"`
	} `toml:"input"`
	LED []struct {
		Name       string `toml:"name"`
		Brightness *int   `toml:"brightness"`
	} `toml:"led"`
	Logging struct {
		Modules map[string]string `toml:"modules"`
	} `toml:"logging"`
}

// Settings is the validated configuration consumed by the daemon.
type Settings struct {
	Path          string
	Timeout       time.Duration
	Fade          time.Duration
	Brightness    int
	Inputs        []string
	LEDs          []led.Spec
	Hotplug       string
	MetricsListen string
	Logging       logging.Config
}

// Load applies file and environment values to a copy of opts, skipping
// flags changed on cmd, and validates the result.
func Load(opts Options, cmd *cobra.Command) (Settings, error) {
	if err := LoadConfig(&opts, cmd); err != nil {
		return Settings{}, err
	}

	var tbl tables
	if opts.Config != "" {
		data, err := os.ReadFile(opts.Config)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, &tbl); err != nil {
				return Settings{}, fmt.Errorf("failed to parse TOML config: %w", err)
			}
		case !errors.Is(err, os.ErrNotExist):
			return Settings{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	return build(opts, tbl)
}

// Upper bounds keep both durations inside time.Duration.
const (
	maxTimeout = math.MaxUint32
	maxFade    = float64(math.MaxInt64/int64(time.Second)) - 1
)

func build(opts Options, tbl tables) (Settings, error) {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if opts.Timeout < 1 || opts.Timeout > maxTimeout || opts.Timeout != math.Trunc(opts.Timeout) {
		invalid("timeout must be a whole number of seconds between 1 and %d, got %v", uint32(maxTimeout), opts.Timeout)
	}
	if opts.Fade <= 0 || opts.Fade > maxFade || math.IsNaN(opts.Fade) {
		invalid("fade must be a positive number of seconds up to %v, got %v", maxFade, opts.Fade)
	}
	if !validPercent(opts.Brightness) {
		invalid("brightness must be between 0 and 100, got %d", opts.Brightness)
	}

	hotplug := strings.ToLower(opts.Hotplug)
	if hotplug != "udev" && hotplug != "kernel" {
		invalid("hotplug source must be \"udev\" or \"kernel\", got %q", opts.Hotplug)
	}

	level := opts.LogLevel
	if opts.Verbose {
		level = "debug"
	}
	if !logging.ValidLevel(level) {
		invalid("unknown log level %q", level)
	}
	if opts.LogFormat != "text" && opts.LogFormat != "json" {
		invalid("log format must be \"text\" or \"json\", got %q", opts.LogFormat)
	}
	for module, l := range tbl.Logging.Modules {
		if !logging.ValidLevel(l) {
			invalid("unknown log level %q for module %s", l, module)
		}
	}

	s := Settings{
		Path:          opts.Config,
		Timeout:       time.Duration(opts.Timeout) * time.Second,
		Fade:          time.Duration(opts.Fade * float64(time.Second)),
		Brightness:    opts.Brightness,
		Hotplug:       hotplug,
		MetricsListen: opts.MetricsListen,
		Logging: logging.Config{
			Level:   level,
			Format:  opts.LogFormat,
			Modules: tbl.Logging.Modules,
		},
	}

	for i, in := range tbl.Input {
		if in.Name == "" {
			invalid("input #%d has no name", i+1)
			continue
		}
		s.Inputs = append(s.Inputs, in.Name)
	}

	for i, l := range tbl.LED {
		if l.Name == "" {
			invalid("led #%d has no name", i+1)
			continue
		}
		if l.Brightness != nil && !validPercent(*l.Brightness) {
			invalid("brightness for led %s must be between 0 and 100, got %d", l.Name, *l.Brightness)
		}
		s.LEDs = append(s.LEDs, led.Spec{Name: l.Name, Brightness: l.Brightness})
	}

	if err := errors.Join(errs...); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func validPercent(p int) bool {
	return p >= 0 && p <= 100
}

// Tuning returns the live-reloadable subset of s.
func (s Settings) Tuning() led.Tuning {
	t := led.Tuning{
		Timeout:    s.Timeout,
		Fade:       s.Fade,
		Brightness: s.Brightness,
		Overrides:  make(map[string]int),
	}
	for _, spec := range s.LEDs {
		if spec.Brightness != nil {
			t.Overrides[spec.Name] = *spec.Brightness
		}
	}
	return t
}

// RestartRequired lists the settings that differ between s and next but
// only take effect at startup.
func (s Settings) RestartRequired(next Settings) []string {
	var changed []string
	if !slices.Equal(s.Inputs, next.Inputs) {
		changed = append(changed, "input")
	}
	if !slices.Equal(ledNames(s.LEDs), ledNames(next.LEDs)) {
		changed = append(changed, "led")
	}
	if s.Hotplug != next.Hotplug {
		changed = append(changed, "hotplug.source")
	}
	if s.MetricsListen != next.MetricsListen {
		changed = append(changed, "metrics.listen")
	}
	if s.Logging.Format != next.Logging.Format {
		changed = append(changed, "logging.format")
	}
	return changed
}

func ledNames(specs []led.Spec) []string {
	names := make([]string, len(specs))
	for i, spec := range specs {
		names[i] = spec.Name
	}
	return names
}
