package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/kbdlight/internal/led"
)

const fullConfig = `
[general]
timeout = 15
fade = 0.25
brightness = 70
unknown = "ignored"

[[input]]
name = "AT Translated Set 2 keyboard"

[[input]]
name = "SynPS/2 Synaptics TouchPad"

[[led]]
name = "tpacpi::kbd_backlight"
brightness = 60

[[led]]
name = "platform::kbd_backlight"

[hotplug]
source = "kernel"

[logging]
level = "warn"
format = "json"
[logging.modules]
input = "debug"

[metrics]
listen = "127.0.0.1:9101"
`

func tempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func optionsFor(path string) Options {
	opts := DefaultOptions()
	opts.Config = path
	return opts
}

// newFlagCommand registers flags the same way the root command does.
func newFlagCommand(opts *Options) *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	f := cmd.Flags()
	f.StringVar(&opts.Config, "config", opts.Config, "")
	f.Float64Var(&opts.Timeout, "timeout", opts.Timeout, "")
	f.Float64Var(&opts.Fade, "fade", opts.Fade, "")
	f.IntVar(&opts.Brightness, "brightness", opts.Brightness, "")
	f.StringVar(&opts.Hotplug, "hotplug", opts.Hotplug, "")
	f.StringVar(&opts.LogLevel, "log-level", opts.LogLevel, "")
	f.BoolVar(&opts.Verbose, "verbose", opts.Verbose, "")
	return cmd
}

func TestLoadFullFile(t *testing.T) {
	s, err := Load(optionsFor(tempConfig(t, fullConfig)), nil)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if s.Timeout != 15*time.Second {
		t.Errorf("Timeout = %v, want 15s", s.Timeout)
	}
	if s.Fade != 250*time.Millisecond {
		t.Errorf("Fade = %v, want 250ms", s.Fade)
	}
	if s.Brightness != 70 {
		t.Errorf("Brightness = %d, want 70", s.Brightness)
	}
	wantInputs := []string{"AT Translated Set 2 keyboard", "SynPS/2 Synaptics TouchPad"}
	if !slices.Equal(s.Inputs, wantInputs) {
		t.Errorf("Inputs = %v, want %v", s.Inputs, wantInputs)
	}
	if len(s.LEDs) != 2 || s.LEDs[0].Name != "tpacpi::kbd_backlight" || *s.LEDs[0].Brightness != 60 || s.LEDs[1].Brightness != nil {
		t.Errorf("LEDs = %+v", s.LEDs)
	}
	if s.Hotplug != "kernel" {
		t.Errorf("Hotplug = %q, want kernel", s.Hotplug)
	}
	if s.MetricsListen != "127.0.0.1:9101" {
		t.Errorf("MetricsListen = %q", s.MetricsListen)
	}
	if s.Logging.Level != "warn" || s.Logging.Format != "json" || s.Logging.Modules["input"] != "debug" {
		t.Errorf("Logging = %+v", s.Logging)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	s, err := Load(optionsFor(filepath.Join(t.TempDir(), "missing.toml")), nil)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if s.Timeout != 10*time.Second || s.Fade != 100*time.Millisecond || s.Brightness != 100 {
		t.Errorf("defaults = %+v", s)
	}
	if s.Hotplug != "udev" || len(s.Inputs) != 0 || len(s.LEDs) != 0 {
		t.Errorf("defaults = %+v", s)
	}
}

func TestLoadInvalidTOML(t *testing.T) {
	if _, err := Load(optionsFor(tempConfig(t, "[general\ntimeout =")), nil); err == nil {
		t.Fatal("Load() should fail for invalid TOML")
	}
}

func TestPrecedence(t *testing.T) {
	path := tempConfig(t, "[general]\ntimeout = 20\nfade = 0.3\nbrightness = 50\n")
	t.Setenv("KBDLIGHT_TIMEOUT", "25")
	t.Setenv("KBDLIGHT_BRIGHTNESS", "40")

	opts := optionsFor(path)
	cmd := newFlagCommand(&opts)
	if err := cmd.Flags().Parse([]string{"--brightness", "90"}); err != nil {
		t.Fatal(err)
	}

	s, err := Load(opts, cmd)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"flag beats env and file", s.Brightness, 90},
		{"env beats file", s.Timeout, 25 * time.Second},
		{"file beats default", s.Fade, 300 * time.Millisecond},
		{"default", s.Hotplug, "udev"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestVerboseForcesDebug(t *testing.T) {
	opts := optionsFor(tempConfig(t, "[logging]\nlevel = \"error\"\n"))
	cmd := newFlagCommand(&opts)
	if err := cmd.Flags().Parse([]string{"--verbose"}); err != nil {
		t.Fatal(err)
	}

	s, err := Load(opts, cmd)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if s.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", s.Logging.Level)
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{"valid minimal", "", false},
		{"integer fade", "[general]\nfade = 1\n", false},
		{"zero brightness", "[general]\nbrightness = 0\n", false},
		{"zero timeout", "[general]\ntimeout = 0\n", true},
		{"fractional timeout", "[general]\ntimeout = 2.5\n", true},
		{"largest timeout", "[general]\ntimeout = 4294967295\n", false},
		{"timeout above u32", "[general]\ntimeout = 4294967296\n", true},
		{"huge timeout", "[general]\ntimeout = 1e10\n", true},
		{"long fade", "[general]\nfade = 3600\n", false},
		{"fade past duration range", "[general]\nfade = 1e12\n", true},
		{"infinite fade", "[general]\nfade = inf\n", true},
		{"zero fade", "[general]\nfade = 0\n", true},
		{"negative fade", "[general]\nfade = -0.1\n", true},
		{"brightness above 100", "[general]\nbrightness = 101\n", true},
		{"negative brightness", "[general]\nbrightness = -1\n", true},
		{"led override above 100", "[[led]]\nname = \"a::kbd_backlight\"\nbrightness = 150\n", true},
		{"led without name", "[[led]]\nbrightness = 50\n", true},
		{"input without name", "[[input]]\n", true},
		{"bad hotplug", "[hotplug]\nsource = \"mdev\"\n", true},
		{"bad level", "[logging]\nlevel = \"loud\"\n", true},
		{"bad module level", "[logging.modules]\ninput = \"loud\"\n", true},
		{"bad format", "[logging]\nformat = \"xml\"\n", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(optionsFor(tempConfig(t, tt.content)), nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalid) {
				t.Errorf("error %v does not wrap ErrInvalid", err)
			}
		})
	}
}

func TestLargestValuesStayPositive(t *testing.T) {
	opts := DefaultOptions()
	opts.Timeout = maxTimeout
	opts.Fade = maxFade
	s, err := build(opts, tables{})
	if err != nil {
		t.Fatalf("build() error: %v", err)
	}
	if s.Timeout <= 0 {
		t.Errorf("Timeout = %v, want positive", s.Timeout)
	}
	if s.Fade <= 0 {
		t.Errorf("Fade = %v, want positive", s.Fade)
	}
}

func TestValidationReportsAllErrors(t *testing.T) {
	_, err := Load(optionsFor(tempConfig(t, "[general]\ntimeout = 0\nbrightness = 200\n")), nil)
	if err == nil {
		t.Fatal("expected error")
	}
	var joined interface{ Unwrap() []error }
	if !errors.As(err, &joined) || len(joined.Unwrap()) != 2 {
		t.Errorf("expected two joined errors, got %v", err)
	}
}

func TestTuning(t *testing.T) {
	sixty := 60
	s := Settings{
		Timeout:    5 * time.Second,
		Fade:       time.Second,
		Brightness: 80,
		LEDs: []led.Spec{
			{Name: "a::kbd_backlight", Brightness: &sixty},
			{Name: "b::kbd_backlight"},
		},
	}

	got := s.Tuning()
	want := led.Tuning{
		Timeout:    5 * time.Second,
		Fade:       time.Second,
		Brightness: 80,
		Overrides:  map[string]int{"a::kbd_backlight": 60},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tuning() = %+v, want %+v", got, want)
	}
}

func TestRestartRequired(t *testing.T) {
	base := Settings{
		Inputs:  []string{"kbd"},
		LEDs:    []led.Spec{{Name: "a::kbd_backlight"}},
		Hotplug: "udev",
	}

	fifty := 50
	tuned := base
	tuned.Timeout = time.Minute
	tuned.LEDs = []led.Spec{{Name: "a::kbd_backlight", Brightness: &fifty}}
	if got := base.RestartRequired(tuned); len(got) != 0 {
		t.Errorf("tuning change reported restart fields %v", got)
	}

	moved := base
	moved.Inputs = []string{"other"}
	moved.LEDs = []led.Spec{{Name: "b::kbd_backlight"}}
	moved.Hotplug = "kernel"
	want := []string{"input", "led", "hotplug.source"}
	if got := base.RestartRequired(moved); !slices.Equal(got, want) {
		t.Errorf("RestartRequired() = %v, want %v", got, want)
	}
}

func TestGetNestedValue(t *testing.T) {
	data := map[string]any{
		"general": map[string]any{
			"timeout": int64(10),
		},
		"root": "root_value",
	}

	tests := []struct {
		path     string
		expected any
	}{
		{"root", "root_value"},
		{"general.timeout", int64(10)},
		{"general.missing", nil},
		{"missing.timeout", nil},
		{"root.child", nil},
	}

	for _, test := range tests {
		result := getNestedValue(data, test.path)
		if result != test.expected {
			t.Errorf("getNestedValue(%q) = %v, expected %v", test.path, result, test.expected)
		}
	}
}

func TestSetFieldValue(t *testing.T) {
	type target struct {
		S string
		B bool
		I int
		F float64
		L []string
	}
	var s target
	v := reflect.ValueOf(&s).Elem()

	setFieldValue(v.FieldByName("S"), "text")
	setFieldValue(v.FieldByName("B"), true)
	setFieldValue(v.FieldByName("I"), int64(42))
	setFieldValue(v.FieldByName("F"), int64(2))
	setFieldValue(v.FieldByName("L"), []any{"a", "b"})

	want := target{S: "text", B: true, I: 42, F: 2, L: []string{"a", "b"}}
	if !reflect.DeepEqual(s, want) {
		t.Errorf("got %+v, want %+v", s, want)
	}

	setFieldValue(v.FieldByName("F"), 0.5)
	if s.F != 0.5 {
		t.Errorf("F = %v, want 0.5", s.F)
	}
	setFieldValue(v.FieldByName("I"), "not a number")
	if s.I != 42 {
		t.Errorf("mismatched type changed I to %d", s.I)
	}
}

func TestSetFieldValueFromString(t *testing.T) {
	type target struct {
		S string
		B bool
		I int
		F float64
		L []string
	}
	var s target
	v := reflect.ValueOf(&s).Elem()

	setFieldValueFromString(v.FieldByName("S"), "text")
	setFieldValueFromString(v.FieldByName("B"), "true")
	setFieldValueFromString(v.FieldByName("I"), "123")
	setFieldValueFromString(v.FieldByName("F"), "0.75")
	setFieldValueFromString(v.FieldByName("L"), " x , y ")

	want := target{S: "text", B: true, I: 123, F: 0.75, L: []string{"x", "y"}}
	if !reflect.DeepEqual(s, want) {
		t.Errorf("got %+v, want %+v", s, want)
	}

	setFieldValueFromString(v.FieldByName("I"), "abc")
	if s.I != 123 {
		t.Errorf("unparseable value changed I to %d", s.I)
	}
}

func TestFieldNameToFlag(t *testing.T) {
	tests := map[string]string{
		"Timeout":       "timeout",
		"MetricsListen": "metrics-listen",
		"LogLevel":      "log-level",
	}
	for in, want := range tests {
		if got := fieldNameToFlag(in); got != want {
			t.Errorf("fieldNameToFlag(%q) = %q, want %q", in, got, want)
		}
	}
}
