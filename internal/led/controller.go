package led

import "time"

// Controller drives the backlight on or off. *Set implements it; the Manager
// depends only on this so it can be tested without sysfs.
type Controller interface {
	// SetState fades every LED to its target brightness (on) or to zero (off)
	// and returns once the fade has finished.
	SetState(on bool) error
}

// Tunable is implemented by controllers whose brightness targets and fade
// duration can change at runtime.
type Tunable interface {
	// Retune reports whether any brightness target changed.
	Retune(percent int, overrides map[string]int) bool
	SetFade(d time.Duration)
}

// Tuning is the subset of configuration that can change without a restart.
type Tuning struct {
	Timeout    time.Duration
	Fade       time.Duration
	Brightness int
	// Overrides maps LED names to per-LED brightness percentages.
	Overrides map[string]int
}
