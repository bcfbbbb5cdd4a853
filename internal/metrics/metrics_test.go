package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSetBacklightOn(t *testing.T) {
	onBefore := testutil.ToFloat64(transitionsTotal.WithLabelValues("on"))
	offBefore := testutil.ToFloat64(transitionsTotal.WithLabelValues("off"))

	SetBacklightOn(true)
	if got := testutil.ToFloat64(backlightOn); got != 1 {
		t.Errorf("backlight_on = %v, want 1", got)
	}

	SetBacklightOn(false)
	if got := testutil.ToFloat64(backlightOn); got != 0 {
		t.Errorf("backlight_on = %v, want 0", got)
	}

	if got := testutil.ToFloat64(transitionsTotal.WithLabelValues("on")) - onBefore; got != 1 {
		t.Errorf("on transitions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(transitionsTotal.WithLabelValues("off")) - offBefore; got != 1 {
		t.Errorf("off transitions = %v, want 1", got)
	}
}

func TestInputDeviceGauge(t *testing.T) {
	openBefore := testutil.ToFloat64(inputDevicesOpen)
	errorsBefore := testutil.ToFloat64(inputDeviceErrorsTotal)

	InputDeviceOpened()
	InputDeviceOpened()
	InputDeviceClosed(false)
	InputDeviceClosed(true)

	if got := testutil.ToFloat64(inputDevicesOpen) - openBefore; got != 0 {
		t.Errorf("devices_open delta = %v, want 0", got)
	}
	if got := testutil.ToFloat64(inputDeviceErrorsTotal) - errorsBefore; got != 1 {
		t.Errorf("device_errors_total delta = %v, want 1", got)
	}
}

func TestLEDMetrics(t *testing.T) {
	SetLEDsActive(2)
	RecordLEDFailure("test::kbd_backlight", 1)

	if got := testutil.ToFloat64(ledsActive); got != 1 {
		t.Errorf("leds_active = %v, want 1", got)
	}
	if got := testutil.ToFloat64(ledFailuresTotal.WithLabelValues("test::kbd_backlight")); got < 1 {
		t.Errorf("led_failures_total = %v, want >= 1", got)
	}
}

func TestObserveFade(t *testing.T) {
	before := testutil.ToFloat64(fadeErrorsTotal)

	ObserveFade(100*time.Millisecond, false)
	ObserveFade(5*time.Millisecond, true)

	if got := testutil.ToFloat64(fadeErrorsTotal) - before; got != 1 {
		t.Errorf("fade_errors_total delta = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(fadeSeconds); n != 1 {
		t.Errorf("fade_seconds collected %d metrics, want 1", n)
	}
}
