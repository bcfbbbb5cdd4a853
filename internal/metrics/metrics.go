// Package metrics provides Prometheus metrics for the backlight daemon.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "kbdlight"

var (
	backlightOn = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "backlight_on",
		Help:      "1 while the backlight is on, 0 otherwise",
	})

	transitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transitions_total",
		Help:      "Backlight state transitions",
	}, []string{"state"})

	inputDevicesOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "input",
		Name:      "devices_open",
		Help:      "Input devices currently watched for activity",
	})

	inputDeviceErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "input",
		Name:      "device_errors_total",
		Help:      "Input readers that stopped on an error other than device removal",
	})

	ledsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "leds_active",
		Help:      "LEDs still under control",
	})

	ledFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "led_failures_total",
		Help:      "LEDs dropped after a read or write error",
	}, []string{"led"})

	fadeSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "fade_seconds",
		Help:      "Wall time spent in a fade",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	})

	fadeErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fade_errors_total",
		Help:      "Fades that failed because no LED was left",
	})

	configReloadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "config_reloads_total",
		Help:      "Live configuration reloads applied",
	})
)

// SetBacklightOn records the current backlight state and counts the
// transition.
func SetBacklightOn(on bool) {
	if on {
		backlightOn.Set(1)
		transitionsTotal.WithLabelValues("on").Inc()
		return
	}
	backlightOn.Set(0)
	transitionsTotal.WithLabelValues("off").Inc()
}

// InputDeviceOpened increments the open device gauge.
func InputDeviceOpened() {
	inputDevicesOpen.Inc()
}

// InputDeviceClosed decrements the open device gauge. failed marks a reader
// that stopped on an unexpected error.
func InputDeviceClosed(failed bool) {
	inputDevicesOpen.Dec()
	if failed {
		inputDeviceErrorsTotal.Inc()
	}
}

// SetLEDsActive sets the number of LEDs under control.
func SetLEDsActive(n int) {
	ledsActive.Set(float64(n))
}

// RecordLEDFailure counts a dropped LED and updates the active gauge.
func RecordLEDFailure(led string, remaining int) {
	ledFailuresTotal.WithLabelValues(led).Inc()
	ledsActive.Set(float64(remaining))
}

// ObserveFade records the duration of a fade and whether it failed.
func ObserveFade(d time.Duration, failed bool) {
	fadeSeconds.Observe(d.Seconds())
	if failed {
		fadeErrorsTotal.Inc()
	}
}

// RecordConfigReload counts an applied reload.
func RecordConfigReload() {
	configReloadsTotal.Inc()
}
