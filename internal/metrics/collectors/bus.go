// Package collectors feeds daemon events into the Prometheus metrics.
package collectors

import (
	"sync"

	"github.com/smazurov/kbdlight/internal/events"
	"github.com/smazurov/kbdlight/internal/metrics"
)

// BusCollector subscribes to the event bus and records every event it
// understands.
type BusCollector struct {
	bus    *events.Bus
	mu     sync.Mutex
	unsubs []func()
}

// NewBusCollector creates a collector for bus. Call Start to subscribe.
func NewBusCollector(bus *events.Bus) *BusCollector {
	return &BusCollector{bus: bus}
}

// Start subscribes to the bus. Calling Start twice is a no-op.
func (c *BusCollector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unsubs != nil {
		return
	}

	c.unsubs = []func(){
		c.bus.Subscribe(func(events.DeviceOpenedEvent) {
			metrics.InputDeviceOpened()
		}),
		c.bus.Subscribe(func(e events.DeviceClosedEvent) {
			metrics.InputDeviceClosed(!e.Removed && e.Err != nil)
		}),
		c.bus.Subscribe(func(e events.LEDFailedEvent) {
			metrics.RecordLEDFailure(e.LED, e.Remaining)
		}),
		c.bus.Subscribe(func(e events.StateChangedEvent) {
			metrics.SetBacklightOn(e.On)
		}),
		c.bus.Subscribe(func(e events.FadeCompletedEvent) {
			metrics.ObserveFade(e.Duration, e.Err != nil)
		}),
		c.bus.Subscribe(func(events.ConfigReloadedEvent) {
			metrics.RecordConfigReload()
		}),
	}
}

// Stop unsubscribes from the bus.
func (c *BusCollector) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, unsub := range c.unsubs {
		unsub()
	}
	c.unsubs = nil
}
