package events

import "time"

// Event type constants for kelindar/event.
const (
	TypeDeviceOpened uint32 = iota + 1
	TypeDeviceClosed
	TypeLEDFailed
	TypeStateChanged
	TypeFadeCompleted
	TypeConfigReloaded
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// DeviceOpenedEvent is published when an input device passes the filter and
// a reader starts watching it.
type DeviceOpenedEvent struct {
	Path      string
	Name      string
	Timestamp time.Time
}

// Type returns the event type identifier for DeviceOpenedEvent.
func (e DeviceOpenedEvent) Type() uint32 { return TypeDeviceOpened }

// DeviceClosedEvent is published when a reader stops. Err is nil when the
// reader was stopped by shutdown.
type DeviceClosedEvent struct {
	Path      string
	Name      string
	Removed   bool
	Err       error
	Timestamp time.Time
}

// Type returns the event type identifier for DeviceClosedEvent.
func (e DeviceClosedEvent) Type() uint32 { return TypeDeviceClosed }

// LEDFailedEvent is published when an LED is dropped from the active set.
type LEDFailedEvent struct {
	LED       string
	Remaining int
	Err       error
	Timestamp time.Time
}

// Type returns the event type identifier for LEDFailedEvent.
func (e LEDFailedEvent) Type() uint32 { return TypeLEDFailed }

// StateChangedEvent is published when the backlight switches on or off.
type StateChangedEvent struct {
	On        bool
	Timestamp time.Time
}

// Type returns the event type identifier for StateChangedEvent.
func (e StateChangedEvent) Type() uint32 { return TypeStateChanged }

// FadeCompletedEvent reports the outcome of one fade.
type FadeCompletedEvent struct {
	On        bool
	Duration  time.Duration
	Err       error
	Timestamp time.Time
}

// Type returns the event type identifier for FadeCompletedEvent.
func (e FadeCompletedEvent) Type() uint32 { return TypeFadeCompleted }

// ConfigReloadedEvent is published after live tuning has been applied.
type ConfigReloadedEvent struct {
	Timeout    time.Duration
	Fade       time.Duration
	Brightness int
	Timestamp  time.Time
}

// Type returns the event type identifier for ConfigReloadedEvent.
func (e ConfigReloadedEvent) Type() uint32 { return TypeConfigReloaded }
