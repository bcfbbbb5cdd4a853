//go:build linux

// Package hotplug provides pure Go device hotplug monitoring using netlink.
//
// This package monitors device events without cgo by directly listening to
// NETLINK_KOBJECT_UEVENT messages, either as broadcast by the kernel or as
// re-broadcast by udev after it has finished processing a device.
package hotplug

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// Action constants for device events.
const (
	ActionAdd     = "add"
	ActionRemove  = "remove"
	ActionChange  = "change"
	ActionMove    = "move"
	ActionBind    = "bind"
	ActionUnbind  = "unbind"
	ActionOnline  = "online"
	ActionOffline = "offline"
)

// Common subsystem names.
const (
	SubsystemInput = "input"
	SubsystemLEDs  = "leds"
	SubsystemUSB   = "usb"
	SubsystemHID   = "hid"
)

// Group selects which netlink multicast group to listen on.
type Group uint32

const (
	// GroupKernel receives events straight from the kernel, before udev has
	// created symlinks or applied permissions.
	GroupKernel Group = 1
	// GroupUdev receives events re-broadcast by udev once rules have run.
	GroupUdev Group = 2
)

// ParseGroup maps a configuration string to a Group.
func ParseGroup(s string) (Group, bool) {
	switch strings.ToLower(s) {
	case "kernel":
		return GroupKernel, true
	case "udev", "":
		return GroupUdev, true
	default:
		return 0, false
	}
}

func (g Group) String() string {
	switch g {
	case GroupKernel:
		return "kernel"
	case GroupUdev:
		return "udev"
	default:
		return "unknown"
	}
}

// Event represents a device event.
type Event struct {
	Action    string            // "add", "remove", "change", etc.
	KObj      string            // Kernel object path: /devices/platform/i8042/...
	Subsystem string            // "input", "leds", ...
	DevType   string            // Device type if available
	DevName   string            // Device node name, "input/event3" or "/dev/input/event3"
	DevPath   string            // sysfs device path
	Env       map[string]string // All environment variables from the event
}

// Monitor listens for device events via netlink.
type Monitor struct {
	fd        int
	group     Group
	filters   map[string]struct{}
	filtersMu sync.RWMutex
	overruns  atomic.Uint64
	buf       []byte
}

// netlinkKobjectUEvent is the netlink protocol for kernel object events.
const netlinkKobjectUEvent = unix.NETLINK_KOBJECT_UEVENT

// receiveBufferSize is requested for the socket so bursts of events during
// docking or resume do not overflow the queue.
const receiveBufferSize = 1 << 20

// NewMonitor creates a new device event monitor bound to group.
func NewMonitor(group Group) (*Monitor, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, netlinkKobjectUEvent)
	if err != nil {
		return nil, err
	}

	// Best effort: unprivileged processes may be capped by rmem_max.
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, receiveBufferSize)

	addr := &unix.SockaddrNetlink{
		Family: unix.AF_NETLINK,
		Groups: uint32(group),
	}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return nil, err
	}

	// Read timeout so the context is checked periodically.
	tv := unix.Timeval{Sec: 1}
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		unix.Close(fd)
		return nil, err
	}

	return &Monitor{
		fd:      fd,
		group:   group,
		filters: make(map[string]struct{}),
		buf:     make([]byte, 16384),
	}, nil
}

// Group returns the multicast group the monitor is bound to.
func (m *Monitor) Group() Group {
	return m.group
}

// AddSubsystemFilter adds a subsystem filter. Only events from matching
// subsystems will be returned. If no filters are added, all events pass through.
// This method is safe for concurrent use.
func (m *Monitor) AddSubsystemFilter(subsystem string) {
	m.filtersMu.Lock()
	m.filters[subsystem] = struct{}{}
	m.filtersMu.Unlock()
}

// Overruns returns how many times the socket receive queue overflowed.
// Events lost to an overrun are not recoverable.
func (m *Monitor) Overruns() uint64 {
	return m.overruns.Load()
}

// Close releases the monitor resources.
func (m *Monitor) Close() error {
	return unix.Close(m.fd)
}

// Run starts the monitor and sends events to the provided channel.
// It blocks until the context is cancelled or the socket fails.
// The events channel is closed when Run returns.
func (m *Monitor) Run(ctx context.Context, events chan<- Event) error {
	defer close(events)

	for {
		event, err := m.Next(ctx)
		if err != nil {
			return err
		}

		select {
		case events <- event:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Next blocks until the next event passing the subsystem filters arrives,
// the context is cancelled, or the socket fails.
func (m *Monitor) Next(ctx context.Context) (Event, error) {
	for {
		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		default:
		}

		n, from, err := unix.Recvfrom(m.fd, m.buf, 0)
		if err != nil {
			switch {
			case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
				continue
			case errors.Is(err, unix.ENOBUFS):
				m.overruns.Add(1)
				continue
			}
			return Event{}, err
		}

		if n == 0 {
			continue
		}

		// Only trust messages from the kernel (pid 0) on the kernel group.
		// udev messages come from the udevd process.
		if nl, ok := from.(*unix.SockaddrNetlink); ok && m.group == GroupKernel && nl.Pid != 0 {
			continue
		}

		event := ParseUEvent(m.buf[:n])
		if event == nil {
			continue
		}

		m.filtersMu.RLock()
		filterCount := len(m.filters)
		_, matchesFilter := m.filters[event.Subsystem]
		m.filtersMu.RUnlock()
		if filterCount > 0 && !matchesFilter {
			continue
		}

		return *event, nil
	}
}

// libudev monitor header layout (struct monitor_netlink_header).
const (
	udevPrefix          = "libudev\x00"
	udevMagic           = 0xfeedcafe
	udevHeaderMinLen    = 40
	udevPropsOffsetAt   = 16
	udevPropsLengthAt   = 20
	udevMagicOffsetAt   = 8
	kernelHeaderSepByte = '@'
)

// ParseUEvent parses a uevent message.
//
// Kernel format: "ACTION@KOBJ\0KEY=VALUE\0KEY=VALUE\0..."
// udev format: a "libudev" binary header followed by "KEY=VALUE\0" pairs.
func ParseUEvent(data []byte) *Event {
	if len(data) == 0 {
		return nil
	}

	if bytes.HasPrefix(data, []byte(udevPrefix)) {
		return parseUdev(data)
	}

	parts := bytes.Split(data, []byte{0})
	if len(parts) < 1 || len(parts[0]) == 0 {
		return nil
	}

	// First part is "ACTION@KOBJ"
	header := string(parts[0])
	atIdx := strings.IndexByte(header, kernelHeaderSepByte)
	if atIdx < 1 {
		return nil
	}

	event := &Event{
		Action: header[:atIdx],
		KObj:   header[atIdx+1:],
		Env:    make(map[string]string),
	}
	parseProperties(event, parts[1:])
	return event
}

func parseUdev(data []byte) *Event {
	if len(data) < udevHeaderMinLen {
		return nil
	}
	if binary.BigEndian.Uint32(data[udevMagicOffsetAt:]) != udevMagic {
		return nil
	}

	off := int(binary.NativeEndian.Uint32(data[udevPropsOffsetAt:]))
	length := int(binary.NativeEndian.Uint32(data[udevPropsLengthAt:]))
	if off < udevHeaderMinLen || length <= 0 || off+length > len(data) {
		return nil
	}

	event := &Event{Env: make(map[string]string)}
	parseProperties(event, bytes.Split(data[off:off+length], []byte{0}))

	event.Action = event.Env["ACTION"]
	event.KObj = event.Env["DEVPATH"]
	if event.Action == "" {
		return nil
	}
	return event
}

func parseProperties(event *Event, parts [][]byte) {
	for _, part := range parts {
		if len(part) == 0 {
			continue
		}

		kv := string(part)
		eqIdx := strings.IndexByte(kv, '=')
		if eqIdx < 1 {
			continue
		}

		key := kv[:eqIdx]
		value := kv[eqIdx+1:]
		event.Env[key] = value

		switch key {
		case "SUBSYSTEM":
			event.Subsystem = value
		case "DEVTYPE":
			event.DevType = value
		case "DEVNAME":
			event.DevName = value
		case "DEVPATH":
			event.DevPath = value
		}
	}
}

// DeviceNode returns the /dev path of the event's device node, if any.
// The kernel reports DEVNAME relative to /dev, udev reports it absolute.
func (e Event) DeviceNode() (string, bool) {
	switch {
	case e.DevName == "":
		return "", false
	case strings.HasPrefix(e.DevName, "/"):
		return e.DevName, true
	default:
		return "/dev/" + e.DevName, true
	}
}
