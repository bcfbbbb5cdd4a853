//go:build linux

package input

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/smazurov/kbdlight/internal/logging"
	"github.com/smazurov/kbdlight/pkg/linuxinput/evdev"
	"github.com/smazurov/kbdlight/pkg/linuxinput/hotplug"
)

// NetlinkSource is a HotplugSource backed by a netlink uevent socket.
// Create it before Spawn so no device added during enumeration is missed.
type NetlinkSource struct {
	mon      *hotplug.Monitor
	logger   logging.Logger
	overruns uint64
}

// NewNetlinkSource binds a uevent socket to group, filtered to the input
// subsystem.
func NewNetlinkSource(group hotplug.Group, logger logging.Logger) (*NetlinkSource, error) {
	mon, err := hotplug.NewMonitor(group)
	if err != nil {
		return nil, fmt.Errorf("open %s uevent socket: %w", group, err)
	}
	mon.AddSubsystemFilter(hotplug.SubsystemInput)
	return &NetlinkSource{mon: mon, logger: logger}, nil
}

// Next implements HotplugSource. Only "add" events for eventN nodes are
// returned.
func (s *NetlinkSource) Next(ctx context.Context) (string, error) {
	for {
		ev, err := s.mon.Next(ctx)
		s.checkOverruns()
		if err != nil {
			return "", err
		}
		if path, ok := addedEventNode(ev); ok {
			return path, nil
		}
	}
}

// Close releases the socket.
func (s *NetlinkSource) Close() error {
	return s.mon.Close()
}

func (s *NetlinkSource) checkOverruns() {
	n := s.mon.Overruns()
	if n != s.overruns {
		s.logger.Warn("Hotplug events lost to receive buffer overrun", "overruns", n-s.overruns)
		s.overruns = n
	}
}

func addedEventNode(ev hotplug.Event) (string, bool) {
	if ev.Action != hotplug.ActionAdd {
		return "", false
	}
	node, ok := ev.DeviceNode()
	if !ok {
		return "", false
	}
	if _, ok := evdev.EventNumber(filepath.Base(node)); !ok {
		return "", false
	}
	return node, true
}
