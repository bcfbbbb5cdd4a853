//go:build linux

// Package evdev provides a small pure Go binding to Linux evdev input nodes.
//
// Devices are opened non-blocking and registered with the Go runtime poller,
// so WaitReadable parks the calling goroutine instead of spinning or holding
// an OS thread.
package evdev

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// DevInputDir is where the kernel exposes evdev nodes.
const DevInputDir = "/dev/input"

var (
	// ErrWouldBlock is returned by ReadEvents when no events are queued.
	ErrWouldBlock = errors.New("evdev: no events pending")
	// ErrDeviceGone is returned once the kernel has removed the device.
	ErrDeviceGone = errors.New("evdev: device removed")
)

const eventSize = int(unsafe.Sizeof(Event{}))

// Device is an open evdev node.
type Device struct {
	path string
	file *os.File
	conn syscall.RawConn
}

// Open opens the evdev node at path for non-blocking reads.
func Open(path string) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDONLY|syscall.O_NONBLOCK|syscall.O_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	conn, err := f.SyscallConn()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("raw conn for %s: %w", path, err)
	}
	return &Device{path: path, file: f, conn: conn}, nil
}

// Path returns the device node path.
func (d *Device) Path() string {
	return d.path
}

// Close closes the device node. It is safe to call from another goroutine to
// interrupt WaitReadable.
func (d *Device) Close() error {
	return d.file.Close()
}

// Name returns the kernel-reported device name.
func (d *Device) Name() (string, error) {
	buf := make([]byte, 256)
	if _, err := d.query(eviocgname(len(buf)), buf); err != nil {
		return "", fmt.Errorf("EVIOCGNAME %s: %w", d.path, err)
	}
	return cstr(buf), nil
}

// EventTypes returns the bitmap of supported event types.
func (d *Device) EventTypes() (Bitmap, error) {
	buf := make([]byte, bitmapSize(EvMax))
	if _, err := d.query(eviocgbit(0, len(buf)), buf); err != nil {
		return nil, fmt.Errorf("EVIOCGBIT %s: %w", d.path, err)
	}
	return Bitmap(buf), nil
}

// SupportsRepeat reports whether the device supports kernel key auto-repeat.
func (d *Device) SupportsRepeat() (bool, error) {
	types, err := d.EventTypes()
	if err != nil {
		return false, err
	}
	return types.Has(EvRep), nil
}

// Keys returns the bitmap of supported EV_KEY codes.
func (d *Device) Keys() (Bitmap, error) {
	buf := make([]byte, bitmapSize(KeyMax))
	if _, err := d.query(eviocgbit(EvKey, len(buf)), buf); err != nil {
		return nil, fmt.Errorf("EVIOCGBIT(EV_KEY) %s: %w", d.path, err)
	}
	return Bitmap(buf), nil
}

// HasKey reports whether the device can emit the given key or button code.
func (d *Device) HasKey(code uint16) (bool, error) {
	keys, err := d.Keys()
	if err != nil {
		return false, err
	}
	return keys.Has(code), nil
}

// Properties returns the INPUT_PROP_* bitmap.
func (d *Device) Properties() (Bitmap, error) {
	buf := make([]byte, bitmapSize(InputPropMax))
	if _, err := d.query(eviocgprop(len(buf)), buf); err != nil {
		return nil, fmt.Errorf("EVIOCGPROP %s: %w", d.path, err)
	}
	return Bitmap(buf), nil
}

// HasProperty reports whether the device declares the given input property.
func (d *Device) HasProperty(prop uint16) (bool, error) {
	props, err := d.Properties()
	if err != nil {
		return false, err
	}
	return props.Has(prop), nil
}

// WaitReadable blocks until at least one event can be read or the device
// reports an error or hangup.
func (d *Device) WaitReadable() error {
	var perr error
	err := d.conn.Read(func(fd uintptr) bool {
		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		for {
			n, err := unix.Poll(fds, 0)
			if errors.Is(err, unix.EINTR) {
				continue
			}
			if err != nil {
				perr = err
				return true
			}
			if n == 0 {
				// Not ready: let the runtime poller park us.
				return false
			}
			break
		}
		if fds[0].Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
			perr = ErrDeviceGone
		}
		return true
	})
	if err != nil {
		return fmt.Errorf("wait %s: %w", d.path, err)
	}
	if perr != nil {
		return fmt.Errorf("poll %s: %w", d.path, perr)
	}
	return nil
}

// ReadEvents reads as many queued events as fit in buf without blocking.
// It returns ErrWouldBlock when the kernel queue is empty.
func (d *Device) ReadEvents(buf []Event) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	raw := unsafe.Slice((*byte)(unsafe.Pointer(&buf[0])), len(buf)*eventSize)

	var n int
	var rerr error
	err := d.conn.Read(func(fd uintptr) bool {
		n, rerr = unix.Read(int(fd), raw)
		return true
	})
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", d.path, err)
	}
	switch {
	case errors.Is(rerr, unix.EAGAIN):
		return 0, ErrWouldBlock
	case errors.Is(rerr, unix.ENODEV):
		return 0, fmt.Errorf("read %s: %w", d.path, ErrDeviceGone)
	case rerr != nil:
		return 0, fmt.Errorf("read %s: %w", d.path, rerr)
	}
	return n / eventSize, nil
}

func (d *Device) query(req uintptr, buf []byte) (int, error) {
	var n int
	var qerr error
	err := d.conn.Control(func(fd uintptr) {
		n, qerr = ioctl(fd, req, buf)
	})
	if err != nil {
		return 0, err
	}
	return n, qerr
}

// ListPaths returns the evdev nodes under DevInputDir ordered by event number.
func ListPaths() ([]string, error) {
	return ListPathsIn(DevInputDir)
}

// ListPathsIn returns the eventN nodes in dir ordered by N.
func ListPathsIn(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, entry := range entries {
		if _, ok := EventNumber(entry.Name()); !ok {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}

	sort.Slice(paths, func(i, j int) bool {
		a, _ := EventNumber(filepath.Base(paths[i]))
		b, _ := EventNumber(filepath.Base(paths[j]))
		return a < b
	})
	return paths, nil
}

// EventNumber parses N out of an "eventN" node name.
func EventNumber(name string) (int, bool) {
	rest, ok := strings.CutPrefix(name, "event")
	if !ok || rest == "" {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// Info is a snapshot of the capabilities relevant to device selection.
type Info struct {
	Path   string
	Name   string
	Repeat bool
	Touch  bool
	Direct bool
	Keys   int
}

// Describe opens path, queries its capabilities and closes it again.
func Describe(path string) (Info, error) {
	dev, err := Open(path)
	if err != nil {
		return Info{}, err
	}
	defer dev.Close()

	info := Info{Path: path}
	if info.Name, err = dev.Name(); err != nil {
		return info, err
	}
	if info.Repeat, err = dev.SupportsRepeat(); err != nil {
		return info, err
	}
	keys, err := dev.Keys()
	if err != nil {
		return info, err
	}
	info.Touch = keys.Has(BtnTouch)
	info.Keys = keys.Count()
	if info.Direct, err = dev.HasProperty(InputPropDirect); err != nil {
		return info, err
	}
	return info, nil
}

// cstr converts a null-terminated byte slice to a Go string.
func cstr(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}
