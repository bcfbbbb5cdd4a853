package input

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smazurov/kbdlight/pkg/linuxinput/evdev"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// fakeDevice describes an in-memory input device. Every open returns a new
// fakeHandle sharing the wake channel, so each value sent on wake makes one
// WaitReadable call return it.
type fakeDevice struct {
	path     string
	name     string
	repeat   bool
	touch    bool
	direct   bool
	queryErr error

	// batch is how many events each ReadEvents call reports; 0 means the
	// queue is empty.
	batch   int
	readErr error

	wake  chan error
	reads atomic.Int32

	mu      sync.Mutex
	handles []*fakeHandle
}

func newFakeDevice(path, name string) *fakeDevice {
	return &fakeDevice{
		path: path,
		name: name,
		wake: make(chan error, 4),
	}
}

func (d *fakeDevice) open() *fakeHandle {
	h := &fakeHandle{fakeDevice: d, closed: make(chan struct{})}
	d.mu.Lock()
	d.handles = append(d.handles, h)
	d.mu.Unlock()
	return h
}

// lastHandle returns the most recently opened handle, or nil.
func (d *fakeDevice) lastHandle() *fakeHandle {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.handles) == 0 {
		return nil
	}
	return d.handles[len(d.handles)-1]
}

func (d *fakeDevice) opens() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.handles)
}

type fakeHandle struct {
	*fakeDevice
	closed    chan struct{}
	closeOnce sync.Once
}

func (h *fakeHandle) Path() string { return h.path }

func (h *fakeHandle) Name() (string, error) {
	if h.queryErr != nil {
		return "", h.queryErr
	}
	return h.name, nil
}

func (h *fakeHandle) SupportsRepeat() (bool, error) {
	return h.repeat, h.queryErr
}

func (h *fakeHandle) HasKey(code uint16) (bool, error) {
	return code == evdev.BtnTouch && h.touch, h.queryErr
}

func (h *fakeHandle) HasProperty(prop uint16) (bool, error) {
	return prop == evdev.InputPropDirect && h.direct, h.queryErr
}

func (h *fakeHandle) WaitReadable() error {
	select {
	case err := <-h.wake:
		return err
	case <-h.closed:
		return os.ErrClosed
	}
}

func (h *fakeHandle) ReadEvents(buf []evdev.Event) (int, error) {
	h.reads.Add(1)
	if h.readErr != nil {
		return 0, h.readErr
	}
	if h.batch == 0 {
		return 0, evdev.ErrWouldBlock
	}
	return min(h.batch, len(buf)), nil
}

func (h *fakeHandle) Close() error {
	h.closeOnce.Do(func() { close(h.closed) })
	return nil
}

func (h *fakeHandle) isClosed() bool {
	select {
	case <-h.closed:
		return true
	default:
		return false
	}
}

// fakeSource is a HotplugSource fed from tests.
type fakeSource struct {
	paths chan string
	errc  chan error
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		paths: make(chan string, 4),
		errc:  make(chan error, 1),
	}
}

func (s *fakeSource) Next(ctx context.Context) (string, error) {
	select {
	case p := <-s.paths:
		return p, nil
	case err := <-s.errc:
		return "", err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// deviceSet maps paths to fake devices for Options.Open and Options.List.
type deviceSet struct {
	mu      sync.Mutex
	devices map[string]*fakeDevice
	order   []string
	openErr map[string]error
}

func newDeviceSet(devs ...*fakeDevice) *deviceSet {
	s := &deviceSet{
		devices: make(map[string]*fakeDevice),
		openErr: make(map[string]error),
	}
	for _, d := range devs {
		s.add(d)
	}
	return s
}

func (s *deviceSet) add(d *fakeDevice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[d.path] = d
	s.order = append(s.order, d.path)
}

func (s *deviceSet) list() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...), nil
}

func (s *deviceSet) open(path string) (Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.openErr[path]; err != nil {
		return nil, err
	}
	d, ok := s.devices[path]
	if !ok {
		return nil, os.ErrNotExist
	}
	return d.open(), nil
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}
