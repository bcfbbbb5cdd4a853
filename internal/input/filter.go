package input

import (
	"fmt"

	"github.com/smazurov/kbdlight/pkg/linuxinput/evdev"
)

// Capabilities is the subset of device queries a Filter needs.
type Capabilities interface {
	Name() (string, error)
	SupportsRepeat() (bool, error)
	HasKey(code uint16) (bool, error)
	HasProperty(prop uint16) (bool, error)
}

// Filter decides whether a device is worth watching for activity.
// Query errors are returned and the caller skips the device.
type Filter interface {
	Matches(dev Capabilities) (bool, error)
}

// NameFilter selects devices whose kernel name is in a fixed set.
type NameFilter struct {
	names map[string]struct{}
}

// NewNameFilter builds a NameFilter from names.
func NewNameFilter(names []string) *NameFilter {
	f := &NameFilter{names: make(map[string]struct{}, len(names))}
	for _, n := range names {
		f.names[n] = struct{}{}
	}
	return f
}

// Matches implements Filter.
func (f *NameFilter) Matches(dev Capabilities) (bool, error) {
	name, err := dev.Name()
	if err != nil {
		return false, err
	}
	_, ok := f.names[name]
	return ok, nil
}

func (f *NameFilter) String() string {
	return fmt.Sprintf("names(%d)", len(f.names))
}

// AutoFilter selects keyboards and trackpads.
//
// Keyboards are recognised by kernel key auto-repeat. Trackpads report
// BTN_TOUCH, and lack INPUT_PROP_DIRECT, which touchscreens and drawing
// tablets set.
type AutoFilter struct{}

// Matches implements Filter.
func (AutoFilter) Matches(dev Capabilities) (bool, error) {
	repeat, err := dev.SupportsRepeat()
	if err != nil {
		return false, err
	}
	if repeat {
		return true, nil
	}

	touch, err := dev.HasKey(evdev.BtnTouch)
	if err != nil || !touch {
		return false, err
	}

	direct, err := dev.HasProperty(evdev.InputPropDirect)
	if err != nil {
		return false, err
	}
	return !direct, nil
}

func (AutoFilter) String() string {
	return "auto"
}

// FilterFromNames returns a NameFilter for a non-empty list and AutoFilter
// otherwise.
func FilterFromNames(names []string) Filter {
	if len(names) == 0 {
		return AutoFilter{}
	}
	return NewNameFilter(names)
}
