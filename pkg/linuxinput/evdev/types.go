//go:build linux

package evdev

import "golang.org/x/sys/unix"

// Event types, codes and properties from <linux/input-event-codes.h>.
const (
	EvSyn = 0x00
	EvKey = 0x01
	EvRel = 0x02
	EvAbs = 0x03
	EvRep = 0x14
	EvMax = 0x1f

	KeyMax = 0x2ff

	BtnTouch = 0x14a

	InputPropPointer = 0x00
	InputPropDirect  = 0x01
	InputPropMax     = 0x1f
)

// Event mirrors struct input_event.
type Event struct {
	Time  unix.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

// Bitmap is a kernel capability bitmap as returned by EVIOCGBIT/EVIOCGPROP.
type Bitmap []byte

// Has reports whether bit n is set.
func (b Bitmap) Has(n uint16) bool {
	idx := int(n / 8)
	if idx >= len(b) {
		return false
	}
	return b[idx]&(1<<(n%8)) != 0
}

// Count returns the number of set bits.
func (b Bitmap) Count() int {
	c := 0
	for _, v := range b {
		for v != 0 {
			v &= v - 1
			c++
		}
	}
	return c
}

func bitmapSize(maxBit int) int {
	return maxBit/8 + 1
}
