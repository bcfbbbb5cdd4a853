//go:build linux

package evdev

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// ioctl direction bits and field widths from <asm-generic/ioctl.h>.
const (
	iocNRBits   = 8
	iocTypeBits = 8
	iocSizeBits = 14

	iocNRShift   = 0
	iocTypeShift = iocNRShift + iocNRBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits

	iocRead = 2
)

func ioc(dir, typ, nr, size uintptr) uintptr {
	return dir<<iocDirShift | typ<<iocTypeShift | nr<<iocNRShift | size<<iocSizeShift
}

// eviocgname returns EVIOCGNAME(len).
func eviocgname(size int) uintptr {
	return ioc(iocRead, 'E', 0x06, uintptr(size))
}

// eviocgprop returns EVIOCGPROP(len).
func eviocgprop(size int) uintptr {
	return ioc(iocRead, 'E', 0x09, uintptr(size))
}

// eviocgbit returns EVIOCGBIT(ev, len). ev=0 queries the supported event types.
func eviocgbit(ev uint16, size int) uintptr {
	return ioc(iocRead, 'E', 0x20+uintptr(ev), uintptr(size))
}

func ioctl(fd uintptr, req uintptr, buf []byte) (int, error) {
	r, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, req, uintptr(unsafe.Pointer(&buf[0])))
	if errno != 0 {
		return 0, errno
	}
	return int(r), nil
}
