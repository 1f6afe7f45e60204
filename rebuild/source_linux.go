//go:build linux

package rebuild

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// deviceSize returns the byte size of a regular image file via Stat and of
// a block device via the BLKGETSIZE64 ioctl.
func deviceSize(f *os.File) (int64, error) {
	fi, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if fi.Mode().IsRegular() {
		return fi.Size(), nil
	}
	var size uint64
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), unix.BLKGETSIZE64, uintptr(unsafe.Pointer(&size)))
	if errno != 0 {
		return 0, errno
	}
	return int64(size), nil
}
