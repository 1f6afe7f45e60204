//go:build !linux

package rebuild

import "os"

// deviceSize falls back to Stat on platforms without the block-device
// size ioctl; image files work everywhere, raw devices need linux.
func deviceSize(f *os.File) (int64, error) {
	fi, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}
