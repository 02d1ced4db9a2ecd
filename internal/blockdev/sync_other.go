//go:build !linux

package blockdev

import "os"

func datasync(f *os.File) error {
	return f.Sync()
}
