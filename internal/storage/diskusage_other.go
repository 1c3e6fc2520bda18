//go:build !unix

package storage

import "errors"

// FreeSpace is unsupported on this platform; callers skip the check.
func (d *Dir) FreeSpace() (uint64, error) {
	return 0, errors.New("free space query not supported on this platform")
}
