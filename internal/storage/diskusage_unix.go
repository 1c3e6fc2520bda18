//go:build unix

package storage

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// FreeSpace returns the free bytes available to unprivileged writers on
// the filesystem backing the directory.
func (d *Dir) FreeSpace() (uint64, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(d.root, &st); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", d.root, err)
	}
	return st.Bavail * uint64(st.Bsize), nil
}
