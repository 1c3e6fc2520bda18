// Package storage is the filesystem collaborator consumed by the
// protocol engine: directory listing plus read/write access to files in
// a single working directory. All access is by bare filename; paths
// never escape the root.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidName is returned for names that are empty, hidden, or
// contain path separators.
var ErrInvalidName = errors.New("invalid file name")

// Dir provides file access scoped to one directory.
type Dir struct {
	root string
}

// NewDir creates a Dir rooted at root. The directory must exist.
func NewDir(root string) (*Dir, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("storage root %q: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage root %q is not a directory", root)
	}
	return &Dir{root: root}, nil
}

// Root returns the directory path this Dir is scoped to.
func (d *Dir) Root() string { return d.root }

// cleanName validates a client-supplied file name. Only bare names of
// regular, non-hidden files are ever exchanged over the protocol.
func cleanName(name string) (string, error) {
	if name == "" || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if strings.ContainsAny(name, `/\`) || name != filepath.Base(name) {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return name, nil
}

// List returns the sorted names of regular files in the directory.
// Hidden files are excluded. An empty directory yields an empty slice,
// not an error.
func (d *Dir) List() ([]string, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", d.root, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Exists reports whether name is a regular file in the directory.
func (d *Dir) Exists(name string) bool {
	clean, err := cleanName(name)
	if err != nil {
		return false
	}
	info, err := os.Stat(filepath.Join(d.root, clean))
	return err == nil && info.Mode().IsRegular()
}

// Open opens name for reading and returns the handle plus its size at
// open time.
func (d *Dir) Open(name string) (*os.File, int64, error) {
	clean, err := cleanName(name)
	if err != nil {
		return nil, 0, err
	}

	f, err := os.Open(filepath.Join(d.root, clean))
	if err != nil {
		return nil, 0, fmt.Errorf("open %s: %w", clean, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("stat %s: %w", clean, err)
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, 0, fmt.Errorf("%w: %q is not a regular file", ErrInvalidName, clean)
	}
	return f, info.Size(), nil
}

// Abs returns the absolute path of name within the directory. Used for
// post-transfer hashing.
func (d *Dir) Abs(name string) (string, error) {
	clean, err := cleanName(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(d.root, clean), nil
}

// NextUnique returns name if it is unused, otherwise the first free
// collision variant: "name(1).ext", "name(2).ext", ...
func (d *Dir) NextUnique(name string) (string, error) {
	clean, err := cleanName(name)
	if err != nil {
		return "", err
	}

	ext := filepath.Ext(clean)
	stem := strings.TrimSuffix(clean, ext)
	candidate := clean
	for n := 1; d.Exists(candidate); n++ {
		candidate = fmt.Sprintf("%s(%d)%s", stem, n, ext)
	}
	return candidate, nil
}

// PendingFile is an in-progress write. Bytes go to a hidden temp file
// in the same directory; Commit renames it over the target so readers
// never observe a partial file.
type PendingFile struct {
	f       *os.File
	tmpPath string
	dstPath string
	done    bool
}

// Create starts an atomic write of name. The returned PendingFile must
// be finished with Commit or Abort.
func (d *Dir) Create(name string) (*PendingFile, error) {
	clean, err := cleanName(name)
	if err != nil {
		return nil, err
	}

	tmpPath := filepath.Join(d.root, "."+clean+"."+uuid.NewString()+".tmp")
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create temp for %s: %w", clean, err)
	}

	return &PendingFile{
		f:       f,
		tmpPath: tmpPath,
		dstPath: filepath.Join(d.root, clean),
	}, nil
}

// Write appends to the pending temp file.
func (p *PendingFile) Write(b []byte) (int, error) {
	return p.f.Write(b)
}

// TempPath returns the temp file path, for hashing before commit.
func (p *PendingFile) TempPath() string { return p.tmpPath }

// Commit flushes the temp file and atomically renames it over the
// target, replacing any existing file.
func (p *PendingFile) Commit() error {
	if p.done {
		return nil
	}
	p.done = true

	if err := p.f.Sync(); err != nil {
		p.f.Close()
		os.Remove(p.tmpPath)
		return fmt.Errorf("sync %s: %w", p.tmpPath, err)
	}
	if err := p.f.Close(); err != nil {
		os.Remove(p.tmpPath)
		return fmt.Errorf("close %s: %w", p.tmpPath, err)
	}
	if err := os.Rename(p.tmpPath, p.dstPath); err != nil {
		os.Remove(p.tmpPath)
		return fmt.Errorf("commit %s: %w", p.dstPath, err)
	}
	return nil
}

// Abort discards the pending write, removing the temp file.
func (p *PendingFile) Abort() {
	if p.done {
		return
	}
	p.done = true
	p.f.Close()
	os.Remove(p.tmpPath)
}
