package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/waftester/injectscan/pkg/defaults"
	"github.com/waftester/injectscan/pkg/jsonutil"
	"github.com/waftester/injectscan/pkg/scan"
)

// indexFile is the store's on-disk index name.
const indexFile = "jobs.json"

// File is a Memory store mirrored to a JSON index in a directory.
type File struct {
	*Memory
	dir string
}

// Open loads or creates the store in dir.
func Open(dir string) (*File, error) {
	if err := os.MkdirAll(dir, defaults.DirPermission); err != nil {
		return nil, fmt.Errorf("store: create %s: %w", dir, err)
	}
	f := &File{Memory: NewMemory(), dir: dir}
	if err := f.load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	f.persist = f.write
	return f, nil
}

var _ scan.Store = (*File)(nil)

// Path returns the index file path.
func (f *File) Path() string {
	return filepath.Join(f.dir, indexFile)
}

func (f *File) load() error {
	data, err := os.ReadFile(f.Path())
	if err != nil {
		return err
	}
	var idx index
	if err := jsonutil.Unmarshal(data, &idx); err != nil {
		return fmt.Errorf("store: decode %s: %w", f.Path(), err)
	}
	if idx.Jobs != nil {
		f.idx = idx
	}
	return nil
}

// write replaces the index atomically: temp file, then rename.
func (f *File) write(idx *index) error {
	data, err := jsonutil.MarshalIndent(idx)
	if err != nil {
		return err
	}
	tmp := f.Path() + ".tmp"
	if err := os.WriteFile(tmp, data, defaults.FilePermission); err != nil {
		return err
	}
	if err := os.Rename(tmp, f.Path()); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
