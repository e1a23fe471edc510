package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Disk stores files under a public root directory. Paths passed in are
// relative to the root and use forward slashes.
type Disk struct {
	root string
}

// NewDisk creates a Disk rooted at root.
func NewDisk(root string) *Disk {
	return &Disk{root: root}
}

// Root returns the storage root.
func (d *Disk) Root() string {
	return d.root
}

// Path returns the absolute location of rel.
func (d *Disk) Path(rel string) string {
	return filepath.Join(d.root, filepath.FromSlash(rel))
}

// Save writes data to rel atomically, creating parent directories.
func (d *Disk) Save(ctx context.Context, rel string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dst := d.Path(rel)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create dir for %s: %w", rel, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", rel, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", rel, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", rel, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod %s: %w", rel, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("rename %s: %w", rel, err)
	}
	return nil
}

// RemoveOlderThan deletes files under dir last modified at or before cutoff
// and returns how many were removed. A missing dir is not an error.
func (d *Disk) RemoveOlderThan(ctx context.Context, dir string, cutoff time.Time) (int, error) {
	var removed int
	err := filepath.WalkDir(d.Path(dir), func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if entry.IsDir() {
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			return err
		}
		if info.ModTime().After(cutoff) {
			return nil
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		removed++
		return nil
	})
	return removed, err
}

// RemoveAll deletes dir and everything below it.
func (d *Disk) RemoveAll(ctx context.Context, dir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return os.RemoveAll(d.Path(dir))
}
