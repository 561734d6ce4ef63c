package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/afero"

	"github.com/local/ebookconv/internal/format"
)

// Collection is a flat set of named books that a batch reads from and writes back to.
type Collection interface {
	List(ctx context.Context) ([]string, error)
	Read(ctx context.Context, name string) ([]byte, error)
	Write(ctx context.Context, name string, data []byte) error
	Remove(ctx context.Context, name string) error
}

// Dir is a handle on one directory of an afero filesystem.
// Handles are values; Sub returns a new one and never changes the receiver.
type Dir struct {
	fs   afero.Fs
	path string
}

// OpenDir returns a handle on path, which must exist and be a directory.
func OpenDir(fs afero.Fs, path string) (Dir, error) {
	info, err := fs.Stat(path)
	if err != nil {
		return Dir{}, fmt.Errorf("open dir: %w", err)
	}
	if !info.IsDir() {
		return Dir{}, fmt.Errorf("open dir: %s is not a directory", path)
	}
	return Dir{fs: fs, path: filepath.Clean(path)}, nil
}

// Path returns the directory path within its filesystem.
func (d Dir) Path() string { return d.path }

// Sub opens a child directory.
func (d Dir) Sub(name string) (Dir, error) {
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name {
		return Dir{}, fmt.Errorf("open dir: invalid child name %q", name)
	}
	return OpenDir(d.fs, filepath.Join(d.path, name))
}

// Subdirs lists child directory names in order.
func (d Dir) Subdirs() ([]string, error) {
	entries, err := afero.ReadDir(d.fs, d.path)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// List returns regular files with a supported extension, sorted by name.
func (d Dir) List(_ context.Context) ([]string, error) {
	entries, err := afero.ReadDir(d.fs, d.path)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !format.IsSupported(e.Name()) {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out, nil
}

func (d Dir) Read(_ context.Context, name string) ([]byte, error) {
	return afero.ReadFile(d.fs, d.join(name))
}

func (d Dir) Write(_ context.Context, name string, data []byte) error {
	return afero.WriteFile(d.fs, d.join(name), data, 0o644)
}

func (d Dir) Remove(_ context.Context, name string) error {
	if err := d.fs.Remove(d.join(name)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (d Dir) join(name string) string { return filepath.Join(d.path, filepath.Base(name)) }
