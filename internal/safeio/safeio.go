package safeio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Dir confines file operations to a fixed root directory. Names must be
// plain file names; anything that could climb out of the root is rejected
// before touching the filesystem.
type Dir struct {
	root string
}

// NewDir locks all future operations to root, creating it if needed.
func NewDir(root string) (*Dir, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("safeio: empty root")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	return &Dir{root: abs}, nil
}

// Root returns the absolute root path.
func (d *Dir) Root() string { return d.root }

func (d *Dir) resolve(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("safeio: empty name")
	}
	if strings.ContainsAny(name, `/\`) || name != filepath.Base(name) {
		return "", fmt.Errorf("safeio: invalid name %q", name)
	}
	return filepath.Join(d.root, name), nil
}

// WriteFile writes atomically: the payload lands in a temp file in the same
// directory and is renamed into place, so readers never observe a torn write.
func (d *Dir) WriteFile(name string, data []byte) error {
	path, err := d.resolve(name)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(d.root, "."+name+".tmp-")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// ReadFile reads a file under the root.
func (d *Dir) ReadFile(name string) ([]byte, error) {
	path, err := d.resolve(name)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// Remove deletes a file under the root. Missing files are not an error.
func (d *Dir) Remove(name string) error {
	path, err := d.resolve(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
