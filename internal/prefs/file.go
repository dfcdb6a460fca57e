package prefs

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// File stores preferences as a flat YAML mapping. Every Set rewrites the
// whole file atomically (temp file + rename) with 0600 permissions.
type File struct {
	path string

	mu     sync.Mutex
	values map[string]string
	closed bool
}

// OpenFile loads path if it exists. A missing file is an empty store; it is
// only created on the first Set.
func OpenFile(path string) (*File, error) {
	if path == "" {
		return nil, errors.New("prefs: file path is empty")
	}
	f := &File{path: path, values: make(map[string]string)}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return f, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, &f.values); err != nil {
		return nil, err
	}
	if f.values == nil {
		f.values = make(map[string]string)
	}
	return f, nil
}

func (f *File) Get(key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return "", false, ErrClosed
	}
	v, ok := f.values[key]
	return v, ok, nil
}

func (f *File) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}

	prev, had := f.values[key]
	f.values[key] = value
	if err := f.write(); err != nil {
		// Keep memory consistent with what is on disk.
		if had {
			f.values[key] = prev
		} else {
			delete(f.values, key)
		}
		return err
	}
	return nil
}

func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *File) write() error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(f.values)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".calview-prefs-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, f.path)
}
