// Package prefs persists small client preferences (currently only the
// selected view mode) across restarts, keyed by versioned names such as
// "calview.view.v1".
package prefs

import (
	"errors"
	"fmt"
	"sync"
)

// ErrClosed is returned by stores used after Close.
var ErrClosed = errors.New("prefs: store closed")

// Store is a string key/value store.
type Store interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Open returns the store for backend at path.
func Open(backend, path string) (Store, error) {
	switch backend {
	case "", BackendFile:
		return OpenFile(path)
	case BackendSQLite:
		return OpenSQLite(path)
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("prefs: unknown backend %q", backend)
	}
}

// Memory keeps values for the lifetime of the process only.
type Memory struct {
	mu     sync.Mutex
	values map[string]string
	closed bool
}

func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

func (m *Memory) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", false, ErrClosed
	}
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.values[key] = value
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
