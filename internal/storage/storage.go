// Package storage persists the client's string slots (bearer token, theme preference).
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Slot keys shared with the browser build so both persist under the same names.
const (
	TokenKey = "authToken"
	ThemeKey = "spectraTheme"
)

// Store is a flat string key-value slot store without expiry metadata.
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Remove(key string) error
}

// Memory keeps slots in process memory. The zero value is ready to use.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemory returns a Memory store pre-populated with seed.
func NewMemory(seed map[string]string) *Memory {
	m := &Memory{values: make(map[string]string, len(seed))}
	for k, v := range seed {
		m.values[k] = v
	}
	return m
}

// Get implements Store.
func (m *Memory) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok
}

// Set implements Store.
func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values == nil {
		m.values = make(map[string]string)
	}
	m.values[key] = value
	return nil
}

// Remove implements Store.
func (m *Memory) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// File persists slots as a single JSON object. Every write rewrites the file
// through a temp file and rename.
type File struct {
	mu     sync.Mutex
	path   string
	values map[string]string
}

// OpenFile loads the slot file at path. A missing file yields an empty store.
func OpenFile(path string) (*File, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("storage: empty state file path")
	}
	f := &File{path: path, values: make(map[string]string)}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return f, nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return f, nil
	}
	if err := json.Unmarshal(data, &f.values); err != nil {
		return nil, fmt.Errorf("decode state file: %w", err)
	}
	if f.values == nil {
		f.values = make(map[string]string)
	}
	return f, nil
}

// Path returns the backing file path.
func (f *File) Path() string {
	return f.path
}

// Get implements Store.
func (f *File) Get(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	return v, ok
}

// Set implements Store.
func (f *File) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	prev, had := f.values[key]
	f.values[key] = value
	if err := f.flushLocked(); err != nil {
		if had {
			f.values[key] = prev
		} else {
			delete(f.values, key)
		}
		return err
	}
	return nil
}

// Remove implements Store.
func (f *File) Remove(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	prev, had := f.values[key]
	if !had {
		return nil
	}
	delete(f.values, key)
	if err := f.flushLocked(); err != nil {
		f.values[key] = prev
		return err
	}
	return nil
}

func (f *File) flushLocked() error {
	data, err := json.MarshalIndent(f.values, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state file: %w", err)
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".spectra-state-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close state file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod state file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
