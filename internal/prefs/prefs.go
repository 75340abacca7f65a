// Package prefs persists client-side preferences (active filters, last
// agent) through an explicit storage collaborator: load on init, save on
// change. No ambient global state.
package prefs

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrNotFound is returned when a key has never been saved.
var ErrNotFound = errors.New("prefs: key not found")

// Store is the storage collaborator interface. Values are JSON-serializable.
type Store interface {
	Load(key string, v any) error
	Save(key string, v any) error
}

// FileStore keeps each key in its own JSON file under a base directory.
type FileStore struct {
	baseDir string
	mutex   sync.Mutex
}

// NewFileStore creates a file-backed preference store.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create prefs directory: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

func (s *FileStore) path(key string) string {
	// Keys are caller-controlled identifiers like "filters"; keep them on
	// one path segment.
	safe := strings.ReplaceAll(key, string(os.PathSeparator), "_")
	return filepath.Join(s.baseDir, safe+".json")
}

// Load reads a previously saved value into v.
func (s *FileStore) Load(key string, v any) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to read preference %q: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode preference %q: %w", key, err)
	}
	return nil
}

// Save writes a value, replacing any previous one atomically.
func (s *FileStore) Save(key string, v any) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode preference %q: %w", key, err)
	}

	target := s.path(key)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write preference %q: %w", key, err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("failed to replace preference %q: %w", key, err)
	}
	return nil
}
