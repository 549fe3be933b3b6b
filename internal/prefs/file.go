package prefs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

const (
	prefsFileName = "prefs.json"
	lockFileName  = ".lock"
)

// NewFileStore opens the preferences kept in dataDir. The directory is locked
// for the lifetime of the store; Close releases it.
func NewFileStore(dataDir string, opts ...Option) (Store, error) {
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	lock := flock.New(filepath.Join(dataDir, lockFileName))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock data directory: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLocked, dataDir)
	}

	path := filepath.Join(dataDir, prefsFileName)
	values, err := readPrefsFile(path)
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	s := newStore(values, opts...)
	s.flush = func(values map[string]json.RawMessage) error {
		return writePrefsFile(path, values)
	}
	s.closer = lock.Unlock
	return s, nil
}

func readPrefsFile(path string) (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path is built from the configured data directory
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read preferences: %w", err)
	}

	var values map[string]json.RawMessage
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("failed to parse preferences: %w", err)
	}
	return values, nil
}

func writePrefsFile(path string, values map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal preferences: %w", err)
	}

	tempFile := path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write temp preferences file: %w", err)
	}
	if err := os.Rename(tempFile, path); err != nil {
		_ = os.Remove(tempFile)
		return fmt.Errorf("failed to rename preferences file: %w", err)
	}
	return nil
}
