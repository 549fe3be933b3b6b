// Package status provides scheduled-task status tracking and persistence.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const (
	// StatusFileName is the name of the status file
	StatusFileName = "status.json"
)

// StatusPersistence defines the interface for task status persistence
//
//nolint:revive // This name is fine
type StatusPersistence interface {
	// SaveStatus saves the status of a specific task
	SaveStatus(ctx context.Context, taskName string, status *TaskStatus) error

	// LoadStatus loads the status of a specific task.
	// Returns an empty TaskStatus if nothing was saved yet (first run)
	LoadStatus(ctx context.Context, taskName string) (*TaskStatus, error)

	// LoadAllStatus loads the status of every task
	LoadAllStatus(ctx context.Context) (map[string]*TaskStatus, error)
}

// fileStatusPersistence implements StatusPersistence using local filesystem
type fileStatusPersistence struct {
	basePath string
}

// NewFileStatusPersistence creates a new file-based status persistence.
// basePath is the base directory where per-task status files are stored
func NewFileStatusPersistence(basePath string) StatusPersistence {
	return &fileStatusPersistence{
		basePath: basePath,
	}
}

// SaveStatus saves the status to a JSON file in a task-specific directory
func (f *fileStatusPersistence) SaveStatus(_ context.Context, taskName string, status *TaskStatus) error {
	taskDir := filepath.Join(f.basePath, taskName)
	if err := os.MkdirAll(taskDir, 0750); err != nil {
		return fmt.Errorf("failed to create status directory for task '%s': %w", taskName, err)
	}

	filePath := filepath.Join(taskDir, StatusFileName)

	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal status data for task '%s': %w", taskName, err)
	}

	// Write to temporary file first for atomic operation
	tempPath := filePath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary status file for task '%s': %w", taskName, err)
	}

	if err := os.Rename(tempPath, filePath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename status file for task '%s': %w", taskName, err)
	}

	return nil
}

// LoadStatus loads the status from a JSON file for a specific task
func (f *fileStatusPersistence) LoadStatus(_ context.Context, taskName string) (*TaskStatus, error) {
	filePath := filepath.Join(f.basePath, taskName, StatusFileName)

	// #nosec G304 -- filePath is built from the configured data dir and fixed task names
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return &TaskStatus{}, nil
		}
		return nil, fmt.Errorf("failed to read status file for task '%s': %w", taskName, err)
	}

	var status TaskStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status data for task '%s': %w", taskName, err)
	}

	return &status, nil
}

// LoadAllStatus loads the status of every task found under basePath
func (f *fileStatusPersistence) LoadAllStatus(ctx context.Context) (map[string]*TaskStatus, error) {
	result := make(map[string]*TaskStatus)

	entries, err := os.ReadDir(f.basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}
		return nil, fmt.Errorf("failed to read status directory: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		taskName := entry.Name()
		status, err := f.LoadStatus(ctx, taskName)
		if err != nil {
			// Skip unreadable entries so one corrupt file does not hide the rest
			continue
		}

		result[taskName] = status
	}

	return result, nil
}

// memoryStatusPersistence keeps statuses in memory; used by tests and by
// sessions configured without a data directory
type memoryStatusPersistence struct {
	mu       sync.Mutex
	statuses map[string]TaskStatus
}

// NewMemoryStatusPersistence creates an in-memory status persistence
func NewMemoryStatusPersistence() StatusPersistence {
	return &memoryStatusPersistence{
		statuses: make(map[string]TaskStatus),
	}
}

func (m *memoryStatusPersistence) SaveStatus(_ context.Context, taskName string, status *TaskStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[taskName] = *status
	return nil
}

func (m *memoryStatusPersistence) LoadStatus(_ context.Context, taskName string) (*TaskStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.statuses[taskName]
	return &s, nil
}

func (m *memoryStatusPersistence) LoadAllStatus(_ context.Context) (map[string]*TaskStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make(map[string]*TaskStatus, len(m.statuses))
	for name, s := range m.statuses {
		statusCopy := s
		result[name] = &statusCopy
	}
	return result, nil
}
