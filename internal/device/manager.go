// Package device manages the local device's identity and publishes its data
// to the directory.
package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/stacklok/nearby-sync/internal/directory"
	"github.com/stacklok/nearby-sync/internal/prefs"
)

const (
	// DefaultRPCTimeout bounds each UpdateDevice RPC
	DefaultRPCTimeout = 60 * time.Second
	// MaxNameLength is the maximum device name length in characters
	MaxNameLength = 32
	// DefaultName is used when no device name is configured
	DefaultName = "nearby-device"
)

// Device name validation errors
var (
	ErrNameEmpty       = errors.New("device name is empty")
	ErrNameTooLong     = fmt.Errorf("device name is longer than %d characters", MaxNameLength)
	ErrNameInvalidUTF8 = errors.New("device name is not valid UTF-8")
)

// Option configures a Manager
type Option func(*Manager)

// WithRPCTimeout bounds each UpdateDevice RPC
func WithRPCTimeout(timeout time.Duration) Option {
	return func(m *Manager) {
		if timeout > 0 {
			m.timeout = timeout
		}
	}
}

// WithDefaultName sets the name used until one is stored
func WithDefaultName(name string) Option {
	return func(m *Manager) {
		if ValidateName(name) == nil {
			m.defaultName = name
		}
	}
}

// Manager owns the device id and name and uploads device data. Updates are
// sent one at a time.
type Manager struct {
	store       prefs.Store
	client      directory.Client
	timeout     time.Duration
	defaultName string

	id string
	// Serializes UpdateDevice RPCs
	updateMu sync.Mutex
}

// NewManager loads the device id from store, generating and persisting one on first run
func NewManager(store prefs.Store, client directory.Client, opts ...Option) (*Manager, error) {
	m := &Manager{
		store:       store,
		client:      client,
		timeout:     DefaultRPCTimeout,
		defaultName: DefaultName,
	}
	for _, opt := range opts {
		opt(m)
	}

	m.id = store.GetString(prefs.KeyDeviceID)
	if m.id == "" {
		m.id = strings.ReplaceAll(uuid.NewString(), "-", "")
		if err := store.SetString(prefs.KeyDeviceID, m.id); err != nil {
			return nil, fmt.Errorf("failed to persist device id: %w", err)
		}
		slog.Info("Generated new device id", "device_id", m.id)
	}
	return m, nil
}

// ID returns the device id
func (m *Manager) ID() string {
	return m.id
}

// Name returns the device name shown to nearby devices
func (m *Manager) Name() string {
	if name := m.store.GetString(prefs.KeyDeviceName); name != "" {
		return name
	}
	return m.defaultName
}

// FullName returns the account owner's name as reported by the directory, if known
func (m *Manager) FullName() string {
	return m.store.GetString(prefs.KeyDeviceFullName)
}

// SetName validates and stores the device name
func (m *Manager) SetName(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	return m.store.SetString(prefs.KeyDeviceName, name)
}

// ValidateName checks that name can be used as a device name
func ValidateName(name string) error {
	if !utf8.ValidString(name) {
		return ErrNameInvalidUTF8
	}
	if strings.TrimSpace(name) == "" {
		return ErrNameEmpty
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return ErrNameTooLong
	}
	return nil
}

// UploadContacts publishes contacts together with the device name
func (m *Manager) UploadContacts(ctx context.Context, contacts []directory.Contact) error {
	if contacts == nil {
		contacts = []directory.Contact{}
	}
	return m.updateDevice(ctx, directory.UpdateDeviceRequest{
		DeviceID:   m.id,
		DeviceName: m.Name(),
		Contacts:   contacts,
	})
}

func (m *Manager) updateDevice(ctx context.Context, req directory.UpdateDeviceRequest) error {
	m.updateMu.Lock()
	defer m.updateMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	resp, err := m.client.UpdateDevice(ctx, req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, directory.ErrTimeout) {
			err = fmt.Errorf("%w: %w", directory.ErrTimeout, err)
		}
		return fmt.Errorf("failed to update device: %w", err)
	}

	if resp.PersonName != "" && resp.PersonName != m.FullName() {
		if err := m.store.SetString(prefs.KeyDeviceFullName, resp.PersonName); err != nil {
			slog.Warn("Failed to store account name", "error", err)
		}
	}
	slog.Debug("Device data updated", "device_id", m.id, "contacts", len(req.Contacts))
	return nil
}
