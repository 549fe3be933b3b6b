// Package prefs provides the persisted key/value preferences shared by the
// contact sync, certificate and advertising components.
package prefs

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/stacklok/nearby-sync/internal/sequence"
)

// Preference keys
const (
	KeyAllowedContacts       = "contacts.allowlist"
	KeyPrivateCertificates   = "certificates.private"
	KeyPublicCertExpirations = "certificates.public_expirations"
	KeySharingEnabled        = "sharing.enabled"
	KeySharingVisibility     = "sharing.visibility"
	KeySharingDataUsage      = "sharing.data_usage"
	KeyDeviceID              = "device.id"
	KeyDeviceName            = "device.name"
	KeyDeviceFullName        = "device.full_name"
)

// ErrLocked is returned when another process owns the data directory
var ErrLocked = errors.New("preferences are locked by another process")

// Store is a typed view over persisted preferences. Readers of a missing key
// get the zero value.
type Store interface {
	Has(key string) bool
	Delete(key string) error

	GetString(key string) string
	SetString(key, value string) error
	GetBool(key string, defaultValue bool) bool
	SetBool(key string, value bool) error
	GetInt(key string, defaultValue int) int
	SetInt(key string, value int) error
	GetStringList(key string) []string
	SetStringList(key string, value []string) error
	GetTimeMap(key string) map[string]time.Time
	SetTimeMap(key string, value map[string]time.Time) error

	// GetJSON decodes the value stored under key into out. It reports false
	// when the key is absent.
	GetJSON(key string, out any) (bool, error)
	SetJSON(key string, value any) error

	// Observe registers fn to run after key changes. The returned func removes it.
	Observe(key string, fn func()) (cancel func())

	Close() error
}

// Option configures a store
type Option func(*store)

// WithRunner posts change notifications to r instead of running them inline
func WithRunner(r sequence.Runner) Option {
	return func(s *store) {
		s.runner = r
	}
}

type observerEntry struct {
	fn func()
}

// store holds preferences in memory; flush persists them when set
type store struct {
	mu        sync.RWMutex
	values    map[string]json.RawMessage
	observers map[string][]*observerEntry
	runner    sequence.Runner
	flush     func(map[string]json.RawMessage) error
	closer    func() error
}

func newStore(values map[string]json.RawMessage, opts ...Option) *store {
	if values == nil {
		values = make(map[string]json.RawMessage)
	}
	s := &store{
		values:    values,
		observers: make(map[string][]*observerEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewMemoryStore returns a Store that is never persisted
func NewMemoryStore(opts ...Option) Store {
	return newStore(nil, opts...)
}

func (s *store) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.values[key]
	return ok
}

func (s *store) Delete(key string) error {
	s.mu.Lock()
	if _, ok := s.values[key]; !ok {
		s.mu.Unlock()
		return nil
	}
	delete(s.values, key)
	err := s.persistLocked()
	s.mu.Unlock()

	s.notify(key)
	return err
}

func (s *store) GetString(key string) string {
	var v string
	s.getOrZero(key, &v)
	return v
}

func (s *store) SetString(key, value string) error {
	return s.SetJSON(key, value)
}

func (s *store) GetBool(key string, defaultValue bool) bool {
	v := defaultValue
	s.getOrZero(key, &v)
	return v
}

func (s *store) SetBool(key string, value bool) error {
	return s.SetJSON(key, value)
}

func (s *store) GetInt(key string, defaultValue int) int {
	v := defaultValue
	s.getOrZero(key, &v)
	return v
}

func (s *store) SetInt(key string, value int) error {
	return s.SetJSON(key, value)
}

func (s *store) GetStringList(key string) []string {
	var v []string
	s.getOrZero(key, &v)
	return v
}

// SetStringList stores value sorted so equal sets produce equal bytes
func (s *store) SetStringList(key string, value []string) error {
	sorted := append([]string(nil), value...)
	sort.Strings(sorted)
	return s.SetJSON(key, sorted)
}

func (s *store) GetTimeMap(key string) map[string]time.Time {
	v := make(map[string]time.Time)
	s.getOrZero(key, &v)
	return v
}

func (s *store) SetTimeMap(key string, value map[string]time.Time) error {
	return s.SetJSON(key, value)
}

func (s *store) GetJSON(key string, out any) (bool, error) {
	s.mu.RLock()
	raw, ok := s.values[key]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return true, fmt.Errorf("failed to decode preference %s: %w", key, err)
	}
	return true, nil
}

func (s *store) SetJSON(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode preference %s: %w", key, err)
	}

	s.mu.Lock()
	if old, ok := s.values[key]; ok && string(old) == string(raw) {
		s.mu.Unlock()
		return nil
	}
	s.values[key] = raw
	err = s.persistLocked()
	s.mu.Unlock()

	s.notify(key)
	return err
}

func (s *store) Observe(key string, fn func()) func() {
	entry := &observerEntry{fn: fn}

	s.mu.Lock()
	s.observers[key] = append(s.observers[key], entry)
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		entries := s.observers[key]
		for i, e := range entries {
			if e == entry {
				s.observers[key] = append(entries[:i:i], entries[i+1:]...)
				return
			}
		}
	}
}

func (s *store) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}

func (s *store) getOrZero(key string, out any) {
	if _, err := s.GetJSON(key, out); err != nil {
		slog.Warn("Ignoring unreadable preference", "key", key, "error", err)
	}
}

func (s *store) persistLocked() error {
	if s.flush == nil {
		return nil
	}
	return s.flush(s.values)
}

func (s *store) notify(key string) {
	s.mu.RLock()
	entries := append([]*observerEntry(nil), s.observers[key]...)
	s.mu.RUnlock()

	for _, e := range entries {
		if s.runner != nil {
			s.runner.Post(e.fn)
		} else {
			e.fn()
		}
	}
}
