package state

import (
	"fmt"
	"log/slog"

	"github.com/stacklok/nearby-sync/internal/prefs"
)

// prefsAllowlistService is used from the sync sequence only
type prefsAllowlistService struct {
	store  prefs.Store
	cached []string
}

// NewPrefsAllowlistService creates an allow-list service backed by the
// contacts.allowlist preference
func NewPrefsAllowlistService(store prefs.Store) AllowlistService {
	s := &prefsAllowlistService{store: store}
	s.cached = normalize(store.GetStringList(prefs.KeyAllowedContacts))
	slog.Info("Loaded contact allow-list", "size", len(s.cached))
	return s
}

func (s *prefsAllowlistService) Allowed() []string {
	// Return a copy to prevent external modification
	return append([]string(nil), s.cached...)
}

func (s *prefsAllowlistService) Replace(ids []string) (Change, error) {
	return s.UpdateAtomically(func([]string) []string {
		return ids
	})
}

func (s *prefsAllowlistService) UpdateAtomically(updateFn func(current []string) []string) (Change, error) {
	current := append([]string(nil), s.cached...)
	next := normalize(updateFn(current))

	change := Diff(s.cached, next)
	if !change.Changed() {
		return change, nil
	}

	if err := s.store.SetStringList(prefs.KeyAllowedContacts, next); err != nil {
		return Change{}, fmt.Errorf("failed to persist allow-list: %w", err)
	}
	s.cached = next
	return change, nil
}
