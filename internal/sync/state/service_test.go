package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/nearby-sync/internal/prefs"
)

func TestDiff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		oldIDs   []string
		newIDs   []string
		expected Change
	}{
		{name: "identical", oldIDs: []string{"a", "b"}, newIDs: []string{"b", "a"}, expected: Change{}},
		{name: "both empty", expected: Change{}},
		{name: "added", oldIDs: []string{"a"}, newIDs: []string{"a", "b"}, expected: Change{Added: true}},
		{name: "removed", oldIDs: []string{"a", "b", "c"}, newIDs: []string{"a", "b"}, expected: Change{Removed: true}},
		{name: "added and removed", oldIDs: []string{"a"}, newIDs: []string{"b"}, expected: Change{Added: true, Removed: true}},
		{name: "cleared", oldIDs: []string{"a"}, newIDs: nil, expected: Change{Removed: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			change := Diff(tt.oldIDs, tt.newIDs)
			assert.Equal(t, tt.expected, change)
			assert.Equal(t, tt.expected.Added || tt.expected.Removed, change.Changed())
		})
	}
}

func TestPrefsAllowlistService_Replace(t *testing.T) {
	t.Parallel()

	store := prefs.NewMemoryStore()
	svc := NewPrefsAllowlistService(store)
	assert.Empty(t, svc.Allowed())

	change, err := svc.Replace([]string{"c", "a", "b", "a"})
	require.NoError(t, err)
	assert.Equal(t, Change{Added: true}, change)
	assert.Equal(t, []string{"a", "b", "c"}, svc.Allowed())
	assert.Equal(t, []string{"a", "b", "c"}, store.GetStringList(prefs.KeyAllowedContacts))

	change, err = svc.Replace([]string{"b", "c", "a"})
	require.NoError(t, err)
	assert.False(t, change.Changed())
}

func TestPrefsAllowlistService_UnchangedDoesNotWrite(t *testing.T) {
	t.Parallel()

	store := prefs.NewMemoryStore()
	require.NoError(t, store.SetStringList(prefs.KeyAllowedContacts, []string{"a", "b"}))

	writes := 0
	store.Observe(prefs.KeyAllowedContacts, func() { writes++ })

	svc := NewPrefsAllowlistService(store)
	change, err := svc.Replace([]string{"a", "b"})
	require.NoError(t, err)
	assert.False(t, change.Changed())
	assert.Equal(t, 0, writes)
}

func TestPrefsAllowlistService_UpdateAtomically(t *testing.T) {
	t.Parallel()

	store := prefs.NewMemoryStore()
	svc := NewPrefsAllowlistService(store)
	_, err := svc.Replace([]string{"a", "b", "c"})
	require.NoError(t, err)

	change, err := svc.UpdateAtomically(func(current []string) []string {
		assert.Equal(t, []string{"a", "b", "c"}, current)
		current[0] = "mutated"
		return []string{"a", "b"}
	})
	require.NoError(t, err)
	assert.Equal(t, Change{Removed: true}, change)
	assert.Equal(t, []string{"a", "b"}, svc.Allowed())

	reloaded := NewPrefsAllowlistService(store)
	assert.Equal(t, []string{"a", "b"}, reloaded.Allowed())
}

func TestPrefsAllowlistService_AllowedReturnsCopy(t *testing.T) {
	t.Parallel()

	svc := NewPrefsAllowlistService(prefs.NewMemoryStore())
	_, err := svc.Replace([]string{"a"})
	require.NoError(t, err)

	allowed := svc.Allowed()
	allowed[0] = "z"
	assert.Equal(t, []string{"a"}, svc.Allowed())
}

func TestPrefsAllowlistService_UpdateFnMayReadAllowed(t *testing.T) {
	t.Parallel()

	svc := NewPrefsAllowlistService(prefs.NewMemoryStore())
	_, err := svc.Replace([]string{"b"})
	require.NoError(t, err)

	change, err := svc.UpdateAtomically(func(current []string) []string {
		return append(svc.Allowed(), "a")
	})
	require.NoError(t, err)
	assert.Equal(t, Change{Added: true}, change)
	assert.Equal(t, []string{"a", "b"}, svc.Allowed())
}
