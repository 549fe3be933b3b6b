// Package state contains logic for managing the contact allow-list which the daemon persists.
package state

import (
	"slices"
	"sort"
)

// Change classifies how an allow-list update differs from the previous list
type Change struct {
	Added   bool
	Removed bool
}

// Changed reports whether the update added or removed anything
func (c Change) Changed() bool {
	return c.Added || c.Removed
}

// AllowlistService provides access to the persisted allow-list.
type AllowlistService interface {
	// Allowed returns the allowed contact ids in sorted order.
	Allowed() []string
	// Replace sets the allow-list to ids. The list is only written when it changes.
	Replace(ids []string) (Change, error)
	// UpdateAtomically applies updateFn to the current allow-list and stores
	// the list it returns if that differs from the current one. Nothing else
	// runs on the sequence in between.
	UpdateAtomically(updateFn func(current []string) []string) (Change, error)
}

// Diff classifies the change from oldIDs to newIDs: contacts were added when
// newIDs is not a subset of oldIDs, and removed when oldIDs is not a subset of newIDs
func Diff(oldIDs, newIDs []string) Change {
	return Change{
		Added:   !isSubset(newIDs, oldIDs),
		Removed: !isSubset(oldIDs, newIDs),
	}
}

func isSubset(sub, super []string) bool {
	set := make(map[string]struct{}, len(super))
	for _, id := range super {
		set[id] = struct{}{}
	}
	for _, id := range sub {
		if _, ok := set[id]; !ok {
			return false
		}
	}
	return true
}

// normalize returns a sorted copy of ids without duplicates
func normalize(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	return slices.Compact(out)
}
