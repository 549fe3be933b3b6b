// Package observer implements the subscriber lists components use to fan out
// notifications.
//
// Notification is synchronous and in registration order. A subscriber must not
// add or remove subscribers from inside its own callback; doing so panics.
package observer

import "slices"

// List holds subscribers of type T. The zero value is ready to use.
// A List is only touched from the owning component's sequence.
type List[T comparable] struct {
	subscribers []T
	notifying   bool
}

// Add registers o. Adding an already registered subscriber is a no-op.
func (l *List[T]) Add(o T) {
	l.mustNotBeNotifying("Add")
	if slices.Contains(l.subscribers, o) {
		return
	}
	l.subscribers = append(l.subscribers, o)
}

// Remove unregisters o. Removing an unknown subscriber is a no-op.
func (l *List[T]) Remove(o T) {
	l.mustNotBeNotifying("Remove")
	if i := slices.Index(l.subscribers, o); i >= 0 {
		l.subscribers = slices.Delete(l.subscribers, i, i+1)
	}
}

// Has reports whether o is registered.
func (l *List[T]) Has(o T) bool {
	return slices.Contains(l.subscribers, o)
}

// Len returns the number of subscribers.
func (l *List[T]) Len() int {
	return len(l.subscribers)
}

// Notify calls fn for every subscriber.
func (l *List[T]) Notify(fn func(T)) {
	if l.notifying {
		// Re-entrant notification from inside a callback walks the same snapshot.
		for _, s := range slices.Clone(l.subscribers) {
			fn(s)
		}
		return
	}
	l.notifying = true
	defer func() { l.notifying = false }()
	for _, s := range l.subscribers {
		fn(s)
	}
}

func (l *List[T]) mustNotBeNotifying(op string) {
	if l.notifying {
		panic("observer: " + op + " called during notification")
	}
}
