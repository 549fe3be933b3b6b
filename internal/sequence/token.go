package sequence

import "sync/atomic"

// Token ties callbacks to the lifetime of their owner. Once invalidated, tasks
// posted through the token are dropped when they reach the front of the queue.
type Token struct {
	invalid atomic.Bool
}

// NewToken returns a valid token.
func NewToken() *Token {
	return &Token{}
}

// Invalidate marks the owner as torn down. It is idempotent.
func (t *Token) Invalidate() {
	t.invalid.Store(true)
}

// Valid reports whether the owner is still alive.
func (t *Token) Valid() bool {
	return !t.invalid.Load()
}

// Post posts task to r; task is skipped if the token was invalidated in the meantime.
func (t *Token) Post(r Runner, task func()) {
	r.Post(func() {
		if t.Valid() {
			task()
		}
	})
}
