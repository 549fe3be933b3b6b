// Package invariant reports violations of internal state invariants. Violations
// are logged; builds with the "debug" tag also panic.
package invariant

import (
	"fmt"
	"log/slog"
)

// Check logs msg with args when cond is false and panics in debug builds.
func Check(cond bool, msg string, args ...any) {
	if cond {
		return
	}
	slog.Error("Invariant violated: "+msg, args...)
	if panicOnViolation {
		panic(fmt.Sprintf("invariant violated: %s %v", msg, args))
	}
}
