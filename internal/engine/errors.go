// File: internal/engine/errors.go
package engine

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/relock/internal/locator"
)

// ExhaustedError is the terminal failure of a resolution: every tier was
// walked and no descriptor produced exactly one live element. Attempts holds
// the full ordered history for diagnostics.
type ExhaustedError struct {
	Name     string
	Identity locator.Identity
	Attempts []Attempt
}

func (e *ExhaustedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "locator resolution exhausted for %q (%d attempts)", e.Name, len(e.Attempts))
	for _, a := range e.Attempts {
		fmt.Fprintf(&b, "; [%s] %s -> %s", a.Tier, a.Descriptor, a.Outcome)
	}
	return b.String()
}

// SessionError wraps a driver infrastructure failure (dead browser, lost CDP
// transport). It aborts the whole resolution immediately: a dead session
// invalidates every remaining tier, so walking on would only burn time.
type SessionError struct {
	Descriptor locator.Descriptor
	Tier       Tier
	Err        error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("browser session failed attempting %s in %s tier: %v", e.Descriptor, e.Tier, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }
