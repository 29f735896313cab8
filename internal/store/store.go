// File: internal/store/store.go

// Package store persists locator descriptors that were confirmed to resolve a
// logical element, keyed by that element's identity. The store is append-only:
// confirmations are added, never rewritten, so a record is a durable fact
// about some point in time rather than current truth.
package store

import (
	"context"
	"time"

	"github.com/xkilldash9x/relock/internal/locator"
)

// Record is one confirmation (or, for diagnostics, one failed candidate)
// learned for an identity.
type Record struct {
	Descriptor locator.Descriptor
	Success    bool
	Timestamp  time.Time
}

// Store is the full contract shared by the file and Postgres backings.
//
// RecordsFor returns only Success=true records, most recently confirmed
// first. Append is durable before it returns and is a no-op when an equal
// descriptor with Success=true already exists for the identity.
type Store interface {
	RecordsFor(ctx context.Context, id locator.Identity) ([]Record, error)
	Append(ctx context.Context, id locator.Identity, rec Record) error
	Identities(ctx context.Context) ([]locator.Identity, error)
	Close() error
}
