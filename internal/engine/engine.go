// File: internal/engine/engine.go

// Package engine implements the tiered locator resolution state machine:
// primary, then declared fallbacks, then previously learned descriptors from
// the store, and as a last resort candidates from the suggestion gateway.
// The first descriptor resolving to exactly one live element wins and
// short-circuits every later tier.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xkilldash9x/relock/internal/locator"
	"github.com/xkilldash9x/relock/internal/store"
	"go.uber.org/zap"
)

// Outcome classifies a single driver attempt. Not-found and ambiguous are
// normal, expected outcomes that drive tier progression; they are values, not
// errors.
type Outcome string

const (
	OutcomeFound     Outcome = "found"
	OutcomeNotFound  Outcome = "not-found"
	OutcomeAmbiguous Outcome = "ambiguous"
)

// Tier names one stage of the fallback sequence.
type Tier string

const (
	TierPrimary  Tier = "primary"
	TierFallback Tier = "fallback"
	TierStore    Tier = "store"
	TierGateway  Tier = "gateway"
)

// Handle is an opaque reference to exactly one live element. The driver
// produces it; the engine hands it back to the caller untouched.
type Handle interface {
	String() string
}

// Result is the value a driver attempt produces. Handle is set only when
// Outcome is OutcomeFound.
type Result struct {
	Outcome Outcome
	Handle  Handle
}

// Driver executes one locator attempt against the live page. Not-found and
// ambiguous are reported through Result; a returned error means the session
// itself is unusable and aborts the whole resolution.
type Driver interface {
	Attempt(ctx context.Context, d locator.Descriptor) (Result, error)
}

// Gateway proposes new candidate descriptors once every known tier is spent.
// Errors (including transient unavailability) are never fatal to a
// resolution; they just end the gateway tier.
type Gateway interface {
	Suggest(ctx context.Context, id locator.Identity, history []Attempt) ([]locator.Descriptor, error)
}

// Store is the slice of the locator store the engine consumes.
type Store interface {
	RecordsFor(ctx context.Context, id locator.Identity) ([]store.Record, error)
	Append(ctx context.Context, id locator.Identity, rec store.Record) error
}

// Attempt is one entry of a resolution's ordered attempt history.
type Attempt struct {
	Descriptor locator.Descriptor
	Tier       Tier
	Outcome    Outcome
}

// Engine walks the tiers for one element spec at a time. A single Engine may
// serve concurrent Resolve calls only if its Driver can (one browser session
// cannot); the store serializes its own writes.
type Engine struct {
	driver  Driver
	store   Store
	gateway Gateway
	log     *zap.Logger
	now     func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock substitutes the timestamp source, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New wires an engine. The gateway may be nil, in which case resolution
// exhausts after the store tier.
func New(driver Driver, st Store, gw Gateway, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		driver:  driver,
		store:   st,
		gateway: gw,
		log:     logger.Named("engine"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Resolve maps spec to exactly one live element handle.
//
// Tiers run strictly in order and a descriptor is never attempted twice
// within one call. The only persistent side effect is recording gateway
// candidates: a primary, fallback, or store hit is already known, not new
// learning. Failure is either *ExhaustedError with the full attempt history
// or *SessionError when the driver infrastructure died.
func (e *Engine) Resolve(ctx context.Context, spec locator.ElementSpec) (Handle, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid element spec: %w", err)
	}

	r := &resolution{
		engine:   e,
		spec:     spec,
		identity: spec.Identity(),
		tried:    make(map[locator.Descriptor]bool),
		log: e.log.With(
			zap.String("run_id", uuid.NewString()),
			zap.String("element", spec.Name),
			zap.String("identity", spec.Identity().String()),
		),
	}
	return r.run(ctx)
}

// resolution carries the per-call state so Engine itself stays reentrant.
type resolution struct {
	engine   *Engine
	spec     locator.ElementSpec
	identity locator.Identity
	tried    map[locator.Descriptor]bool
	history  []Attempt
	log      *zap.Logger
}

func (r *resolution) run(ctx context.Context) (Handle, error) {
	if h, err := r.attempt(ctx, TierPrimary, r.spec.Primary); h != nil || err != nil {
		return h, err
	}

	for _, fb := range r.spec.Fallbacks {
		if h, err := r.attempt(ctx, TierFallback, fb); h != nil || err != nil {
			return h, err
		}
	}

	if h, err := r.storeTier(ctx); h != nil || err != nil {
		return h, err
	}

	if h, err := r.gatewayTier(ctx); h != nil || err != nil {
		return h, err
	}

	r.log.Warn("Locator resolution exhausted",
		zap.Int("attempts", len(r.history)))
	return nil, &ExhaustedError{
		Name:     r.spec.Name,
		Identity: r.identity,
		Attempts: r.history,
	}
}

// attempt runs one descriptor through the driver and records the outcome. A
// non-nil handle means resolution is done; a non-nil error aborts it. Both
// nil means keep walking.
func (r *resolution) attempt(ctx context.Context, tier Tier, d locator.Descriptor) (Handle, error) {
	if r.tried[d] {
		return nil, nil
	}
	r.tried[d] = true

	res, err := r.engine.driver.Attempt(ctx, d)
	if err != nil {
		r.log.Error("Browser session failed during locator attempt",
			zap.String("tier", string(tier)),
			zap.String("descriptor", d.String()),
			zap.Error(err))
		return nil, &SessionError{Descriptor: d, Tier: tier, Err: err}
	}

	r.history = append(r.history, Attempt{Descriptor: d, Tier: tier, Outcome: res.Outcome})

	switch res.Outcome {
	case OutcomeFound:
		r.log.Info("Locator resolved",
			zap.String("tier", string(tier)),
			zap.String("descriptor", d.String()))
		return res.Handle, nil
	case OutcomeAmbiguous:
		// Never act on a descriptor that matches more than one element.
		r.log.Warn("Locator matched multiple elements, treating as miss",
			zap.String("tier", string(tier)),
			zap.String("descriptor", d.String()))
	default:
		r.log.Debug("Locator missed",
			zap.String("tier", string(tier)),
			zap.String("descriptor", d.String()))
	}
	return nil, nil
}

func (r *resolution) storeTier(ctx context.Context) (Handle, error) {
	recs, err := r.engine.store.RecordsFor(ctx, r.identity)
	if err != nil {
		// A broken store disables learning but must not sink a resolution
		// that the gateway could still rescue.
		r.log.Error("Failed to read locator store", zap.Error(err))
		return nil, nil
	}
	for _, rec := range recs {
		if h, err := r.attempt(ctx, TierStore, rec.Descriptor); h != nil || err != nil {
			return h, err
		}
	}
	return nil, nil
}

func (r *resolution) gatewayTier(ctx context.Context) (Handle, error) {
	if r.engine.gateway == nil {
		return nil, nil
	}

	// One suggestion call per resolution, never retried.
	candidates, err := r.engine.gateway.Suggest(ctx, r.identity, append([]Attempt(nil), r.history...))
	if err != nil {
		r.log.Warn("Suggestion gateway unavailable, continuing to exhaustion", zap.Error(err))
		return nil, nil
	}

	for _, cand := range candidates {
		if cand.Validate() != nil {
			r.log.Warn("Discarding invalid gateway candidate",
				zap.String("strategy", string(cand.Strategy)),
				zap.String("value", cand.Value))
			continue
		}
		if r.tried[cand] {
			continue
		}

		h, err := r.attempt(ctx, TierGateway, cand)
		if err != nil {
			return nil, err
		}
		if h != nil {
			r.record(ctx, cand, true)
			return h, nil
		}
		r.record(ctx, cand, false)
	}
	return nil, nil
}

// record appends a gateway outcome to the store. Append errors are logged and
// swallowed; the resolution itself has already succeeded or failed on its own
// terms.
func (r *resolution) record(ctx context.Context, d locator.Descriptor, success bool) {
	rec := store.Record{Descriptor: d, Success: success, Timestamp: r.engine.now()}
	if err := r.engine.store.Append(ctx, r.identity, rec); err != nil {
		r.log.Error("Failed to persist learned locator",
			zap.String("descriptor", d.String()),
			zap.Bool("success", success),
			zap.Error(err))
		return
	}
	if success {
		r.log.Info("Learned new locator from gateway",
			zap.String("descriptor", d.String()))
	}
}
