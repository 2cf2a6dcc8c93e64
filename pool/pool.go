// Package pool implements the per-key admission pool: a lazily-populated
// map from caller identity to a limiter instance, with full ownership of
// every limiter it creates.
package pool

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/omd02/ratelimiter/ratelimit"
	"github.com/omd02/ratelimiter/storage"
)

// RejectCallback is invoked with the key and the rejection error whenever
// an admission attempt is denied. It must not mutate the limiter; any
// panic it raises propagates to the caller same as the original error
// would.
type RejectCallback func(key string, err *ratelimit.RateLimitExceededError)

// Config configures a Pool.
type Config struct {
	// LimiterFactory produces a fresh limiter for a key on first access.
	LimiterFactory storage.Factory
	// Storage backs the key→limiter map. Defaults to an in-memory Storage.
	Storage storage.Storage
	// AcquireTimeout is the default deadline used by Admit when the
	// caller passes a context with no deadline of its own. Zero means
	// "use try-acquire semantics" (see Admit).
	AcquireTimeout time.Duration
	// OnRejected is called before a RateLimitExceededError is returned.
	OnRejected RejectCallback
}

// Pool partitions admission by caller identity, creating and owning one
// limiter per key.
type Pool struct {
	storage        storage.Storage
	factory        storage.Factory
	acquireTimeout time.Duration
	onRejected     RejectCallback
}

// New constructs a Pool. cfg.LimiterFactory must be non-nil.
func New(cfg Config) *Pool {
	st := cfg.Storage
	if st == nil {
		st = storage.NewMemory()
	}
	return &Pool{
		storage:        st,
		factory:        cfg.LimiterFactory,
		acquireTimeout: cfg.AcquireTimeout,
		onRejected:     cfg.OnRejected,
	}
}

// TryAdmit performs a non-blocking admission for key, creating its
// limiter if absent. On denial, the reject callback (if any) fires
// before returning false.
func (p *Pool) TryAdmit(key string) (bool, error) {
	l, err := p.storage.GetOrCreate(key, p.factory)
	if err != nil {
		return false, err
	}
	if l.TryAcquire() {
		return true, nil
	}
	if p.onRejected != nil {
		p.onRejected(key, &ratelimit.RateLimitExceededError{
			Algorithm: limiterAlgorithm(l),
			Message:   "non-blocking mode",
		})
	}
	return false, nil
}

// Admit performs a (possibly blocking) admission for key, creating its
// limiter if absent. If ctx carries no deadline and the pool's
// AcquireTimeout is zero, Admit behaves as TryAdmit and synthesizes a
// RateLimitExceededError tagged "non-blocking mode" on denial.
func (p *Pool) Admit(ctx context.Context, key string) error {
	attemptID := uuid.New()

	l, err := p.storage.GetOrCreate(key, p.factory)
	if err != nil {
		return err
	}

	_, hasDeadline := ctx.Deadline()
	if !hasDeadline && p.acquireTimeout == 0 {
		if l.TryAcquire() {
			return nil
		}
		rejErr := &ratelimit.RateLimitExceededError{
			Algorithm: limiterAlgorithm(l),
			Message:   "non-blocking mode",
		}
		slog.Debug("pool: admission denied", "attempt_id", attemptID, "key", key, "algorithm", rejErr.Algorithm)
		if p.onRejected != nil {
			p.onRejected(key, rejErr)
		}
		return rejErr
	}

	acquireCtx := ctx
	var cancel context.CancelFunc
	if !hasDeadline && p.acquireTimeout > 0 {
		acquireCtx, cancel = context.WithTimeout(ctx, p.acquireTimeout)
		defer cancel()
	}

	err = l.Acquire(acquireCtx)
	if err == nil {
		return nil
	}
	if rejErr, ok := err.(*ratelimit.RateLimitExceededError); ok {
		slog.Debug("pool: admission denied", "attempt_id", attemptID, "key", key, "algorithm", rejErr.Algorithm)
		if p.onRejected != nil {
			p.onRejected(key, rejErr)
		}
	}
	return err
}

// Release looks up (creating if absent) and releases key's limiter.
func (p *Pool) Release(key string) error {
	l, err := p.storage.GetOrCreate(key, p.factory)
	if err != nil {
		return err
	}
	l.Release()
	return nil
}

// StatisticsFor returns the current snapshot for key's limiter. The
// second return is false only after the pool has been disposed.
func (p *Pool) StatisticsFor(key string) (ratelimit.Stats, bool) {
	l, err := p.storage.GetOrCreate(key, p.factory)
	if err != nil {
		return ratelimit.Stats{}, false
	}
	return l.Statistics(), true
}

// Dispose delegates to the backing storage's Dispose, which disposes
// every managed limiter and clears the map. Idempotent.
func (p *Pool) Dispose() {
	p.storage.Dispose()
}

// limiterAlgorithm best-efforts a human-readable tag for a limiter whose
// concrete type isn't known to this package, for use in synthesized
// errors. Falls back to a generic tag when the limiter doesn't expose one.
func limiterAlgorithm(l ratelimit.Limiter) ratelimit.Algorithm {
	type tagged interface{ AlgorithmTag() ratelimit.Algorithm }
	if t, ok := l.(tagged); ok {
		return t.AlgorithmTag()
	}
	return "Limiter"
}
