// Package adaptive wraps a rate in golang.org/x/time/rate and rescales
// it from external health telemetry, so callers can throttle down
// automatically as a downstream dependency gets unhealthy. It composes
// with the ratelimit algorithms rather than replacing any of them — it
// is most naturally placed in front of a Concurrency or TokenBucket
// limiter guarding a downstream dependency whose health varies.
package adaptive

import (
	"sync"

	"golang.org/x/time/rate"
)

// Limiter rescales an underlying golang.org/x/time/rate.Limiter by a
// factor in [MinFactor, 1.0] computed from health telemetry.
type Limiter struct {
	mu         sync.RWMutex
	baseLimit  float64
	underlying *rate.Limiter
}

// New creates an adaptive limiter starting at baseLimit events/sec with
// a burst equal to baseLimit.
func New(baseLimit float64) *Limiter {
	return &Limiter{
		baseLimit:  baseLimit,
		underlying: rate.NewLimiter(rate.Limit(baseLimit), int(baseLimit)),
	}
}

// Allow reports whether an event may proceed now, consuming a token from
// the underlying limiter if so. This is the primary method a caller
// (e.g. an HTTP middleware) invokes.
func (l *Limiter) Allow() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.underlying.Allow()
}

// CurrentRate returns the limiter's current effective rate, in
// events/sec, for observability.
func (l *Limiter) CurrentRate() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return float64(l.underlying.Limit())
}

// UpdateFactor rescales the limiter to baseLimit*factor. Called by a
// Monitor on every health-check tick.
func (l *Limiter) UpdateFactor(factor float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.underlying.SetLimit(rate.Limit(l.baseLimit * factor))
}
