package ratelimit

import (
	"context"
	"sync"
	"time"
)

// SlidingWindowCounterConfig configures a SlidingWindowCounter limiter.
type SlidingWindowCounterConfig struct {
	MaxPermits     int64
	WindowDuration time.Duration
	// PollInterval bounds how long a blocking Acquire sleeps between
	// re-checks. Defaults to 50ms if zero.
	PollInterval time.Duration
}

// SlidingWindowCounter is the approximate, O(1)-memory sliding window: a
// weighted two-slot estimate of requests in the trailing window.
type SlidingWindowCounter struct {
	mu sync.Mutex

	maxPermits     int64
	windowDuration time.Duration
	pollInterval   time.Duration

	previous  int64
	current   int64
	slotStart time.Time

	acquired uint64
	rejected uint64
	disposed bool
}

func NewSlidingWindowCounter(cfg SlidingWindowCounterConfig) (*SlidingWindowCounter, error) {
	if cfg.MaxPermits <= 0 {
		return nil, &PreconditionError{"max_permits", cfg.MaxPermits, "must be > 0"}
	}
	if cfg.WindowDuration <= 0 {
		return nil, &PreconditionError{"window_duration", cfg.WindowDuration, "must be > 0"}
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = 50 * time.Millisecond
	}
	return &SlidingWindowCounter{
		maxPermits:     cfg.MaxPermits,
		windowDuration: cfg.WindowDuration,
		pollInterval:   poll,
		slotStart:      time.Now(),
	}, nil
}

// advance must be called with mu held.
func (sw *SlidingWindowCounter) advance(now time.Time) {
	elapsed := now.Sub(sw.slotStart)
	if elapsed < sw.windowDuration {
		return
	}
	slotsPassed := int64(elapsed / sw.windowDuration)
	if slotsPassed >= 2 {
		sw.previous = 0
	} else {
		sw.previous = sw.current
	}
	sw.current = 0
	sw.slotStart = sw.slotStart.Add(time.Duration(slotsPassed) * sw.windowDuration)

	// Guard against unbounded drift on extremely long idle gaps: once the
	// previous slot has already been discarded, there is no meaningful
	// phase left to preserve, so floor directly to now.
	if slotsPassed >= 2 {
		sw.slotStart = now
	}
}

// estimate must be called with mu held, after advance.
func (sw *SlidingWindowCounter) estimate(now time.Time) float64 {
	elapsed := now.Sub(sw.slotStart)
	weight := 1.0 - float64(elapsed)/float64(sw.windowDuration)
	if weight < 0 {
		weight = 0
	}
	return float64(sw.previous)*weight + float64(sw.current)
}

func (sw *SlidingWindowCounter) nextAdvance() time.Time {
	return sw.slotStart.Add(sw.windowDuration)
}

func (sw *SlidingWindowCounter) TryAcquire() bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.disposed {
		return false
	}
	now := time.Now()
	sw.advance(now)
	if sw.estimate(now) < float64(sw.maxPermits) {
		sw.current++
		sw.acquired++
		return true
	}
	sw.rejected++
	return false
}

func (sw *SlidingWindowCounter) Acquire(ctx context.Context) error {
	for {
		sw.mu.Lock()
		if sw.disposed {
			sw.mu.Unlock()
			return &DisposedError{Algorithm: AlgorithmSlidingWindow}
		}
		now := time.Now()
		sw.advance(now)
		if sw.estimate(now) < float64(sw.maxPermits) {
			sw.current++
			sw.acquired++
			sw.mu.Unlock()
			return nil
		}
		nextAdvance := sw.nextAdvance()
		sw.mu.Unlock()

		deadline, hasDeadline := ctx.Deadline()
		if hasDeadline && !deadline.After(now) {
			sw.mu.Lock()
			sw.rejected++
			sw.mu.Unlock()
			return newRejection(AlgorithmSlidingWindow, "window saturated", nextAdvance.Sub(now))
		}

		wait := nextAdvance.Sub(now)
		if wait > sw.pollInterval {
			wait = sw.pollInterval
		}
		if hasDeadline {
			if remain := deadline.Sub(now); remain < wait {
				wait = remain
			}
		}
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			sw.mu.Lock()
			sw.rejected++
			sw.mu.Unlock()
			return newRejection(AlgorithmSlidingWindow, "context canceled waiting for window", nextAdvance.Sub(time.Now()))
		}
	}
}

func (sw *SlidingWindowCounter) Statistics() Stats {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	now := time.Now()
	sw.advance(now)
	est := int64(sw.estimate(now))
	current := sw.maxPermits - est
	if current < 0 {
		current = 0
	}
	return Stats{
		PermitsAcquired: sw.acquired,
		PermitsRejected: sw.rejected,
		CurrentPermits:  current,
		MaxPermits:      sw.maxPermits,
		QueueDepth:      0,
	}
}

func (sw *SlidingWindowCounter) Release() {}

func (sw *SlidingWindowCounter) Dispose() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.disposed = true
}

// AlgorithmTag identifies this limiter as "SlidingWindow".
func (sw *SlidingWindowCounter) AlgorithmTag() Algorithm { return AlgorithmSlidingWindow }
