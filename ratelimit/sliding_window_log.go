package ratelimit

import (
	"context"
	"sync"
	"time"
)

// SlidingWindowLogConfig configures a SlidingWindowLog limiter.
type SlidingWindowLogConfig struct {
	MaxPermits     int64
	WindowDuration time.Duration
	// PollInterval bounds how long a blocking Acquire sleeps between
	// re-checks. Defaults to 50ms if zero.
	PollInterval time.Duration
}

// SlidingWindowLog is the exact sliding window: an ordered log of
// admission timestamps, evicted from the head as they age out. O(n)
// memory in MaxPermits; prefer SlidingWindowCounter when MaxPermits is
// large.
type SlidingWindowLog struct {
	mu sync.Mutex

	maxPermits     int64
	windowDuration time.Duration
	pollInterval   time.Duration

	log []time.Time

	acquired uint64
	rejected uint64
	disposed bool
}

func NewSlidingWindowLog(cfg SlidingWindowLogConfig) (*SlidingWindowLog, error) {
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
	return &SlidingWindowLog{
		maxPermits:     cfg.MaxPermits,
		windowDuration: cfg.WindowDuration,
		pollInterval:   poll,
		log:            make([]time.Time, 0, cfg.MaxPermits),
	}, nil
}

// evict must be called with mu held.
func (sl *SlidingWindowLog) evict(now time.Time) {
	cutoff := now.Add(-sl.windowDuration)
	i := 0
	for i < len(sl.log) && sl.log[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		sl.log = sl.log[i:]
	}
}

// oldestExpiry returns the instant the head entry ages out of the window.
// Must be called with mu held, after evict.
func (sl *SlidingWindowLog) oldestExpiry() time.Time {
	if len(sl.log) == 0 {
		return time.Now()
	}
	return sl.log[0].Add(sl.windowDuration)
}

func (sl *SlidingWindowLog) TryAcquire() bool {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if sl.disposed {
		return false
	}
	now := time.Now()
	sl.evict(now)
	if int64(len(sl.log)) < sl.maxPermits {
		sl.log = append(sl.log, now)
		sl.acquired++
		return true
	}
	sl.rejected++
	return false
}

func (sl *SlidingWindowLog) Acquire(ctx context.Context) error {
	for {
		sl.mu.Lock()
		if sl.disposed {
			sl.mu.Unlock()
			return &DisposedError{Algorithm: AlgorithmSlidingWindowLog}
		}
		now := time.Now()
		sl.evict(now)
		if int64(len(sl.log)) < sl.maxPermits {
			sl.log = append(sl.log, now)
			sl.acquired++
			sl.mu.Unlock()
			return nil
		}
		expiry := sl.oldestExpiry()
		sl.mu.Unlock()

		deadline, hasDeadline := ctx.Deadline()
		if hasDeadline && !deadline.After(now) {
			sl.mu.Lock()
			sl.rejected++
			sl.mu.Unlock()
			return newRejection(AlgorithmSlidingWindowLog, "log saturated", expiry.Sub(now))
		}

		wait := expiry.Sub(now)
		if wait > sl.pollInterval {
			wait = sl.pollInterval
		}
		if wait < 0 {
			wait = 0
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
			sl.mu.Lock()
			sl.rejected++
			sl.mu.Unlock()
			return newRejection(AlgorithmSlidingWindowLog, "context canceled waiting for log entry to expire", sl.oldestExpiry().Sub(time.Now()))
		}
	}
}

func (sl *SlidingWindowLog) Statistics() Stats {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.evict(time.Now())
	return Stats{
		PermitsAcquired: sl.acquired,
		PermitsRejected: sl.rejected,
		CurrentPermits:  sl.maxPermits - int64(len(sl.log)),
		MaxPermits:      sl.maxPermits,
		QueueDepth:      0,
	}
}

func (sl *SlidingWindowLog) Release() {}

func (sl *SlidingWindowLog) Dispose() {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	sl.disposed = true
}

// AlgorithmTag identifies this limiter as "SlidingWindowLog".
func (sl *SlidingWindowLog) AlgorithmTag() Algorithm { return AlgorithmSlidingWindowLog }
