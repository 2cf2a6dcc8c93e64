package ratelimit

import (
	"context"
	"sync"
	"time"
)

// FixedWindowConfig configures a FixedWindow limiter.
type FixedWindowConfig struct {
	MaxPermits     int64
	WindowDuration time.Duration
}

// FixedWindow counts admissions per fixed-length window and resets
// abruptly at each boundary. No internal waiter queue: concurrent
// blocking callers race on window reset.
type FixedWindow struct {
	mu sync.Mutex

	maxPermits     int64
	windowDuration time.Duration

	remaining int64
	windowEnd time.Time
	acquired  uint64
	rejected  uint64
	disposed  bool
}

func NewFixedWindow(cfg FixedWindowConfig) (*FixedWindow, error) {
	if cfg.MaxPermits <= 0 {
		return nil, &PreconditionError{"max_permits", cfg.MaxPermits, "must be > 0"}
	}
	if cfg.WindowDuration <= 0 {
		return nil, &PreconditionError{"window_duration", cfg.WindowDuration, "must be > 0"}
	}
	now := time.Now()
	return &FixedWindow{
		maxPermits:     cfg.MaxPermits,
		windowDuration: cfg.WindowDuration,
		remaining:      cfg.MaxPermits,
		windowEnd:      now.Add(cfg.WindowDuration),
	}, nil
}

// advance must be called with mu held. It catches the window up to now,
// handling arbitrarily long idle gaps without phantom accumulation.
func (fw *FixedWindow) advance(now time.Time) {
	if now.Before(fw.windowEnd) {
		return
	}
	for !now.Before(fw.windowEnd) {
		fw.windowEnd = fw.windowEnd.Add(fw.windowDuration)
	}
	fw.remaining = fw.maxPermits
}

func (fw *FixedWindow) TryAcquire() bool {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.disposed {
		return false
	}
	fw.advance(time.Now())
	if fw.remaining > 0 {
		fw.remaining--
		fw.acquired++
		return true
	}
	fw.rejected++
	return false
}

func (fw *FixedWindow) Acquire(ctx context.Context) error {
	for {
		fw.mu.Lock()
		if fw.disposed {
			fw.mu.Unlock()
			return &DisposedError{Algorithm: AlgorithmFixedWindow}
		}

		now := time.Now()
		fw.advance(now)
		if fw.remaining > 0 {
			fw.remaining--
			fw.acquired++
			fw.mu.Unlock()
			return nil
		}
		windowEnd := fw.windowEnd
		fw.mu.Unlock()

		deadline, hasDeadline := ctx.Deadline()
		if hasDeadline && !deadline.After(now) {
			fw.mu.Lock()
			fw.rejected++
			fw.mu.Unlock()
			return newRejection(AlgorithmFixedWindow, "window exhausted", windowEnd.Sub(now))
		}

		wake := windowEnd
		if hasDeadline && deadline.Before(wake) {
			wake = deadline
		}
		timer := time.NewTimer(time.Until(wake))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			fw.mu.Lock()
			fw.rejected++
			fw.mu.Unlock()
			return newRejection(AlgorithmFixedWindow, "context canceled waiting for window", windowEnd.Sub(time.Now()))
		}
	}
}

func (fw *FixedWindow) Statistics() Stats {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.advance(time.Now())
	return Stats{
		PermitsAcquired: fw.acquired,
		PermitsRejected: fw.rejected,
		CurrentPermits:  fw.remaining,
		MaxPermits:      fw.maxPermits,
		QueueDepth:      0,
	}
}

func (fw *FixedWindow) Release() {}

func (fw *FixedWindow) Dispose() {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.disposed = true
}

// AlgorithmTag identifies this limiter as "FixedWindow".
func (fw *FixedWindow) AlgorithmTag() Algorithm { return AlgorithmFixedWindow }
