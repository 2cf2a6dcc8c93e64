// Package ratelimit implements the admission-control algorithms shared by
// every limiter in this module: token bucket, fixed window, sliding window
// (counter and log variants), leaky bucket, and concurrency.
//
// Every limiter is a concurrent state machine serialized by its own mutex,
// implementing the common Limiter contract below. Timers (refill, leak,
// deadline) run in their own goroutines and re-acquire the limiter's
// mutex before touching state.
package ratelimit

import (
	"context"
)

// Limiter is the capability set every algorithm in this package implements.
//
// TryAcquire, Release, Statistics, and Dispose never suspend the caller.
// Acquire is the only suspending operation.
type Limiter interface {
	// TryAcquire attempts a non-blocking admission. It never suspends.
	TryAcquire() bool

	// Acquire attempts admission, suspending the caller until capacity is
	// available, the deadline in ctx elapses, or the limiter is disposed.
	// A ctx with no deadline waits indefinitely. A ctx whose deadline has
	// already passed behaves as a single TryAcquire attempt.
	Acquire(ctx context.Context) error

	// Statistics returns a fresh snapshot of the limiter's counters. The
	// caller must not cache the result across subsequent operations.
	Statistics() Stats

	// Release acknowledges that one previously granted permit's work is
	// done. A no-op for every algorithm except Concurrency.
	Release()

	// Dispose idempotently tears the limiter down: its timer (if any) is
	// cancelled and every queued waiter is failed with ErrDisposed.
	Dispose()
}

// Stats is an immutable snapshot of a limiter's counters at one instant.
type Stats struct {
	PermitsAcquired uint64
	PermitsRejected uint64
	CurrentPermits  int64
	MaxPermits      int64
	QueueDepth      int
}

// Algorithm identifies which state machine produced a Stats or error value.
type Algorithm string

const (
	AlgorithmTokenBucket      Algorithm = "TokenBucket"
	AlgorithmFixedWindow      Algorithm = "FixedWindow"
	AlgorithmSlidingWindow    Algorithm = "SlidingWindow"
	AlgorithmSlidingWindowLog Algorithm = "SlidingWindowLog"
	AlgorithmLeakyBucket      Algorithm = "LeakyBucket"
	AlgorithmConcurrency      Algorithm = "Concurrency"
)
