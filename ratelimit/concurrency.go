package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ConcurrencyConfig configures a Concurrency limiter.
type ConcurrencyConfig struct {
	MaxConcurrency int64
}

// Concurrency is a semaphore with a FIFO waiter queue and explicit
// release. Unlike the other five algorithms, Release is not a no-op:
// it decrements in-flight and dispatches the next queued waiter.
type Concurrency struct {
	mu sync.Mutex

	maxConcurrency int64
	inFlight       int64

	queue waiterQueue

	acquired uint64
	rejected uint64
	disposed bool
}

func NewConcurrency(cfg ConcurrencyConfig) (*Concurrency, error) {
	if cfg.MaxConcurrency <= 0 {
		return nil, &PreconditionError{"max_concurrency", cfg.MaxConcurrency, "must be > 0"}
	}
	return &Concurrency{maxConcurrency: cfg.MaxConcurrency}, nil
}

func (c *Concurrency) TryAcquire() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return false
	}
	if c.queue.len() > 0 {
		c.rejected++
		return false
	}
	if c.inFlight < c.maxConcurrency {
		c.inFlight++
		c.acquired++
		return true
	}
	c.rejected++
	return false
}

func (c *Concurrency) Acquire(ctx context.Context) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return &DisposedError{Algorithm: AlgorithmConcurrency}
	}

	if c.queue.len() == 0 && c.inFlight < c.maxConcurrency {
		c.inFlight++
		c.acquired++
		c.mu.Unlock()
		return nil
	}

	if deadline, ok := ctx.Deadline(); ok && !deadline.After(time.Now()) {
		c.rejected++
		c.mu.Unlock()
		return newRejectionNoRetry(AlgorithmConcurrency, "at capacity")
	}

	w := newWaiter()
	c.queue.push(w)
	c.mu.Unlock()

	var timerCh <-chan time.Time
	if deadline, ok := ctx.Deadline(); ok {
		timer := time.NewTimer(time.Until(deadline))
		defer timer.Stop()
		timerCh = timer.C
	}

	select {
	case <-w.done:
		if w.err != nil {
			return w.err
		}
		return nil
	case <-timerCh:
		c.mu.Lock()
		if w.fail(newRejectionNoRetry(AlgorithmConcurrency, "deadline exceeded waiting for a slot")) {
			c.queue.remove(w)
			c.rejected++
		}
		c.mu.Unlock()
		return w.err
	case <-ctx.Done():
		c.mu.Lock()
		if w.fail(newRejectionNoRetry(AlgorithmConcurrency, "context canceled waiting for a slot")) {
			c.queue.remove(w)
			c.rejected++
		}
		c.mu.Unlock()
		return w.err
	}
}

// Release decrements in-flight and dispatches the next queued waiter, if
// any and if capacity allows. Over-releasing (in_flight == 0) is a
// deliberate no-op, but is logged so the masked bug is still visible to
// operators.
func (c *Concurrency) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inFlight == 0 {
		slog.Warn("ratelimit: concurrency release with no in-flight permit", "algorithm", AlgorithmConcurrency)
		return
	}
	c.inFlight--

	for c.inFlight < c.maxConcurrency {
		w := c.queue.popPending()
		if w == nil {
			break
		}
		if !w.grant() {
			// Lost the race to a deadline timer between popPending's
			// pending check and grant; try the next waiter instead.
			continue
		}
		c.inFlight++
		c.acquired++
		break
	}
}

func (c *Concurrency) Statistics() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		PermitsAcquired: c.acquired,
		PermitsRejected: c.rejected,
		CurrentPermits:  c.maxConcurrency - c.inFlight,
		MaxPermits:      c.maxConcurrency,
		QueueDepth:      c.queue.len(),
	}
}

func (c *Concurrency) Dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return
	}
	c.disposed = true
	c.queue.failAll(&DisposedError{Algorithm: AlgorithmConcurrency})
	c.inFlight = 0
}

// AlgorithmTag identifies this limiter as "Concurrency".
func (c *Concurrency) AlgorithmTag() Algorithm { return AlgorithmConcurrency }
