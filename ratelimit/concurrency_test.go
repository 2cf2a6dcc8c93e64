package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrency_TryAcquire_BoundedByMax(t *testing.T) {
	c, err := NewConcurrency(ConcurrencyConfig{MaxConcurrency: 2})
	require.NoError(t, err)
	defer c.Dispose()

	assert.True(t, c.TryAcquire())
	assert.True(t, c.TryAcquire())
	assert.False(t, c.TryAcquire())
}

func TestConcurrency_Release_DispatchesQueuedWaiter(t *testing.T) {
	c, err := NewConcurrency(ConcurrencyConfig{MaxConcurrency: 1})
	require.NoError(t, err)
	defer c.Dispose()

	require.True(t, c.TryAcquire())

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.Acquire(context.Background())
	}()

	time.Sleep(20 * time.Millisecond)
	assert.EqualValues(t, 1, c.Statistics().QueueDepth)

	c.Release()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("release did not dispatch the queued waiter in time")
	}
}

func TestConcurrency_Release_OverReleaseIsANoOp(t *testing.T) {
	c, err := NewConcurrency(ConcurrencyConfig{MaxConcurrency: 1})
	require.NoError(t, err)
	defer c.Dispose()

	assert.NotPanics(t, func() {
		c.Release()
	})
	assert.EqualValues(t, 1, c.Statistics().CurrentPermits)
}

func TestConcurrency_Release_SkipsWaiterThatAlreadyTimedOut(t *testing.T) {
	c, err := NewConcurrency(ConcurrencyConfig{MaxConcurrency: 1})
	require.NoError(t, err)
	defer c.Dispose()

	require.True(t, c.TryAcquire())

	// This waiter will time out on its own before Release fires.
	timedOutErrCh := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		timedOutErrCh <- c.Acquire(ctx)
	}()

	// This waiter should be the one actually dispatched.
	grantedErrCh := make(chan error, 1)
	go func() {
		time.Sleep(15 * time.Millisecond)
		grantedErrCh <- c.Acquire(context.Background())
	}()

	require.Error(t, <-timedOutErrCh)

	time.Sleep(5 * time.Millisecond)
	c.Release()

	select {
	case err := <-grantedErrCh:
		require.NoError(t, err, "release must try the next waiter when the head already timed out")
	case <-time.After(time.Second):
		t.Fatal("second waiter was never granted")
	}
}

func TestConcurrency_Dispose_ResetsInFlight(t *testing.T) {
	c, err := NewConcurrency(ConcurrencyConfig{MaxConcurrency: 1})
	require.NoError(t, err)

	require.True(t, c.TryAcquire())
	c.Dispose()

	assert.EqualValues(t, 1, c.Statistics().CurrentPermits)
	assert.False(t, c.TryAcquire())
	assert.ErrorIs(t, c.Acquire(context.Background()), ErrDisposed)
}

func TestConcurrency_AlgorithmTag(t *testing.T) {
	c, err := NewConcurrency(ConcurrencyConfig{MaxConcurrency: 1})
	require.NoError(t, err)
	defer c.Dispose()
	assert.Equal(t, AlgorithmConcurrency, c.AlgorithmTag())
}
