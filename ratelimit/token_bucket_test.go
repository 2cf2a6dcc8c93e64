package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTokenBucket_RejectsInvalidConfig(t *testing.T) {
	_, err := NewTokenBucket(TokenBucketConfig{Capacity: 0, RefillAmount: 1, RefillInterval: time.Second})
	require.Error(t, err)

	_, err = NewTokenBucket(TokenBucketConfig{Capacity: 1, RefillAmount: 0, RefillInterval: time.Second})
	require.Error(t, err)

	_, err = NewTokenBucket(TokenBucketConfig{Capacity: 1, RefillAmount: 1, RefillInterval: 0})
	require.Error(t, err)
}

func TestTokenBucket_TryAcquire_DrainsThenRejects(t *testing.T) {
	tb, err := NewTokenBucket(TokenBucketConfig{Capacity: 3, RefillAmount: 1, RefillInterval: time.Hour})
	require.NoError(t, err)
	defer tb.Dispose()

	for i := 0; i < 3; i++ {
		assert.True(t, tb.TryAcquire(), "permit %d should be granted", i)
	}
	assert.False(t, tb.TryAcquire(), "bucket should be empty")

	stats := tb.Statistics()
	assert.EqualValues(t, 3, stats.PermitsAcquired)
	assert.EqualValues(t, 1, stats.PermitsRejected)
	assert.EqualValues(t, 0, stats.CurrentPermits)
}

func TestTokenBucket_Refill_GrantsAgainAfterInterval(t *testing.T) {
	tb, err := NewTokenBucket(TokenBucketConfig{Capacity: 1, RefillAmount: 1, RefillInterval: 20 * time.Millisecond})
	require.NoError(t, err)
	defer tb.Dispose()

	require.True(t, tb.TryAcquire())
	require.False(t, tb.TryAcquire())

	time.Sleep(60 * time.Millisecond)
	assert.True(t, tb.TryAcquire(), "token should have refilled")
}

func TestTokenBucket_Acquire_BlocksUntilRefill(t *testing.T) {
	tb, err := NewTokenBucket(TokenBucketConfig{Capacity: 1, RefillAmount: 1, RefillInterval: 30 * time.Millisecond})
	require.NoError(t, err)
	defer tb.Dispose()

	require.True(t, tb.TryAcquire())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = tb.Acquire(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestTokenBucket_Acquire_DeadlineExceeded(t *testing.T) {
	tb, err := NewTokenBucket(TokenBucketConfig{Capacity: 1, RefillAmount: 1, RefillInterval: time.Hour})
	require.NoError(t, err)
	defer tb.Dispose()

	require.True(t, tb.TryAcquire())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err = tb.Acquire(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRateLimitExceeded)

	var rejErr *RateLimitExceededError
	require.ErrorAs(t, err, &rejErr)
	assert.Equal(t, AlgorithmTokenBucket, rejErr.Algorithm)
}

func TestTokenBucket_TryAcquire_RejectsWhenWaitersQueued(t *testing.T) {
	tb, err := NewTokenBucket(TokenBucketConfig{Capacity: 1, RefillAmount: 1, RefillInterval: time.Hour})
	require.NoError(t, err)
	defer tb.Dispose()

	require.True(t, tb.TryAcquire())

	done := make(chan struct{})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		_ = tb.Acquire(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	assert.False(t, tb.TryAcquire(), "non-blocking caller must not cut in front of a queued waiter")

	<-done
}

func TestTokenBucket_Dispose_FailsPendingWaiters(t *testing.T) {
	tb, err := NewTokenBucket(TokenBucketConfig{Capacity: 1, RefillAmount: 1, RefillInterval: time.Hour})
	require.NoError(t, err)
	require.True(t, tb.TryAcquire())

	errCh := make(chan error, 1)
	go func() {
		errCh <- tb.Acquire(context.Background())
	}()

	time.Sleep(20 * time.Millisecond)
	tb.Dispose()

	err = <-errCh
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDisposed)

	assert.False(t, tb.TryAcquire())
	assert.ErrorIs(t, tb.Acquire(context.Background()), ErrDisposed)
}

func TestTokenBucket_AlgorithmTag(t *testing.T) {
	tb, err := NewTokenBucket(TokenBucketConfig{Capacity: 1, RefillAmount: 1, RefillInterval: time.Second})
	require.NoError(t, err)
	defer tb.Dispose()
	assert.Equal(t, AlgorithmTokenBucket, tb.AlgorithmTag())
}
