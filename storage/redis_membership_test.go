package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniredisClient(t *testing.T) *redis.Client {
	t.Helper()
	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisMembership_GetOrCreate_TracksKeyInSharedSet(t *testing.T) {
	client := newMiniredisClient(t)
	rm := NewRedisMembership(client, "test-ns")
	defer rm.Dispose()

	_, err := rm.GetOrCreate("alice", newTestLimiter)
	require.NoError(t, err)

	members, err := rm.Members(context.Background())
	require.NoError(t, err)
	assert.Contains(t, members, "alice")
}

func TestRedisMembership_Remove_ClearsMembership(t *testing.T) {
	client := newMiniredisClient(t)
	rm := NewRedisMembership(client, "test-ns")
	defer rm.Dispose()

	_, err := rm.GetOrCreate("alice", newTestLimiter)
	require.NoError(t, err)

	rm.Remove("alice")

	members, err := rm.Members(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, members, "alice")
}

func TestRedisMembership_EvictionFanOut_ClearsLocalCopy(t *testing.T) {
	client := newMiniredisClient(t)

	rmA := NewRedisMembership(client, "fanout-ns")
	defer rmA.Dispose()
	rmB := NewRedisMembership(client, "fanout-ns")
	defer rmB.Dispose()

	lA, err := rmA.GetOrCreate("alice", newTestLimiter)
	require.NoError(t, err)
	require.True(t, lA.TryAcquire())

	staleB, err := rmB.GetOrCreate("alice", newTestLimiter)
	require.NoError(t, err)
	require.True(t, staleB.TryAcquire())

	// Give rmB's eviction listener time to subscribe before publishing.
	time.Sleep(20 * time.Millisecond)
	rmA.Remove("alice")

	// rmB should observe the eviction via pub/sub and create a fresh
	// limiter for "alice" on next access rather than reusing a stale one.
	assert.Eventually(t, func() bool {
		lB, err := rmB.local.GetOrCreate("alice", newTestLimiter)
		if err != nil {
			return false
		}
		return lB.TryAcquire()
	}, time.Second, 10*time.Millisecond, "eviction should propagate to the other membership instance")
}

func TestRedisMembership_Dispose_StopsEvictionListener(t *testing.T) {
	client := newMiniredisClient(t)
	rm := NewRedisMembership(client, "dispose-ns")

	_, err := rm.GetOrCreate("alice", newTestLimiter)
	require.NoError(t, err)

	rm.Dispose()

	_, err = rm.GetOrCreate("alice", newTestLimiter)
	require.Error(t, err)
}
