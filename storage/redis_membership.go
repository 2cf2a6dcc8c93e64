package storage

import (
	"context"
	"sync"

	"github.com/go-redis/redis/v8"

	"github.com/omd02/ratelimiter/ratelimit"
)

// RedisMembership wraps an in-memory Storage and mirrors key membership
// into a Redis set plus a pub/sub eviction channel, so that RemoveWhere
// evictions on one process fan out to every other process sharing the
// same Redis instance and channel name.
//
// The limiter state machines themselves stay local to each process —
// this only coordinates *which keys exist* across processes, via plain
// SADD/SREM calls on the shared set and PUBLISH on the eviction channel.
type RedisMembership struct {
	client  *redis.Client
	channel string
	setKey  string

	local *Memory

	mu        sync.Mutex
	subCancel context.CancelFunc
}

// NewRedisMembership constructs a membership-coordinating storage backed
// by rdb. namespace scopes the Redis set key and pub/sub channel so
// multiple pools can share one Redis instance without collisions.
func NewRedisMembership(rdb *redis.Client, namespace string) *RedisMembership {
	rm := &RedisMembership{
		client:  rdb,
		channel: namespace + ":ratelimit:evict",
		setKey:  namespace + ":ratelimit:keys",
		local:   NewMemory(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	rm.subCancel = cancel
	go rm.listenForEvictions(ctx)

	return rm
}

func (rm *RedisMembership) listenForEvictions(ctx context.Context) {
	sub := rm.client.Subscribe(ctx, rm.channel)
	defer sub.Close()
	ch := sub.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			rm.local.Remove(msg.Payload)
		}
	}
}

func (rm *RedisMembership) GetOrCreate(key string, factory Factory) (ratelimit.Limiter, error) {
	l, err := rm.local.GetOrCreate(key, factory)
	if err != nil {
		return nil, err
	}
	// Best-effort membership tracking; a failed SADD never blocks
	// admission, since the local limiter is already authoritative.
	rm.client.SAdd(context.Background(), rm.setKey, key)
	return l, nil
}

func (rm *RedisMembership) Remove(key string) {
	rm.local.Remove(key)
	ctx := context.Background()
	rm.client.SRem(ctx, rm.setKey, key)
	rm.client.Publish(ctx, rm.channel, key)
}

func (rm *RedisMembership) RemoveWhere(predicate func(key string, l ratelimit.Limiter) bool) {
	var evicted []string
	rm.local.mu.Lock()
	for key, l := range rm.local.limiters {
		if predicate(key, l) {
			evicted = append(evicted, key)
		}
	}
	rm.local.mu.Unlock()

	for _, key := range evicted {
		rm.Remove(key)
	}
}

// Dispose tears down the local storage and the eviction subscription.
// Idempotent.
func (rm *RedisMembership) Dispose() {
	rm.mu.Lock()
	if rm.subCancel != nil {
		rm.subCancel()
		rm.subCancel = nil
	}
	rm.mu.Unlock()
	rm.local.Dispose()
}

// Members returns every key currently tracked in the shared Redis set,
// for debugging/monitoring across processes.
func (rm *RedisMembership) Members(ctx context.Context) ([]string, error) {
	return rm.client.SMembers(ctx, rm.setKey).Result()
}
