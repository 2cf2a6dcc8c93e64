// Command demo wires a per-key pool around a token-bucket limiter and
// drives it with a handful of synthetic callers, logging every admission
// decision. It exists to exercise the module end to end.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/omd02/ratelimiter/keys"
	"github.com/omd02/ratelimiter/metrics"
	"github.com/omd02/ratelimiter/pool"
	"github.com/omd02/ratelimiter/ratelimit"
	"github.com/omd02/ratelimiter/storage"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	collector := metrics.NewCollector()
	registry := prometheus.NewRegistry()
	registry.MustRegister(collector)

	store := storage.NewMemory()
	extractor := keys.IP(keys.IPConfig{})

	p := pool.New(pool.Config{
		Storage: store,
		LimiterFactory: func() ratelimit.Limiter {
			tb, err := ratelimit.NewTokenBucket(ratelimit.TokenBucketConfig{
				Capacity:       5,
				RefillAmount:   1,
				RefillInterval: time.Second,
			})
			if err != nil {
				panic(err)
			}
			collector.Track(ratelimit.AlgorithmTokenBucket, "demo", tb)
			return tb
		},
		OnRejected: func(key string, err *ratelimit.RateLimitExceededError) {
			slog.Warn("admission denied", "key", key, "error", err)
		},
	})
	defer p.Dispose()

	headers := http.Header{"X-Forwarded-For": []string{"203.0.113.7"}}
	key := extractor.Extract(headers, nil)

	for i := 0; i < 8; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		err := p.Admit(ctx, key)
		cancel()
		if err != nil {
			slog.Info("request rejected", "attempt", i, "key", key)
			continue
		}
		slog.Info("request admitted", "attempt", i, "key", key)
	}

	stats, _ := p.StatisticsFor(key)
	slog.Info("final statistics", "acquired", stats.PermitsAcquired, "rejected", stats.PermitsRejected)
}
