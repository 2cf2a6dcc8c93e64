// Package metrics exports limiter statistics snapshots to Prometheus.
// Instrumentation is purely additive: it never participates in an
// admission decision.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/omd02/ratelimiter/ratelimit"
)

// Collector scrapes registered limiters' Statistics() into Prometheus
// gauges/counters on every Prometheus collection pass.
type Collector struct {
	mu      sync.Mutex
	tracked map[string]trackedLimiter

	acquiredDesc *prometheus.Desc
	rejectedDesc *prometheus.Desc
	currentDesc  *prometheus.Desc
	maxDesc      *prometheus.Desc
	queueDesc    *prometheus.Desc
}

type trackedLimiter struct {
	algorithm string
	key       string
	limiter   ratelimit.Limiter
}

// NewCollector constructs a Collector. Register it with a
// prometheus.Registry (or prometheus.MustRegister for the default
// registry) to expose the five metrics below for scraping.
func NewCollector() *Collector {
	return &Collector{
		tracked: make(map[string]trackedLimiter),
		acquiredDesc: prometheus.NewDesc(
			"ratelimit_permits_acquired_total",
			"Cumulative permits acquired.",
			[]string{"algorithm", "key"}, nil,
		),
		rejectedDesc: prometheus.NewDesc(
			"ratelimit_permits_rejected_total",
			"Cumulative permits rejected.",
			[]string{"algorithm", "key"}, nil,
		),
		currentDesc: prometheus.NewDesc(
			"ratelimit_current_permits",
			"Current spare capacity (tokens, window budget, queue slack, or free concurrency).",
			[]string{"algorithm", "key"}, nil,
		),
		maxDesc: prometheus.NewDesc(
			"ratelimit_max_permits",
			"Configured upper bound on capacity.",
			[]string{"algorithm", "key"}, nil,
		),
		queueDesc: prometheus.NewDesc(
			"ratelimit_queue_depth",
			"Callers currently suspended awaiting capacity.",
			[]string{"algorithm", "key"}, nil,
		),
	}
}

// Track registers l under (algorithm, key) so it is scraped on every
// Prometheus collection pass. Re-registering the same key replaces the
// tracked limiter.
func (c *Collector) Track(algorithm ratelimit.Algorithm, key string, l ratelimit.Limiter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracked[string(algorithm)+"\x00"+key] = trackedLimiter{algorithm: string(algorithm), key: key, limiter: l}
}

// Untrack stops scraping the limiter registered under (algorithm, key).
func (c *Collector) Untrack(algorithm ratelimit.Algorithm, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tracked, string(algorithm)+"\x00"+key)
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.acquiredDesc
	ch <- c.rejectedDesc
	ch <- c.currentDesc
	ch <- c.maxDesc
	ch <- c.queueDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	snapshot := make([]trackedLimiter, 0, len(c.tracked))
	for _, t := range c.tracked {
		snapshot = append(snapshot, t)
	}
	c.mu.Unlock()

	for _, t := range snapshot {
		stats := t.limiter.Statistics()
		ch <- prometheus.MustNewConstMetric(c.acquiredDesc, prometheus.CounterValue, float64(stats.PermitsAcquired), t.algorithm, t.key)
		ch <- prometheus.MustNewConstMetric(c.rejectedDesc, prometheus.CounterValue, float64(stats.PermitsRejected), t.algorithm, t.key)
		ch <- prometheus.MustNewConstMetric(c.currentDesc, prometheus.GaugeValue, float64(stats.CurrentPermits), t.algorithm, t.key)
		ch <- prometheus.MustNewConstMetric(c.maxDesc, prometheus.GaugeValue, float64(stats.MaxPermits), t.algorithm, t.key)
		ch <- prometheus.MustNewConstMetric(c.queueDesc, prometheus.GaugeValue, float64(stats.QueueDepth), t.algorithm, t.key)
	}
}
