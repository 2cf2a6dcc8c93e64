package adaptive

import (
	"context"
	"log/slog"
	"time"

	"github.com/omd02/ratelimiter/health"
)

// Targets holds the SLO thresholds the adaptive factor is computed
// against, configurable per deployment.
type Targets struct {
	CPU          float64
	P95LatencyMs float64
	ErrorRate    float64
	// MinFactor floors the computed throttling factor so the rate never
	// drops to absolute zero. Defaults to 0.1 if zero.
	MinFactor float64
}

func (t Targets) minFactor() float64 {
	if t.MinFactor <= 0 {
		return 0.1
	}
	return t.MinFactor
}

// Monitor periodically fetches health telemetry and rescales a Limiter
// from it. Run it with Start in its own goroutine; cancel the context to
// stop it.
type Monitor struct {
	limiter  *Limiter
	source   health.Source
	interval time.Duration
	targets  Targets
}

// NewMonitor constructs a Monitor.
func NewMonitor(limiter *Limiter, source health.Source, interval time.Duration, targets Targets) *Monitor {
	return &Monitor{limiter: limiter, source: source, interval: interval, targets: targets}
}

// Start runs the check-and-adjust loop until ctx is canceled.
func (m *Monitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	slog.Info("adaptive: monitor started", "interval", m.interval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			data, err := m.source.FetchMetrics()
			if err != nil {
				slog.Warn("adaptive: fetching health metrics failed, keeping current rate", "error", err)
				continue
			}
			factor := computeFactor(data, m.targets)
			m.limiter.UpdateFactor(factor)
			slog.Debug("adaptive: rescaled", "factor", factor, "rate", m.limiter.CurrentRate())
		}
	}
}

// computeFactor determines the throttling factor (0.0-1.0) from health
// data against targets: the most-stressed metric dictates the throttle.
func computeFactor(data health.Data, targets Targets) float64 {
	cpuFactor := safeRatio(targets.CPU, data.CPUUtilization)
	latencyFactor := safeRatio(targets.P95LatencyMs, data.P95LatencyMs)
	errorFactor := safeRatio(targets.ErrorRate, data.ErrorRate)

	factor := min3(cpuFactor, latencyFactor, errorFactor)

	if factor > 1.0 {
		return 1.0
	}
	if floor := targets.minFactor(); factor < floor {
		return floor
	}
	return factor
}

// safeRatio avoids dividing by a non-positive denominator, which would
// otherwise produce +Inf or NaN and silently disable throttling.
func safeRatio(target, current float64) float64 {
	if current <= 0 {
		return 1.0
	}
	return target / current
}

func min3(a, b, c float64) float64 {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
