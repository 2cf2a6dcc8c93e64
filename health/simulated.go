package health

import (
	"math/rand"
	"time"
)

// Simulated generates synthetic, jittered telemetry around a configured
// base load, for demos and tests that don't have a real metrics backend.
type Simulated struct {
	rng *rand.Rand

	cpuBase     float64
	latencyBase float64
	errorBase   float64
}

// NewSimulated constructs a Simulated source with the given base load.
func NewSimulated(cpuBase, latencyBaseMs, errorBase float64) *Simulated {
	return &Simulated{
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		cpuBase:     cpuBase,
		latencyBase: latencyBaseMs,
		errorBase:   errorBase,
	}
}

// FetchMetrics implements Source by jittering the configured base load.
func (s *Simulated) FetchMetrics() (Data, error) {
	cpu := s.cpuBase + (s.rng.Float64()*0.1 - 0.05)
	latency := s.latencyBase + (s.rng.Float64()*100 - 50)
	errs := s.errorBase + (s.rng.Float64()*0.01 - 0.005)

	if cpu < 0.1 {
		cpu = 0.1
	}
	if latency < 1.0 {
		latency = 1.0
	}
	if errs < 0.001 {
		errs = 0.001
	}

	return Data{CPUUtilization: cpu, P95LatencyMs: latency, ErrorRate: errs}, nil
}
