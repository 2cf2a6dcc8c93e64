package health

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// PromQL expressions for the three signals the adaptive limiter reads.
const (
	cpuQuery        = `1 - avg(rate(node_cpu_seconds_total{mode="idle"}[5m]))`
	p95LatencyQuery = `histogram_quantile(0.95, rate(http_request_duration_seconds_bucket[5m]))`
	errorRateQuery  = `sum(rate(http_requests_total{status_code=~"5.."}[5m])) / sum(rate(http_requests_total[5m]))`
)

// Prometheus queries a Prometheus server for CPU, P95 latency, and
// error-rate signals. This is the query-client side of
// prometheus/client_golang, the counterpart to the producer side used
// in package metrics.
type Prometheus struct {
	api v1.API
}

// NewPrometheus dials the Prometheus HTTP API at addr.
func NewPrometheus(addr string) (*Prometheus, error) {
	client, err := api.NewClient(api.Config{Address: addr})
	if err != nil {
		return nil, fmt.Errorf("health: creating prometheus client: %w", err)
	}
	return &Prometheus{api: v1.NewAPI(client)}, nil
}

// FetchMetrics implements Source by executing the three PromQL queries
// as instant vectors and taking their single value.
func (p *Prometheus) FetchMetrics() (Data, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	now := time.Now()

	query := func(expr string) (float64, error) {
		result, _, err := p.api.Query(ctx, expr, now)
		if err != nil {
			return 0, fmt.Errorf("health: query %q: %w", expr, err)
		}
		if vec, ok := result.(model.Vector); ok && len(vec) > 0 {
			return float64(vec[0].Value), nil
		}
		return 0, nil
	}

	cpu, err := query(cpuQuery)
	if err != nil {
		return Data{}, err
	}
	latency, err := query(p95LatencyQuery)
	if err != nil {
		return Data{}, err
	}
	errRate, err := query(errorRateQuery)
	if err != nil {
		return Data{}, err
	}

	return Data{
		CPUUtilization: cpu,
		P95LatencyMs:   latency * 1000.0,
		ErrorRate:      errRate,
	}, nil
}
