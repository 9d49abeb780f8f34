// Package metrics provides Prometheus metrics of document operations.
package metrics

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/coregx/fesdql/internal/core"
)

const namespace = "fesdql"

// Collector counts and times the operations reported by a Session hook.
type Collector struct {
	Operations *prometheus.CounterVec
	Durations  *prometheus.HistogramVec
}

// NewCollector creates operation metrics. Register it with a prometheus.Registerer
// and install Hook on the registry.
func NewCollector() *Collector {
	return &Collector{
		Operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of document operations.",
			},
			[]string{"collection", "operation", "result"},
		),
		Durations: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of document operations.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// Hook returns an operation hook that records every round-trip.
func (c *Collector) Hook() core.OperationHook {
	return func(_ context.Context, e core.OperationEvent) {
		c.Operations.WithLabelValues(e.Collection, e.Operation, result(e.Error)).Inc()
		c.Durations.WithLabelValues(e.Operation).Observe(e.Duration.Seconds())
	}
}

// result returns "ok" or a short name of the error kind.
func result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, core.ErrDuplicateKey):
		return "duplicate_key"
	case errors.Is(err, core.ErrInvalidCollectionName):
		return "invalid_collection_name"
	default:
		return "error"
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.Operations.Describe(ch)
	c.Durations.Describe(ch)
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.Operations.Collect(ch)
	c.Durations.Collect(ch)
}

// check interfaces
var (
	_ prometheus.Collector = (*Collector)(nil)
)
