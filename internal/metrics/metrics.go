// Package metrics exposes Prometheus instrumentation for transfers.
//
// A nil *Collector is valid and records nothing, so callers never need to
// check whether metrics were enabled.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/input-output-hk/catalyst-forge-libs/transfer/internal/pool"
)

const (
	namespace = "xfer"
	subsystem = "transfer"
)

// Part status label values.
const (
	StatusSuccess   = "success"
	StatusFailure   = "failure"
	StatusDiscarded = "discarded"
	StatusCanceled  = "canceled"
)

// Transfer outcome label values.
const (
	OutcomeDone     = "done"
	OutcomeFailed   = "failed"
	OutcomeCanceled = "canceled"
	OutcomePaused   = "paused"
)

// Collector records part and transfer counters.
type Collector struct {
	parts        *prometheus.CounterVec
	bytes        *prometheus.CounterVec
	transfers    *prometheus.CounterVec
	partDuration *prometheus.HistogramVec
}

// New registers the transfer metrics on reg. stats, when non-nil, backs the
// worker pool gauges.
func New(reg prometheus.Registerer, stats func() pool.Stats) *Collector {
	if reg == nil {
		return nil
	}
	factory := promauto.With(reg)

	c := &Collector{
		parts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "parts_total",
				Help:      "Total number of part tasks by direction and status",
			},
			[]string{"direction", "status"},
		),
		bytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "bytes_total",
				Help:      "Total bytes of accepted parts",
			},
			[]string{"direction"},
		),
		transfers: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "transfers_total",
				Help:      "Total number of finished transfers by direction and outcome",
			},
			[]string{"direction", "outcome"},
		),
		partDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "part_duration_seconds",
				Help:      "Duration of part network operations",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
			},
			[]string{"direction"},
		),
	}

	if stats != nil {
		gauge := func(name, help string, value func(pool.Stats) float64) {
			factory.NewGaugeFunc(
				prometheus.GaugeOpts{
					Namespace: namespace,
					Subsystem: "pool",
					Name:      name,
					Help:      help,
				},
				func() float64 { return value(stats()) },
			)
		}
		gauge("workers", "Number of pool workers", func(s pool.Stats) float64 { return float64(s.Workers) })
		gauge("queued_tasks", "Tasks waiting for a worker", func(s pool.Stats) float64 { return float64(s.Queued) })
		gauge("running_tasks", "Tasks currently running", func(s pool.Stats) float64 { return float64(s.Running) })
	}

	return c
}

// PartDone records one finished part task.
func (c *Collector) PartDone(direction, status string, size int64, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.parts.WithLabelValues(direction, status).Inc()
	if status == StatusSuccess {
		c.bytes.WithLabelValues(direction).Add(float64(size))
	}
	if elapsed > 0 {
		c.partDuration.WithLabelValues(direction).Observe(elapsed.Seconds())
	}
}

// TransferDone records a terminal transfer outcome.
func (c *Collector) TransferDone(direction, outcome string) {
	if c == nil {
		return
	}
	c.transfers.WithLabelValues(direction, outcome).Inc()
}
