package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mio-io/mio-go/pkg/mio/driver/badgerkv"
)

// Badger is a Prometheus-backed implementation of badgerkv.Metrics,
// mirrored from the teacher's prometheus.badgerMetrics.
type Badger struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	cacheHitRatio     *prometheus.GaugeVec
}

var _ badgerkv.Metrics = (*Badger)(nil)

// NewBadger returns a Prometheus-backed badgerkv metrics sink, or nil if
// InitRegistry has not been called.
func NewBadger() *Badger {
	if !IsEnabled() {
		return nil
	}
	reg := GetRegistry()
	return &Badger{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "mio_badger_operations_total",
				Help: "Total number of KV operations by operation and outcome",
			},
			[]string{"operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mio_badger_operation_duration_milliseconds",
				Help:    "Duration of KV operations in milliseconds",
				Buckets: []float64{1, 5, 10, 50, 100, 500, 1000},
			},
			[]string{"operation"},
		),
		cacheHitRatio: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mio_badger_cache_hit_ratio",
				Help: "BadgerDB cache hit ratio (0.0 to 1.0) by cache type",
			},
			[]string{"cache_type"},
		),
	}
}

func (m *Badger) ObserveOperation(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.operationsTotal.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds() * 1000)
}

func (m *Badger) RecordCacheHitRatio(cacheType string, ratio float64) {
	if m == nil {
		return
	}
	m.cacheHitRatio.WithLabelValues(cacheType).Set(ratio)
}
