package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	miodrivers3 "github.com/mio-io/mio-go/pkg/mio/driver/s3"
)

// S3 is a Prometheus-backed implementation of miodrivers3.Metrics, mirrored
// from the teacher's prometheus.s3Metrics.
type S3 struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	bytesTransferred  *prometheus.CounterVec
}

var _ miodrivers3.Metrics = (*S3)(nil)

// NewS3 returns a Prometheus-backed S3 driver metrics sink, or nil if
// InitRegistry has not been called. Passing a nil *S3 to driver/s3.Config
// disables instrumentation at zero overhead.
func NewS3() *S3 {
	if !IsEnabled() {
		return nil
	}
	reg := GetRegistry()
	return &S3{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "mio_s3_operations_total",
				Help: "Total number of S3 operations by operation and outcome",
			},
			[]string{"operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mio_s3_operation_duration_milliseconds",
				Help:    "Duration of S3 operations in milliseconds",
				Buckets: []float64{10, 50, 100, 500, 1000, 5000, 10000, 30000},
			},
			[]string{"operation"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "mio_s3_bytes_transferred_total",
				Help: "Total bytes transferred via S3 operations",
			},
			[]string{"direction"},
		),
	}
}

func (m *S3) ObserveOperation(operation string, duration time.Duration, err error) {
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

func (m *S3) RecordBytes(direction string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesTransferred.WithLabelValues(direction).Add(float64(n))
}
