// Package metrics provides Prometheus instrumentation for MIO's S3 driver
// and Badger KV store, grounded on the teacher's pkg/metrics: a lazily
// registered global registry (InitRegistry/IsEnabled/GetRegistry) guarding
// constructors that return nil when metrics are disabled, and concrete
// types built with promauto.With(reg) whose methods are all nil-receiver
// safe so a nil *S3 or *Badger is a zero-overhead no-op everywhere it's
// threaded through.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	mu       sync.Mutex
	registry *prometheus.Registry
	enabled  bool
)

// InitRegistry creates the process-wide registry metrics constructors draw
// from. Call once during startup before constructing any driver
// metrics; calling it again is a no-op.
func InitRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()
	if registry == nil {
		registry = prometheus.NewRegistry()
		enabled = true
	}
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled
}

// GetRegistry returns the process-wide registry, or nil if InitRegistry has
// not been called.
func GetRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()
	return registry
}
