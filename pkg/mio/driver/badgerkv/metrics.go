package badgerkv

import "time"

// Metrics is the instrumentation hook the badgerkv store reports through,
// mirrored from the teacher's badgerMetrics (pkg/metrics/prometheus). A nil
// Metrics disables instrumentation at zero overhead.
type Metrics interface {
	// ObserveOperation records one KV operation's outcome and latency.
	ObserveOperation(operation string, duration time.Duration, err error)
	// RecordCacheHitRatio records BadgerDB's block/index cache hit ratio.
	RecordCacheHitRatio(cacheType string, ratio float64)
}
