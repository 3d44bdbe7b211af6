package s3

import "time"

// Metrics is the instrumentation hook the S3 driver reports through,
// mirrored from the teacher's S3Metrics interface (pkg/store/content/s3):
// callers pass nil to disable instrumentation at zero overhead.
type Metrics interface {
	// ObserveOperation records one S3 API call's outcome and latency.
	ObserveOperation(operation string, duration time.Duration, err error)
	// RecordBytes records bytes transferred in the given direction
	// ("read" or "write").
	RecordBytes(direction string, n int64)
}
