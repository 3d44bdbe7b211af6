// Package s3 implements a driver.Driver backed by Amazon S3 (or an
// S3-compatible endpoint) for object data, delegating the KV and Composite
// groups to an injected driver.KV implementation (typically
// driver/badgerkv). This mirrors the production deployment shape implied
// by spec.md §6's "Metadata KV set" note: object bytes live in a backend
// that is good at bulk storage, the small structured metadata lives in a
// backend that is good at point lookups.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithy "github.com/aws/smithy-go"

	"github.com/mio-io/mio-go/internal/logger"
	"github.com/mio-io/mio-go/pkg/mio/driver"
	mioerrors "github.com/mio-io/mio-go/pkg/mio/errors"
	mioid "github.com/mio-io/mio-go/pkg/mio/id"
	"github.com/mio-io/mio-go/pkg/mio/pool"
)

// DefaultPageSize is the page size this driver advertises when Config.PageSize
// is left at zero.
const DefaultPageSize = 4096

// retryConfig holds retry settings for S3 operations, grounded on the
// teacher's S3ContentStore retry block.
type retryConfig struct {
	maxRetries        uint
	initialBackoff    time.Duration
	maxBackoff        time.Duration
	backoffMultiplier float64
}

// Config configures a Driver.
type Config struct {
	// Client is the configured S3 client.
	Client *s3.Client
	// Bucket is the S3 bucket object data is stored under.
	Bucket string
	// KeyPrefix is prepended to every object key, e.g. "mio/".
	KeyPrefix string
	// PageSize is the page size this driver advertises. Defaults to
	// DefaultPageSize.
	PageSize uint64
	// Pools resolves pool metadata for PoolID/GetPool.
	Pools *pool.Registry
	// KV backs the KV and Composite groups (metadata KV set plus composite
	// layout/extent storage). Required.
	KV driver.KV
	// Metrics is an optional S3 metrics sink; nil disables instrumentation.
	Metrics Metrics

	MaxRetries        uint
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// layoutSet is the reserved KV set id composite layouts are persisted
// under, distinct from the object metadata set (id.MetaKVSet).
var layoutSet = mioid.ID{Hi: 0, Lo: 0x11}

// Driver is a driver.Driver backed by S3 for object data and an injected
// driver.KV for metadata/composite state.
type Driver struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
	pageSize  uint64
	pools     *pool.Registry
	kv        driver.KV
	metrics   Metrics
	retry     retryConfig

	mu     sync.Mutex
	locked map[mioid.ID]bool
}

var _ driver.Driver = (*Driver)(nil)

// New constructs a Driver. It does not touch the network; call Init to
// verify bucket access and create the metadata KV set.
func New(cfg Config) (*Driver, error) {
	if cfg.Client == nil {
		return nil, mioerrors.NewInvalidArgument("s3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, mioerrors.NewInvalidArgument("bucket name is required")
	}
	if cfg.KV == nil {
		return nil, mioerrors.NewInvalidArgument("kv backend is required")
	}

	pageSize := cfg.PageSize
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}

	maxRetries := cfg.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}
	initialBackoff := cfg.InitialBackoff
	if initialBackoff == 0 {
		initialBackoff = 100 * time.Millisecond
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff == 0 {
		maxBackoff = 2 * time.Second
	}
	backoffMultiplier := cfg.BackoffMultiplier
	if backoffMultiplier == 0 {
		backoffMultiplier = 2.0
	}

	return &Driver{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
		pageSize:  pageSize,
		pools:     cfg.Pools,
		kv:        cfg.KV,
		metrics:   cfg.Metrics,
		retry: retryConfig{
			maxRetries:        maxRetries,
			initialBackoff:    initialBackoff,
			maxBackoff:        maxBackoff,
			backoffMultiplier: backoffMultiplier,
		},
		locked: make(map[mioid.ID]bool),
	}, nil
}

func (d *Driver) objectKey(id mioid.ID) string {
	key := id.String()
	if d.keyPrefix != "" {
		return d.keyPrefix + key
	}
	return key
}

func (d *Driver) calculateBackoff(attempt int) time.Duration {
	backoff := float64(d.retry.initialBackoff)
	for i := 0; i < attempt; i++ {
		backoff *= d.retry.backoffMultiplier
	}
	if backoff > float64(d.retry.maxBackoff) {
		backoff = float64(d.retry.maxBackoff)
	}
	return time.Duration(backoff)
}

// isRetryableError reports whether err is a transient failure worth
// retrying: network timeouts, throttling, and 5xx server errors.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		switch code {
		case "Throttling", "ThrottlingException", "RequestThrottled", "SlowDown",
			"ProvisionedThroughputExceededException",
			"InternalError", "ServiceUnavailable", "ServiceException", "InternalServiceException":
			return true
		case "NoSuchKey", "NotFound", "AccessDenied", "Forbidden", "InvalidRange", "InvalidRequest":
			return false
		}
	}

	errStr := err.Error()
	return strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "i/o timeout") ||
		strings.Contains(errStr, "temporary failure")
}

// isNotFoundError reports whether err indicates the S3 object is absent.
func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		if code == "NoSuchKey" || code == "NotFound" || code == "404" {
			return true
		}
	}
	return strings.Contains(err.Error(), "NotFound") || strings.Contains(err.Error(), "NoSuchKey")
}

// getObjectWithRetry downloads the whole object, retrying transient errors.
func (d *Driver) getObjectWithRetry(ctx context.Context, key string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= int(d.retry.maxRetries); attempt++ {
		if attempt > 0 {
			backoff := d.calculateBackoff(attempt - 1)
			logger.Debug("s3 driver: retrying GetObject", "attempt", attempt, "backoff", backoff, "key", key)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		result, err := d.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(d.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			lastErr = err
			if isNotFoundError(err) {
				return nil, mioerrors.NewNotFound("object not found")
			}
			if !isRetryableError(err) {
				return nil, mioerrors.NewIo("s3 GetObject failed", err)
			}
			continue
		}

		data, err := io.ReadAll(result.Body)
		_ = result.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if d.metrics != nil {
			d.metrics.RecordBytes("read", int64(len(data)))
		}
		return data, nil
	}
	return nil, mioerrors.NewIo(fmt.Sprintf("s3 GetObject failed after %d attempts", d.retry.maxRetries+1), lastErr)
}

// putObjectWithRetry uploads data as key's full content, retrying transient
// errors, matching the teacher's writeContentWithRetry shape.
func (d *Driver) putObjectWithRetry(ctx context.Context, key string, data []byte) error {
	var lastErr error
	for attempt := 0; attempt <= int(d.retry.maxRetries); attempt++ {
		if attempt > 0 {
			backoff := d.calculateBackoff(attempt - 1)
			logger.Debug("s3 driver: retrying PutObject", "attempt", attempt, "backoff", backoff, "key", key)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(d.bucket),
			Key:    aws.String(key),
			Body:   bytes.NewReader(data),
		})
		if err == nil {
			if d.metrics != nil {
				d.metrics.RecordBytes("write", int64(len(data)))
			}
			return nil
		}
		lastErr = err
		if !isRetryableError(err) {
			break
		}
	}
	return mioerrors.NewIo(fmt.Sprintf("s3 PutObject failed after %d attempts", d.retry.maxRetries+1), lastErr)
}

func (d *Driver) observe(op string, start time.Time, err error) {
	if d.metrics == nil {
		return
	}
	d.metrics.ObserveOperation(op, time.Since(start), err)
}
