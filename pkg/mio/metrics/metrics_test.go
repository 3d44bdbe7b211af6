package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	dto "github.com/prometheus/client_model/go"
)

func TestNilSinksAreNoOps(t *testing.T) {
	t.Parallel()

	var s3 *S3
	var b *Badger
	assert.NotPanics(t, func() {
		s3.ObserveOperation("GetObject", time.Millisecond, nil)
		s3.RecordBytes("read", 128)
		b.ObserveOperation("Get", time.Millisecond, errors.New("boom"))
		b.RecordCacheHitRatio("block", 0.9)
	})
}

func TestNewS3_DisabledWithoutRegistry(t *testing.T) {
	resetForTest()
	assert.Nil(t, NewS3())
	assert.Nil(t, NewBadger())
}

func TestNewS3_RecordsAgainstRegistry(t *testing.T) {
	resetForTest()
	InitRegistry()
	require.True(t, IsEnabled())

	s := NewS3()
	require.NotNil(t, s)
	s.ObserveOperation("PutObject", 10*time.Millisecond, nil)
	s.RecordBytes("write", 4096)

	mfs, err := GetRegistry().Gather()
	require.NoError(t, err)
	assert.True(t, containsMetric(mfs, "mio_s3_operations_total"))
}

func TestNewBadger_RecordsAgainstRegistry(t *testing.T) {
	resetForTest()
	InitRegistry()

	b := NewBadger()
	require.NotNil(t, b)
	b.ObserveOperation("Get", 2*time.Millisecond, nil)
	b.RecordCacheHitRatio("block", 0.87)

	mfs, err := GetRegistry().Gather()
	require.NoError(t, err)
	assert.True(t, containsMetric(mfs, "mio_badger_operations_total"))
	assert.True(t, containsMetric(mfs, "mio_badger_cache_hit_ratio"))
}

func containsMetric(mfs []*dto.MetricFamily, name string) bool {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return true
		}
	}
	return false
}

// resetForTest clears global registry state between tests in this package;
// production code never needs to un-initialize the registry.
func resetForTest() {
	mu.Lock()
	defer mu.Unlock()
	registry = nil
	enabled = false
}
