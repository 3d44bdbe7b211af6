package mioconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Driver.Kind)
	assert.Len(t, cfg.Pools, 1)
	assert.Equal(t, "default", cfg.DefaultPool)
}

func TestLoad_FromFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "mio.yaml")
	contents := `
driver:
  kind: s3
  s3:
    bucket: my-bucket
    region: us-east-1
    initial_backoff: 50ms
    max_backoff: 1s
pools:
  - name: hot
    type: NVM
    alignment: 4096
    erasure:
      n: 4
      k: 2
      devices: 6
      unit_size: 4096
default_pool: hot
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "s3", cfg.Driver.Kind)
	assert.Equal(t, "my-bucket", cfg.Driver.S3.Bucket)
	assert.Equal(t, "us-east-1", cfg.Driver.S3.Region)
	assert.Equal(t, uint64(4096), cfg.Driver.S3.PageSize, "page size should fall back to the default")
	assert.Equal(t, "hot", cfg.DefaultPool)
	require.Len(t, cfg.Pools, 1)
	assert.Equal(t, 4, cfg.Pools[0].Erasure.N)
}

func TestLoad_MissingPoolsFailsValidation(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "mio.yaml")
	contents := `
driver:
  kind: memory
pools: []
default_pool: default
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_S3WithoutBucketFailsValidation(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "mio.yaml")
	contents := `
driver:
  kind: s3
  s3:
    region: us-east-1
pools:
  - name: default
    type: SSD
    alignment: 4096
    erasure:
      n: 1
      devices: 1
      unit_size: 4096
default_pool: default
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket")
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	path := filepath.Join(t.TempDir(), "nested", "mio.yaml")
	require.NoError(t, SaveConfig(cfg, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Driver.Kind, loaded.Driver.Kind)
	assert.Equal(t, cfg.DefaultPool, loaded.DefaultPool)
}

func TestResolvePools_UnknownTypeFails(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Pools[0].Type = "TAPE"
	_, err := cfg.ResolvePools()
	require.Error(t, err)
}
