package mioconfig

import (
	"time"

	"github.com/mio-io/mio-go/internal/logger"
	"github.com/mio-io/mio-go/internal/telemetry"
	"github.com/mio-io/mio-go/pkg/mio/pool"
)

// DefaultConfig returns a Config with a single in-memory pool, suitable for
// local development and tests.
func DefaultConfig() *Config {
	return &Config{
		Logging:   logger.Config{Level: "INFO", Format: "text", Output: "stdout"},
		Tracing:   telemetry.DefaultConfig(),
		Profiling: telemetry.ProfilingConfig{Enabled: false},
		Metrics:   MetricsConfig{Enabled: false, ListenAddr: ":9090"},
		Driver:    DriverConfig{Kind: "memory"},
		Pools: []PoolConfig{
			{
				Name:       "default",
				Type:       "SSD",
				Capacity:   0,
				Alignment:  4096,
				BlockSizes: []uint64{4096},
				Erasure:    ErasureConfig{N: 1, K: 0, Devices: 1, UnitSize: 4096},
			},
		},
		DefaultPool:   "default",
		HotThreshold:  pool.DefaultHotThreshold,
		ColdThreshold: pool.DefaultColdThreshold,
	}
}

// ApplyDefaults fills in zero-valued fields left unset after unmarshalling,
// matching the teacher's ApplyDefaults sweep over each sub-config.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyTracingDefaults(&cfg.Tracing)
	applyMetricsDefaults(&cfg.Metrics)
	applyS3Defaults(&cfg.Driver.S3)

	if cfg.HotThreshold == 0 {
		cfg.HotThreshold = pool.DefaultHotThreshold
	}
	if cfg.ColdThreshold == 0 {
		cfg.ColdThreshold = pool.DefaultColdThreshold
	}
}

func applyLoggingDefaults(cfg *logger.Config) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyTracingDefaults(cfg *telemetry.Config) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "mio"
	}
	if cfg.ServiceVersion == "" {
		cfg.ServiceVersion = "dev"
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "localhost:4317"
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 1.0
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":9090"
	}
}

func applyS3Defaults(cfg *S3Config) {
	if cfg.PageSize == 0 {
		cfg.PageSize = 4096
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialBackoff == 0 {
		cfg.InitialBackoff = 100 * time.Millisecond
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = 2 * time.Second
	}
	if cfg.BackoffMultiplier == 0 {
		cfg.BackoffMultiplier = 2.0
	}
}
