// Package mioconfig loads MIO's own operator-facing configuration: pool
// catalog, driver selection, logging, tracing/profiling and metrics
// settings. It is grounded on the teacher's pkg/config package — the same
// viper + mapstructure + yaml.v3 layered loader (env > file > defaults),
// the same custom decode hooks for duration-like fields, and the same
// go-playground/validator struct-tag validation pass — generalized from
// DittoFS's server configuration to MIO's driver/pool domain.
package mioconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mio-io/mio-go/internal/logger"
	"github.com/mio-io/mio-go/internal/telemetry"
)

// envPrefix is the environment variable prefix viper recognizes, e.g.
// MIO_LOGGING_LEVEL=DEBUG.
const envPrefix = "MIO"

// Config is MIO's complete operator-facing configuration.
//
// Configuration sources, in order of precedence:
//  1. Environment variables (MIO_*)
//  2. Configuration file (YAML)
//  3. Default values
type Config struct {
	// Logging controls log output behavior.
	Logging logger.Config `mapstructure:"logging" yaml:"logging"`

	// Tracing controls OpenTelemetry distributed tracing.
	Tracing telemetry.Config `mapstructure:"tracing" yaml:"tracing"`

	// Profiling controls Pyroscope continuous profiling.
	Profiling telemetry.ProfilingConfig `mapstructure:"profiling" yaml:"profiling"`

	// Metrics controls the Prometheus metrics registry.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// Driver selects and configures the storage backend.
	Driver DriverConfig `mapstructure:"driver" yaml:"driver"`

	// Pools lists the storage tiers new objects may be placed on. Must
	// contain at least one entry.
	Pools []PoolConfig `mapstructure:"pools" validate:"required,min=1,dive" yaml:"pools"`

	// DefaultPool names the pool objects land on absent any placement hint.
	DefaultPool string `mapstructure:"default_pool" validate:"required" yaml:"default_pool"`

	// HotThreshold and ColdThreshold seed the hotness->pool-index mapping.
	HotThreshold  uint64 `mapstructure:"hot_threshold" yaml:"hot_threshold"`
	ColdThreshold uint64 `mapstructure:"cold_threshold" yaml:"cold_threshold"`
}

// MetricsConfig controls the Prometheus metrics registry.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is initialized.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// ListenAddr is the address for a metrics HTTP endpoint, e.g. ":9090".
	// It is only carried in the configuration: this module starts no
	// metrics listener.
	ListenAddr string `mapstructure:"listen_addr" yaml:"listen_addr"`
}

// DriverConfig selects and configures the storage backend.
type DriverConfig struct {
	// Kind selects the backend implementation: "memory" or "s3".
	Kind string `mapstructure:"kind" validate:"required,oneof=memory s3" yaml:"kind"`

	// S3 configures the S3 driver. Only consulted when Kind == "s3".
	S3 S3Config `mapstructure:"s3" yaml:"s3"`

	// BadgerDir is the on-disk directory the embedded metadata KV store
	// opens. Empty runs Badger fully in memory (test/ephemeral use).
	// Consulted whenever the selected driver needs a driver.KV backend.
	BadgerDir string `mapstructure:"badger_dir" yaml:"badger_dir"`
}

// S3Config configures driver/s3.
type S3Config struct {
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint"`
	Region          string `mapstructure:"region" yaml:"region"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key"`
	Bucket          string `mapstructure:"bucket" yaml:"bucket"`
	KeyPrefix       string `mapstructure:"key_prefix" yaml:"key_prefix"`
	ForcePathStyle  bool   `mapstructure:"force_path_style" yaml:"force_path_style"`
	PageSize        uint64 `mapstructure:"page_size" yaml:"page_size"`

	MaxRetries        uint          `mapstructure:"max_retries" yaml:"max_retries"`
	InitialBackoff    time.Duration `mapstructure:"initial_backoff" yaml:"initial_backoff"`
	MaxBackoff        time.Duration `mapstructure:"max_backoff" yaml:"max_backoff"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier" yaml:"backoff_multiplier"`
}

// PoolConfig describes one storage tier in the catalog.
type PoolConfig struct {
	Name       string        `mapstructure:"name" validate:"required" yaml:"name"`
	Type       string        `mapstructure:"type" validate:"required,oneof=NVM SSD HDD nvm ssd hdd" yaml:"type"`
	Capacity   uint64        `mapstructure:"capacity" yaml:"capacity"`
	Alignment  uint64        `mapstructure:"alignment" validate:"required,gt=0" yaml:"alignment"`
	BlockSizes []uint64      `mapstructure:"block_sizes" yaml:"block_sizes"`
	Erasure    ErasureConfig `mapstructure:"erasure" yaml:"erasure"`
}

// ErasureConfig mirrors pool.ErasureGeometry in wire-friendly form.
type ErasureConfig struct {
	N        int    `mapstructure:"n" validate:"required,gt=0" yaml:"n"`
	K        int    `mapstructure:"k" yaml:"k"`
	Devices  int    `mapstructure:"devices" validate:"required,gt=0" yaml:"devices"`
	UnitSize uint64 `mapstructure:"unit_size" validate:"required,gt=0" yaml:"unit_size"`
}

// Load loads configuration from file, environment, and defaults, then
// applies defaults and validates the result, matching the teacher's
// config.Load precedence and error wrapping.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if found {
		if err := v.Unmarshal(cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// SaveConfig writes cfg to path in YAML form, matching the teacher's
// SaveConfig (restrictive file mode, since pool/driver config may carry
// credentials).
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("mio")
		v.SetConfigType("yaml")
	}
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		durationDecodeHook(),
	)
}

// durationDecodeHook lets config files express the S3 retry backoffs as
// human-readable strings ("100ms", "2s") instead of raw nanoseconds.
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

var validate = validator.New()

// Validate runs struct-tag validation over cfg, plus the cross-field checks
// the validator package's tags can't express on their own (S3 settings are
// only required once Driver.Kind selects the S3 backend).
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return err
	}
	if cfg.Driver.Kind == "s3" {
		if cfg.Driver.S3.Bucket == "" {
			return fmt.Errorf("driver.s3.bucket is required when driver.kind is s3")
		}
		if cfg.Driver.S3.Region == "" && cfg.Driver.S3.Endpoint == "" {
			return fmt.Errorf("driver.s3.region or driver.s3.endpoint is required when driver.kind is s3")
		}
	}
	return nil
}
