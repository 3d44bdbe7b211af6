package mioconfig

import (
	"context"
	"fmt"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/mio-io/mio-go/pkg/mio"
	"github.com/mio-io/mio-go/pkg/mio/driver"
	"github.com/mio-io/mio-go/pkg/mio/driver/badgerkv"
	"github.com/mio-io/mio-go/pkg/mio/driver/memory"
	mios3 "github.com/mio-io/mio-go/pkg/mio/driver/s3"
	miometrics "github.com/mio-io/mio-go/pkg/mio/metrics"
	"github.com/mio-io/mio-go/pkg/mio/pool"
)

// ResolvePools converts cfg's declarative pool catalog into *pool.Pool
// values ready for mio.Config.Pools.
func (cfg *Config) ResolvePools() ([]*pool.Pool, error) {
	out := make([]*pool.Pool, 0, len(cfg.Pools))
	for i, pc := range cfg.Pools {
		typ, err := parsePoolType(pc.Type)
		if err != nil {
			return nil, fmt.Errorf("pools[%d]: %w", i, err)
		}
		out = append(out, &pool.Pool{
			ID:         pool.ID{Hi: 0, Lo: uint64(i + 1)},
			Name:       pc.Name,
			Type:       typ,
			Capacity:   pc.Capacity,
			Alignment:  pc.Alignment,
			BlockSizes: pc.BlockSizes,
			Erasure: pool.ErasureGeometry{
				N:        pc.Erasure.N,
				K:        pc.Erasure.K,
				Devices:  pc.Erasure.Devices,
				UnitSize: pc.Erasure.UnitSize,
			},
		})
	}
	return out, nil
}

func parsePoolType(s string) (pool.Type, error) {
	switch strings.ToUpper(s) {
	case "NVM":
		return pool.NVM, nil
	case "SSD":
		return pool.SSD, nil
	case "HDD":
		return pool.HDD, nil
	default:
		return 0, fmt.Errorf("unknown pool type %q", s)
	}
}

// MioConfig converts cfg into a mio.Config carrying the runtime pool list
// and ambient tracing/profiling settings; the caller still supplies the
// driver built by BuildDriver.
func (cfg *Config) MioConfig() (mio.Config, error) {
	pools, err := cfg.ResolvePools()
	if err != nil {
		return mio.Config{}, err
	}
	return mio.Config{
		Pools:         pools,
		DefaultPool:   cfg.DefaultPool,
		HotThreshold:  cfg.HotThreshold,
		ColdThreshold: cfg.ColdThreshold,
		Tracing:       cfg.Tracing,
		Profiling:     cfg.Profiling,
	}, nil
}

// driverPoolRegistry builds the sealed pool.Registry a driver consults for
// its own GetPool calls. This is separate from (but built from the same
// catalog as) the registry mio.Init seals for the Mio context itself.
func (cfg *Config) driverPoolRegistry() (*pool.Registry, error) {
	pools, err := cfg.ResolvePools()
	if err != nil {
		return nil, err
	}
	reg := pool.NewRegistry()
	for _, p := range pools {
		if err := reg.Register(p); err != nil {
			return nil, err
		}
	}
	if cfg.DefaultPool != "" {
		if err := reg.SetDefault(cfg.DefaultPool); err != nil {
			return nil, err
		}
	}
	reg.Seal()
	return reg, nil
}

// BuildDriver constructs the driver.Driver selected by cfg.Driver.Kind.
// For "s3" it also opens the Badger-backed metadata store named by
// cfg.Driver.BadgerDir and wires Prometheus instrumentation for both when
// cfg.Metrics.Enabled is set; the returned close func releases the Badger
// handle (a no-op for the memory driver).
func BuildDriver(ctx context.Context, cfg *Config) (driver.Driver, func() error, error) {
	pools, err := cfg.driverPoolRegistry()
	if err != nil {
		return nil, nil, err
	}

	switch cfg.Driver.Kind {
	case "memory":
		return memory.New(pools), func() error { return nil }, nil

	case "s3":
		var badgerMetrics *miometrics.Badger
		if cfg.Metrics.Enabled {
			miometrics.InitRegistry()
			badgerMetrics = miometrics.NewBadger()
		}
		kv, err := badgerkv.Open(cfg.Driver.BadgerDir, badgerkv.WithMetrics(badgerMetrics))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open metadata store: %w", err)
		}

		client, err := newS3Client(ctx, cfg.Driver.S3)
		if err != nil {
			kv.Close()
			return nil, nil, err
		}

		var s3Metrics *miometrics.S3
		if cfg.Metrics.Enabled {
			s3Metrics = miometrics.NewS3()
		}

		d, err := mios3.New(mios3.Config{
			Client:            client,
			Bucket:            cfg.Driver.S3.Bucket,
			KeyPrefix:         cfg.Driver.S3.KeyPrefix,
			PageSize:          cfg.Driver.S3.PageSize,
			Pools:             pools,
			KV:                kv,
			Metrics:           s3Metrics,
			MaxRetries:        cfg.Driver.S3.MaxRetries,
			InitialBackoff:    cfg.Driver.S3.InitialBackoff,
			MaxBackoff:        cfg.Driver.S3.MaxBackoff,
			BackoffMultiplier: cfg.Driver.S3.BackoffMultiplier,
		})
		if err != nil {
			kv.Close()
			return nil, nil, err
		}
		return d, kv.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown driver kind %q", cfg.Driver.Kind)
	}
}

// newS3Client builds an AWS S3 client from S3Config, matching the teacher's
// NewS3ClientFromConfig helper: static credentials plus an optional
// path-style endpoint override for S3-compatible backends (e.g. MinIO).
func newS3Client(ctx context.Context, s3cfg S3Config) (*s3.Client, error) {
	awscfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(s3cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s3cfg.AccessKeyID,
			s3cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awscfg, func(o *s3.Options) {
		if s3cfg.Endpoint != "" {
			o.BaseEndpoint = &s3cfg.Endpoint
		}
		o.UsePathStyle = s3cfg.ForcePathStyle
	})
	return client, nil
}
