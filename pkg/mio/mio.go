// Package mio is the top-level entry point: Init/Fini bound a Mio context's
// lifecycle, and the Mio struct carries the configured driver, pool
// registry and ambient instrumentation that the source threaded through
// per-process globals (mio_instance, mio_pools, mio_sys_hints).
package mio

import (
	"context"
	"time"

	"github.com/mio-io/mio-go/internal/logger"
	"github.com/mio-io/mio-go/internal/telemetry"
	"github.com/mio-io/mio-go/pkg/mio/composite"
	"github.com/mio-io/mio-go/pkg/mio/driver"
	"github.com/mio-io/mio-go/pkg/mio/hints"
	mioid "github.com/mio-io/mio-go/pkg/mio/id"
	"github.com/mio-io/mio-go/pkg/mio/kv"
	"github.com/mio-io/mio-go/pkg/mio/mioctx"
	"github.com/mio-io/mio-go/pkg/mio/object"
	"github.com/mio-io/mio-go/pkg/mio/op"
	"github.com/mio-io/mio-go/pkg/mio/pool"
)

// Config seeds a Mio context. Pools must contain at least one entry;
// DefaultPool names the pool new objects land on absent any other
// placement hint. Tracing/Profiling are optional and off by default,
// matching internal/telemetry's own DefaultConfig.
type Config struct {
	Pools         []*pool.Pool
	DefaultPool   string
	HotThreshold  uint64
	ColdThreshold uint64
	Tracing       telemetry.Config
	Profiling     telemetry.ProfilingConfig
}

// Mio is the explicit context replacing the source's process-globals: the
// attached driver, the pool registry, and (if configured) tracing and
// profiling shutdown hooks.
type Mio struct {
	rt     *mioctx.Context
	log    *logger.LogContext
	stopTr func(context.Context) error
	stopPr func() error
}

// Init attaches d, seals a pool registry built from cfg.Pools, and brings
// up tracing/profiling if cfg.Tracing/cfg.Profiling are enabled. The
// backend's own Init runs first so a failed connection never leaves a
// half-seeded registry behind.
func Init(ctx context.Context, d driver.Driver, cfg Config) (*Mio, error) {
	if err := d.Init(ctx); err != nil {
		return nil, err
	}

	reg := pool.NewRegistry()
	for _, p := range cfg.Pools {
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

	rt := mioctx.New(d, reg)
	if cfg.HotThreshold != 0 {
		rt.HotThreshold = cfg.HotThreshold
	}
	if cfg.ColdThreshold != 0 {
		rt.ColdThreshold = cfg.ColdThreshold
	}

	stopTr, err := telemetry.Init(ctx, cfg.Tracing)
	if err != nil {
		return nil, err
	}
	stopPr, err := telemetry.InitProfiling(cfg.Profiling)
	if err != nil {
		stopTr(ctx)
		return nil, err
	}

	return &Mio{rt: rt, stopTr: stopTr, stopPr: stopPr}, nil
}

// Fini tears down tracing/profiling and releases the driver.
func (m *Mio) Fini(ctx context.Context) error {
	if m.stopPr != nil {
		_ = m.stopPr()
	}
	if m.stopTr != nil {
		_ = m.stopTr(ctx)
	}
	return m.rt.Driver.Fini(ctx)
}

// ThreadInit lets the driver install goroutine-local state, and starts a
// root span for the calling goroutine when tracing is enabled.
func (m *Mio) ThreadInit(ctx context.Context) (context.Context, error) {
	if err := m.rt.Driver.ThreadInit(ctx); err != nil {
		return ctx, err
	}
	if telemetry.IsEnabled() {
		ctx, _ = telemetry.StartSpan(ctx, "mio.thread")
	}
	return ctx, nil
}

// ThreadFini tears down state installed by ThreadInit.
func (m *Mio) ThreadFini(ctx context.Context) error {
	return m.rt.Driver.ThreadFini(ctx)
}

// UserPerm reports whether uid may use this Mio context's backend.
func (m *Mio) UserPerm(ctx context.Context, uid string) (bool, error) {
	return m.rt.Driver.UserPerm(ctx, uid)
}

// Pools exposes the sealed pool registry for inspection (e.g. listing
// tiers for a placement policy built on top of Mio).
func (m *Mio) Pools() *pool.Registry {
	return m.rt.Pools
}

// Wait blocks until o reaches a terminal state or timeout elapses.
func (m *Mio) Wait(ctx context.Context, o *op.Op, timeout time.Duration) error {
	return m.rt.Wait(ctx, o, timeout)
}

// Poll drives every op in ops forward until all are terminal or timeout
// elapses.
func (m *Mio) Poll(ctx context.Context, ops []*op.Op, timeout time.Duration) error {
	return m.rt.Poll(ctx, ops, timeout)
}

// Object handle lifecycle. See pkg/mio/object for the chain each of these
// builds; Mio only supplies the shared runtime context.

func (m *Mio) Open(ctx context.Context, id mioid.ID) (*object.Handle, *op.Op) {
	return object.Open(ctx, m.rt, id)
}

func (m *Mio) Create(ctx context.Context, id mioid.ID, explicitPool pool.ID, whereName string, initial *hints.Map) (*object.Handle, *op.Op, error) {
	return object.Create(ctx, m.rt, id, explicitPool, whereName, initial)
}

func (m *Mio) Delete(ctx context.Context, id mioid.ID) *op.Op {
	return object.Delete(ctx, m.rt, id)
}

func (m *Mio) Close(ctx context.Context, h *object.Handle) *op.Op {
	return object.Close(ctx, m.rt, h)
}

func (m *Mio) HintStore(h *object.Handle, key hints.Key, value uint64) (*op.Op, error) {
	return object.HintStore(m.rt, h, key, value)
}

func (m *Mio) HintLoad(h *object.Handle, key hints.Key) (uint64, bool, *op.Op) {
	return object.HintLoad(m.rt, h, key)
}

// Object I/O.

func (m *Mio) Writev(ctx context.Context, h *object.Handle, iovs []driver.IOVec) (*op.Op, error) {
	return object.Writev(ctx, m.rt, h, iovs)
}

func (m *Mio) Readv(ctx context.Context, h *object.Handle, iovs []driver.IOVec) (*op.Op, error) {
	return object.Readv(ctx, m.rt, h, iovs)
}

func (m *Mio) Sync(ctx context.Context, h *object.Handle) *op.Op {
	return object.Sync(ctx, m.rt, h)
}

func (m *Mio) Lock(ctx context.Context, h *object.Handle) *op.Op {
	return object.Lock(ctx, m.rt, h)
}

func (m *Mio) Unlock(ctx context.Context, h *object.Handle) *op.Op {
	return object.Unlock(ctx, m.rt, h)
}

// Composite layout and extents.

func (m *Mio) CreateComposite(ctx context.Context, id mioid.ID, layers []composite.Layer) *op.Op {
	return composite.Create(ctx, m.rt, id, layers)
}

func (m *Mio) AddLayers(ctx context.Context, id mioid.ID, layers []composite.Layer) *op.Op {
	return composite.AddLayers(ctx, m.rt, id, layers)
}

func (m *Mio) DelLayers(ctx context.Context, id mioid.ID, subOIDs []mioid.ID) *op.Op {
	return composite.DelLayers(ctx, m.rt, id, subOIDs)
}

func (m *Mio) ListLayers(ctx context.Context, id mioid.ID) (*composite.ListResult, *op.Op) {
	return composite.ListLayers(ctx, m.rt, id)
}

func (m *Mio) AddExtents(ctx context.Context, id mioid.ID, extents []composite.Extent) *op.Op {
	return composite.AddExtents(ctx, m.rt, id, extents)
}

func (m *Mio) GetExtents(ctx context.Context, id mioid.ID, query []composite.Extent) (*composite.ExtentsResult, *op.Op) {
	return composite.GetExtents(ctx, m.rt, id, query)
}

// KV façade.

func (m *Mio) KVGet(ctx context.Context, set mioid.ID, keys [][]byte) (*kv.GetResult, *op.Op) {
	return kv.Get(ctx, m.rt, set, keys)
}

func (m *Mio) KVNext(ctx context.Context, set mioid.ID, start []byte, n int, exclude bool) (*kv.NextResult, *op.Op) {
	return kv.Next(ctx, m.rt, set, start, n, exclude)
}

func (m *Mio) KVPut(ctx context.Context, set mioid.ID, pairs []kv.Pair) *op.Op {
	return kv.Put(ctx, m.rt, set, pairs)
}

func (m *Mio) KVDel(ctx context.Context, set mioid.ID, keys [][]byte) *op.Op {
	return kv.Del(ctx, m.rt, set, keys)
}

func (m *Mio) KVCreateSet(ctx context.Context, set mioid.ID) *op.Op {
	return kv.CreateSet(ctx, m.rt, set)
}

func (m *Mio) KVDelSet(ctx context.Context, set mioid.ID) *op.Op {
	return kv.DelSet(ctx, m.rt, set)
}
