// Package object implements the object handle lifecycle (open, create,
// delete, close) and the per-handle hint subsystem. The I/O engine (read,
// write, sync, lock) lives alongside it in io.go.
package object

import (
	"context"
	"sync"

	"github.com/mio-io/mio-go/pkg/mio/attrs"
	"github.com/mio-io/mio-go/pkg/mio/driver"
	mioerrors "github.com/mio-io/mio-go/pkg/mio/errors"
	"github.com/mio-io/mio-go/pkg/mio/hints"
	mioid "github.com/mio-io/mio-go/pkg/mio/id"
	"github.com/mio-io/mio-go/pkg/mio/mioctx"
	"github.com/mio-io/mio-go/pkg/mio/op"
	"github.com/mio-io/mio-go/pkg/mio/pool"
)

// Handle is an open object. It is not safe for concurrent use by multiple
// goroutines issuing overlapping I/O, matching the source's per-handle
// session state; the mutex here only protects the bookkeeping fields
// (Attrs, AttrsUpdated) against concurrent Close/io completion.
type Handle struct {
	ID      mioid.ID
	SessSeq uint64

	DriverHandle driver.Handle
	PoolID       pool.ID

	// Hints is the session hint map: persistent hints loaded from the
	// attribute record, merged with any session-scoped hints set after
	// open.
	Hints *hints.Map

	mu           sync.Mutex
	Attrs        attrs.Attrs
	AttrsUpdated bool
	locked       bool
}

func (h *Handle) setAttrs(a attrs.Attrs) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Attrs = a
}

func (h *Handle) snapshotAttrs() attrs.Attrs {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Attrs
}

func (h *Handle) markUpdated() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.AttrsUpdated = true
}

// attrsGetPostProc issues the metadata KV get for the object's attribute
// record once the backend OPEN has completed, and chains to
// attrsDecodePostProc to parse it.
type attrsGetPostProc struct {
	rt *mioctx.Context
	h  *Handle
}

func (p attrsGetPostProc) Run(o *op.Op) (op.Result, error) {
	pairs, err := p.rt.Driver.Get(context.Background(), mioid.MetaKVSet, [][]byte{idKey(p.h.ID)})
	if err != nil {
		return op.Final, err
	}
	o.AppendSubOp(op.Outcome{State: op.Completed}, attrsDecodePostProc{h: p.h, raw: pairs[0].Value, err: pairs[0].Err}, nil)
	return op.Next, nil
}

// attrsDecodePostProc decodes the fetched attribute record (if any) into the
// handle; a missing record (a freshly created object whose attrs were never
// persisted) is treated as empty attrs rather than an error.
type attrsDecodePostProc struct {
	h   *Handle
	raw []byte
	err error
}

func (p attrsDecodePostProc) Run(o *op.Op) (op.Result, error) {
	if mioerrors.IsNotFound(p.err) || p.raw == nil {
		p.h.setAttrs(attrs.Attrs{PHints: hints.NewMap(hints.ObjectCapacity)})
		return op.Final, nil
	}
	a, err := attrs.Decode(p.raw)
	if err != nil {
		return op.Final, err
	}
	p.h.setAttrs(*a)
	return op.Final, nil
}

func idKey(id mioid.ID) []byte {
	b := id.Bytes()
	return b[:]
}

// Open attaches to an existing object: the backend OPEN runs synchronously,
// then a post-processor chain fetches and decodes the attribute record. The
// returned op must be waited on (Context.Wait or Context.Poll) before the
// handle's Attrs/Hints fields are valid.
func Open(ctx context.Context, rt *mioctx.Context, id mioid.ID) (*Handle, *op.Op) {
	h := &Handle{ID: id, SessSeq: rt.NextSessionSeq()}

	o := rt.NewOp(op.OpenObject, id)
	dh, err := rt.Driver.Open(ctx, id)
	state := op.Completed
	if err != nil {
		state = op.Failed
	} else {
		h.DriverHandle = dh
		if pid, perr := rt.Driver.PoolID(ctx, dh); perr == nil {
			h.PoolID = pid
		}
	}
	var post op.PostProcessor
	if err == nil {
		post = attrsGetPostProc{rt: rt, h: h}
	}
	o.AppendSubOp(op.Outcome{State: state, Err: err}, post, nil)
	rt.Drive(ctx, o)
	return h, o
}

// createFinalizePostProc seeds a newly created object's attribute record
// with zero stats and the caller's initial persistent hints.
type createFinalizePostProc struct {
	h           *Handle
	initial     *hints.Map
}

func (p createFinalizePostProc) Run(o *op.Op) (op.Result, error) {
	ph := hints.NewMap(hints.ObjectCapacity)
	if p.initial != nil {
		if err := ph.Merge(p.initial.FilterPersistent()); err != nil {
			return op.Final, err
		}
	}
	p.h.setAttrs(attrs.Attrs{PHints: ph})
	p.h.markUpdated()
	return op.Final, nil
}

// Create allocates a new object on the pool resolved from explicitPool (if
// non-zero), the WHERE hint pool name, the HOT_INDEX hint, or the registry
// default, in that priority order (spec §4.3's placement rule). initial, if
// non-nil, seeds the object's session hints; its persistent subset is
// written into the attribute record.
func Create(ctx context.Context, rt *mioctx.Context, id mioid.ID, explicitPool pool.ID, whereName string, initial *hints.Map) (*Handle, *op.Op, error) {
	var hotIndex uint64
	haveHot := false
	if initial != nil {
		if v, ok := initial.Get(int(hints.HOT_INDEX)); ok {
			hotIndex, haveHot = v, true
		}
	}
	p, err := rt.ResolvePool(explicitPool, whereName, hotIndex, haveHot)
	if err != nil {
		return nil, nil, err
	}

	h := &Handle{ID: id, SessSeq: rt.NextSessionSeq(), PoolID: p.ID, Hints: cloneOrEmpty(initial)}

	o := rt.NewOp(op.CreateObject, id)
	dh, cerr := rt.Driver.Create(ctx, p.ID, id)
	state := op.Completed
	if cerr != nil {
		state = op.Failed
	} else {
		h.DriverHandle = dh
	}
	var post op.PostProcessor
	if cerr == nil {
		post = createFinalizePostProc{h: h, initial: initial}
	}
	o.AppendSubOp(op.Outcome{State: state, Err: cerr}, post, nil)
	rt.Drive(ctx, o)
	return h, o, nil
}

func cloneOrEmpty(m *hints.Map) *hints.Map {
	if m == nil {
		return hints.NewMap(hints.ObjectCapacity)
	}
	return m.Clone()
}

// deleteAttrsPostProc removes the object's attribute record once the
// backend data delete has completed; a missing record is not an error.
type deleteAttrsPostProc struct {
	rt *mioctx.Context
	id mioid.ID
}

func (p deleteAttrsPostProc) Run(o *op.Op) (op.Result, error) {
	err := p.rt.Driver.Del(context.Background(), mioid.MetaKVSet, [][]byte{idKey(p.id)})
	if err != nil && !mioerrors.IsNotFound(err) {
		return op.Final, err
	}
	return op.Final, nil
}

// deleteDataPostProc deletes the object's data once the backend OPEN
// (existence check) has completed.
type deleteDataPostProc struct {
	rt *mioctx.Context
	id mioid.ID
}

func (p deleteDataPostProc) Run(o *op.Op) (op.Result, error) {
	err := p.rt.Driver.Delete(context.Background(), p.id)
	if err != nil {
		return op.Final, err
	}
	o.AppendSubOp(op.Outcome{State: op.Completed}, deleteAttrsPostProc{rt: p.rt, id: p.id}, nil)
	return op.Next, nil
}

// Delete removes an object: OPEN (existence check), then DELETE data, then
// DELETE the attribute record, chained via post-processors.
func Delete(ctx context.Context, rt *mioctx.Context, id mioid.ID) *op.Op {
	o := rt.NewOp(op.DeleteObject, id)
	_, err := rt.Driver.Open(ctx, id)
	state := op.Completed
	if err != nil {
		state = op.Failed
	}
	var post op.PostProcessor
	if err == nil {
		post = deleteDataPostProc{rt: rt, id: id}
	}
	o.AppendSubOp(op.Outcome{State: state, Err: err}, post, nil)
	rt.Drive(ctx, o)
	return o
}

// Close releases a handle. If the handle's attributes were modified since
// open (AttrsUpdated), the current attribute record is persisted
// synchronously before the handle is considered closed.
func Close(ctx context.Context, rt *mioctx.Context, h *Handle) *op.Op {
	o := rt.NewOp(op.CloseObject, h.ID)

	closeErr := rt.Driver.Close(ctx, h.DriverHandle)
	var putErr error
	h.mu.Lock()
	updated := h.AttrsUpdated
	a := h.Attrs
	h.mu.Unlock()

	if closeErr == nil && updated {
		buf, eerr := attrs.Encode(&a)
		if eerr != nil {
			putErr = eerr
		} else {
			putErr = rt.Driver.Put(ctx, mioid.MetaKVSet, []driver.KVPair{{Key: idKey(h.ID), Value: buf}})
		}
		if putErr == nil {
			h.mu.Lock()
			h.AttrsUpdated = false
			h.mu.Unlock()
		}
	}

	err := closeErr
	if err == nil {
		err = putErr
	}
	state := op.Completed
	if err != nil {
		state = op.Failed
	}
	o.AppendSubOp(op.Outcome{State: state, Err: err}, nil, nil)
	rt.Drive(ctx, o)
	return o
}

// HintStore sets a hint on the handle (object-scoped) or on the shared
// runtime (system-scoped). Object-scoped persistent hints mark the handle
// dirty so Close will persist them.
func HintStore(rt *mioctx.Context, h *Handle, key hints.Key, value uint64) (*op.Op, error) {
	scope, typ, err := hints.Describe(key)
	if err != nil {
		return nil, err
	}

	switch scope {
	case hints.ScopeSystem:
		switch key {
		case hints.HotObjThreshold:
			rt.HotThreshold = value
		case hints.ColdObjThreshold:
			rt.ColdThreshold = value
		}
	default:
		if h.Hints == nil {
			h.Hints = hints.NewMap(hints.ObjectCapacity)
		}
		if err := h.Hints.Set(int(key), value); err != nil {
			return nil, err
		}
		if typ == hints.TypePersistent {
			h.mu.Lock()
			if h.Attrs.PHints == nil {
				h.Attrs.PHints = hints.NewMap(hints.ObjectCapacity)
			}
			_ = h.Attrs.PHints.Set(int(key), value)
			h.AttrsUpdated = true
			h.mu.Unlock()
		}
	}

	o := rt.NewOp(op.HintStore, h.ID)
	o.AppendSubOp(op.Outcome{State: op.Completed}, nil, nil)
	return o, nil
}

// HintLoad reads a hint's current value. HOT_INDEX is recomputed on every
// load as rcount+wcount rather than read back verbatim, per the dynamic
// hotness tracking rule.
func HintLoad(rt *mioctx.Context, h *Handle, key hints.Key) (uint64, bool, *op.Op) {
	var value uint64
	var ok bool

	switch key {
	case hints.HOT_INDEX:
		a := h.snapshotAttrs()
		value = a.Stats.RCount + a.Stats.WCount
		ok = true
	case hints.HotObjThreshold:
		value, ok = rt.HotThreshold, true
	case hints.ColdObjThreshold:
		value, ok = rt.ColdThreshold, true
	default:
		if h.Hints != nil {
			value, ok = h.Hints.Get(int(key))
		}
	}

	o := rt.NewOp(op.HintLoad, h.ID)
	o.AppendSubOp(op.Outcome{State: op.Completed}, nil, nil)
	return value, ok, o
}
