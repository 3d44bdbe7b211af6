package object

import (
	"context"
	"sort"
	"time"

	"github.com/mio-io/mio-go/pkg/mio/driver"
	mioerrors "github.com/mio-io/mio-go/pkg/mio/errors"
	"github.com/mio-io/mio-go/pkg/mio/mioctx"
	"github.com/mio-io/mio-go/pkg/mio/op"
)

// sortAndValidate returns iovs sorted by offset, the end-of-write (the
// highest offset+length across all vectors), and an error if any vector is
// zero-length or overlaps its neighbor.
func sortAndValidate(iovs []driver.IOVec) ([]driver.IOVec, uint64, error) {
	if len(iovs) == 0 {
		return nil, 0, mioerrors.NewInvalidArgument("empty iovec list")
	}
	sorted := append([]driver.IOVec(nil), iovs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Offset < sorted[j].Offset })

	var endOfWrite uint64
	for i, v := range sorted {
		if v.Length == 0 {
			return nil, 0, mioerrors.NewInvalidArgument("zero-length iovec")
		}
		end := v.Offset + v.Length
		if end > endOfWrite {
			endOfWrite = end
		}
		if i > 0 {
			prevEnd := sorted[i-1].Offset + sorted[i-1].Length
			if prevEnd > v.Offset {
				return nil, 0, mioerrors.NewInvalidArgument("overlapping iovecs")
			}
		}
	}
	return sorted, endOfWrite, nil
}

// alignRange returns the page-aligned super-range covering [offset,
// offset+length).
func alignRange(offset, length, pageSize uint64) (start, end uint64) {
	start = (offset / pageSize) * pageSize
	stop := offset + length
	end = ((stop + pageSize - 1) / pageSize) * pageSize
	return start, end
}

// rbwAlign turns v into a page-aligned vector, performing a read-modify-write
// against the backend when v's offset or length isn't already page-aligned
// (the three unaligned cases of the source's RBW path all reduce to the
// same aligned-superrange read-merge-write here).
func rbwAlign(ctx context.Context, d driver.Driver, h driver.Handle, pageSize uint64, v driver.IOVec) (driver.IOVec, error) {
	start, end := alignRange(v.Offset, v.Length, pageSize)
	if start == v.Offset && end == v.Offset+v.Length {
		return v, nil
	}

	buf := make([]byte, end-start)
	if err := d.Readv(ctx, h, []driver.IOVec{{Base: buf, Offset: start, Length: end - start}}); err != nil {
		return driver.IOVec{}, err
	}
	copy(buf[v.Offset-start:v.Offset-start+v.Length], v.Base[:v.Length])
	return driver.IOVec{Base: buf, Offset: start, Length: end - start}, nil
}

// chunkByBudget groups iovs into batches whose total byte count is each at
// most maxPerOp (a maxPerOp of 0 means no limit: the pool advertised no
// erasure geometry). Vectors are never split across a group boundary: the
// per-op maximum is the backend's hard ceiling on one sub-op, not a
// splitting threshold, so a single vector larger than maxPerOp returns
// TooBig instead of being carved into page-unaligned pieces.
func chunkByBudget(iovs []driver.IOVec, maxPerOp uint64) ([][]driver.IOVec, error) {
	if maxPerOp == 0 {
		return [][]driver.IOVec{iovs}, nil
	}

	var groups [][]driver.IOVec
	var cur []driver.IOVec
	var curBytes uint64

	for _, v := range iovs {
		if v.Length > maxPerOp {
			return nil, mioerrors.NewTooBig("iovec exceeds the pool's per-op maximum")
		}
		if curBytes+v.Length > maxPerOp {
			groups = append(groups, cur)
			cur = nil
			curBytes = 0
		}
		cur = append(cur, v)
		curBytes += v.Length
	}
	if len(cur) > 0 {
		groups = append(groups, cur)
	}
	return groups, nil
}

func maxPerOp(rt *mioctx.Context, h *Handle) uint64 {
	if rt.Pools == nil {
		return 0
	}
	p, err := rt.Pools.Get(h.PoolID)
	if err != nil {
		return 0
	}
	return p.MaxPerOp()
}

// writeTailPostProc submits one write group and, on the last group, folds
// the write into the handle's size and access stats.
type writeTailPostProc struct {
	groups [][]driver.IOVec
	idx    int
	d      driver.Driver
	h      *Handle
	dh     driver.Handle
	endOfWrite, total uint64
}

func (p *writeTailPostProc) Run(o *op.Op) (op.Result, error) {
	if p.idx < len(p.groups) {
		group := p.groups[p.idx]
		p.idx++
		err := p.d.Writev(context.Background(), p.dh, group)
		state := op.Completed
		if err != nil {
			state = op.Failed
		}
		var next op.PostProcessor
		if err == nil {
			next = p
		}
		o.AppendSubOp(op.Outcome{State: state, Err: err}, next, nil)
		if err != nil {
			return op.Final, err
		}
		if p.idx < len(p.groups) {
			return op.Next, nil
		}
	}

	p.h.mu.Lock()
	if p.endOfWrite > p.h.Attrs.Size {
		p.h.Attrs.Size = p.endOfWrite
	}
	p.h.Attrs.Stats.WCount++
	p.h.Attrs.Stats.WBytes += p.total
	p.h.Attrs.Stats.WTime = uint64(time.Now().UnixNano())
	p.h.AttrsUpdated = true
	p.h.mu.Unlock()
	return op.Final, nil
}

// Writev writes iovs to h, performing read-before-write alignment for any
// vector whose offset or length isn't a multiple of the backend page size,
// then chunking the result to the pool's per-op byte budget.
func Writev(ctx context.Context, rt *mioctx.Context, h *Handle, iovs []driver.IOVec) (*op.Op, error) {
	sorted, endOfWrite, err := sortAndValidate(iovs)
	if err != nil {
		return nil, err
	}

	pageSize, err := rt.Driver.PageSize(ctx, h.DriverHandle)
	if err != nil {
		return nil, err
	}

	aligned := make([]driver.IOVec, 0, len(sorted))
	var total uint64
	for _, v := range sorted {
		total += v.Length
		av, err := rbwAlign(ctx, rt.Driver, h.DriverHandle, pageSize, v)
		if err != nil {
			return nil, err
		}
		// When v's first page is also the previous vector's last page, put
		// v's bytes into the previous buffer and keep only the part of av
		// past it, so each page is read and written once.
		if n := len(aligned); n > 0 && av.Offset < aligned[n-1].Offset+aligned[n-1].Length {
			prev := aligned[n-1]
			prevEnd := prev.Offset + prev.Length
			inPrev := min(v.Offset+v.Length, prevEnd) - v.Offset
			copy(prev.Base[v.Offset-prev.Offset:], v.Base[:inPrev])
			if av.Offset+av.Length <= prevEnd {
				continue
			}
			av = driver.IOVec{Base: av.Base[prevEnd-av.Offset:], Offset: prevEnd, Length: av.Offset + av.Length - prevEnd}
		}
		aligned = append(aligned, av)
	}

	groups, err := chunkByBudget(aligned, maxPerOp(rt, h))
	if err != nil {
		return nil, err
	}

	o := rt.NewOp(op.Writev, h.ID)
	post := &writeTailPostProc{groups: groups, d: rt.Driver, h: h, dh: h.DriverHandle, endOfWrite: endOfWrite, total: total}
	o.AppendSubOp(op.Outcome{State: op.Completed}, post, nil)
	rt.Drive(ctx, o)
	return o, nil
}

// readTailPostProc submits one read group and, on the last group, folds the
// read into the handle's access stats.
type readTailPostProc struct {
	groups [][]driver.IOVec
	idx    int
	d      driver.Driver
	h      *Handle
	dh     driver.Handle
	total  uint64
}

func (p *readTailPostProc) Run(o *op.Op) (op.Result, error) {
	if p.idx < len(p.groups) {
		group := p.groups[p.idx]
		p.idx++
		err := p.d.Readv(context.Background(), p.dh, group)
		state := op.Completed
		if err != nil {
			state = op.Failed
		}
		var next op.PostProcessor
		if err == nil {
			next = p
		}
		o.AppendSubOp(op.Outcome{State: state, Err: err}, next, nil)
		if err != nil {
			return op.Final, err
		}
		if p.idx < len(p.groups) {
			return op.Next, nil
		}
	}

	p.h.mu.Lock()
	p.h.Attrs.Stats.RCount++
	p.h.Attrs.Stats.RBytes += p.total
	p.h.Attrs.Stats.RTime = uint64(time.Now().UnixNano())
	p.h.AttrsUpdated = true
	p.h.mu.Unlock()
	return op.Final, nil
}

// Readv reads iovs from h. Unlike Writev, reads need no RBW alignment: the
// backend already defines reads past the logical end of the object as
// zero-filled.
func Readv(ctx context.Context, rt *mioctx.Context, h *Handle, iovs []driver.IOVec) (*op.Op, error) {
	sorted, _, err := sortAndValidate(iovs)
	if err != nil {
		return nil, err
	}

	var total uint64
	for _, v := range sorted {
		total += v.Length
	}

	groups, err := chunkByBudget(sorted, maxPerOp(rt, h))
	if err != nil {
		return nil, err
	}

	o := rt.NewOp(op.Readv, h.ID)
	post := &readTailPostProc{groups: groups, d: rt.Driver, h: h, dh: h.DriverHandle, total: total}
	o.AppendSubOp(op.Outcome{State: op.Completed}, post, nil)
	rt.Drive(ctx, o)
	return o, nil
}

// Sync flushes h's pending writes through the backend.
func Sync(ctx context.Context, rt *mioctx.Context, h *Handle) *op.Op {
	o := rt.NewOp(op.Sync, h.ID)
	err := rt.Driver.Sync(ctx, h.DriverHandle)
	state := op.Completed
	if err != nil {
		state = op.Failed
	}
	o.AppendSubOp(op.Outcome{State: state, Err: err}, nil, nil)
	rt.Drive(ctx, o)
	return o
}

// Lock acquires h's exclusive lock. The lock is not re-entrant.
func Lock(ctx context.Context, rt *mioctx.Context, h *Handle) *op.Op {
	o := rt.NewOp(op.Lock, h.ID)
	err := rt.Driver.Lock(ctx, h.DriverHandle)
	state := op.Completed
	if err != nil {
		state = op.Failed
	} else {
		h.mu.Lock()
		h.locked = true
		h.mu.Unlock()
	}
	o.AppendSubOp(op.Outcome{State: state, Err: err}, nil, nil)
	rt.Drive(ctx, o)
	return o
}

// Unlock releases h's exclusive lock.
func Unlock(ctx context.Context, rt *mioctx.Context, h *Handle) *op.Op {
	o := rt.NewOp(op.Unlock, h.ID)
	err := rt.Driver.Unlock(ctx, h.DriverHandle)
	state := op.Completed
	if err != nil {
		state = op.Failed
	} else {
		h.mu.Lock()
		h.locked = false
		h.mu.Unlock()
	}
	o.AppendSubOp(op.Outcome{State: state, Err: err}, nil, nil)
	rt.Drive(ctx, o)
	return o
}
