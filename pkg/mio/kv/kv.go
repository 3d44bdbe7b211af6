// Package kv is a thin layer over the driver's KV group that wraps each
// call in the op model (for API uniformity with the object and composite
// packages). Get and Next run the driver call in a single post-processor
// that fills the caller's result; the other calls invoke the driver
// directly and need no post-processing.
package kv

import (
	"context"

	"github.com/mio-io/mio-go/pkg/mio/driver"
	mioid "github.com/mio-io/mio-go/pkg/mio/id"
	"github.com/mio-io/mio-go/pkg/mio/mioctx"
	"github.com/mio-io/mio-go/pkg/mio/op"
)

// Pair is one key/value result, carrying its own per-entry error (e.g.
// errors.NotFound for a missing key, errors.EndOfIteration for an
// exhausted Next).
type Pair = driver.KVPair

// GetResult receives the fetched pairs once the op built by Get reaches a
// terminal state.
type GetResult struct {
	Pairs []Pair
}

type getPostProc struct {
	rt   *mioctx.Context
	set  mioid.ID
	keys [][]byte
	out  *GetResult
}

func (p getPostProc) Run(o *op.Op) (op.Result, error) {
	pairs, err := p.rt.Driver.Get(context.Background(), p.set, p.keys)
	if err != nil {
		return op.Final, err
	}
	p.out.Pairs = pairs
	return op.Final, nil
}

// Get fetches keys from set. Once the returned op is terminal, out.Pairs
// holds one entry per requested key, in the same order.
func Get(ctx context.Context, rt *mioctx.Context, set mioid.ID, keys [][]byte) (*GetResult, *op.Op) {
	out := &GetResult{}
	o := rt.NewOp(op.KVGet, set)
	o.AppendSubOp(op.Outcome{State: op.Completed}, getPostProc{rt: rt, set: set, keys: keys, out: out}, nil)
	rt.Drive(ctx, o)
	return out, o
}

// NextResult receives the iterated pairs once the op built by Next reaches
// a terminal state.
type NextResult struct {
	Pairs []Pair
}

type nextPostProc struct {
	rt      *mioctx.Context
	set     mioid.ID
	start   []byte
	n       int
	exclude bool
	out     *NextResult
}

func (p nextPostProc) Run(o *op.Op) (op.Result, error) {
	pairs, err := p.rt.Driver.Next(context.Background(), p.set, p.start, p.n, p.exclude)
	if err != nil {
		return op.Final, err
	}
	p.out.Pairs = pairs
	return op.Final, nil
}

// Next iterates set starting at startKey (inclusive unless exclude is
// set), returning up to n pairs; entries past the end of the set carry
// errors.EndOfIteration in Pair.Err rather than shortening the result.
func Next(ctx context.Context, rt *mioctx.Context, set mioid.ID, startKey []byte, n int, exclude bool) (*NextResult, *op.Op) {
	out := &NextResult{}
	o := rt.NewOp(op.KVNext, set)
	o.AppendSubOp(op.Outcome{State: op.Completed}, nextPostProc{rt: rt, set: set, start: startKey, n: n, exclude: exclude, out: out}, nil)
	rt.Drive(ctx, o)
	return out, o
}

// Put writes pairs into set.
func Put(ctx context.Context, rt *mioctx.Context, set mioid.ID, pairs []Pair) *op.Op {
	o := rt.NewOp(op.KVPut, set)
	err := rt.Driver.Put(ctx, set, pairs)
	state := op.Completed
	if err != nil {
		state = op.Failed
	}
	o.AppendSubOp(op.Outcome{State: state, Err: err}, nil, nil)
	rt.Drive(ctx, o)
	return o
}

// Del removes keys from set.
func Del(ctx context.Context, rt *mioctx.Context, set mioid.ID, keys [][]byte) *op.Op {
	o := rt.NewOp(op.KVDel, set)
	err := rt.Driver.Del(ctx, set, keys)
	state := op.Completed
	if err != nil {
		state = op.Failed
	}
	o.AppendSubOp(op.Outcome{State: state, Err: err}, nil, nil)
	rt.Drive(ctx, o)
	return o
}

// CreateSet creates a new, empty KV set.
func CreateSet(ctx context.Context, rt *mioctx.Context, set mioid.ID) *op.Op {
	o := rt.NewOp(op.KVCreateSet, set)
	err := rt.Driver.CreateSet(ctx, set)
	state := op.Completed
	if err != nil {
		state = op.Failed
	}
	o.AppendSubOp(op.Outcome{State: state, Err: err}, nil, nil)
	rt.Drive(ctx, o)
	return o
}

// DelSet deletes an entire KV set.
func DelSet(ctx context.Context, rt *mioctx.Context, set mioid.ID) *op.Op {
	o := rt.NewOp(op.KVDelSet, set)
	err := rt.Driver.DelSet(ctx, set)
	state := op.Completed
	if err != nil {
		state = op.Failed
	}
	o.AppendSubOp(op.Outcome{State: state, Err: err}, nil, nil)
	rt.Drive(ctx, o)
	return o
}
