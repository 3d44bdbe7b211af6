// Package mioctx carries the process-wide state every mio component needs:
// the attached driver, the pool registry, the op sequence/session counters,
// and the waiter used to drive ops to completion. It replaces the source's
// process-global state with an explicit, passable context value.
package mioctx

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/mio-io/mio-go/pkg/mio/driver"
	mioerrors "github.com/mio-io/mio-go/pkg/mio/errors"
	mioid "github.com/mio-io/mio-go/pkg/mio/id"
	"github.com/mio-io/mio-go/pkg/mio/op"
	"github.com/mio-io/mio-go/pkg/mio/pool"
)

// Context is the shared handle every mio package operates against.
type Context struct {
	Driver driver.Driver
	Pools  *pool.Registry
	Waiter op.OpWaiter

	// HotThreshold and ColdThreshold seed the hotness->pool mapping used by
	// object creation when no system hint override is present.
	HotThreshold  uint64
	ColdThreshold uint64

	opSeq   uint64
	sessSeq uint64
}

// New creates a Context over the given driver and pool registry, with the
// default hotness thresholds and an ImmediateWaiter (the synchronous-driver
// waiter; real async drivers would supply their own OpWaiter here).
func New(d driver.Driver, pools *pool.Registry) *Context {
	return &Context{
		Driver:        d,
		Pools:         pools,
		Waiter:        op.ImmediateWaiter{},
		HotThreshold:  pool.DefaultHotThreshold,
		ColdThreshold: pool.DefaultColdThreshold,
	}
}

// NewOp allocates an op carrying the next monotonic sequence number.
func (c *Context) NewOp(opcode op.Opcode, subject mioid.ID) *op.Op {
	seq := atomic.AddUint64(&c.opSeq, 1)
	return op.New(seq, opcode, subject)
}

// NextSessionSeq returns the next monotonic object-session sequence number,
// assigned to a handle each time it is opened or created.
func (c *Context) NextSessionSeq() uint64 {
	return atomic.AddUint64(&c.sessSeq, 1)
}

// Drive runs o to completion immediately when callbacks are set on it: the
// backend call already happened synchronously by the time the sub-op chain
// was built, so all that remains is to let the op machinery unpack the
// outcome, run post-processors, and deliver the callback. Ops with no
// callbacks are left ONFLY for the caller to Poll or WaitOne explicitly.
func (c *Context) Drive(ctx context.Context, o *op.Op) {
	if !o.HasCallbacks() {
		return
	}
	for !o.IsTerminal() {
		head := o.Head()
		if head == nil {
			break
		}
		state, err := c.Waiter.Wait(ctx, head.Handle, 0)
		o.DriveSync(state, err)
	}
}

// Wait blocks until o reaches a terminal state or timeout elapses,
// surfacing errors.Timeout if it is still in flight.
func (c *Context) Wait(ctx context.Context, o *op.Op, timeout time.Duration) error {
	return op.WaitOne(ctx, c.Waiter, o, timeout)
}

// Poll drives every op in ops forward until all are terminal or timeout
// elapses. It is an error to include an op with callbacks set.
func (c *Context) Poll(ctx context.Context, ops []*op.Op, timeout time.Duration) error {
	return op.Poll(ctx, c.Waiter, ops, timeout)
}

// ResolvePool picks the pool a new object should land on, given an explicit
// pool id (if non-zero), a WHERE hint pool name (if set), a HOT_INDEX hint
// (if set), or the registry default, in that priority order.
func (c *Context) ResolvePool(explicit pool.ID, whereName string, hotIndex uint64, haveHotIndex bool) (*pool.Pool, error) {
	if c.Pools == nil {
		return nil, mioerrors.NewNotFound("no pool registry configured")
	}
	if explicit != (pool.ID{}) {
		return c.Pools.Get(explicit)
	}
	if whereName != "" {
		return c.Pools.GetByName(whereName)
	}
	if haveHotIndex {
		return c.Pools.ByHotnessIndex(hotIndex, c.HotThreshold, c.ColdThreshold)
	}
	return c.Pools.Default()
}
