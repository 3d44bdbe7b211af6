// Package op implements the asynchronous operation model: a typed op
// carrying a chain of driver sub-ops, each with its own post-processor, a
// poll/wait loop with a distributed timeout budget, and a callback bridge
// that is mutually exclusive with polling.
package op

import (
	"context"
	"sync"
	"time"

	mioerrors "github.com/mio-io/mio-go/pkg/mio/errors"
	mioid "github.com/mio-io/mio-go/pkg/mio/id"
)

// Opcode identifies the kind of operation an Op represents.
type Opcode int

const (
	OpenObject Opcode = iota
	CreateObject
	DeleteObject
	CloseObject
	Writev
	Readv
	Sync
	Lock
	Unlock
	HintStore
	HintLoad
	KVGet
	KVPut
	KVDel
	KVNext
	KVCreateSet
	KVDelSet
	CompositeCreate
	CompositeDelete
	AddLayers
	DelLayers
	ListLayers
	AddExtents
	DelExtents
	GetExtents
)

// State is the op's visible lifecycle state.
type State int

const (
	OnFly State = iota
	Completed
	Failed
)

// Forever is the poll timeout sentinel meaning "loop until all ops reach a
// terminal state".
const Forever time.Duration = -1

// Result is returned by a PostProcessor to tell the core whether the chain
// has advanced (Next) or the op is terminal (Final).
type Result int

const (
	Final Result = iota
	Next
)

// PostProcessor runs when a sub-op completes. It may append a new sub-op to
// the op (returning Next) or leave the op terminal (returning Final).
type PostProcessor interface {
	Run(o *Op) (Result, error)
}

// PostProcessorFunc adapts a function to the PostProcessor interface.
type PostProcessorFunc func(o *Op) (Result, error)

// Run implements PostProcessor.
func (f PostProcessorFunc) Run(o *Op) (Result, error) { return f(o) }

// SubOp is one step in an op's driver chain: a driver handle plus the
// post-processor and finalizer that govern it. The chain is modeled as an
// owning slice rather than the source's raw-pointer linked list: each
// SubOp exclusively owns its driver handle until Op.Fini drains the chain.
type SubOp struct {
	// Handle is the driver-specific value identifying this sub-op (e.g. a
	// pending request or an already-resolved outcome for synchronous
	// drivers). It is opaque to the op package.
	Handle any

	post      PostProcessor
	finalizer func()

	mu        sync.Mutex
	resolved  bool
	state     State
	err       error
	processed bool
}

// resolve records the sub-op's outcome as reported by the driver's Wait.
// An OnFly outcome leaves the sub-op unresolved.
func (s *SubOp) resolve(state State, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolved = state != OnFly
	s.state = state
	s.err = err
}

func (s *SubOp) snapshot() (resolved bool, state State, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolved, s.state, s.err
}

// Callbacks are the application-supplied completion handlers. Setting
// callbacks on an op disables polling for it: the driver's internal
// callback path becomes the sole completion driver, because both paths
// invoke the head post-processor and running both would double-process
// chain state.
type Callbacks struct {
	OnComplete func(o *Op)
	OnFailed   func(o *Op)
	Data       any
}

// Op is the application-visible asynchronous operation value.
type Op struct {
	mu sync.Mutex

	seq     uint64
	opcode  Opcode
	subject mioid.ID

	state      State
	resultErr  error
	terminal   bool
	callbacks  *Callbacks
	chain      []*SubOp
	headIdx    int
	finalized  bool
}

// New allocates an op. seq must be produced by the caller's monotonic op
// sequence counter (see mioctx.Context.NewOp).
func New(seq uint64, opcode Opcode, subject mioid.ID) *Op {
	return &Op{
		seq:     seq,
		opcode:  opcode,
		subject: subject,
		state:   OnFly,
	}
}

// Seq returns the op's monotonic sequence number.
func (o *Op) Seq() uint64 { return o.seq }

// Opcode returns the op's opcode.
func (o *Op) Opcode() Opcode { return o.opcode }

// Subject returns the op's subject (the object or KV-set id it targets).
func (o *Op) Subject() mioid.ID { return o.subject }

// SetCallbacks installs application callbacks. Must be called before the
// op is submitted to a driver; an op with callbacks set must not be passed
// to Poll.
func (o *Op) SetCallbacks(cb *Callbacks) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.callbacks = cb
}

// HasCallbacks reports whether application callbacks are set.
func (o *Op) HasCallbacks() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.callbacks != nil
}

// AppendSubOp appends a new sub-op to the chain and returns it. Drivers
// call this as part of the "add-sub-op" contract when they submit a
// backend request. handle is the driver-specific value Wait will be asked
// to wait on.
func (o *Op) AppendSubOp(handle any, post PostProcessor, finalizer func()) *SubOp {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := &SubOp{Handle: handle, post: post, finalizer: finalizer}
	o.chain = append(o.chain, s)
	return s
}

// Head returns the currently active sub-op (the chain head), or nil if the
// chain is empty or exhausted.
func (o *Op) Head() *SubOp {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.headIdx >= len(o.chain) {
		return nil
	}
	return o.chain[o.headIdx]
}

// State returns the op's current visible state.
func (o *Op) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// IsTerminal reports whether the op has reached COMPLETED or FAILED.
func (o *Op) IsTerminal() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.terminal
}

// ResultError returns the error recorded when the op reached FAILED.
func (o *Op) ResultError() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.resultErr
}

// advance drives the chain forward from the current head: if the head is
// resolved COMPLETED, its post-processor (if any) runs; Next means the
// post-processor has appended a new head and the loop continues, Final
// means the op is terminal. A resolved FAILED head short-circuits straight
// to a terminal FAILED state; an unresolved (still ONFLY) head stops the
// advance and leaves the op visibly ONFLY for the next poll/wait pass.
//
// advance is idempotent: a head whose post-processor has already run will
// not be re-run, so it is safe to invoke from both the poll path and the
// driver's internal callback path without double-processing chain state.
func (o *Op) advance() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.terminal {
		return
	}

	for {
		if o.headIdx >= len(o.chain) {
			o.state = Completed
			o.terminal = true
			break
		}

		head := o.chain[o.headIdx]
		resolved, state, err := head.snapshot()
		if !resolved {
			o.state = OnFly
			return
		}

		if state == Failed {
			o.state = Failed
			o.resultErr = err
			o.terminal = true
			break
		}

		head.mu.Lock()
		alreadyProcessed := head.processed
		head.processed = true
		head.mu.Unlock()

		if alreadyProcessed {
			// Re-entry on an already advanced head: stop here, the prior
			// advance already moved headIdx or set a terminal state.
			return
		}

		if head.post == nil {
			o.state = Completed
			o.terminal = true
			break
		}

		// The post-processor appends sub-ops through AppendSubOp, which takes
		// o.mu; the processed flag above keeps a re-entrant advance out.
		o.mu.Unlock()
		result, perr := head.post.Run(o)
		o.mu.Lock()
		if perr != nil {
			o.state = Failed
			o.resultErr = perr
			o.terminal = true
			break
		}

		if result == Final {
			o.state = Completed
			o.terminal = true
			break
		}

		// Next: the post-processor must have appended a new sub-op.
		o.headIdx++
	}

	if o.terminal && o.callbacks != nil {
		cb := o.callbacks
		o.mu.Unlock()
		if o.state == Completed && cb.OnComplete != nil {
			cb.OnComplete(o)
		} else if o.state == Failed && cb.OnFailed != nil {
			cb.OnFailed(o)
		}
		o.mu.Lock()
	}
}

// DriveSync resolves the current head immediately with the given outcome
// and advances the chain. It is the entry point synchronous drivers use:
// having already performed the backend call inline, the driver reports its
// outcome and lets the op machinery run the post-processor and, if
// callbacks are set, deliver them right away (the callback bridge).
func (o *Op) DriveSync(state State, err error) {
	head := o.Head()
	if head == nil {
		return
	}
	head.resolve(state, err)
	o.advance()
}

// Fini walks the chain head to tail, invoking each sub-op's finalizer (the
// driver's handle-release hook) exactly once, then clears the chain.
func (o *Op) Fini() {
	o.mu.Lock()
	chain := o.chain
	o.chain = nil
	finalized := o.finalized
	o.finalized = true
	o.mu.Unlock()

	if finalized {
		return
	}
	for _, s := range chain {
		if s.finalizer != nil {
			s.finalizer()
		}
	}
}

// Outcome is a pre-resolved sub-op result, used as a SubOp.Handle by
// synchronous drivers that perform their backend call inline (before the
// sub-op is even appended) and only need the op machinery to run the
// post-processor and poll/callback bookkeeping around that already-known
// result.
type Outcome struct {
	State State
	Err   error
}

// ImmediateWaiter is an OpWaiter for drivers whose sub-op handles are
// Outcome values: Wait returns the baked-in outcome without blocking.
type ImmediateWaiter struct{}

// Wait implements OpWaiter.
func (ImmediateWaiter) Wait(ctx context.Context, handle any, timeout time.Duration) (State, error) {
	o, ok := handle.(Outcome)
	if !ok {
		return Failed, mioerrors.NewIo("immediate waiter given a non-Outcome handle", nil)
	}
	return o.State, o.Err
}

// OpWaiter is the minimal surface Poll needs from a driver: the ability to
// wait on a sub-op's driver handle for up to the given budget. Any type
// implementing this method (structurally) can drive a poll loop; driver.Driver
// does not include it, and ImmediateWaiter is the implementation used with
// this module's synchronous drivers.
type OpWaiter interface {
	Wait(ctx context.Context, handle any, timeout time.Duration) (State, error)
}

// Poll iterates ops, asking waiter to wait on each op's head sub-op for up
// to the remaining timeout budget, running post-processors on completion,
// until every op is terminal or the total timeout elapses. A timeout of
// Forever loops until all ops are terminal. Ops with application callbacks
// set must not be polled; Poll returns an InvalidArgument error if one is
// found.
//
// A poll that times out returns nil with the still-pending ops left ONFLY;
// this is not surfaced as an error (see WaitOne for a single-op helper that
// does surface errors.Timeout).
func Poll(ctx context.Context, waiter OpWaiter, ops []*Op, timeout time.Duration) error {
	infinite := timeout == Forever
	var deadline time.Time
	if !infinite {
		deadline = time.Now().Add(timeout)
	}

	for {
		allTerminal := true
		for _, o := range ops {
			if o.IsTerminal() {
				continue
			}
			if o.HasCallbacks() {
				return mioerrors.NewInvalidArgument("op has application callbacks set; must not be polled")
			}
			allTerminal = false

			var remaining time.Duration
			if !infinite {
				remaining = time.Until(deadline)
				if remaining <= 0 {
					continue
				}
			}

			head := o.Head()
			if head == nil {
				o.advance()
				continue
			}

			if ctx.Err() != nil {
				return ctx.Err()
			}

			state, err := waiter.Wait(ctx, head.Handle, remaining)
			head.resolve(state, err)
			o.advance()
		}

		if allTerminal {
			return nil
		}
		if !infinite && !time.Now().Before(deadline) {
			return nil
		}
	}
}

// WaitOne polls a single op to completion or timeout, returning
// errors.Timeout if it is still ONFLY when timeout elapses, or the op's own
// result error if it reached FAILED.
func WaitOne(ctx context.Context, waiter OpWaiter, o *Op, timeout time.Duration) error {
	if err := Poll(ctx, waiter, []*Op{o}, timeout); err != nil {
		return err
	}
	if !o.IsTerminal() {
		return mioerrors.NewTimeout("poll budget expired with op still in flight")
	}
	if o.State() == Failed {
		return o.ResultError()
	}
	return nil
}
