package op

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mioerrors "github.com/mio-io/mio-go/pkg/mio/errors"
	mioid "github.com/mio-io/mio-go/pkg/mio/id"
)

func TestOp_SingleSubOpCompletesWithNoPostProcessor(t *testing.T) {
	t.Parallel()

	o := New(1, OpenObject, mioid.ID{Lo: 1})
	o.AppendSubOp(Outcome{State: Completed}, nil, nil)

	w := ImmediateWaiter{}
	require.NoError(t, Poll(context.Background(), w, []*Op{o}, time.Second))

	assert.True(t, o.IsTerminal())
	assert.Equal(t, Completed, o.State())
	o.Fini()
}

func TestOp_ChainAdvancesViaNextPostProcessor(t *testing.T) {
	t.Parallel()

	var secondAppended bool
	o := New(2, Writev, mioid.ID{Lo: 2})

	first := PostProcessorFunc(func(op *Op) (Result, error) {
		secondAppended = true
		op.AppendSubOp(Outcome{State: Completed}, nil, nil)
		return Next, nil
	})
	o.AppendSubOp(Outcome{State: Completed}, first, nil)

	w := ImmediateWaiter{}
	require.NoError(t, Poll(context.Background(), w, []*Op{o}, time.Second))

	assert.True(t, secondAppended)
	assert.True(t, o.IsTerminal())
	assert.Equal(t, Completed, o.State())
}

func TestOp_FailedSubOpShortCircuits(t *testing.T) {
	t.Parallel()

	ranPost := false
	o := New(3, DeleteObject, mioid.ID{Lo: 3})
	post := PostProcessorFunc(func(op *Op) (Result, error) {
		ranPost = true
		return Final, nil
	})
	o.AppendSubOp(Outcome{State: Failed, Err: mioerrors.NewIo("backend down", nil)}, post, nil)

	w := ImmediateWaiter{}
	require.NoError(t, Poll(context.Background(), w, []*Op{o}, time.Second))

	assert.False(t, ranPost, "post-processor must not run on a failed sub-op")
	assert.Equal(t, Failed, o.State())
	require.Error(t, o.ResultError())
}

func TestOp_PollNeverReinvokesPostProcessor(t *testing.T) {
	t.Parallel()

	runs := 0
	o := New(4, Sync, mioid.ID{Lo: 4})
	post := PostProcessorFunc(func(op *Op) (Result, error) {
		runs++
		return Final, nil
	})
	o.AppendSubOp(Outcome{State: Completed}, post, nil)

	w := ImmediateWaiter{}
	require.NoError(t, Poll(context.Background(), w, []*Op{o}, time.Second))
	// A second poll call on an already-terminal op must not touch it again.
	require.NoError(t, Poll(context.Background(), w, []*Op{o}, time.Second))

	assert.Equal(t, 1, runs)
}

func TestOp_CallbacksDisablePolling(t *testing.T) {
	t.Parallel()

	o := New(5, Readv, mioid.ID{Lo: 5})
	o.SetCallbacks(&Callbacks{OnComplete: func(op *Op) {}})
	o.AppendSubOp(Outcome{State: Completed}, nil, nil)

	w := ImmediateWaiter{}
	err := Poll(context.Background(), w, []*Op{o}, time.Second)
	require.Error(t, err)
	assert.True(t, mioerrors.IsInvalidArgument(err))
}

func TestOp_CallbackBridgeDeliversOnDriveSync(t *testing.T) {
	t.Parallel()

	var completed, failed bool
	o := New(6, Writev, mioid.ID{Lo: 6})
	o.SetCallbacks(&Callbacks{
		OnComplete: func(op *Op) { completed = true },
		OnFailed:   func(op *Op) { failed = true },
	})
	o.AppendSubOp(nil, nil, nil)

	o.DriveSync(Completed, nil)

	assert.True(t, completed)
	assert.False(t, failed)
	assert.True(t, o.IsTerminal())
}

func TestWaitOne_TimesOutWithOpStillOnFly(t *testing.T) {
	t.Parallel()

	o := New(7, Lock, mioid.ID{Lo: 7})
	o.AppendSubOp(Outcome{State: OnFly}, nil, nil)

	w := ImmediateWaiter{}
	err := WaitOne(context.Background(), w, o, 10*time.Millisecond)
	require.Error(t, err)
	assert.True(t, mioerrors.IsTimeout(err))
	assert.False(t, o.IsTerminal(), "a timed-out op must remain ONFLY for the caller to re-poll")
}

func TestOp_FiniDrainsChainAndRunsFinalizers(t *testing.T) {
	t.Parallel()

	var freed []int
	o := New(8, CloseObject, mioid.ID{Lo: 8})
	for i := 0; i < 3; i++ {
		i := i
		o.AppendSubOp(Outcome{State: Completed}, nil, func() { freed = append(freed, i) })
	}

	o.Fini()
	assert.Equal(t, []int{0, 1, 2}, freed)

	// Fini must be idempotent.
	o.Fini()
	assert.Equal(t, []int{0, 1, 2}, freed)
}

func TestOp_ForeverSentinelLoopsUntilTerminal(t *testing.T) {
	t.Parallel()

	o := New(9, KVGet, mioid.ID{Lo: 9})
	o.AppendSubOp(Outcome{State: Completed}, nil, nil)

	w := ImmediateWaiter{}
	require.NoError(t, Poll(context.Background(), w, []*Op{o}, Forever))
	assert.True(t, o.IsTerminal())
}
