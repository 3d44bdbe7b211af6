package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Error(t *testing.T) {
	t.Parallel()

	t.Run("error without cause returns code and message", func(t *testing.T) {
		t.Parallel()
		err := &Error{Code: NotFound, Message: "object not found"}
		assert.Contains(t, err.Error(), "NotFound")
		assert.Contains(t, err.Error(), "object not found")
	})

	t.Run("error with cause includes the underlying error", func(t *testing.T) {
		t.Parallel()
		cause := stderrors.New("connection reset")
		err := Wrap(Io, "writev failed", cause)
		assert.Contains(t, err.Error(), "Io")
		assert.Contains(t, err.Error(), "writev failed")
		assert.Contains(t, err.Error(), "connection reset")
	})
}

func TestFactoryFunctions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  *Error
		code Code
	}{
		{"invalid argument", NewInvalidArgument("overlapping io vectors"), InvalidArgument},
		{"not found", NewNotFound("no such object"), NotFound},
		{"already exists", NewAlreadyExists("object already exists"), AlreadyExists},
		{"permission denied", NewPermissionDenied("not in access group"), PermissionDenied},
		{"out of memory", NewOutOfMemory("allocation failed"), OutOfMemory},
		{"too big", NewTooBig("record exceeds 120 bytes"), TooBig},
		{"timeout", NewTimeout("poll budget expired"), Timeout},
		{"unsupported", NewUnsupported("composite not implemented"), Unsupported},
		{"end of iteration", NewEndOfIteration(), EndOfIteration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.code, tt.err.Code)
		})
	}
}

func TestPredicates(t *testing.T) {
	t.Parallel()

	t.Run("nil error returns false", func(t *testing.T) {
		t.Parallel()
		assert.False(t, IsNotFound(nil))
	})

	t.Run("matching code returns true", func(t *testing.T) {
		t.Parallel()
		assert.True(t, IsNotFound(NewNotFound("missing")))
		assert.True(t, IsAlreadyExists(NewAlreadyExists("exists")))
		assert.True(t, IsInvalidArgument(NewInvalidArgument("bad")))
		assert.True(t, IsTooBig(NewTooBig("big")))
		assert.True(t, IsTimeout(NewTimeout("slow")))
		assert.True(t, IsUnsupported(NewUnsupported("nope")))
		assert.True(t, IsEndOfIteration(NewEndOfIteration()))
	})

	t.Run("mismatched code returns false", func(t *testing.T) {
		t.Parallel()
		assert.False(t, IsNotFound(NewAlreadyExists("exists")))
	})

	t.Run("non-mio error returns false", func(t *testing.T) {
		t.Parallel()
		assert.False(t, IsNotFound(stderrors.New("plain error")))
	})
}

func TestCodeDistinctness(t *testing.T) {
	t.Parallel()

	codes := []Code{
		InvalidArgument, NotFound, AlreadyExists, PermissionDenied,
		OutOfMemory, TooBig, Timeout, Io, Unsupported, EndOfIteration,
	}

	seen := make(map[Code]bool)
	for _, c := range codes {
		require.False(t, seen[c], "duplicate error code: %d", c)
		seen[c] = true
	}
}

func TestError_Unwrap(t *testing.T) {
	t.Parallel()

	cause := stderrors.New("backend failure")
	err := Wrap(Io, "sync failed", cause)

	var target *Error
	require.True(t, stderrors.As(err, &target))
	assert.Equal(t, Io, target.Code)
	assert.Equal(t, cause, stderrors.Unwrap(err))
}
