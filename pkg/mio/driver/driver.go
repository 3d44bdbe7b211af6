// Package driver defines the trait surface the backend must implement: the
// only interface between the mio core and a concrete storage backend. Two
// reference implementations live in sibling packages: driver/memory (an
// in-memory backend used for tests and as the conformance baseline) and
// driver/s3 (an S3-backed object driver).
//
// Every backend call here is synchronous: the driver performs the backend
// RPC before returning, and the caller (the object/kv/composite packages)
// wraps the outcome as an op.Outcome sub-op handle. This keeps the trait
// surface small while still exercising the full op chain/post-processor/
// poll machinery in pkg/mio/op — a backend that is genuinely asynchronous
// (for example one batching requests over a single connection) can still
// satisfy this interface by blocking internally until its own completion
// event fires.
package driver

import (
	"context"

	mioid "github.com/mio-io/mio-go/pkg/mio/id"
	"github.com/mio-io/mio-go/pkg/mio/pool"
)

// Handle is an opaque, driver-specific reference to an open object.
type Handle any

// IOVec is one application I/O vector: length bytes starting at Offset
// within the object, read from or written to Base.
type IOVec struct {
	Base   []byte
	Offset uint64
	Length uint64
}

// KVPair is one key/value entry exchanged with the KV group. Err carries
// the per-pair result code for batched Get/Next/Put/Del calls.
type KVPair struct {
	Key   []byte
	Value []byte
	Err   error
}

// LayerDescriptor is one entry of a composite object's layout: a
// sub-object id at a given priority (lower value sorts first).
type LayerDescriptor struct {
	Priority int
	SubOID   mioid.ID
}

// System is the driver's lifecycle and access-control surface.
type System interface {
	// Init prepares the driver (e.g. connecting to the backend, creating
	// the metadata KV set if absent).
	Init(ctx context.Context) error
	// Fini releases driver-wide resources.
	Fini(ctx context.Context) error
	// UserPerm reports whether uid is a member of the backend's access
	// group.
	UserPerm(ctx context.Context, uid string) (bool, error)
	// ThreadInit lets the driver install thread-local state for the
	// calling goroutine (e.g. a telemetry context).
	ThreadInit(ctx context.Context) error
	// ThreadFini tears down state installed by ThreadInit.
	ThreadFini(ctx context.Context) error
}

// PoolProvider resolves pool metadata by id.
type PoolProvider interface {
	GetPool(ctx context.Context, id pool.ID) (*pool.Pool, error)
}

// Object is the per-object data-path surface.
type Object interface {
	Open(ctx context.Context, id mioid.ID) (Handle, error)
	Close(ctx context.Context, h Handle) error
	Create(ctx context.Context, poolID pool.ID, id mioid.ID) (Handle, error)
	Delete(ctx context.Context, id mioid.ID) error
	Writev(ctx context.Context, h Handle, iovs []IOVec) error
	Readv(ctx context.Context, h Handle, iovs []IOVec) error
	Sync(ctx context.Context, h Handle) error
	Size(ctx context.Context, h Handle) (uint64, error)
	PoolID(ctx context.Context, h Handle) (pool.ID, error)
	PageSize(ctx context.Context, h Handle) (uint64, error)
	Lock(ctx context.Context, h Handle) error
	Unlock(ctx context.Context, h Handle) error
}

// KV is the key-value group. Get and Next report per-key status through
// KVPair.Err (NotFound for a missing key, EndOfIteration past the end of
// the set). Put and Del return one error for the whole batch and set no
// per-pair status.
type KV interface {
	Get(ctx context.Context, setID mioid.ID, keys [][]byte) ([]KVPair, error)
	// Next returns up to n pairs starting at startKey (inclusive unless
	// exclude is set), ordered by key.
	Next(ctx context.Context, setID mioid.ID, startKey []byte, n int, exclude bool) ([]KVPair, error)
	Put(ctx context.Context, setID mioid.ID, pairs []KVPair) error
	Del(ctx context.Context, setID mioid.ID, keys [][]byte) error
	CreateSet(ctx context.Context, setID mioid.ID) error
	DelSet(ctx context.Context, setID mioid.ID) error
}

// Composite is the layout-management surface for composite objects. Extent
// catalogs are not part of this interface: per spec they live in an
// ordinary KV set keyed by (layer_id, offset), so pkg/mio/composite drives
// extents directly through KV.
type Composite interface {
	LayoutSet(ctx context.Context, id mioid.ID, layers []LayerDescriptor) error
	LayoutGet(ctx context.Context, id mioid.ID) ([]LayerDescriptor, error)
	LayoutDelete(ctx context.Context, id mioid.ID) error
}

// Driver is the complete trait surface a backend must implement.
type Driver interface {
	System
	PoolProvider
	Object
	KV
	Composite
}
