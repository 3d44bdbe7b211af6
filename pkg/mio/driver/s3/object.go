package s3

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/mio-io/mio-go/pkg/mio/driver"
	mioerrors "github.com/mio-io/mio-go/pkg/mio/errors"
	mioid "github.com/mio-io/mio-go/pkg/mio/id"
	"github.com/mio-io/mio-go/pkg/mio/pool"
)

// handle is the Handle value returned by Open/Create.
type handle struct {
	id     mioid.ID
	poolID pool.ID
}

// ---- System ----

// Init verifies bucket access and ensures the metadata KV set exists,
// matching the teacher's NewS3ContentStore HeadBucket check.
func (d *Driver) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := d.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(d.bucket)}); err != nil {
		return mioerrors.NewIo("failed to access s3 bucket", err)
	}
	if err := d.kv.CreateSet(ctx, mioid.MetaKVSet); err != nil && !mioerrors.IsAlreadyExists(err) {
		return err
	}
	if err := d.kv.CreateSet(ctx, layoutSet); err != nil && !mioerrors.IsAlreadyExists(err) {
		return err
	}
	return nil
}

func (d *Driver) Fini(ctx context.Context) error { return nil }

func (d *Driver) UserPerm(ctx context.Context, uid string) (bool, error) { return true, nil }

func (d *Driver) ThreadInit(ctx context.Context) error { return nil }
func (d *Driver) ThreadFini(ctx context.Context) error { return nil }

// ---- Pool ----

func (d *Driver) GetPool(ctx context.Context, id pool.ID) (*pool.Pool, error) {
	if d.pools == nil {
		return nil, mioerrors.NewNotFound("no pool registry configured")
	}
	return d.pools.Get(id)
}

// ---- Object ----

func (d *Driver) poolIDKey(id mioid.ID) []byte {
	return append([]byte("poolid:"), id.Bytes()[:]...)
}

func (d *Driver) Open(ctx context.Context, id mioid.ID) (driver.Handle, error) {
	start := time.Now()
	key := d.objectKey(id)
	_, err := d.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(d.bucket), Key: aws.String(key)})
	d.observe("HeadObject", start, err)
	if err != nil {
		if isNotFoundError(err) {
			return nil, mioerrors.NewNotFound("object not found")
		}
		return nil, mioerrors.NewIo("s3 HeadObject failed", err)
	}

	poolID := d.loadPoolID(ctx, id)
	return handle{id: id, poolID: poolID}, nil
}

func (d *Driver) loadPoolID(ctx context.Context, id mioid.ID) pool.ID {
	pairs, err := d.kv.Get(ctx, mioid.MetaKVSet, [][]byte{d.poolIDKey(id)})
	if err != nil || len(pairs) == 0 || pairs[0].Err != nil || len(pairs[0].Value) != 16 {
		return pool.ID{}
	}
	v := pairs[0].Value
	return pool.ID{Hi: binary.BigEndian.Uint64(v[0:8]), Lo: binary.BigEndian.Uint64(v[8:16])}
}

func (d *Driver) Close(ctx context.Context, h driver.Handle) error { return nil }

func (d *Driver) Create(ctx context.Context, poolID pool.ID, id mioid.ID) (driver.Handle, error) {
	key := d.objectKey(id)
	start := time.Now()
	_, err := d.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(d.bucket), Key: aws.String(key)})
	d.observe("HeadObject", start, err)
	if err == nil {
		return nil, mioerrors.NewAlreadyExists("object already exists")
	}
	if !isNotFoundError(err) {
		return nil, mioerrors.NewIo("s3 HeadObject failed", err)
	}

	if err := d.putObjectWithRetry(ctx, key, nil); err != nil {
		return nil, err
	}

	pidBytes := make([]byte, 16)
	binary.BigEndian.PutUint64(pidBytes[0:8], poolID.Hi)
	binary.BigEndian.PutUint64(pidBytes[8:16], poolID.Lo)
	if err := d.kv.Put(ctx, mioid.MetaKVSet, []driver.KVPair{{Key: d.poolIDKey(id), Value: pidBytes}}); err != nil {
		return nil, err
	}

	return handle{id: id, poolID: poolID}, nil
}

func (d *Driver) Delete(ctx context.Context, id mioid.ID) error {
	key := d.objectKey(id)
	start := time.Now()
	_, err := d.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(d.bucket), Key: aws.String(key)})
	d.observe("DeleteObject", start, err)
	if err != nil {
		if isNotFoundError(err) {
			return mioerrors.NewNotFound("object not found")
		}
		return mioerrors.NewIo("s3 DeleteObject failed", err)
	}
	_ = d.kv.Del(ctx, mioid.MetaKVSet, [][]byte{d.poolIDKey(id)})
	return nil
}

func toHandle(h driver.Handle) (handle, error) {
	hh, ok := h.(handle)
	if !ok {
		return handle{}, mioerrors.NewInvalidArgument("invalid handle")
	}
	return hh, nil
}

// Writev performs a read-modify-write against the whole S3 object for each
// vector, the same fallback the teacher's WriteAt uses for S3 (object
// storage has no true random-access write); the object/io.go engine above
// this driver guarantees vectors are already page-aligned and
// non-overlapping before they reach here.
func (d *Driver) Writev(ctx context.Context, h driver.Handle, iovs []driver.IOVec) error {
	hh, err := toHandle(h)
	if err != nil {
		return err
	}
	key := d.objectKey(hh.id)

	existing, err := d.getObjectWithRetry(ctx, key)
	if err != nil && !mioerrors.IsNotFound(err) {
		return err
	}

	maxEnd := uint64(len(existing))
	for _, v := range iovs {
		if end := v.Offset + v.Length; end > maxEnd {
			maxEnd = end
		}
	}
	buf := make([]byte, maxEnd)
	copy(buf, existing)
	for _, v := range iovs {
		copy(buf[v.Offset:v.Offset+v.Length], v.Base[:v.Length])
	}

	return d.putObjectWithRetry(ctx, key, buf)
}

func (d *Driver) Readv(ctx context.Context, h driver.Handle, iovs []driver.IOVec) error {
	hh, err := toHandle(h)
	if err != nil {
		return err
	}
	key := d.objectKey(hh.id)

	data, err := d.getObjectWithRetry(ctx, key)
	if err != nil {
		return err
	}

	for _, v := range iovs {
		for i := range v.Base[:v.Length] {
			v.Base[i] = 0
		}
		if v.Offset >= uint64(len(data)) {
			continue
		}
		avail := uint64(len(data)) - v.Offset
		if avail > v.Length {
			avail = v.Length
		}
		copy(v.Base[:avail], data[v.Offset:v.Offset+avail])
	}
	return nil
}

func (d *Driver) Sync(ctx context.Context, h driver.Handle) error {
	hh, err := toHandle(h)
	if err != nil {
		return err
	}
	_, err = d.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(d.bucket), Key: aws.String(d.objectKey(hh.id))})
	if err != nil {
		if isNotFoundError(err) {
			return mioerrors.NewNotFound("object not found")
		}
		return mioerrors.NewIo("s3 HeadObject failed", err)
	}
	return nil
}

func (d *Driver) Size(ctx context.Context, h driver.Handle) (uint64, error) {
	hh, err := toHandle(h)
	if err != nil {
		return 0, err
	}
	out, err := d.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(d.bucket), Key: aws.String(d.objectKey(hh.id))})
	if err != nil {
		if isNotFoundError(err) {
			return 0, mioerrors.NewNotFound("object not found")
		}
		return 0, mioerrors.NewIo("s3 HeadObject failed", err)
	}
	if out.ContentLength == nil {
		return 0, nil
	}
	return uint64(*out.ContentLength), nil
}

func (d *Driver) PoolID(ctx context.Context, h driver.Handle) (pool.ID, error) {
	hh, err := toHandle(h)
	if err != nil {
		return pool.ID{}, err
	}
	return hh.poolID, nil
}

func (d *Driver) PageSize(ctx context.Context, h driver.Handle) (uint64, error) {
	return d.pageSize, nil
}

// Lock/Unlock track exclusive-lock state in process memory. A real
// multi-process deployment would need a conditional-write lease (e.g. a
// DynamoDB lock table); S3 itself has no compare-and-swap primitive, so
// this driver only serializes callers sharing this process, matching the
// in-memory driver's own simplification.
func (d *Driver) Lock(ctx context.Context, h driver.Handle) error {
	hh, err := toHandle(h)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.locked[hh.id] {
		return mioerrors.New(mioerrors.InvalidArgument, "lock is not re-entrant")
	}
	d.locked[hh.id] = true
	return nil
}

func (d *Driver) Unlock(ctx context.Context, h driver.Handle) error {
	hh, err := toHandle(h)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.locked, hh.id)
	return nil
}
