// Package memory provides an in-memory implementation of driver.Driver,
// used as the conformance baseline for the object, composite, and KV
// layers' tests and as a trivial reference driver for applications that do
// not need a real backend.
package memory

import (
	"bytes"
	"context"
	"sort"
	"sync"

	mioerrors "github.com/mio-io/mio-go/pkg/mio/errors"
	mioid "github.com/mio-io/mio-go/pkg/mio/id"
	"github.com/mio-io/mio-go/pkg/mio/driver"
	"github.com/mio-io/mio-go/pkg/mio/pool"
)

// PageSize is the backend page size advertised by every object opened
// through this driver.
const PageSize = 4096

type object struct {
	data   []byte
	poolID pool.ID
	locked bool
}

// handle is the Handle value returned by Open/Create.
type handle struct {
	id mioid.ID
}

// Driver is an in-memory driver.Driver implementation.
type Driver struct {
	mu      sync.RWMutex
	objects map[mioid.ID]*object
	kvSets  map[mioid.ID]map[string][]byte
	layouts map[mioid.ID][]driver.LayerDescriptor
	pools   *pool.Registry
	closed  bool
}

// New creates an empty in-memory driver backed by the given pool registry.
func New(pools *pool.Registry) *Driver {
	return &Driver{
		objects: make(map[mioid.ID]*object),
		kvSets:  make(map[mioid.ID]map[string][]byte),
		layouts: make(map[mioid.ID][]driver.LayerDescriptor),
		pools:   pools,
	}
}

var _ driver.Driver = (*Driver)(nil)

// ---- System ----

func (d *Driver) Init(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.kvSets[mioid.MetaKVSet]; !ok {
		d.kvSets[mioid.MetaKVSet] = make(map[string][]byte)
	}
	return nil
}

func (d *Driver) Fini(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *Driver) UserPerm(ctx context.Context, uid string) (bool, error) {
	return true, nil
}

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

func (d *Driver) Open(ctx context.Context, id mioid.ID) (driver.Handle, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return nil, mioerrors.NewIo("driver closed", nil)
	}
	if _, ok := d.objects[id]; !ok {
		return nil, mioerrors.NewNotFound("object not found")
	}
	return handle{id: id}, nil
}

func (d *Driver) Close(ctx context.Context, h driver.Handle) error {
	return nil
}

func (d *Driver) Create(ctx context.Context, poolID pool.ID, id mioid.ID) (driver.Handle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, mioerrors.NewIo("driver closed", nil)
	}
	if _, ok := d.objects[id]; ok {
		return nil, mioerrors.NewAlreadyExists("object already exists")
	}
	d.objects[id] = &object{poolID: poolID}
	return handle{id: id}, nil
}

func (d *Driver) Delete(ctx context.Context, id mioid.ID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.objects[id]; !ok {
		return mioerrors.NewNotFound("object not found")
	}
	delete(d.objects, id)
	return nil
}

func (d *Driver) object(h driver.Handle) (*object, mioid.ID, error) {
	hh, ok := h.(handle)
	if !ok {
		return nil, mioid.ID{}, mioerrors.NewInvalidArgument("invalid handle")
	}
	obj, ok := d.objects[hh.id]
	if !ok {
		return nil, hh.id, mioerrors.NewNotFound("object not found")
	}
	return obj, hh.id, nil
}

func (d *Driver) Writev(ctx context.Context, h driver.Handle, iovs []driver.IOVec) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	obj, _, err := d.object(h)
	if err != nil {
		return err
	}
	for _, v := range iovs {
		end := v.Offset + v.Length
		if uint64(len(obj.data)) < end {
			grown := make([]byte, end)
			copy(grown, obj.data)
			obj.data = grown
		}
		copy(obj.data[v.Offset:end], v.Base[:v.Length])
	}
	return nil
}

func (d *Driver) Readv(ctx context.Context, h driver.Handle, iovs []driver.IOVec) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	obj, _, err := d.object(h)
	if err != nil {
		return err
	}
	for _, v := range iovs {
		end := v.Offset + v.Length
		if uint64(len(obj.data)) < end {
			// Reads past the logical end of file return zeroed bytes, same
			// as a sparse file: nothing written there yet.
			avail := uint64(0)
			if uint64(len(obj.data)) > v.Offset {
				avail = uint64(len(obj.data)) - v.Offset
			}
			for i := range v.Base[:v.Length] {
				v.Base[i] = 0
			}
			if avail > 0 {
				copy(v.Base[:avail], obj.data[v.Offset:v.Offset+avail])
			}
			continue
		}
		copy(v.Base[:v.Length], obj.data[v.Offset:end])
	}
	return nil
}

func (d *Driver) Sync(ctx context.Context, h driver.Handle) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, _, err := d.object(h)
	return err
}

func (d *Driver) Size(ctx context.Context, h driver.Handle) (uint64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	obj, _, err := d.object(h)
	if err != nil {
		return 0, err
	}
	return uint64(len(obj.data)), nil
}

func (d *Driver) PoolID(ctx context.Context, h driver.Handle) (pool.ID, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	obj, _, err := d.object(h)
	if err != nil {
		return pool.ID{}, err
	}
	return obj.poolID, nil
}

func (d *Driver) PageSize(ctx context.Context, h driver.Handle) (uint64, error) {
	return PageSize, nil
}

func (d *Driver) Lock(ctx context.Context, h driver.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	obj, _, err := d.object(h)
	if err != nil {
		return err
	}
	if obj.locked {
		return mioerrors.New(mioerrors.InvalidArgument, "lock is not re-entrant")
	}
	obj.locked = true
	return nil
}

func (d *Driver) Unlock(ctx context.Context, h driver.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	obj, _, err := d.object(h)
	if err != nil {
		return err
	}
	obj.locked = false
	return nil
}

// ---- KV ----

func (d *Driver) set(setID mioid.ID) (map[string][]byte, error) {
	s, ok := d.kvSets[setID]
	if !ok {
		return nil, mioerrors.NewNotFound("kv set not found")
	}
	return s, nil
}

func (d *Driver) Get(ctx context.Context, setID mioid.ID, keys [][]byte) ([]driver.KVPair, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s, err := d.set(setID)
	if err != nil {
		return nil, err
	}
	out := make([]driver.KVPair, len(keys))
	for i, k := range keys {
		v, ok := s[string(k)]
		if !ok {
			out[i] = driver.KVPair{Key: k, Err: mioerrors.NewNotFound("key not found")}
			continue
		}
		cp := make([]byte, len(v))
		copy(cp, v)
		out[i] = driver.KVPair{Key: k, Value: cp}
	}
	return out, nil
}

func (d *Driver) Next(ctx context.Context, setID mioid.ID, startKey []byte, n int, exclude bool) ([]driver.KVPair, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	s, err := d.set(setID)
	if err != nil {
		return nil, err
	}
	keys := make([][]byte, 0, len(s))
	for k := range s {
		keys = append(keys, []byte(k))
	}
	sort.Slice(keys, func(i, j int) bool { return bytes.Compare(keys[i], keys[j]) < 0 })

	start := 0
	for i, k := range keys {
		cmp := bytes.Compare(k, startKey)
		if cmp > 0 || (cmp == 0 && !exclude) {
			start = i
			break
		}
		start = i + 1
	}

	out := make([]driver.KVPair, 0, n)
	for i := start; i < len(keys) && len(out) < n; i++ {
		k := keys[i]
		v := s[string(k)]
		cp := make([]byte, len(v))
		copy(cp, v)
		out = append(out, driver.KVPair{Key: k, Value: cp})
	}
	for len(out) < n {
		out = append(out, driver.KVPair{Err: mioerrors.NewEndOfIteration()})
	}
	return out, nil
}

func (d *Driver) Put(ctx context.Context, setID mioid.ID, pairs []driver.KVPair) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, err := d.set(setID)
	if err != nil {
		return err
	}
	for _, p := range pairs {
		cp := make([]byte, len(p.Value))
		copy(cp, p.Value)
		s[string(p.Key)] = cp
	}
	return nil
}

func (d *Driver) Del(ctx context.Context, setID mioid.ID, keys [][]byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, err := d.set(setID)
	if err != nil {
		return err
	}
	for _, k := range keys {
		delete(s, string(k))
	}
	return nil
}

func (d *Driver) CreateSet(ctx context.Context, setID mioid.ID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.kvSets[setID]; ok {
		return mioerrors.NewAlreadyExists("kv set already exists")
	}
	d.kvSets[setID] = make(map[string][]byte)
	return nil
}

func (d *Driver) DelSet(ctx context.Context, setID mioid.ID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.kvSets[setID]; !ok {
		return mioerrors.NewNotFound("kv set not found")
	}
	delete(d.kvSets, setID)
	return nil
}

// ---- Composite ----

func (d *Driver) LayoutSet(ctx context.Context, id mioid.ID, layers []driver.LayerDescriptor) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	cp := make([]driver.LayerDescriptor, len(layers))
	copy(cp, layers)
	d.layouts[id] = cp
	return nil
}

func (d *Driver) LayoutGet(ctx context.Context, id mioid.ID) ([]driver.LayerDescriptor, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	layers, ok := d.layouts[id]
	if !ok {
		return nil, mioerrors.NewNotFound("composite layout not found")
	}
	cp := make([]driver.LayerDescriptor, len(layers))
	copy(cp, layers)
	return cp, nil
}

func (d *Driver) LayoutDelete(ctx context.Context, id mioid.ID) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.layouts[id]; !ok {
		return mioerrors.NewNotFound("composite layout not found")
	}
	delete(d.layouts, id)
	return nil
}
