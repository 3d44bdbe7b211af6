// Package badgerkv implements driver.KV over an embedded BadgerDB instance,
// grounded on the teacher's pkg/metadata/store/badger package: a
// prefixed-key namespace over a single DB handle, db.View/db.Update
// transactions, and a badger.Iterator driven range scan for ordered
// next/prefix walks.
//
// This package satisfies only the KV group, not the full driver.Driver
// trait: it is meant to be injected into driver/s3.Driver (or any other
// Object/Composite-capable driver) as the backend for the metadata KV set
// and composite layout/extent catalogs, the same way the teacher composes
// an object-data store with a separate metadata store rather than one
// monolithic backend.
package badgerkv

import (
	"bytes"
	"context"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/mio-io/mio-go/pkg/mio/driver"
	mioerrors "github.com/mio-io/mio-go/pkg/mio/errors"
	mioid "github.com/mio-io/mio-go/pkg/mio/id"
)

// Store is a driver.KV implementation backed by an embedded BadgerDB.
type Store struct {
	db      *badger.DB
	metrics Metrics
}

var _ driver.KV = (*Store)(nil)

// Option configures a Store at Open time.
type Option func(*Store)

// WithMetrics attaches an instrumentation sink. A nil Metrics (the
// default) disables instrumentation.
func WithMetrics(m Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// Open opens (creating if absent) a BadgerDB instance rooted at dir. The
// in-memory mode (dir == "") is convenient for tests, matching the
// teacher's own conformance-test setup against a throwaway store.
func Open(dir string, opts ...Option) (*Store, error) {
	bopts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		bopts = bopts.WithInMemory(true)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, mioerrors.NewIo("failed to open badger db", err)
	}
	s := &Store{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the underlying BadgerDB handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) observe(operation string, start time.Time, err error) {
	if s.metrics != nil {
		s.metrics.ObserveOperation(operation, time.Since(start), err)
	}
}

// PollCacheMetrics samples BadgerDB's in-process block and index cache hit
// ratios and reports them through the attached Metrics sink, following the
// teacher's badgerMetrics.RecordCacheHitRatio. Callers poll this on a
// ticker; it is a no-op with no metrics sink attached.
func (s *Store) PollCacheMetrics() {
	if s.metrics == nil {
		return
	}
	if bm := s.db.BlockCacheMetrics(); bm != nil {
		s.metrics.RecordCacheHitRatio("block", bm.Ratio())
	}
	if im := s.db.IndexCacheMetrics(); im != nil {
		s.metrics.RecordCacheHitRatio("index", im.Ratio())
	}
}

// setKey prefixes rawKey with setID so distinct KV sets cannot collide in
// the single underlying keyspace, matching the teacher's encoding.go
// prefix-per-namespace design.
func setKey(setID mioid.ID, rawKey []byte) []byte {
	b := setID.Bytes()
	key := make([]byte, 0, 16+1+len(rawKey))
	key = append(key, b[:]...)
	key = append(key, ':')
	key = append(key, rawKey...)
	return key
}

// setPrefix returns the key prefix all entries of setID share.
func setPrefix(setID mioid.ID) []byte {
	b := setID.Bytes()
	return append(append([]byte{}, b[:]...), ':')
}

// setMarkerKey is a sentinel entry written by CreateSet and checked by
// Get/Next/Put/Del so an empty-but-created set is distinguishable from one
// that was never created.
func setMarkerKey(setID mioid.ID) []byte {
	b := setID.Bytes()
	return append([]byte("set-marker:"), b[:]...)
}

func (s *Store) setExists(txn *badger.Txn, setID mioid.ID) bool {
	_, err := txn.Get(setMarkerKey(setID))
	return err == nil
}

func (s *Store) Get(ctx context.Context, setID mioid.ID, keys [][]byte) ([]driver.KVPair, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	out := make([]driver.KVPair, len(keys))
	err := s.db.View(func(txn *badger.Txn) error {
		if !s.setExists(txn, setID) {
			return mioerrors.NewNotFound("kv set not found")
		}
		for i, k := range keys {
			item, err := txn.Get(setKey(setID, k))
			if err == badger.ErrKeyNotFound {
				out[i] = driver.KVPair{Key: k, Err: mioerrors.NewNotFound("key not found")}
				continue
			}
			if err != nil {
				return err
			}
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			out[i] = driver.KVPair{Key: k, Value: val}
		}
		return nil
	})
	s.observe("Get", start, err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) Next(ctx context.Context, setID mioid.ID, startKey []byte, n int, exclude bool) ([]driver.KVPair, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}
	start := time.Now()

	prefix := setPrefix(setID)
	seek := setKey(setID, startKey)

	out := make([]driver.KVPair, 0, n)
	err := s.db.View(func(txn *badger.Txn) error {
		if !s.setExists(txn, setID) {
			return mioerrors.NewNotFound("kv set not found")
		}

		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(seek); it.ValidForPrefix(prefix) && len(out) < n; it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			if exclude && bytes.Equal(key, seek) {
				continue
			}
			rawKey := key[len(prefix):]
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			out = append(out, driver.KVPair{Key: rawKey, Value: val})
		}
		return nil
	})
	s.observe("Next", start, err)
	if err != nil {
		return nil, err
	}
	for len(out) < n {
		out = append(out, driver.KVPair{Err: mioerrors.NewEndOfIteration()})
	}
	return out, nil
}

func (s *Store) Put(ctx context.Context, setID mioid.ID, pairs []driver.KVPair) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	err := s.db.Update(func(txn *badger.Txn) error {
		if !s.setExists(txn, setID) {
			return mioerrors.NewNotFound("kv set not found")
		}
		for _, p := range pairs {
			if err := txn.Set(setKey(setID, p.Key), p.Value); err != nil {
				return fmt.Errorf("badgerkv: put %x: %w", p.Key, err)
			}
		}
		return nil
	})
	s.observe("Put", start, err)
	return err
}

func (s *Store) Del(ctx context.Context, setID mioid.ID, keys [][]byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	err := s.db.Update(func(txn *badger.Txn) error {
		if !s.setExists(txn, setID) {
			return mioerrors.NewNotFound("kv set not found")
		}
		for _, k := range keys {
			if err := txn.Delete(setKey(setID, k)); err != nil && err != badger.ErrKeyNotFound {
				return err
			}
		}
		return nil
	})
	s.observe("Del", start, err)
	return err
}

func (s *Store) CreateSet(ctx context.Context, setID mioid.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if s.setExists(txn, setID) {
			return mioerrors.NewAlreadyExists("kv set already exists")
		}
		return txn.Set(setMarkerKey(setID), []byte{1})
	})
}

func (s *Store) DelSet(ctx context.Context, setID mioid.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if !s.setExists(txn, setID) {
			return mioerrors.NewNotFound("kv set not found")
		}

		prefix := setPrefix(setID)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		var toDelete [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			toDelete = append(toDelete, it.Item().KeyCopy(nil))
		}
		it.Close()

		for _, k := range toDelete {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return txn.Delete(setMarkerKey(setID))
	})
}
