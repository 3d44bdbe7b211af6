package s3

import (
	"context"

	"github.com/mio-io/mio-go/pkg/mio/driver"
	mioid "github.com/mio-io/mio-go/pkg/mio/id"
)

// ---- KV ----
//
// The KV group is a thin pass-through to the injected metadata backend
// (driver.KV); S3 itself has no point-lookup primitive cheap enough to
// back the metadata KV set or composite extent catalogs.

func (d *Driver) Get(ctx context.Context, setID mioid.ID, keys [][]byte) ([]driver.KVPair, error) {
	return d.kv.Get(ctx, setID, keys)
}

func (d *Driver) Next(ctx context.Context, setID mioid.ID, startKey []byte, n int, exclude bool) ([]driver.KVPair, error) {
	return d.kv.Next(ctx, setID, startKey, n, exclude)
}

func (d *Driver) Put(ctx context.Context, setID mioid.ID, pairs []driver.KVPair) error {
	return d.kv.Put(ctx, setID, pairs)
}

func (d *Driver) Del(ctx context.Context, setID mioid.ID, keys [][]byte) error {
	return d.kv.Del(ctx, setID, keys)
}

func (d *Driver) CreateSet(ctx context.Context, setID mioid.ID) error {
	return d.kv.CreateSet(ctx, setID)
}

func (d *Driver) DelSet(ctx context.Context, setID mioid.ID) error {
	return d.kv.DelSet(ctx, setID)
}
