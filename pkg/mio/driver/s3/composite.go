package s3

import (
	"context"
	"encoding/binary"

	"github.com/mio-io/mio-go/pkg/mio/driver"
	mioerrors "github.com/mio-io/mio-go/pkg/mio/errors"
	mioid "github.com/mio-io/mio-go/pkg/mio/id"
)

// ---- Composite ----
//
// Layouts are persisted in layoutSet, a dedicated KV set, keyed by object
// id and encoded as a flat count-prefixed array of {priority, sub-oid}
// triples: matching the fixed-width record style the telemetry codec uses
// elsewhere in this module rather than a general serialization library,
// since the layout is this driver's own small fixed-shape record.

func encodeLayout(layers []driver.LayerDescriptor) []byte {
	buf := make([]byte, 4+len(layers)*20)
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(layers)))
	off := 4
	for _, l := range layers {
		binary.BigEndian.PutUint32(buf[off:off+4], uint32(int32(l.Priority)))
		binary.BigEndian.PutUint64(buf[off+4:off+12], l.SubOID.Hi)
		binary.BigEndian.PutUint64(buf[off+12:off+20], l.SubOID.Lo)
		off += 20
	}
	return buf
}

func decodeLayout(buf []byte) ([]driver.LayerDescriptor, error) {
	if len(buf) < 4 {
		return nil, mioerrors.NewInvalidArgument("composite layout record too short")
	}
	n := int(binary.BigEndian.Uint32(buf[0:4]))
	if len(buf) != 4+n*20 {
		return nil, mioerrors.NewInvalidArgument("composite layout record size mismatch")
	}
	out := make([]driver.LayerDescriptor, n)
	off := 4
	for i := 0; i < n; i++ {
		out[i] = driver.LayerDescriptor{
			Priority: int(int32(binary.BigEndian.Uint32(buf[off : off+4]))),
			SubOID: mioid.ID{
				Hi: binary.BigEndian.Uint64(buf[off+4 : off+12]),
				Lo: binary.BigEndian.Uint64(buf[off+12 : off+20]),
			},
		}
		off += 20
	}
	return out, nil
}

func (d *Driver) LayoutSet(ctx context.Context, id mioid.ID, layers []driver.LayerDescriptor) error {
	key := id.Bytes()
	return d.kv.Put(ctx, layoutSet, []driver.KVPair{{Key: key[:], Value: encodeLayout(layers)}})
}

func (d *Driver) LayoutGet(ctx context.Context, id mioid.ID) ([]driver.LayerDescriptor, error) {
	key := id.Bytes()
	pairs, err := d.kv.Get(ctx, layoutSet, [][]byte{key[:]})
	if err != nil {
		return nil, err
	}
	if len(pairs) == 0 || pairs[0].Err != nil {
		return nil, mioerrors.NewNotFound("composite layout not found")
	}
	return decodeLayout(pairs[0].Value)
}

func (d *Driver) LayoutDelete(ctx context.Context, id mioid.ID) error {
	key := id.Bytes()
	return d.kv.Del(ctx, layoutSet, [][]byte{key[:]})
}
