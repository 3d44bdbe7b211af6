// Package composite implements composite objects: priority-ordered layers
// managed through the driver's layout surface, and per-layer extent
// catalogs kept in an ordinary KV set keyed by (layer id, offset).
package composite

import (
	"context"
	"encoding/binary"
	"sort"

	"github.com/mio-io/mio-go/pkg/mio/driver"
	mioerrors "github.com/mio-io/mio-go/pkg/mio/errors"
	mioid "github.com/mio-io/mio-go/pkg/mio/id"
	"github.com/mio-io/mio-go/pkg/mio/mioctx"
	"github.com/mio-io/mio-go/pkg/mio/op"
)

// Layer is one entry in a composite object's layout.
type Layer = driver.LayerDescriptor

// extentsSetID derives the KV set a composite object's extent catalog lives
// in. Composite objects and ordinary objects share the same id namespace
// but never the same backing map (the driver keys KV sets and objects
// separately), so reusing the composite's own id as its extent set id is
// safe and keeps the two physically co-located, as spec.md's "KV set keyed
// by (layer_id, offset)" wording implies.
func extentsSetID(id mioid.ID) mioid.ID { return id }

// extentKey packs (layerID, offset) into the KV key for one extent entry.
func extentKey(layerID mioid.ID, offset uint64) []byte {
	lb := layerID.Bytes()
	key := make([]byte, 16+8)
	copy(key, lb[:])
	binary.BigEndian.PutUint64(key[16:], offset)
	return key
}

// Extent is one entry of a layer's extent catalog: the byte range [Offset,
// Offset+Length) covered within that layer's sub-object.
type Extent struct {
	LayerID mioid.ID
	Offset  uint64
	Length  uint64
}

func encodeExtentValue(length uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, length)
	return buf
}

func decodeExtentValue(buf []byte) (uint64, error) {
	if len(buf) != 8 {
		return 0, mioerrors.NewInvalidArgument("malformed extent record")
	}
	return binary.BigEndian.Uint64(buf), nil
}

// Create establishes a composite object: its layout (possibly empty) and
// its extent catalog KV set.
func Create(ctx context.Context, rt *mioctx.Context, id mioid.ID, layers []Layer) *op.Op {
	o := rt.NewOp(op.CompositeCreate, id)

	sorted := sortedLayers(layers)
	err := rt.Driver.LayoutSet(ctx, id, sorted)
	state := op.Completed
	if err != nil {
		state = op.Failed
	}
	var post op.PostProcessor
	if err == nil {
		post = createExtentsSetPostProc{rt: rt, id: id}
	}
	o.AppendSubOp(op.Outcome{State: state, Err: err}, post, nil)
	rt.Drive(ctx, o)
	return o
}

type createExtentsSetPostProc struct {
	rt *mioctx.Context
	id mioid.ID
}

func (p createExtentsSetPostProc) Run(o *op.Op) (op.Result, error) {
	err := p.rt.Driver.CreateSet(context.Background(), extentsSetID(p.id))
	if err != nil {
		return op.Final, err
	}
	return op.Final, nil
}

func sortedLayers(layers []Layer) []Layer {
	out := append([]Layer(nil), layers...)
	sort.Slice(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}

// layersAddCleanupPostProc is a no-op terminal step: per the documented
// no-rollback policy (see the design notes), a failure partway through
// AddLayers leaves any already-allocated sub-handles in place rather than
// attempting to undo them; this step exists to give that policy a named
// place in the chain rather than silently terminating after LayoutSet.
type layersAddCleanupPostProc struct{}

func (layersAddCleanupPostProc) Run(o *op.Op) (op.Result, error) { return op.Final, nil }

type addLayersPostProc struct {
	rt       *mioctx.Context
	id       mioid.ID
	newOnes  []Layer
}

func (p addLayersPostProc) Run(o *op.Op) (op.Result, error) {
	existing, err := p.rt.Driver.LayoutGet(context.Background(), p.id)
	if err != nil && !mioerrors.IsNotFound(err) {
		return op.Final, err
	}
	merged := sortedLayers(append(append([]Layer(nil), existing...), p.newOnes...))
	if err := p.rt.Driver.LayoutSet(context.Background(), p.id, merged); err != nil {
		return op.Final, err
	}
	o.AppendSubOp(op.Outcome{State: op.Completed}, layersAddCleanupPostProc{}, nil)
	return op.Next, nil
}

// AddLayers appends newOnes to id's layout, re-sorting by priority. On
// failure partway through, already-written state is left as-is (no
// rollback); see the design notes' Open Question decision.
func AddLayers(ctx context.Context, rt *mioctx.Context, id mioid.ID, newOnes []Layer) *op.Op {
	o := rt.NewOp(op.AddLayers, id)
	o.AppendSubOp(op.Outcome{State: op.Completed}, addLayersPostProc{rt: rt, id: id, newOnes: newOnes}, nil)
	rt.Drive(ctx, o)
	return o
}

type layersDelApplyPostProc struct {
	rt     *mioctx.Context
	id     mioid.ID
	remove map[mioid.ID]bool
}

func (p layersDelApplyPostProc) Run(o *op.Op) (op.Result, error) {
	existing, err := p.rt.Driver.LayoutGet(context.Background(), p.id)
	if err != nil {
		return op.Final, err
	}
	kept := make([]Layer, 0, len(existing))
	for _, l := range existing {
		if !p.remove[l.SubOID] {
			kept = append(kept, l)
		}
	}
	if err := p.rt.Driver.LayoutSet(context.Background(), p.id, kept); err != nil {
		return op.Final, err
	}
	o.AppendSubOp(op.Outcome{State: op.Completed}, layersDelFreeScratchPostProc{}, nil)
	return op.Next, nil
}

// layersDelFreeScratchPostProc is the chain's second step: in a real
// backend this would release any scratch buffers the first step allocated
// while recomputing the layout; the in-memory/testing drivers need nothing
// released, but the step is kept so the chain shape matches the two-phase
// apply/free-scratch pattern named in the design notes.
type layersDelFreeScratchPostProc struct{}

func (layersDelFreeScratchPostProc) Run(o *op.Op) (op.Result, error) { return op.Final, nil }

// DelLayers removes the named layers (by sub-object id) from id's layout.
func DelLayers(ctx context.Context, rt *mioctx.Context, id mioid.ID, subOIDs []mioid.ID) *op.Op {
	remove := make(map[mioid.ID]bool, len(subOIDs))
	for _, s := range subOIDs {
		remove[s] = true
	}
	o := rt.NewOp(op.DelLayers, id)
	o.AppendSubOp(op.Outcome{State: op.Completed}, layersDelApplyPostProc{rt: rt, id: id, remove: remove}, nil)
	rt.Drive(ctx, o)
	return o
}

// ListResult receives a composite object's layers once the op built by
// ListLayers reaches a terminal state.
type ListResult struct {
	Layers []Layer
}

type listLayersPostProc struct {
	rt  *mioctx.Context
	id  mioid.ID
	out *ListResult
}

func (p listLayersPostProc) Run(o *op.Op) (op.Result, error) {
	layers, err := p.rt.Driver.LayoutGet(context.Background(), p.id)
	if err != nil {
		return op.Final, err
	}
	p.out.Layers = layers
	return op.Final, nil
}

// ListLayers returns an op that, once terminal, has populated out.Layers in
// priority order.
func ListLayers(ctx context.Context, rt *mioctx.Context, id mioid.ID) (*ListResult, *op.Op) {
	out := &ListResult{}
	o := rt.NewOp(op.ListLayers, id)
	o.AppendSubOp(op.Outcome{State: op.Completed}, listLayersPostProc{rt: rt, id: id, out: out}, nil)
	rt.Drive(ctx, o)
	return out, o
}

// AddExtents records extents in id's extent catalog, keyed by (layer id,
// offset). Entries are sorted by (layer id, offset) before submission for
// deterministic ordering, mirroring the RBW data-copy scan-ordering
// decision recorded in the design notes.
func AddExtents(ctx context.Context, rt *mioctx.Context, id mioid.ID, extents []Extent) *op.Op {
	sorted := append([]Extent(nil), extents...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].LayerID != sorted[j].LayerID {
			return sorted[i].LayerID.Less(sorted[j].LayerID)
		}
		return sorted[i].Offset < sorted[j].Offset
	})

	pairs := make([]driver.KVPair, len(sorted))
	for i, e := range sorted {
		pairs[i] = driver.KVPair{Key: extentKey(e.LayerID, e.Offset), Value: encodeExtentValue(e.Length)}
	}

	o := rt.NewOp(op.AddExtents, id)
	err := rt.Driver.Put(ctx, extentsSetID(id), pairs)
	state := op.Completed
	if err != nil {
		state = op.Failed
	}
	o.AppendSubOp(op.Outcome{State: state, Err: err}, nil, nil)
	rt.Drive(ctx, o)
	return o
}

// DelExtents removes the named (layer, offset) entries from id's extent
// catalog.
func DelExtents(ctx context.Context, rt *mioctx.Context, id mioid.ID, keys []struct {
	LayerID mioid.ID
	Offset  uint64
}) *op.Op {
	raw := make([][]byte, len(keys))
	for i, k := range keys {
		raw[i] = extentKey(k.LayerID, k.Offset)
	}

	o := rt.NewOp(op.DelExtents, id)
	err := rt.Driver.Del(ctx, extentsSetID(id), raw)
	state := op.Completed
	if err != nil {
		state = op.Failed
	}
	o.AppendSubOp(op.Outcome{State: state, Err: err}, nil, nil)
	rt.Drive(ctx, o)
	return o
}

// ExtentsResult receives the decoded extent records once the op built by
// GetExtents reaches a terminal state.
type ExtentsResult struct {
	Extents []Extent
}

type getExtentsPostProc struct {
	rt      *mioctx.Context
	id      mioid.ID
	wanted  []Extent
	out     *ExtentsResult
}

func (p getExtentsPostProc) Run(o *op.Op) (op.Result, error) {
	keys := make([][]byte, len(p.wanted))
	for i, e := range p.wanted {
		keys[i] = extentKey(e.LayerID, e.Offset)
	}
	pairs, err := p.rt.Driver.Get(context.Background(), extentsSetID(p.id), keys)
	if err != nil {
		return op.Final, err
	}
	out := make([]Extent, 0, len(pairs))
	for i, pair := range pairs {
		if pair.Err != nil {
			continue
		}
		length, err := decodeExtentValue(pair.Value)
		if err != nil {
			return op.Final, err
		}
		out = append(out, Extent{LayerID: p.wanted[i].LayerID, Offset: p.wanted[i].Offset, Length: length})
	}
	p.out.Extents = out
	return op.Final, nil
}

// GetExtents fetches the extent records for (layerID, offset) in query,
// skipping any that are not found. Once the returned op is terminal,
// out.Extents holds the resolved entries.
func GetExtents(ctx context.Context, rt *mioctx.Context, id mioid.ID, query []Extent) (*ExtentsResult, *op.Op) {
	out := &ExtentsResult{}
	o := rt.NewOp(op.GetExtents, id)
	o.AppendSubOp(op.Outcome{State: op.Completed}, getExtentsPostProc{rt: rt, id: id, wanted: query, out: out}, nil)
	rt.Drive(ctx, o)
	return out, o
}
