package composite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mioid "github.com/mio-io/mio-go/pkg/mio/id"
	"github.com/mio-io/mio-go/pkg/mio/driver/memory"
	"github.com/mio-io/mio-go/pkg/mio/mioctx"
)

func newTestRuntime(t *testing.T) *mioctx.Context {
	t.Helper()
	d := memory.New(nil)
	require.NoError(t, d.Init(context.Background()))
	return mioctx.New(d, nil)
}

func TestCreateAndListLayers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rt := newTestRuntime(t)

	id := mioid.ID{Lo: 100}
	layers := []Layer{{Priority: 1, SubOID: mioid.ID{Lo: 2}}, {Priority: 0, SubOID: mioid.ID{Lo: 1}}}

	o := Create(ctx, rt, id, layers)
	require.NoError(t, rt.Wait(ctx, o, time.Second))

	res, lo := ListLayers(ctx, rt, id)
	require.NoError(t, rt.Wait(ctx, lo, time.Second))
	require.Len(t, res.Layers, 2)
	assert.Equal(t, mioid.ID{Lo: 1}, res.Layers[0].SubOID)
	assert.Equal(t, mioid.ID{Lo: 2}, res.Layers[1].SubOID)
}

func TestAddAndDelLayers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rt := newTestRuntime(t)

	id := mioid.ID{Lo: 101}
	require.NoError(t, rt.Wait(ctx, Create(ctx, rt, id, nil), time.Second))

	add := AddLayers(ctx, rt, id, []Layer{{Priority: 0, SubOID: mioid.ID{Lo: 5}}})
	require.NoError(t, rt.Wait(ctx, add, time.Second))

	res, lo := ListLayers(ctx, rt, id)
	require.NoError(t, rt.Wait(ctx, lo, time.Second))
	require.Len(t, res.Layers, 1)

	del := DelLayers(ctx, rt, id, []mioid.ID{{Lo: 5}})
	require.NoError(t, rt.Wait(ctx, del, time.Second))

	res2, lo2 := ListLayers(ctx, rt, id)
	require.NoError(t, rt.Wait(ctx, lo2, time.Second))
	assert.Len(t, res2.Layers, 0)
}

func TestExtentsRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	rt := newTestRuntime(t)

	id := mioid.ID{Lo: 102}
	require.NoError(t, rt.Wait(ctx, Create(ctx, rt, id, nil), time.Second))

	layerID := mioid.ID{Lo: 7}
	extents := []Extent{{LayerID: layerID, Offset: 0, Length: 4096}, {LayerID: layerID, Offset: 4096, Length: 2048}}

	add := AddExtents(ctx, rt, id, extents)
	require.NoError(t, rt.Wait(ctx, add, time.Second))

	res, go_ := GetExtents(ctx, rt, id, extents)
	require.NoError(t, rt.Wait(ctx, go_, time.Second))
	require.Len(t, res.Extents, 2)
	assert.Equal(t, uint64(4096), res.Extents[0].Length)
	assert.Equal(t, uint64(2048), res.Extents[1].Length)

	del := DelExtents(ctx, rt, id, []struct {
		LayerID mioid.ID
		Offset  uint64
	}{{LayerID: layerID, Offset: 0}})
	require.NoError(t, rt.Wait(ctx, del, time.Second))

	res2, go2 := GetExtents(ctx, rt, id, extents)
	require.NoError(t, rt.Wait(ctx, go2, time.Second))
	assert.Len(t, res2.Extents, 1)
}
