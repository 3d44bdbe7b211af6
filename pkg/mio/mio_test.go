package mio

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mio-io/mio-go/pkg/mio/driver"
	"github.com/mio-io/mio-go/pkg/mio/driver/memory"
	mioid "github.com/mio-io/mio-go/pkg/mio/id"
	"github.com/mio-io/mio-go/pkg/mio/pool"
)

func newTestMio(t *testing.T) *Mio {
	t.Helper()
	d := memory.New(nil)
	m, err := Init(context.Background(), d, Config{
		Pools: []*pool.Pool{{
			ID:      pool.ID{Lo: 1},
			Name:    "default",
			Type:    pool.SSD,
			Erasure: pool.ErasureGeometry{N: 1, K: 0, Devices: 1, UnitSize: 4096},
		}},
		DefaultPool: "default",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Fini(context.Background()) })
	return m
}

func TestInitFiniLifecycle(t *testing.T) {
	t.Parallel()
	m := newTestMio(t)
	assert.Equal(t, 1, m.Pools().Count())
}

func TestFacadeCreateWriteReadClose(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := newTestMio(t)

	id := mioid.ID{Lo: 50}
	h, o, err := m.Create(ctx, id, pool.ID{}, "", nil)
	require.NoError(t, err)
	require.NoError(t, m.Wait(ctx, o, time.Second))

	payload := []byte("hi")
	wo, err := m.Writev(ctx, h, []driver.IOVec{{Base: payload, Offset: 0, Length: uint64(len(payload))}})
	require.NoError(t, err)
	require.NoError(t, m.Wait(ctx, wo, time.Second))
	assert.Equal(t, uint64(len(payload)), h.Attrs.Size)

	out := make([]byte, len(payload))
	ro, err := m.Readv(ctx, h, []driver.IOVec{{Base: out, Offset: 0, Length: uint64(len(out))}})
	require.NoError(t, err)
	require.NoError(t, m.Wait(ctx, ro, time.Second))
	assert.Equal(t, payload, out)

	co := m.Close(ctx, h)
	require.NoError(t, m.Wait(ctx, co, time.Second))

	do := m.Delete(ctx, id)
	require.NoError(t, m.Wait(ctx, do, time.Second))
}

func TestThreadInitFini(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := newTestMio(t)

	ctx2, err := m.ThreadInit(ctx)
	require.NoError(t, err)
	require.NoError(t, m.ThreadFini(ctx2))
}
