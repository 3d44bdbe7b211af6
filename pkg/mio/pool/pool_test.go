package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	require.NoError(t, r.Register(&Pool{ID: ID{Lo: 1}, Name: "hot", Type: NVM, Capacity: 1 << 40}))
	require.NoError(t, r.Register(&Pool{ID: ID{Lo: 2}, Name: "warm", Type: SSD, Capacity: 1 << 40}))
	require.NoError(t, r.Register(&Pool{ID: ID{Lo: 3}, Name: "cold", Type: HDD, Capacity: 1 << 40}))
	require.NoError(t, r.SetDefault("warm"))
	r.Seal()
	return r
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	assert.Equal(t, 3, r.Count())

	p, err := r.GetByName("hot")
	require.NoError(t, err)
	assert.Equal(t, NVM, p.Type)

	byID, err := r.Get(ID{Lo: 2})
	require.NoError(t, err)
	assert.Equal(t, "warm", byID.Name)

	def, err := r.Default()
	require.NoError(t, err)
	assert.Equal(t, "warm", def.Name)
}

func TestRegistry_DuplicateRejected(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	require.NoError(t, r.Register(&Pool{ID: ID{Lo: 1}, Name: "hot"}))

	err := r.Register(&Pool{ID: ID{Lo: 1}, Name: "other"})
	require.Error(t, err)

	err = r.Register(&Pool{ID: ID{Lo: 2}, Name: "hot"})
	require.Error(t, err)
}

func TestRegistry_SealedRejectsFurtherRegistration(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Seal()
	err := r.Register(&Pool{ID: ID{Lo: 1}, Name: "late"})
	require.Error(t, err)
}

func TestRegistry_NotFound(t *testing.T) {
	t.Parallel()

	r := newTestRegistry(t)
	_, err := r.GetByName("nonexistent")
	require.Error(t, err)
}

// TestHotnessToIndex_ThreePools corresponds to spec scenario E: thresholds
// hot=128, cold=16; pools [hot, warm, cold].
func TestHotnessToIndex_ThreePools(t *testing.T) {
	t.Parallel()

	const hot, cold uint64 = 128, 16
	const n = 3

	assert.Equal(t, 0, HotnessToIndex(200, hot, cold, n))
	assert.Equal(t, 2, HotnessToIndex(10, hot, cold, n))
	assert.Equal(t, 1, HotnessToIndex(72, hot, cold, n))
}

func TestHotnessToIndex_TwoPools(t *testing.T) {
	t.Parallel()

	const hot, cold uint64 = 128, 16
	assert.Equal(t, 0, HotnessToIndex(200, hot, cold, 2))
	assert.Equal(t, 1, HotnessToIndex(10, hot, cold, 2))
	assert.Equal(t, 1, HotnessToIndex(70, hot, cold, 2), "n<=2 warm hotness maps to coldest index")
}

func TestHotnessToIndex_SinglePool(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, HotnessToIndex(1000, 128, 16, 1))
	assert.Equal(t, 0, HotnessToIndex(0, 128, 16, 1))
}

func TestErasureGeometry_MaxPerOp(t *testing.T) {
	t.Parallel()

	g := ErasureGeometry{N: 8, K: 2, Devices: 10, UnitSize: 4096}
	maxPerOp := g.MaxPerOp()

	groupSize := g.UnitSize * uint64(g.N)
	assert.Equal(t, uint64(0), maxPerOp%groupSize, "max_per_op must round up to a full stripe group")
	assert.Greater(t, maxPerOp, uint64(0))
}
