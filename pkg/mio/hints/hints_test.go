package hints

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap_SetGet(t *testing.T) {
	t.Parallel()

	m := NewMap(4)
	require.NoError(t, m.Set(1, 100))
	require.NoError(t, m.Set(2, 200))

	v, ok := m.Get(1)
	assert.True(t, ok)
	assert.Equal(t, uint64(100), v)

	_, ok = m.Get(99)
	assert.False(t, ok)

	assert.Equal(t, 2, m.Len())
	assert.Equal(t, 4, m.Cap())
}

func TestMap_ResetOverwritesInPlace(t *testing.T) {
	t.Parallel()

	m := NewMap(4)
	require.NoError(t, m.Set(1, 1))
	require.NoError(t, m.Set(2, 2))
	require.NoError(t, m.Set(1, 999))

	assert.Equal(t, 2, m.Len(), "re-set of an existing key must not grow nr_set")
	v, _ := m.Get(1)
	assert.Equal(t, uint64(999), v)
	assert.Equal(t, []int{1, 2}, m.Keys(), "first-seen order must be preserved across a re-set")
}

func TestMap_CapacityExceeded(t *testing.T) {
	t.Parallel()

	m := NewMap(2)
	require.NoError(t, m.Set(1, 1))
	require.NoError(t, m.Set(2, 2))

	err := m.Set(3, 3)
	require.Error(t, err)
	assert.Equal(t, 2, m.Len())
}

func TestMap_FilterPersistent(t *testing.T) {
	t.Parallel()

	m := NewMap(ObjectCapacity)
	require.NoError(t, m.Set(int(LIFETIME), 1))
	require.NoError(t, m.Set(int(WHERE), 2))
	require.NoError(t, m.Set(int(HOT_INDEX), 3))

	persisted := m.FilterPersistent()
	assert.Equal(t, 2, persisted.Len())
	_, ok := persisted.Get(int(WHERE))
	assert.False(t, ok, "WHERE is session-scoped and must not survive the persistent filter")
}

func TestMap_Equal(t *testing.T) {
	t.Parallel()

	a := NewMap(4)
	b := NewMap(8)
	require.NoError(t, a.Set(1, 10))
	require.NoError(t, b.Set(1, 10))
	assert.True(t, a.Equal(b), "capacity must not affect equality, only contents")

	require.NoError(t, b.Set(2, 20))
	assert.False(t, a.Equal(b))
}

func TestDescribe(t *testing.T) {
	t.Parallel()

	scope, typ, err := Describe(LIFETIME)
	require.NoError(t, err)
	assert.Equal(t, ScopeObject, scope)
	assert.Equal(t, TypePersistent, typ)

	_, _, err = Describe(Key(9999))
	require.Error(t, err)
}
