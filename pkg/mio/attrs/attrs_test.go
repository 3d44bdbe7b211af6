package attrs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mio-io/mio-go/pkg/mio/hints"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	t.Parallel()

	ph := hints.NewMap(hints.ObjectCapacity)
	require.NoError(t, ph.Set(int(hints.LIFETIME), 1))
	require.NoError(t, ph.Set(int(hints.HOT_INDEX), 42))

	a := &Attrs{
		Size: 12345,
		Stats: Stats{
			RCount: 1, RBytes: 2, RTime: 3,
			WCount: 4, WBytes: 5, WTime: 6,
		},
		PHints: ph,
	}

	buf, err := Encode(a)
	require.NoError(t, err)
	assert.Len(t, buf, a.WireSize())

	decoded, err := Decode(buf)
	require.NoError(t, err)

	assert.Equal(t, a.Size, decoded.Size)
	assert.Equal(t, a.Stats, decoded.Stats)
	assert.True(t, a.PHints.Equal(decoded.PHints))
}

func TestEncodeDecode_NoHints(t *testing.T) {
	t.Parallel()

	a := &Attrs{Size: 99}
	buf, err := Encode(a)
	require.NoError(t, err)

	decoded, err := Decode(buf)
	require.NoError(t, err)
	assert.Equal(t, uint64(99), decoded.Size)
	assert.Equal(t, 0, decoded.PHints.Len())
}

func TestDecode_RejectsOutOfRangeHintCount(t *testing.T) {
	t.Parallel()

	a := &Attrs{Size: 1}
	buf, err := Encode(a)
	require.NoError(t, err)

	// Corrupt the nr_hints field to exceed the object capacity.
	buf[nonHintSize] = 0xFF
	buf[nonHintSize+1] = 0xFF

	_, err = Decode(buf)
	require.Error(t, err)
}

func TestDecode_RejectsLengthMismatch(t *testing.T) {
	t.Parallel()

	ph := hints.NewMap(hints.ObjectCapacity)
	require.NoError(t, ph.Set(1, 100))
	a := &Attrs{Size: 1, PHints: ph}

	buf, err := Encode(a)
	require.NoError(t, err)

	truncated := buf[:len(buf)-1]
	_, err = Decode(truncated)
	require.Error(t, err)
}

func TestDecode_RejectsShortBuffer(t *testing.T) {
	t.Parallel()

	_, err := Decode([]byte{1, 2, 3})
	require.Error(t, err)
}
