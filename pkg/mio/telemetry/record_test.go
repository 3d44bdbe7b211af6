package telemetry

import (
	"bytes"
	"io"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEncodeBinary_ScenarioF matches the canonical example: prefix "p",
// topic "t", an ARRAY_U64 value [1,2,3].
func TestEncodeBinary_ScenarioF(t *testing.T) {
	t.Parallel()

	r := Record{Prefix: "p", Topic: "t", Type: ArrayU64, Array: []uint64{1, 2, 3}}
	buf, err := EncodeBinary(r)
	require.NoError(t, err)

	assert.LessOrEqual(t, len(buf), MaxRecordSize)
	assert.Equal(t, 0, len(buf)%8)
	assert.Equal(t, byte(0x2E), buf[0])
	assert.Equal(t, byte(0x20), buf[1])
	assert.Equal(t, byte(1), buf[2]) // prefix-present flag
	assert.Equal(t, byte(1), buf[3]) // prefix length
	assert.Equal(t, byte(1), buf[5]) // topic length (after the 1-byte prefix)
}

func TestBinaryRoundTrip(t *testing.T) {
	t.Parallel()

	cases := []Record{
		{Topic: "ops.read", Type: U64, Scalar: 42},
		{Prefix: "mio", Topic: "ops.write", Type: ArrayU64, Array: []uint64{1, 2, 3, 4}},
		{Topic: "empty.array", Type: ArrayU64, Array: nil},
	}
	for _, c := range cases {
		buf, err := EncodeBinary(c)
		require.NoError(t, err)

		got, err := decodeBinaryStream(bytes.NewReader(buf))
		require.NoError(t, err)
		assert.Equal(t, c.Prefix, got.Prefix)
		assert.Equal(t, c.Topic, got.Topic)
		assert.Equal(t, c.Type, got.Type)
		assert.Equal(t, c.Scalar, got.Scalar)
		assert.Equal(t, c.Array, got.Array)
	}
}

// TestBinaryRoundTrip_AllValueTypes exercises every ValueType the wire
// format defines, via both decodeBinaryStream and DecodeBinary.
func TestBinaryRoundTrip_AllValueTypes(t *testing.T) {
	t.Parallel()

	cases := []Record{
		{Topic: "ops.tick", Type: None},
		{Topic: "ops.retries", Type: U16, Scalar: 65535},
		{Topic: "ops.inflight", Type: U32, Scalar: 4294967295},
		{Topic: "ops.bytes", Type: U64, Scalar: 18446744073709551615},
		{Topic: "ops.latency", Type: Timespan, Scalar: 123456789},
		{Prefix: "mio", Topic: "ops.started", Type: Timepoint, Scalar: 1700000000},
		{Topic: "ops.note", Type: Str, Str: "rebalance complete"},
		{Topic: "ops.note.empty", Type: Str, Str: ""},
		{Topic: "ops.shards", Type: ArrayU16, Array: []uint64{1, 2, 3, 65535}},
		{Topic: "ops.offsets", Type: ArrayU32, Array: []uint64{0, 4294967295, 7}},
		{Topic: "ops.sizes", Type: ArrayU64, Array: []uint64{1, 2, 3}},
		{Topic: "ops.shards.empty", Type: ArrayU16, Array: nil},
	}
	for _, c := range cases {
		c := c
		t.Run(c.Type.String()+"/"+c.Topic, func(t *testing.T) {
			t.Parallel()

			buf, err := EncodeBinary(c)
			require.NoError(t, err)
			assert.LessOrEqual(t, len(buf), MaxRecordSize)
			assert.Equal(t, 0, len(buf)%8)

			viaStream, err := decodeBinaryStream(bytes.NewReader(buf))
			require.NoError(t, err)
			assert.Equal(t, c, viaStream)

			viaBuf, err := DecodeBinary(buf)
			require.NoError(t, err)
			assert.Equal(t, c, viaBuf)
		})
	}
}

// TestEncodeBinary_LittleEndianPayload pins the wire byte order for every
// multi-byte scalar width: the value bytes must appear least-significant
// byte first, matching a native little-endian memcpy.
func TestEncodeBinary_LittleEndianPayload(t *testing.T) {
	t.Parallel()

	t.Run("u16", func(t *testing.T) {
		t.Parallel()
		buf, err := EncodeBinary(Record{Topic: "t", Type: U16, Scalar: 0x1234})
		require.NoError(t, err)
		// magic(2) + hasPrefix(1) + prefixLen(1) + topicLen(1) + "t"(1) + type(1) = 7
		assert.Equal(t, []byte{0x34, 0x12}, buf[7:9])
	})

	t.Run("u32", func(t *testing.T) {
		t.Parallel()
		buf, err := EncodeBinary(Record{Topic: "t", Type: U32, Scalar: 0x12345678})
		require.NoError(t, err)
		assert.Equal(t, []byte{0x78, 0x56, 0x34, 0x12}, buf[7:11])
	})

	t.Run("u64", func(t *testing.T) {
		t.Parallel()
		buf, err := EncodeBinary(Record{Topic: "t", Type: U64, Scalar: 0x0123456789ABCDEF})
		require.NoError(t, err)
		assert.Equal(t, []byte{0xEF, 0xCD, 0xAB, 0x89, 0x67, 0x45, 0x23, 0x01}, buf[7:15])
	})

	t.Run("array_u16 elements", func(t *testing.T) {
		t.Parallel()
		buf, err := EncodeBinary(Record{Topic: "t", Type: ArrayU16, Array: []uint64{0x1234, 0xABCD}})
		require.NoError(t, err)
		// ... type(1) count(1) elem0(2) elem1(2)
		elems := buf[8:12]
		assert.Equal(t, []byte{0x34, 0x12, 0xCD, 0xAB}, elems)
	})
}

func TestEncodeBinary_ScalarRangeChecks(t *testing.T) {
	t.Parallel()

	_, err := EncodeBinary(Record{Topic: "t", Type: U16, Scalar: math.MaxUint16 + 1})
	require.Error(t, err)

	_, err = EncodeBinary(Record{Topic: "t", Type: U32, Scalar: math.MaxUint32 + 1})
	require.Error(t, err)
}

func TestEncodeBinary_ArrayU16ExceedsCapacity(t *testing.T) {
	t.Parallel()

	arr := make([]uint64, maxArrayElems(2)+1)
	_, err := EncodeBinary(Record{Topic: "t", Type: ArrayU16, Array: arr})
	require.Error(t, err)
}

func TestEncodeBinary_StringValue(t *testing.T) {
	t.Parallel()

	r := Record{Topic: "ops.note", Type: Str, Str: "hello"}
	buf, err := EncodeBinary(r)
	require.NoError(t, err)

	got, err := DecodeBinary(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Str)
}

func TestBinaryStreamReadsBackToBackRecords(t *testing.T) {
	t.Parallel()

	a := Record{Topic: "a", Type: U64, Scalar: 1}
	b := Record{Topic: "bb", Type: ArrayU64, Array: []uint64{9, 9}}

	ea, err := EncodeBinary(a)
	require.NoError(t, err)
	eb, err := EncodeBinary(b)
	require.NoError(t, err)

	stream := bytes.NewReader(append(append([]byte{}, ea...), eb...))

	got1, err := Parse(stream, FormatBinary)
	require.NoError(t, err)
	assert.Equal(t, a.Topic, got1.Topic)

	got2, err := Parse(stream, FormatBinary)
	require.NoError(t, err)
	assert.Equal(t, b.Topic, got2.Topic)
	assert.Equal(t, b.Array, got2.Array)

	_, err = Parse(stream, FormatBinary)
	require.Error(t, err)
}

func TestArrayU64ExceedsCapacity(t *testing.T) {
	t.Parallel()

	arr := make([]uint64, maxArrayLen+1)
	_, err := EncodeBinary(Record{Topic: "t", Type: ArrayU64, Array: arr})
	require.Error(t, err)
}

func TestLogRoundTrip(t *testing.T) {
	t.Parallel()

	r := Record{Topic: "ops.read", Type: ArrayU64, Array: []uint64{1, 2, 3}}
	line := EncodeLog(r)
	assert.Equal(t, "ops.read array_u64 1 2 3", line)

	got, err := ParseLog(line)
	require.NoError(t, err)
	assert.Equal(t, r.Topic, got.Topic)
	assert.Equal(t, r.Array, got.Array)
}

// TestLogRoundTrip_AllValueTypes mirrors TestBinaryRoundTrip_AllValueTypes
// for the text/log codec.
func TestLogRoundTrip_AllValueTypes(t *testing.T) {
	t.Parallel()

	cases := []Record{
		{Topic: "ops.tick", Type: None},
		{Topic: "ops.retries", Type: U16, Scalar: 65535},
		{Topic: "ops.inflight", Type: U32, Scalar: 4294967295},
		{Topic: "ops.bytes", Type: U64, Scalar: 18446744073709551615},
		{Topic: "ops.latency", Type: Timespan, Scalar: 123456789},
		{Topic: "ops.started", Type: Timepoint, Scalar: 1700000000},
		{Topic: "ops.note", Type: Str, Str: "rebalance-complete"},
		{Topic: "ops.shards", Type: ArrayU16, Array: []uint64{1, 2, 3}},
		{Topic: "ops.offsets", Type: ArrayU32, Array: []uint64{0, 7}},
		{Topic: "ops.sizes", Type: ArrayU64, Array: []uint64{1, 2, 3}},
	}
	for _, c := range cases {
		c := c
		t.Run(c.Type.String(), func(t *testing.T) {
			t.Parallel()

			line := EncodeLog(c)
			got, err := ParseLog(line)
			require.NoError(t, err)
			assert.Equal(t, c.Topic, got.Topic)
			assert.Equal(t, c.Type, got.Type)
			assert.Equal(t, c.Scalar, got.Scalar)
			assert.Equal(t, c.Str, got.Str)
			assert.Equal(t, c.Array, got.Array)
		})
	}
}

func TestParseLog_RejectsOutOfRangeScalar(t *testing.T) {
	t.Parallel()

	_, err := ParseLog("ops.retries u16 70000")
	require.Error(t, err)
}

func TestParseLog_RejectsMalformedNoneValue(t *testing.T) {
	t.Parallel()

	_, err := ParseLog("ops.tick none 1")
	require.Error(t, err)
}

func TestBinarySink_StoreLoadRoundTrip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := NewBinarySink(&buf, &buf)

	a := Record{Topic: "a", Type: U64, Scalar: 1}
	b := Record{Topic: "bb", Type: ArrayU64, Array: []uint64{9, 9}}
	require.NoError(t, w.Store(a))
	require.NoError(t, w.Store(b))

	got1, err := w.Load()
	require.NoError(t, err)
	assert.Equal(t, a.Topic, got1.Topic)

	got2, err := w.Load()
	require.NoError(t, err)
	assert.Equal(t, b.Array, got2.Array)

	_, err = w.Load()
	require.ErrorIs(t, err, io.EOF)
}

func TestLogSink_StoreLoadRoundTrip(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := NewLogSink(&buf, &buf)

	r := Record{Topic: "ops.read", Type: ArrayU64, Array: []uint64{1, 2, 3}}
	require.NoError(t, w.Store(r))

	got, err := w.Load()
	require.NoError(t, err)
	assert.Equal(t, r.Topic, got.Topic)
	assert.Equal(t, r.Array, got.Array)

	_, err = w.Load()
	require.ErrorIs(t, err, io.EOF)
}

func TestFormatForDisplayAddsLeadingStarOnlyWhenPrefixed(t *testing.T) {
	t.Parallel()

	withPrefix := Record{Prefix: "mio", Topic: "t", Type: U64, Scalar: 5}
	assert.True(t, strings.HasPrefix(FormatForDisplay(withPrefix), "*mio "))

	noPrefix := Record{Topic: "t", Type: U64, Scalar: 5}
	assert.False(t, strings.HasPrefix(FormatForDisplay(noPrefix), "*"))

	// The parser tolerates its own display-time "*" marker on re-ingest.
	_, err := ParseLog(FormatForDisplay(withPrefix))
	require.NoError(t, err)
}

func TestParseLogViaParse(t *testing.T) {
	t.Parallel()

	rd := strings.NewReader("ops.write u64 7\n")
	got, err := Parse(rd, FormatLog)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), got.Scalar)

	_, err = Parse(rd, FormatLog)
	require.ErrorIs(t, err, io.EOF)
}
