// Package telemetry implements the fixed-width binary telemetry record
// codec, the human-readable log/text codec, and a generic parser that reads
// one record off either wire. This is distinct from internal/telemetry,
// which wires up distributed tracing and profiling; this package is MIO's
// own small, self-describing metrics record format.
package telemetry

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	mioerrors "github.com/mio-io/mio-go/pkg/mio/errors"
)

// ValueType identifies the shape of a record's value payload.
type ValueType byte

const (
	None ValueType = iota
	U16
	U32
	U64
	Timespan
	Timepoint
	Str
	ArrayU16
	ArrayU32
	ArrayU64
)

func (t ValueType) String() string {
	switch t {
	case None:
		return "none"
	case U16:
		return "u16"
	case U32:
		return "u32"
	case U64:
		return "u64"
	case Timespan:
		return "timespan"
	case Timepoint:
		return "timepoint"
	case Str:
		return "string"
	case ArrayU16:
		return "array_u16"
	case ArrayU32:
		return "array_u32"
	case ArrayU64:
		return "array_u64"
	default:
		return fmt.Sprintf("unknown(%d)", byte(t))
	}
}

// MaxRecordSize is the hard ceiling on an encoded binary record, matching
// the fixed per-record slab the telemetry sink allocates.
const MaxRecordSize = 120

// magic is written low-byte-first: 0x202E little-endian is {0x2E, 0x20}.
var magic = [2]byte{0x2E, 0x20}

// Record is one decoded telemetry entry: an optional scope prefix, a topic
// name, and a typed value. Scalar carries U16/U32/U64/Timespan/Timepoint,
// Str carries the STRING type, Array carries every array type widened to
// uint64 (the element width is implied by Type).
type Record struct {
	Prefix string
	Topic  string
	Type   ValueType
	Scalar uint64
	Str    string
	Array  []uint64
}

// maxArrayCount is the element-count ceiling every array type shares,
// regardless of element width (spec.md §3: "u8 element count (<= 30)").
const maxArrayCount = 30

// maxArrayLen is ArrayU64's element bound: the largest count whose encoding
// still fits MaxRecordSize once the fixed per-record overhead (magic,
// prefix/topic framing, type, count) is accounted for. Equal to
// maxArrayElems(8).
const maxArrayLen = MaxRecordSize/8 - 1

// maxArrayElems returns the largest element count of the given width (in
// bytes) whose array payload still fits MaxRecordSize, capped at
// maxArrayCount. This is a conservative bound checked before encoding; the
// real encoded length is re-checked after padding.
func maxArrayElems(elemWidth int) int {
	n := MaxRecordSize/elemWidth - 1
	if n > maxArrayCount {
		n = maxArrayCount
	}
	return n
}

// EncodeBinary produces the fixed-width binary wire representation of r:
// magic, prefix-present flag, prefix length+bytes, topic length+bytes,
// value type, little-endian value payload, zero-padded to a multiple of 8
// bytes.
func EncodeBinary(r Record) ([]byte, error) {
	if len(r.Prefix) > 255 || len(r.Topic) > 255 {
		return nil, mioerrors.NewInvalidArgument("prefix/topic too long")
	}

	var buf []byte
	buf = append(buf, magic[0], magic[1])

	if r.Prefix != "" {
		buf = append(buf, 1, byte(len(r.Prefix)))
		buf = append(buf, r.Prefix...)
	} else {
		buf = append(buf, 0, 0)
	}

	buf = append(buf, byte(len(r.Topic)))
	buf = append(buf, r.Topic...)

	buf = append(buf, byte(r.Type))
	switch r.Type {
	case None:
		// No value payload.
	case U16:
		if r.Scalar > math.MaxUint16 {
			return nil, mioerrors.NewInvalidArgument("u16 value out of range")
		}
		var v [2]byte
		binary.LittleEndian.PutUint16(v[:], uint16(r.Scalar))
		buf = append(buf, v[:]...)
	case U32:
		if r.Scalar > math.MaxUint32 {
			return nil, mioerrors.NewInvalidArgument("u32 value out of range")
		}
		var v [4]byte
		binary.LittleEndian.PutUint32(v[:], uint32(r.Scalar))
		buf = append(buf, v[:]...)
	case U64, Timespan, Timepoint:
		var v [8]byte
		binary.LittleEndian.PutUint64(v[:], r.Scalar)
		buf = append(buf, v[:]...)
	case Str:
		if len(r.Str) > 255 {
			return nil, mioerrors.NewInvalidArgument("string value too long")
		}
		buf = append(buf, byte(len(r.Str)))
		buf = append(buf, r.Str...)
	case ArrayU16:
		if len(r.Array) > maxArrayElems(2) {
			return nil, mioerrors.NewTooBig("array value exceeds the record's fixed capacity")
		}
		buf = append(buf, byte(len(r.Array)))
		for _, e := range r.Array {
			if e > math.MaxUint16 {
				return nil, mioerrors.NewInvalidArgument("array_u16 element out of range")
			}
			var b [2]byte
			binary.LittleEndian.PutUint16(b[:], uint16(e))
			buf = append(buf, b[:]...)
		}
	case ArrayU32:
		if len(r.Array) > maxArrayElems(4) {
			return nil, mioerrors.NewTooBig("array value exceeds the record's fixed capacity")
		}
		buf = append(buf, byte(len(r.Array)))
		for _, e := range r.Array {
			if e > math.MaxUint32 {
				return nil, mioerrors.NewInvalidArgument("array_u32 element out of range")
			}
			var b [4]byte
			binary.LittleEndian.PutUint32(b[:], uint32(e))
			buf = append(buf, b[:]...)
		}
	case ArrayU64:
		if len(r.Array) > maxArrayLen {
			return nil, mioerrors.NewTooBig("array value exceeds the record's fixed capacity")
		}
		buf = append(buf, byte(len(r.Array)))
		for _, e := range r.Array {
			var b [8]byte
			binary.LittleEndian.PutUint64(b[:], e)
			buf = append(buf, b[:]...)
		}
	default:
		return nil, mioerrors.NewInvalidArgument("unknown value type")
	}

	for len(buf)%8 != 0 {
		buf = append(buf, 0)
	}
	if len(buf) > MaxRecordSize {
		return nil, mioerrors.NewTooBig("encoded telemetry record exceeds the fixed slab size")
	}
	return buf, nil
}

// DecodeBinary parses a record produced by EncodeBinary. It does not
// require the input to be exactly the padded length: trailing zero padding
// beyond the last meaningful byte is simply ignored.
func DecodeBinary(buf []byte) (Record, error) {
	if len(buf) < 2+2+1+1+1 {
		return Record{}, mioerrors.NewInvalidArgument("telemetry record shorter than the fixed header")
	}
	if buf[0] != magic[0] || buf[1] != magic[1] {
		return Record{}, mioerrors.NewInvalidArgument("bad telemetry record magic")
	}
	off := 2

	hasPrefix := buf[off]
	off++
	prefixLen := int(buf[off])
	off++
	var prefix string
	if hasPrefix != 0 {
		if off+prefixLen > len(buf) {
			return Record{}, mioerrors.NewInvalidArgument("truncated telemetry prefix")
		}
		prefix = string(buf[off : off+prefixLen])
		off += prefixLen
	}

	if off >= len(buf) {
		return Record{}, mioerrors.NewInvalidArgument("truncated telemetry record")
	}
	topicLen := int(buf[off])
	off++
	if off+topicLen > len(buf) {
		return Record{}, mioerrors.NewInvalidArgument("truncated telemetry topic")
	}
	topic := string(buf[off : off+topicLen])
	off += topicLen

	if off >= len(buf) {
		return Record{}, mioerrors.NewInvalidArgument("missing telemetry value type")
	}
	vt := ValueType(buf[off])
	off++

	r := Record{Prefix: prefix, Topic: topic, Type: vt}
	switch vt {
	case None:
		// No value payload.
	case U16:
		if off+2 > len(buf) {
			return Record{}, mioerrors.NewInvalidArgument("truncated u16 value")
		}
		r.Scalar = uint64(binary.LittleEndian.Uint16(buf[off : off+2]))
	case U32:
		if off+4 > len(buf) {
			return Record{}, mioerrors.NewInvalidArgument("truncated u32 value")
		}
		r.Scalar = uint64(binary.LittleEndian.Uint32(buf[off : off+4]))
	case U64, Timespan, Timepoint:
		if off+8 > len(buf) {
			return Record{}, mioerrors.NewInvalidArgument("truncated u64 value")
		}
		r.Scalar = binary.LittleEndian.Uint64(buf[off : off+8])
	case Str:
		if off >= len(buf) {
			return Record{}, mioerrors.NewInvalidArgument("missing string length")
		}
		n := int(buf[off])
		off++
		if off+n > len(buf) {
			return Record{}, mioerrors.NewInvalidArgument("truncated string value")
		}
		r.Str = string(buf[off : off+n])
	case ArrayU16:
		if off >= len(buf) {
			return Record{}, mioerrors.NewInvalidArgument("missing array length")
		}
		n := int(buf[off])
		off++
		if off+n*2 > len(buf) {
			return Record{}, mioerrors.NewInvalidArgument("truncated array_u16 value")
		}
		arr := make([]uint64, n)
		for i := 0; i < n; i++ {
			arr[i] = uint64(binary.LittleEndian.Uint16(buf[off : off+2]))
			off += 2
		}
		r.Array = arr
	case ArrayU32:
		if off >= len(buf) {
			return Record{}, mioerrors.NewInvalidArgument("missing array length")
		}
		n := int(buf[off])
		off++
		if off+n*4 > len(buf) {
			return Record{}, mioerrors.NewInvalidArgument("truncated array_u32 value")
		}
		arr := make([]uint64, n)
		for i := 0; i < n; i++ {
			arr[i] = uint64(binary.LittleEndian.Uint32(buf[off : off+4]))
			off += 4
		}
		r.Array = arr
	case ArrayU64:
		if off >= len(buf) {
			return Record{}, mioerrors.NewInvalidArgument("missing array length")
		}
		n := int(buf[off])
		off++
		if off+n*8 > len(buf) {
			return Record{}, mioerrors.NewInvalidArgument("truncated array_u64 value")
		}
		arr := make([]uint64, n)
		for i := 0; i < n; i++ {
			arr[i] = binary.LittleEndian.Uint64(buf[off : off+8])
			off += 8
		}
		r.Array = arr
	default:
		return Record{}, mioerrors.NewInvalidArgument("unknown telemetry value type")
	}
	// A zero-count array decodes as nil, the value it was encoded from.
	if len(r.Array) == 0 {
		r.Array = nil
	}
	return r, nil
}

// parseLogScalar extracts the single value field a scalar log record
// carries, parsing with the type's own bit width so out-of-range values are
// rejected the same way EncodeBinary's range checks reject them.
func parseLogScalar(fields []string, bitSize int) (uint64, error) {
	if len(fields) != 3 {
		return 0, mioerrors.NewInvalidArgument("scalar record requires exactly one value")
	}
	v, err := strconv.ParseUint(fields[2], 10, bitSize)
	if err != nil {
		return 0, mioerrors.NewInvalidArgument("malformed scalar value")
	}
	return v, nil
}

// parseLogArray extracts every value field an array log record carries.
func parseLogArray(fields []string, bitSize int) ([]uint64, error) {
	arr := make([]uint64, 0, len(fields)-2)
	for _, f := range fields[2:] {
		v, err := strconv.ParseUint(f, 10, bitSize)
		if err != nil {
			return nil, mioerrors.NewInvalidArgument("malformed array element")
		}
		arr = append(arr, v)
	}
	return arr, nil
}

// EncodeLog renders r as a single text line: "topic type v1 [v2 ...]". The
// prefix, if set, is not written here — a leading "*" marking a prefixed
// record is a display-time convention applied by FormatForDisplay, not part
// of the persisted log line.
func EncodeLog(r Record) string {
	var sb strings.Builder
	sb.WriteString(r.Topic)
	sb.WriteByte(' ')
	sb.WriteString(r.Type.String())
	switch r.Type {
	case None:
		// No value field.
	case U16, U32, U64, Timespan, Timepoint:
		sb.WriteByte(' ')
		sb.WriteString(strconv.FormatUint(r.Scalar, 10))
	case Str:
		sb.WriteByte(' ')
		sb.WriteString(r.Str)
	case ArrayU16, ArrayU32, ArrayU64:
		for _, v := range r.Array {
			sb.WriteByte(' ')
			sb.WriteString(strconv.FormatUint(v, 10))
		}
	}
	return sb.String()
}

// ParseLog parses one EncodeLog line. A leading "*" (as produced by
// FormatForDisplay) marks a display line whose first word is the record's
// prefix; it is read back into Prefix, so the parser can round-trip its own
// display output.
func ParseLog(line string) (Record, error) {
	line = strings.TrimSpace(line)
	var prefix string
	if rest, ok := strings.CutPrefix(line, "*"); ok {
		prefix, line, _ = strings.Cut(rest, " ")
	}
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return Record{}, mioerrors.NewInvalidArgument("telemetry log line missing topic/type")
	}

	r := Record{Prefix: prefix, Topic: fields[0]}
	var err error
	switch fields[1] {
	case "none":
		r.Type = None
		if len(fields) != 2 {
			return Record{}, mioerrors.NewInvalidArgument("none record carries no value")
		}
	case "u16":
		r.Type = U16
		r.Scalar, err = parseLogScalar(fields, 16)
	case "u32":
		r.Type = U32
		r.Scalar, err = parseLogScalar(fields, 32)
	case "u64":
		r.Type = U64
		r.Scalar, err = parseLogScalar(fields, 64)
	case "timespan":
		r.Type = Timespan
		r.Scalar, err = parseLogScalar(fields, 64)
	case "timepoint":
		r.Type = Timepoint
		r.Scalar, err = parseLogScalar(fields, 64)
	case "string":
		r.Type = Str
		if len(fields) != 3 {
			return Record{}, mioerrors.NewInvalidArgument("string record requires exactly one value")
		}
		r.Str = fields[2]
	case "array_u16":
		r.Type = ArrayU16
		r.Array, err = parseLogArray(fields, 16)
	case "array_u32":
		r.Type = ArrayU32
		r.Array, err = parseLogArray(fields, 32)
	case "array_u64":
		r.Type = ArrayU64
		r.Array, err = parseLogArray(fields, 64)
	default:
		return Record{}, mioerrors.NewInvalidArgument("unknown telemetry value type name")
	}
	if err != nil {
		return Record{}, err
	}
	return r, nil
}

// FormatForDisplay renders r the way the parser tool prints a record it has
// read: a leading "*" when the record carries a prefix, followed by the
// same layout EncodeLog produces.
func FormatForDisplay(r Record) string {
	line := EncodeLog(r)
	if r.Prefix != "" {
		return "*" + r.Prefix + " " + line
	}
	return line
}

// Format selects which wire a Parse call should read.
type Format int

const (
	FormatBinary Format = iota
	FormatLog
)

// Parse reads exactly one record from rd in the given format: one
// self-delimited binary record for FormatBinary (records are packed
// back-to-back with no outer frame, so the parser reads the header
// incrementally to learn each record's true length before consuming its
// zero padding), or one newline-terminated line for FormatLog.
func Parse(rd io.Reader, format Format) (Record, error) {
	switch format {
	case FormatLog:
		scanner := bufio.NewScanner(rd)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return Record{}, err
			}
			return Record{}, io.EOF
		}
		return ParseLog(scanner.Text())
	case FormatBinary:
		return decodeBinaryStream(rd)
	default:
		return Record{}, mioerrors.NewInvalidArgument("unknown telemetry record format")
	}
}

func readExact(rd io.Reader, n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(rd, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// decodeBinaryStream reads one record off a stream of records packed
// back-to-back (each padded to a multiple of 8 bytes, per EncodeBinary),
// consuming exactly that record's bytes including its padding so the next
// call starts at the following record's magic.
func decodeBinaryStream(rd io.Reader) (Record, error) {
	hdr, err := readExact(rd, 4) // magic(2) + hasPrefix(1) + prefixLen(1)
	if err != nil {
		return Record{}, err
	}
	if hdr[0] != magic[0] || hdr[1] != magic[1] {
		return Record{}, mioerrors.NewInvalidArgument("bad telemetry record magic")
	}
	consumed := 4

	hasPrefix := hdr[2]
	prefixLen := int(hdr[3])
	var prefix string
	if hasPrefix != 0 {
		pb, err := readExact(rd, prefixLen)
		if err != nil {
			return Record{}, err
		}
		prefix = string(pb)
		consumed += prefixLen
	}

	tb, err := readExact(rd, 1)
	if err != nil {
		return Record{}, err
	}
	consumed++
	topicLen := int(tb[0])
	topicBytes, err := readExact(rd, topicLen)
	if err != nil {
		return Record{}, err
	}
	consumed += topicLen
	topic := string(topicBytes)

	vtb, err := readExact(rd, 1)
	if err != nil {
		return Record{}, err
	}
	consumed++
	vt := ValueType(vtb[0])

	r := Record{Prefix: prefix, Topic: topic, Type: vt}
	switch vt {
	case None:
		// No value payload.
	case U16:
		vb, err := readExact(rd, 2)
		if err != nil {
			return Record{}, err
		}
		consumed += 2
		r.Scalar = uint64(binary.LittleEndian.Uint16(vb))
	case U32:
		vb, err := readExact(rd, 4)
		if err != nil {
			return Record{}, err
		}
		consumed += 4
		r.Scalar = uint64(binary.LittleEndian.Uint32(vb))
	case U64, Timespan, Timepoint:
		vb, err := readExact(rd, 8)
		if err != nil {
			return Record{}, err
		}
		consumed += 8
		r.Scalar = binary.LittleEndian.Uint64(vb)
	case Str:
		lb, err := readExact(rd, 1)
		if err != nil {
			return Record{}, err
		}
		consumed++
		n := int(lb[0])
		sb, err := readExact(rd, n)
		if err != nil {
			return Record{}, err
		}
		consumed += n
		r.Str = string(sb)
	case ArrayU16:
		cb, err := readExact(rd, 1)
		if err != nil {
			return Record{}, err
		}
		consumed++
		n := int(cb[0])
		vb, err := readExact(rd, n*2)
		if err != nil {
			return Record{}, err
		}
		consumed += n * 2
		arr := make([]uint64, n)
		for i := 0; i < n; i++ {
			arr[i] = uint64(binary.LittleEndian.Uint16(vb[i*2 : i*2+2]))
		}
		r.Array = arr
	case ArrayU32:
		cb, err := readExact(rd, 1)
		if err != nil {
			return Record{}, err
		}
		consumed++
		n := int(cb[0])
		vb, err := readExact(rd, n*4)
		if err != nil {
			return Record{}, err
		}
		consumed += n * 4
		arr := make([]uint64, n)
		for i := 0; i < n; i++ {
			arr[i] = uint64(binary.LittleEndian.Uint32(vb[i*4 : i*4+4]))
		}
		r.Array = arr
	case ArrayU64:
		cb, err := readExact(rd, 1)
		if err != nil {
			return Record{}, err
		}
		consumed++
		n := int(cb[0])
		vb, err := readExact(rd, n*8)
		if err != nil {
			return Record{}, err
		}
		consumed += n * 8
		arr := make([]uint64, n)
		for i := 0; i < n; i++ {
			arr[i] = binary.LittleEndian.Uint64(vb[i*8 : i*8+8])
		}
		r.Array = arr
	default:
		return Record{}, mioerrors.NewInvalidArgument("unknown telemetry value type")
	}
	if len(r.Array) == 0 {
		r.Array = nil
	}

	if pad := (8 - consumed%8) % 8; pad > 0 {
		if _, err := readExact(rd, pad); err != nil {
			return Record{}, err
		}
	}
	return r, nil
}
