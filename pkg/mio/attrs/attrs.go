// Package attrs implements the object attribute wire codec: the fixed
// non-hint prefix (size, access stats) followed by the persistent hint
// subset of the object's hint map, as persisted in the metadata KV set.
package attrs

import (
	"encoding/binary"

	mioerrors "github.com/mio-io/mio-go/pkg/mio/errors"
	"github.com/mio-io/mio-go/pkg/mio/hints"
)

// Stats holds the object's access counters.
type Stats struct {
	RCount uint64
	RBytes uint64
	RTime  uint64
	WCount uint64
	WBytes uint64
	WTime  uint64
}

// nonHintSize is the encoded size of {Size, Stats}: one u64 plus six u64
// fields, 7*8 = 56 bytes.
const nonHintSize = 8 + 6*8

// hintEntrySize is the per-hint encoded size: a 4-byte key plus an 8-byte
// value.
const hintEntrySize = 4 + 8

// Attrs is the persisted object attribute record: logical size, access
// stats, and the persistent subset of the object's hint map.
type Attrs struct {
	Size   uint64
	Stats  Stats
	PHints *hints.Map
}

// WireSize returns the encoded size of a, given its current PHints length.
func (a *Attrs) WireSize() int {
	n := 0
	if a.PHints != nil {
		n = a.PHints.Len()
	}
	return nonHintSize + 4 + n*hintEntrySize
}

// Encode produces the wire representation of a: size, stats, nr_persistent_hints,
// then the hint keys array, then the hint values array, in that order.
func Encode(a *Attrs) ([]byte, error) {
	if a.PHints != nil && a.PHints.Len() > hints.ObjectCapacity {
		return nil, mioerrors.NewInvalidArgument("persistent hint count exceeds object capacity")
	}

	keys := []int{}
	if a.PHints != nil {
		keys = a.PHints.Keys()
	}
	n := len(keys)

	buf := make([]byte, nonHintSize+4+n*hintEntrySize)
	off := 0

	binary.LittleEndian.PutUint64(buf[off:], a.Size)
	off += 8
	for _, v := range []uint64{a.Stats.RCount, a.Stats.RBytes, a.Stats.RTime, a.Stats.WCount, a.Stats.WBytes, a.Stats.WTime} {
		binary.LittleEndian.PutUint64(buf[off:], v)
		off += 8
	}

	binary.LittleEndian.PutUint32(buf[off:], uint32(n))
	off += 4

	for _, k := range keys {
		binary.LittleEndian.PutUint32(buf[off:], uint32(int32(k)))
		off += 4
	}
	for _, k := range keys {
		v, _ := a.PHints.Get(k)
		binary.LittleEndian.PutUint64(buf[off:], v)
		off += 8
	}

	return buf, nil
}

// Decode parses the wire representation produced by Encode. It checks that
// the declared hint count is within [0, ObjectCapacity] and that the
// buffer's total length matches the size implied by that count.
func Decode(buf []byte) (*Attrs, error) {
	if len(buf) < nonHintSize+4 {
		return nil, mioerrors.NewInvalidArgument("attribute buffer shorter than the fixed prefix")
	}

	a := &Attrs{}
	off := 0

	a.Size = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	a.Stats.RCount = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	a.Stats.RBytes = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	a.Stats.RTime = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	a.Stats.WCount = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	a.Stats.WBytes = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	a.Stats.WTime = binary.LittleEndian.Uint64(buf[off:])
	off += 8

	nrHints := int32(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	if nrHints < 0 || int(nrHints) > hints.ObjectCapacity {
		return nil, mioerrors.NewInvalidArgument("declared hint count out of range")
	}

	n := int(nrHints)
	wantLen := nonHintSize + 4 + n*hintEntrySize
	if len(buf) != wantLen {
		return nil, mioerrors.NewInvalidArgument("attribute buffer length does not match declared hint count")
	}

	keys := make([]int, n)
	for i := 0; i < n; i++ {
		keys[i] = int(int32(binary.LittleEndian.Uint32(buf[off:])))
		off += 4
	}

	a.PHints = hints.NewMap(hints.ObjectCapacity)
	for i := 0; i < n; i++ {
		v := binary.LittleEndian.Uint64(buf[off:])
		off += 8
		if err := a.PHints.Set(keys[i], v); err != nil {
			return nil, err
		}
	}

	return a, nil
}
