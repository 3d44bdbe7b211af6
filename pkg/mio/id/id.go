// Package id implements the 128-bit object/pool/KV-set identifier shared
// across every mio component.
package id

import (
	"encoding/binary"
	"fmt"
)

// ID is a 16-byte identifier, stored big-endian on the wire and treated as
// an opaque (hi, lo) tuple internally.
type ID struct {
	Hi uint64
	Lo uint64
}

// MetaKVSet is the well-known id of the metadata KV set reserved on the
// container/realm, created on first init if absent.
var MetaKVSet = ID{Hi: 0, Lo: 0x10}

// Zero is the zero-value identifier, used as a sentinel for "no id".
var Zero = ID{}

// IsZero reports whether id is the zero identifier.
func (id ID) IsZero() bool {
	return id.Hi == 0 && id.Lo == 0
}

// Bytes encodes id as its 16-byte big-endian wire representation.
func (id ID) Bytes() [16]byte {
	var b [16]byte
	binary.BigEndian.PutUint64(b[0:8], id.Hi)
	binary.BigEndian.PutUint64(b[8:16], id.Lo)
	return b
}

// FromBytes decodes a 16-byte big-endian wire representation into an ID.
func FromBytes(b [16]byte) ID {
	return ID{
		Hi: binary.BigEndian.Uint64(b[0:8]),
		Lo: binary.BigEndian.Uint64(b[8:16]),
	}
}

// String renders id as colon-separated hex, e.g. "0000000000000000:0000000000000010".
func (id ID) String() string {
	return fmt.Sprintf("%016x:%016x", id.Hi, id.Lo)
}

// Less provides a total order over ids, used to sort extent/layer keys.
func (id ID) Less(other ID) bool {
	if id.Hi != other.Hi {
		return id.Hi < other.Hi
	}
	return id.Lo < other.Lo
}
