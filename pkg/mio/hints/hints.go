// Package hints implements the compact ordered int->u64 hint map and the
// object/system hint namespaces it carries. This is a leaf package with no
// dependency on the object or attribute codec so both can import it without
// a cycle.
package hints

import (
	mioerrors "github.com/mio-io/mio-go/pkg/mio/errors"
)

// ObjectCapacity is the fixed hint map capacity for object handles.
const ObjectCapacity = 32

// Key identifies a well-known hint.
type Key int

const (
	// LIFETIME is an object hint, persistent.
	LIFETIME Key = iota + 1
	// WHERE is an object hint, session-scoped; names the target pool.
	WHERE
	// HOT_INDEX is an object hint, persistent; dynamically recomputed on get.
	HOT_INDEX
	// HotObjThreshold is a system hint controlling the hotness->pool mapping.
	HotObjThreshold
	// ColdObjThreshold is a system hint controlling the hotness->pool mapping.
	ColdObjThreshold
)

// Scope identifies the namespace a hint key belongs to.
type Scope int

const (
	ScopeObject Scope = iota
	ScopeSystem
)

// Type identifies whether a hint is persisted across close/open or only
// valid for the lifetime of the handle.
type Type int

const (
	TypeSession Type = iota
	TypePersistent
)

type descriptor struct {
	scope Scope
	typ   Type
}

var registry = map[Key]descriptor{
	LIFETIME:         {ScopeObject, TypePersistent},
	WHERE:            {ScopeObject, TypeSession},
	HOT_INDEX:        {ScopeObject, TypePersistent},
	HotObjThreshold:  {ScopeSystem, TypePersistent},
	ColdObjThreshold: {ScopeSystem, TypePersistent},
}

// Describe returns the scope and type consulted at store time for key, or
// an InvalidArgument error if key is not a known hint.
func Describe(key Key) (Scope, Type, error) {
	d, ok := registry[key]
	if !ok {
		return 0, 0, mioerrors.NewInvalidArgument("unknown hint key")
	}
	return d.scope, d.typ, nil
}

// IsPersistent reports whether key's type is TypePersistent. Unknown keys
// are treated as non-persistent.
func IsPersistent(key Key) bool {
	d, ok := registry[key]
	return ok && d.typ == TypePersistent
}

// Map is a fixed-capacity, insertion-ordered map from int key to u64 value.
// It mirrors the object attribute hint map: nr_set entries used out of
// nr_entries capacity, first-seen order preserved, re-set overwrites in
// place.
type Map struct {
	capacity int
	order    []int
	values   map[int]uint64
}

// NewMap creates an empty hint map with the given fixed capacity.
func NewMap(capacity int) *Map {
	return &Map{
		capacity: capacity,
		order:    make([]int, 0, capacity),
		values:   make(map[int]uint64, capacity),
	}
}

// Cap returns the map's fixed capacity (nr_entries).
func (m *Map) Cap() int { return m.capacity }

// Len returns the number of entries currently set (nr_set).
func (m *Map) Len() int { return len(m.order) }

// Set inserts or overwrites key's value. Returns OutOfMemory if key is new
// and the map is already at capacity.
func (m *Map) Set(key int, value uint64) error {
	if _, exists := m.values[key]; !exists {
		if len(m.order) >= m.capacity {
			return mioerrors.NewOutOfMemory("hint map at capacity")
		}
		m.order = append(m.order, key)
	}
	m.values[key] = value
	return nil
}

// Get returns key's value and whether it was present.
func (m *Map) Get(key int) (uint64, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Keys returns the set keys in first-seen insertion order.
func (m *Map) Keys() []int {
	out := make([]int, len(m.order))
	copy(out, m.order)
	return out
}

// Clone returns a deep copy of m.
func (m *Map) Clone() *Map {
	c := NewMap(m.capacity)
	for _, k := range m.order {
		c.order = append(c.order, k)
		c.values[k] = m.values[k]
	}
	return c
}

// FilterPersistent returns a new map containing only the entries whose key
// is a persistent hint. It is the pure function shared between the
// attribute codec and the hint API (spec design note: a canonical hint map
// type instead of duplicated structs).
func (m *Map) FilterPersistent() *Map {
	out := NewMap(m.capacity)
	for _, k := range m.order {
		if IsPersistent(Key(k)) {
			_ = out.Set(k, m.values[k])
		}
	}
	return out
}

// Merge copies every entry of other into m, overwriting on key collision.
// Returns OutOfMemory if a new key would exceed m's capacity.
func (m *Map) Merge(other *Map) error {
	if other == nil {
		return nil
	}
	for _, k := range other.order {
		if err := m.Set(k, other.values[k]); err != nil {
			return err
		}
	}
	return nil
}

// Equal reports whether m and other contain the same key/value pairs,
// irrespective of insertion order.
func (m *Map) Equal(other *Map) bool {
	if other == nil {
		return m.Len() == 0
	}
	if m.Len() != other.Len() {
		return false
	}
	for _, k := range m.order {
		ov, ok := other.values[k]
		if !ok || ov != m.values[k] {
			return false
		}
	}
	return true
}
