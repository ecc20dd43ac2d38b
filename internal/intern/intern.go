// Package intern implements the VM's string intern table: every string
// value in a running program is deduplicated into a single *bytecode.String,
// so string equality reduces to pointer identity.
package intern

import "github.com/ashlang/ash/internal/bytecode"

const (
	initialCapacity = 8
	maxLoadFactor   = 0.75
)

type entry struct {
	key  *bytecode.String // nil when the slot is empty or a tombstone
	tomb bool
}

// Table is an open-addressed hash set of interned strings, linear-probed,
// growing by doubling whenever the load factor would exceed 0.75.
type Table struct {
	entries []entry
	count   int // live entries, not counting tombstones
}

// New returns an empty intern table with its initial capacity pre-sized.
func New() *Table {
	return &Table{entries: make([]entry, initialCapacity)}
}

// FindOrIntern returns the canonical *bytecode.String for chars, allocating
// and inserting a new one on first sight. The hash is computed once and
// cached on the returned object.
func (t *Table) FindOrIntern(chars string) *bytecode.String {
	hash := FNV1a(chars)
	if s := t.find(chars, hash); s != nil {
		return s
	}
	s := &bytecode.String{Chars: chars, Hash: hash}
	t.insert(s)
	return s
}

// find does a raw lookup without allocating, mirroring clox's
// tableFindString — used before creating a new ObjString so that two
// source-text occurrences of the same characters end up as one object.
func (t *Table) find(chars string, hash uint32) *bytecode.String {
	if len(t.entries) == 0 {
		return nil
	}
	mask := uint32(len(t.entries) - 1)
	idx := hash & mask
	for {
		e := &t.entries[idx]
		if e.key == nil && !e.tomb {
			return nil
		}
		if e.key != nil && e.key.Hash == hash && e.key.Chars == chars {
			return e.key
		}
		idx = (idx + 1) & mask
	}
}

func (t *Table) insert(s *bytecode.String) {
	if float64(t.count+1) > float64(len(t.entries))*maxLoadFactor {
		t.grow()
	}
	t.rawInsert(t.entries, s)
	t.count++
}

func (t *Table) rawInsert(entries []entry, s *bytecode.String) {
	mask := uint32(len(entries) - 1)
	idx := s.Hash & mask
	for {
		e := &entries[idx]
		if e.key == nil {
			*e = entry{key: s}
			return
		}
		idx = (idx + 1) & mask
	}
}

func (t *Table) grow() {
	newCap := len(t.entries) * 2
	if newCap == 0 {
		newCap = initialCapacity
	}
	newEntries := make([]entry, newCap)
	for _, e := range t.entries {
		if e.key != nil {
			t.rawInsert(newEntries, e.key)
		}
	}
	t.entries = newEntries
}

// Delete removes chars from the table if present, leaving a tombstone so
// subsequent linear probes through this slot still terminate correctly.
// Not used by normal interning (strings are never un-interned while a VM is
// alive) but kept for symmetry with clox's tableDelete and exercised by
// tests of probe-chain correctness.
func (t *Table) Delete(chars string) bool {
	hash := FNV1a(chars)
	if len(t.entries) == 0 {
		return false
	}
	mask := uint32(len(t.entries) - 1)
	idx := hash & mask
	for {
		e := &t.entries[idx]
		if e.key == nil && !e.tomb {
			return false
		}
		if e.key != nil && e.key.Hash == hash && e.key.Chars == chars {
			e.key = nil
			e.tomb = true
			t.count--
			return true
		}
		idx = (idx + 1) & mask
	}
}

// Count reports the number of live interned strings.
func (t *Table) Count() int {
	return t.count
}

// FNV1a computes the 32-bit FNV-1a hash of s, the same algorithm clox uses
// for ObjString hashing.
func FNV1a(s string) uint32 {
	var hash uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		hash ^= uint32(s[i])
		hash *= 16777619
	}
	return hash
}
