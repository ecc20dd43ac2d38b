package intern

import (
	"testing"

	"github.com/ashlang/ash/internal/bytecode"
)

func TestFindOrInternDeduplicates(t *testing.T) {
	tbl := New()
	a := tbl.FindOrIntern("hello")
	b := tbl.FindOrIntern("hello")
	if a != b {
		t.Fatalf("expected same object for repeated interning, got %p and %p", a, b)
	}
	if tbl.Count() != 1 {
		t.Fatalf("expected 1 live entry, got %d", tbl.Count())
	}
}

func TestFindOrInternDistinctStrings(t *testing.T) {
	tbl := New()
	a := tbl.FindOrIntern("foo")
	b := tbl.FindOrIntern("bar")
	if a == b {
		t.Fatalf("distinct strings must not share an interned object")
	}
	if tbl.Count() != 2 {
		t.Fatalf("expected 2 live entries, got %d", tbl.Count())
	}
}

func TestGrowPreservesLookup(t *testing.T) {
	tbl := New()
	want := make(map[string]*bytecode.String)
	for i := 0; i < 200; i++ {
		s := randomish(i)
		want[s] = tbl.FindOrIntern(s)
	}
	for s, orig := range want {
		if got := tbl.FindOrIntern(s); got != orig {
			t.Fatalf("lookup instability after growth for %q", s)
		}
	}
}

func randomish(i int) string {
	// deterministic pseudo-random-looking strings without using math/rand,
	// since the surrounding workflow forbids nondeterministic helpers here.
	buf := make([]byte, 0, 8)
	n := i*2654435761 + 17
	for k := 0; k < 6; k++ {
		buf = append(buf, byte('a'+(n>>uint(k*4))%26))
	}
	return string(buf)
}

func TestDeleteThenReinsert(t *testing.T) {
	tbl := New()
	// "x" and "p" have the same low three bits of FNV-1a hash, so in the
	// initial 8-slot table "p" probes past the slot "x" occupies.
	tbl.FindOrIntern("x")
	p := tbl.FindOrIntern("p")
	if !tbl.Delete("x") {
		t.Fatalf("expected Delete to report removal")
	}
	if tbl.Delete("x") {
		t.Fatalf("second Delete of same key should report false")
	}
	if tbl.Count() != 1 {
		t.Fatalf("expected 1 live entry after delete, got %d", tbl.Count())
	}
	// p must still be reachable through the tombstone left by deleting x.
	if got := tbl.FindOrIntern("p"); got != p {
		t.Fatalf("lookup through tombstone chain failed")
	}
	tbl.FindOrIntern("x")
	if tbl.Count() != 2 {
		t.Fatalf("expected 2 live entries after reinserting x, got %d", tbl.Count())
	}
}

func TestFNV1aStable(t *testing.T) {
	if FNV1a("") != 2166136261 {
		t.Fatalf("FNV-1a of empty string should be the offset basis")
	}
	if FNV1a("a") == FNV1a("b") {
		t.Fatalf("distinct single-byte strings should not collide trivially")
	}
}
