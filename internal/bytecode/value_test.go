package bytecode

import "testing"

func TestFalsey(t *testing.T) {
	cases := []struct {
		v    Value
		want bool
	}{
		{Nil(), true},
		{BoolVal(false), true},
		{BoolVal(true), false},
		{Number(0), false},
		{ObjVal(&String{Chars: ""}), false},
	}
	for _, c := range cases {
		if got := Falsey(c.v); got != c.want {
			t.Errorf("Falsey(%#v) = %v, want %v", c.v, got, c.want)
		}
	}
}

func TestValuesEqual(t *testing.T) {
	s1 := &String{Chars: "hi"}
	s2 := &String{Chars: "hi"}
	cases := []struct {
		a, b Value
		want bool
	}{
		{Nil(), Nil(), true},
		{BoolVal(true), BoolVal(true), true},
		{BoolVal(true), BoolVal(false), false},
		{Number(1), Number(1), true},
		{Number(1), Number(2), false},
		{Nil(), BoolVal(false), false},
		{ObjVal(s1), ObjVal(s1), true},
		{ObjVal(s1), ObjVal(s2), false}, // distinct objects, not interned here
	}
	for _, c := range cases {
		if got := ValuesEqual(c.a, c.b); got != c.want {
			t.Errorf("ValuesEqual(%#v, %#v) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestValuesEqualNaN(t *testing.T) {
	nan := Number(nan())
	if ValuesEqual(nan, nan) {
		t.Errorf("NaN should not equal itself, following host == semantics")
	}
}

func nan() float64 {
	var zero float64
	return zero / zero
}

func TestPrintNumber(t *testing.T) {
	cases := []struct {
		n    float64
		want string
	}{
		{3, "3"},
		{3.5, "3.5"},
		{-2, "-2"},
		{0, "0"},
	}
	for _, c := range cases {
		if got := Print(Number(c.n)); got != c.want {
			t.Errorf("Print(%v) = %q, want %q", c.n, got, c.want)
		}
	}
}

func TestPrintObjects(t *testing.T) {
	if got := Print(Nil()); got != "nil" {
		t.Errorf("Print(nil) = %q", got)
	}
	if got := Print(BoolVal(true)); got != "true" {
		t.Errorf("Print(true) = %q", got)
	}
	if got := Print(ObjVal(&String{Chars: "hi"})); got != "hi" {
		t.Errorf("Print(string) = %q", got)
	}
	anon := &Function{}
	if got := Print(ObjVal(anon)); got != "<script>" {
		t.Errorf("Print(anonymous fn) = %q", got)
	}
	named := &Function{Name: &String{Chars: "add"}}
	if got := Print(ObjVal(named)); got != "<fn add>" {
		t.Errorf("Print(named fn) = %q", got)
	}
	if got := Print(ObjVal(&Native{})); got != "<native fn>" {
		t.Errorf("Print(native) = %q", got)
	}
	if got := Print(ObjVal(&Closure{})); got != "<closure>" {
		t.Errorf("Print(closure) = %q", got)
	}
}

func TestUpvalueOpenCloseRoundtrip(t *testing.T) {
	slot := Number(10)
	up := &Upvalue{Location: &slot}
	if got := up.Get(); got.Num != 10 {
		t.Fatalf("Get() before close = %v, want 10", got)
	}
	up.Set(Number(20))
	if slot.Num != 20 {
		t.Fatalf("Set() before close did not write through stack slot, got %v", slot)
	}
	up.Close()
	if up.Location != nil {
		t.Fatalf("Close() should clear Location")
	}
	if got := up.Get(); got.Num != 20 {
		t.Fatalf("Get() after close = %v, want 20", got)
	}
	up.Set(Number(30))
	if slot.Num != 20 {
		t.Fatalf("Set() after close should not touch the original slot")
	}
	if got := up.Get(); got.Num != 30 {
		t.Fatalf("Get() after closed Set() = %v, want 30", got)
	}
	up.Close() // idempotent
	if got := up.Get(); got.Num != 30 {
		t.Fatalf("second Close() should be a no-op, got %v", got)
	}
}

func TestChunkAddConstantDedup(t *testing.T) {
	c := NewChunk()
	i1, err := c.AddConstant(Number(1))
	if err != nil {
		t.Fatal(err)
	}
	i2, err := c.AddConstant(Number(1))
	if err != nil {
		t.Fatal(err)
	}
	if i1 != i2 {
		t.Fatalf("expected identical constants to dedup, got %d and %d", i1, i2)
	}
	i3, err := c.AddConstant(Number(2))
	if err != nil {
		t.Fatal(err)
	}
	if i3 == i1 {
		t.Fatalf("distinct constants should not share an index")
	}
	if len(c.Consts) != 2 {
		t.Fatalf("expected 2 pooled constants, got %d", len(c.Consts))
	}
}

func TestChunkAddConstantOverflow(t *testing.T) {
	c := NewChunk()
	for i := 0; i < MaxConstants; i++ {
		if _, err := c.AddConstant(Number(float64(i))); err != nil {
			t.Fatalf("unexpected error filling pool: %v", err)
		}
	}
	if _, err := c.AddConstant(Number(float64(MaxConstants))); err == nil {
		t.Fatalf("expected overflow error past %d constants", MaxConstants)
	}
}

func TestChunkWriteByteAndLineAt(t *testing.T) {
	c := NewChunk()
	c.WriteByte(byte(OpNil), 1)
	c.WriteByte(byte(OpTrue), 2)
	if c.LineAt(0) != 1 || c.LineAt(1) != 2 {
		t.Fatalf("unexpected line table: %v", c.Lines)
	}
	if c.LineAt(99) != 0 {
		t.Fatalf("out-of-range LineAt should return 0")
	}
}
