package compiler

import (
	"testing"

	"github.com/ashlang/ash/internal/bytecode"
	"github.com/ashlang/ash/internal/intern"
)

func compileSource(t *testing.T, src string) *bytecode.Function {
	t.Helper()
	fn, err := Compile(src, intern.New(), nil)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	return fn
}

func TestCompileArithmeticExpression(t *testing.T) {
	fn := compileSource(t, "print 1 + 2;")
	want := []byte{
		byte(bytecode.OpConstant), 0,
		byte(bytecode.OpConstant), 1,
		byte(bytecode.OpAdd),
		byte(bytecode.OpPrint),
		byte(bytecode.OpNil),
		byte(bytecode.OpReturn),
	}
	assertCode(t, fn.Chunk.Code, want)
}

func TestCompileLocalGetSet(t *testing.T) {
	fn := compileSource(t, "{ var a = 1; a = a + 1; }")
	// var a = 1  -> CONSTANT 0
	// a = a + 1  -> GET_LOCAL 1, CONSTANT 0 (the second 1 reuses the pooled
	//               constant), ADD, SET_LOCAL 1, POP
	// end of block -> POP (a leaves scope)
	want := []byte{
		byte(bytecode.OpConstant), 0,
		byte(bytecode.OpGetLocal), 1,
		byte(bytecode.OpConstant), 0,
		byte(bytecode.OpAdd),
		byte(bytecode.OpSetLocal), 1,
		byte(bytecode.OpPop),
		byte(bytecode.OpPop),
		byte(bytecode.OpNil),
		byte(bytecode.OpReturn),
	}
	assertCode(t, fn.Chunk.Code, want)
}

func TestCompileGlobalDefineAndGet(t *testing.T) {
	fn := compileSource(t, "var g = 1; print g;")
	// The name "g" is pooled (index 0) before the initializer 1 (index 1).
	want := []byte{
		byte(bytecode.OpConstant), 1,
		byte(bytecode.OpDefineGlobal), 0,
		byte(bytecode.OpGetGlobal), 0,
		byte(bytecode.OpPrint),
		byte(bytecode.OpNil),
		byte(bytecode.OpReturn),
	}
	assertCode(t, fn.Chunk.Code, want)
}

func TestCompileClosureCapturesUpvalue(t *testing.T) {
	src := `fun make() { var x = 0; fun inc() { x = x + 1; return x; } return inc; }`
	fn := compileSource(t, src)
	if len(fn.Chunk.Consts) == 0 {
		t.Fatalf("expected at least one constant (the make() prototype)")
	}
	outer := fn.Chunk.Consts[len(fn.Chunk.Consts)-1].AsFunction()
	if outer == nil {
		t.Fatalf("expected the script's last constant to be the make() prototype")
	}
	if len(outer.Chunk.Consts) == 0 {
		t.Fatalf("expected make() to hold at least one constant (the nested closure)")
	}
	inner := outer.Chunk.Consts[len(outer.Chunk.Consts)-1].AsFunction()
	if inner == nil {
		t.Fatalf("expected the make() prototype's last constant to be a function")
	}
	if inner.UpvalueCount != 1 {
		t.Fatalf("expected inc() to declare 1 upvalue, got %d", inner.UpvalueCount)
	}
}

func TestCompileErrorReturnFromScript(t *testing.T) {
	_, err := Compile("return 1;", intern.New(), nil)
	if err == nil {
		t.Fatalf("expected a compile error for top-level return")
	}
}

func TestCompileErrorReadInOwnInitializer(t *testing.T) {
	_, err := Compile("{ var a = a; }", intern.New(), nil)
	if err == nil {
		t.Fatalf("expected a compile error reading a local in its own initializer")
	}
}

func TestCompileErrorRedeclareInSameScope(t *testing.T) {
	_, err := Compile("{ var a = 1; var a = 2; }", intern.New(), nil)
	if err == nil {
		t.Fatalf("expected a compile error redeclaring a name in the same scope")
	}
}

func TestCompileForLoop(t *testing.T) {
	fn := compileSource(t, "for (var i = 0; i < 3; i = i + 1) print i;")
	// Just verify it compiles cleanly and contains a backward OP_LOOP.
	found := false
	for _, b := range fn.Chunk.Code {
		if bytecode.OpCode(b) == bytecode.OpLoop {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a OP_LOOP instruction in compiled for-loop")
	}
}

func assertCode(t *testing.T, got, want []byte) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("code length = %d, want %d\ngot:  %v\nwant: %v", len(got), len(want), got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d = %d, want %d\ngot:  %v\nwant: %v", i, got[i], want[i], got, want)
		}
	}
}
