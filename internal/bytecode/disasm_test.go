package bytecode

import (
	"bytes"
	"strings"
	"testing"
)

func TestDisassembleFunctionSimple(t *testing.T) {
	chunk := NewChunk()
	idx, err := chunk.AddConstant(Number(1))
	if err != nil {
		t.Fatalf("add constant: %v", err)
	}
	chunk.WriteByte(byte(OpConstant), 1)
	chunk.WriteByte(idx, 1)
	chunk.WriteByte(byte(OpReturn), 1)

	fn := &Function{Chunk: chunk}

	var buf bytes.Buffer
	dis := NewDisassembler(&buf)
	if err := dis.DisassembleFunction(fn); err != nil {
		t.Fatalf("disassemble: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "<script>") {
		t.Fatalf("expected anonymous script header, got:\n%s", out)
	}
	if !strings.Contains(out, "OP_CONSTANT") {
		t.Fatalf("expected OP_CONSTANT, got:\n%s", out)
	}
	if !strings.Contains(out, "OP_RETURN") {
		t.Fatalf("expected OP_RETURN, got:\n%s", out)
	}
}

func TestDisassembleFunctionNamedAndClosure(t *testing.T) {
	nested := NewChunk()
	nested.WriteByte(byte(OpNil), 2)
	nested.WriteByte(byte(OpReturn), 2)
	nestedFn := &Function{Name: &String{Chars: "inner"}, Chunk: nested, UpvalueCount: 1}

	outer := NewChunk()
	idx, err := outer.AddConstant(ObjVal(nestedFn))
	if err != nil {
		t.Fatalf("add constant: %v", err)
	}
	outer.WriteByte(byte(OpClosure), 3)
	outer.WriteByte(idx, 3)
	outer.WriteByte(1, 3) // isLocal
	outer.WriteByte(0, 3) // index
	outer.WriteByte(byte(OpReturn), 3)

	outerFn := &Function{Name: &String{Chars: "outer"}, Chunk: outer}

	var buf bytes.Buffer
	dis := NewDisassembler(&buf)
	if err := dis.DisassembleFunction(outerFn); err != nil {
		t.Fatalf("disassemble: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "outer") {
		t.Fatalf("expected outer function header, got:\n%s", out)
	}
	if !strings.Contains(out, "OP_CLOSURE") {
		t.Fatalf("expected OP_CLOSURE, got:\n%s", out)
	}
	if !strings.Contains(out, "local 0") {
		t.Fatalf("expected captured local operand, got:\n%s", out)
	}
	if !strings.Contains(out, "inner") {
		t.Fatalf("expected nested function to be disassembled, got:\n%s", out)
	}
}

func TestDisassembleJumpShowsTarget(t *testing.T) {
	chunk := NewChunk()
	chunk.WriteByte(byte(OpJumpIfFalse), 5)
	chunk.WriteByte(0, 5)
	chunk.WriteByte(4, 5)
	chunk.WriteByte(byte(OpPop), 5)

	fn := &Function{Chunk: chunk}

	var buf bytes.Buffer
	dis := NewDisassembler(&buf)
	if err := dis.DisassembleFunction(fn); err != nil {
		t.Fatalf("disassemble: %v", err)
	}
	// Offset 4 is relative to the byte after the 3-byte instruction: 0+3+4.
	if !strings.Contains(buf.String(), "-> 7") {
		t.Fatalf("expected jump target, got:\n%s", buf.String())
	}
}
