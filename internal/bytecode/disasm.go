package bytecode

import (
	"fmt"
	"io"
)

// Disassembler formats bytecode as a readable assembly-style dump, the
// way a debug tracer inspects compiled chunks (§1: the tracer is an
// external collaborator touched only at this interface).
type Disassembler struct {
	w       io.Writer
	visited map[*Function]bool
}

// NewDisassembler constructs a disassembler that writes to w.
func NewDisassembler(w io.Writer) *Disassembler {
	return &Disassembler{w: w, visited: make(map[*Function]bool)}
}

// DisassembleFunction emits a readable dump for fn's chunk and recurses
// into any nested function prototypes found in its constant pool.
func (d *Disassembler) DisassembleFunction(fn *Function) error {
	if fn == nil || fn.Chunk == nil {
		return fmt.Errorf("nil function")
	}
	if d.visited[fn] {
		return nil
	}
	d.visited[fn] = true

	name := "<script>"
	if fn.Name != nil {
		name = fn.Name.Chars
	}
	fmt.Fprintf(d.w, "== %s (arity=%d, upvalues=%d) ==\n", name, fn.Arity, fn.UpvalueCount)
	if err := d.disassembleChunk(fn.Chunk); err != nil {
		return err
	}
	for _, c := range fn.Chunk.Consts {
		if child := c.AsFunction(); child != nil {
			if err := d.DisassembleFunction(child); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Disassembler) disassembleChunk(chunk *Chunk) error {
	for offset := 0; offset < len(chunk.Code); {
		next, err := d.disassembleInstruction(chunk, offset)
		if err != nil {
			return err
		}
		offset = next
	}
	return nil
}

func (d *Disassembler) disassembleInstruction(chunk *Chunk, offset int) (int, error) {
	line := chunk.LineAt(offset)
	fmt.Fprintf(d.w, "%04d %4d ", offset, line)
	op := OpCode(chunk.Code[offset])
	switch op {
	case OpConstant, OpGetGlobal, OpDefineGlobal, OpSetGlobal:
		idx := chunk.Code[offset+1]
		fmt.Fprintf(d.w, "%-18s %4d '%s'\n", op, idx, Print(chunk.Constant(idx)))
		return offset + 2, nil
	case OpGetLocal, OpSetLocal, OpGetUpvalue, OpSetUpvalue, OpCall:
		slot := chunk.Code[offset+1]
		fmt.Fprintf(d.w, "%-18s %4d\n", op, slot)
		return offset + 2, nil
	case OpJump, OpJumpIfFalse:
		target := offset + 3 + readU16(chunk.Code, offset+1)
		fmt.Fprintf(d.w, "%-18s %4d -> %d\n", op, offset, target)
		return offset + 3, nil
	case OpLoop:
		target := offset + 3 - readU16(chunk.Code, offset+1)
		fmt.Fprintf(d.w, "%-18s %4d -> %d\n", op, offset, target)
		return offset + 3, nil
	case OpClosure:
		idx := chunk.Code[offset+1]
		fn := chunk.Constant(idx).AsFunction()
		upcount := 0
		if fn != nil {
			upcount = fn.UpvalueCount
		}
		fmt.Fprintf(d.w, "%-18s %4d '%s'\n", op, idx, Print(chunk.Constant(idx)))
		next := offset + 2
		for i := 0; i < upcount; i++ {
			isLocal := chunk.Code[next]
			index := chunk.Code[next+1]
			kind := "upvalue"
			if isLocal == 1 {
				kind = "local"
			}
			fmt.Fprintf(d.w, "%04d      |                     %s %d\n", next, kind, index)
			next += 2
		}
		return next, nil
	case OpNil, OpTrue, OpFalse, OpPop, OpEqual, OpGreater, OpLess,
		OpAdd, OpSubtract, OpMultiply, OpDivide, OpNot, OpNegate,
		OpPrint, OpCloseUpvalue, OpReturn:
		fmt.Fprintf(d.w, "%s\n", op)
		return offset + 1, nil
	default:
		fmt.Fprintf(d.w, "unknown opcode %d\n", op)
		return offset + 1, nil
	}
}

func readU16(code []byte, at int) int {
	return int(code[at])<<8 | int(code[at+1])
}
