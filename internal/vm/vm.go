// Package vm implements the stack-based bytecode virtual machine (§4.F):
// the operand stack, the call-frame stack, the dispatch loop, and the
// semantics of every opcode.
package vm

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ashlang/ash/internal/bytecode"
	"github.com/ashlang/ash/internal/compiler"
	"github.com/ashlang/ash/internal/intern"
)

// Bounds from §5: fixed frame and stack depth, exceeded conditions are
// reported, never silently wrapped or grown.
const (
	MaxFrames    = 64
	MaxStack     = MaxFrames * 256
	maxCallDepth = MaxFrames
)

// Result is the outcome of Interpret (§6).
type Result int

const (
	OK Result = iota
	CompileError
	RuntimeError
)

func (r Result) String() string {
	switch r {
	case OK:
		return "OK"
	case CompileError:
		return "COMPILE_ERROR"
	case RuntimeError:
		return "RUNTIME_ERROR"
	default:
		return "UNKNOWN"
	}
}

// frame is a call activation record (§3 invariants, §4.F): ip indexes into
// closure.Fn.Chunk.Code, slots is this call's base index into vm.stack.
type frame struct {
	closure *bytecode.Closure
	ip      int
	slots   int
}

// VM owns exactly one operand stack and one frame stack (§5). It is
// constructed per interpret session (§9's "Global VM singleton" design
// note): callers must not share a Table between independent VMs.
type VM struct {
	stack    []bytecode.Value
	stackTop int

	frames     []frame
	frameCount int

	globals  map[*bytecode.String]bytecode.Value
	interner *intern.Table

	openUpvalues *bytecode.Upvalue
	allocHead    bytecode.Obj

	logger *logrus.Logger
	// Trace, when non-nil, is invoked before each instruction executes, with
	// the running function and the instruction's offset (a hook for a
	// disassembling tracer, the external collaborator of §1).
	Trace func(fn *bytecode.Function, offset int)

	out strings.Builder
}

// New constructs a VM with tables initialized and stacks reset (init_vm,
// §6). Built-in natives are registered via RegisterDefaults.
func New(logger *logrus.Logger) *VM {
	vm := &VM{
		stack:    make([]bytecode.Value, MaxStack),
		frames:   make([]frame, MaxFrames),
		globals:  make(map[*bytecode.String]bytecode.Value),
		interner: intern.New(),
		logger:   logger,
	}
	RegisterDefaults(vm)
	return vm
}

// Interner exposes the VM's string intern table so the compiler can share
// canonical string identity with the running program (§3: "two equal
// strings are the same object").
func (vm *VM) Interner() *intern.Table { return vm.interner }

// Output returns everything OP_PRINT has written so far.
func (vm *VM) Output() string { return vm.out.String() }

// Free releases all heap state (free_vm, §6). There is no tracing GC in
// this core (§1); teardown just drops references to the allocation list.
func (vm *VM) Free() {
	vm.allocHead = nil
	vm.globals = nil
	vm.openUpvalues = nil
	vm.stackTop = 0
	vm.frameCount = 0
}

func (vm *VM) track(o bytecode.Obj) bytecode.Obj {
	o.SetAllocNext(vm.allocHead)
	vm.allocHead = o
	return o
}

// --- stack primitives (§3 invariants) --------------------------------------

func (vm *VM) push(v bytecode.Value) { vm.stack[vm.stackTop] = v; vm.stackTop++ }

func (vm *VM) pop() bytecode.Value {
	vm.stackTop--
	return vm.stack[vm.stackTop]
}

func (vm *VM) peek(distance int) bytecode.Value {
	return vm.stack[vm.stackTop-1-distance]
}

func (vm *VM) resetStack() {
	vm.stackTop = 0
	vm.frameCount = 0
	vm.openUpvalues = nil
}

// Interpret compiles and runs source in one VM session (§6).
func Interpret(source string, logger *logrus.Logger) (Result, string, error) {
	vm := New(logger)
	defer vm.Free()
	return vm.interpretWith(source)
}

// interpretWith reuses vm's globals/interner across calls — the shape the
// REPL (§6's CLI surface) needs so top-level `var` persists between lines.
// vm.out is reset first so Output() reflects only this call's print output,
// not the VM's whole lifetime.
func (vm *VM) interpretWith(source string) (Result, string, error) {
	vm.out.Reset()

	fn, err := compiler.Compile(source, vm.interner, vm.logger)
	if err != nil {
		return CompileError, vm.out.String(), err
	}

	closure := &bytecode.Closure{Fn: fn, Upvalues: make([]*bytecode.Upvalue, fn.UpvalueCount)}
	vm.track(closure)
	vm.push(bytecode.ObjVal(closure))
	vm.callClosure(closure, 0)

	res, err := vm.run()
	return res, vm.out.String(), err
}

// Interpret runs source against this VM, preserving globals across calls —
// used by the REPL driver (§6).
func (vm *VM) Interpret(source string) (Result, error) {
	res, _, err := vm.interpretWith(source)
	return res, err
}

func (vm *VM) currentFrame() *frame { return &vm.frames[vm.frameCount-1] }

func (vm *VM) readByte(fr *frame) byte {
	b := fr.closure.Fn.Chunk.Code[fr.ip]
	fr.ip++
	return b
}

func (vm *VM) readU16(fr *frame) int {
	hi := vm.readByte(fr)
	lo := vm.readByte(fr)
	return int(hi)<<8 | int(lo)
}

func (vm *VM) readConstant(fr *frame) bytecode.Value {
	return fr.closure.Fn.Chunk.Constant(vm.readByte(fr))
}

// run is the dispatch loop (§4.F). All operand-byte reads advance ip
// before the opcode's effect is observed, per §4.F's closing note.
func (vm *VM) run() (Result, error) {
	fr := vm.currentFrame()

	for {
		if vm.Trace != nil {
			vm.Trace(fr.closure.Fn, fr.ip)
		}

		op := bytecode.OpCode(vm.readByte(fr))
		switch op {
		case bytecode.OpConstant:
			vm.push(vm.readConstant(fr))

		case bytecode.OpNil:
			vm.push(bytecode.Nil())
		case bytecode.OpTrue:
			vm.push(bytecode.BoolVal(true))
		case bytecode.OpFalse:
			vm.push(bytecode.BoolVal(false))
		case bytecode.OpPop:
			vm.pop()

		case bytecode.OpGetLocal:
			slot := vm.readByte(fr)
			vm.push(vm.stack[fr.slots+int(slot)])
		case bytecode.OpSetLocal:
			slot := vm.readByte(fr)
			vm.stack[fr.slots+int(slot)] = vm.peek(0)

		case bytecode.OpGetGlobal:
			name := vm.readConstant(fr).AsString()
			v, ok := vm.globals[name]
			if !ok {
				return vm.runtimeError(fr, "Undefined variable '%s'.", name.Chars)
			}
			vm.push(v)
		case bytecode.OpDefineGlobal:
			name := vm.readConstant(fr).AsString()
			vm.globals[name] = vm.pop()
		case bytecode.OpSetGlobal:
			name := vm.readConstant(fr).AsString()
			if _, ok := vm.globals[name]; !ok {
				return vm.runtimeError(fr, "Undefined variable '%s'.", name.Chars)
			}
			vm.globals[name] = vm.peek(0)

		case bytecode.OpGetUpvalue:
			slot := vm.readByte(fr)
			vm.push(fr.closure.Upvalues[slot].Get())
		case bytecode.OpSetUpvalue:
			slot := vm.readByte(fr)
			fr.closure.Upvalues[slot].Set(vm.peek(0))

		case bytecode.OpEqual:
			b, a := vm.pop(), vm.pop()
			vm.push(bytecode.BoolVal(bytecode.ValuesEqual(a, b)))
		case bytecode.OpGreater:
			if res, err := vm.numericBinary(fr, func(a, b float64) bytecode.Value { return bytecode.BoolVal(a > b) }); err != nil {
				return res, err
			}
		case bytecode.OpLess:
			if res, err := vm.numericBinary(fr, func(a, b float64) bytecode.Value { return bytecode.BoolVal(a < b) }); err != nil {
				return res, err
			}

		case bytecode.OpAdd:
			if res, err := vm.add(fr); err != nil {
				return res, err
			}
		case bytecode.OpSubtract:
			if res, err := vm.numericBinary(fr, func(a, b float64) bytecode.Value { return bytecode.Number(a - b) }); err != nil {
				return res, err
			}
		case bytecode.OpMultiply:
			if res, err := vm.numericBinary(fr, func(a, b float64) bytecode.Value { return bytecode.Number(a * b) }); err != nil {
				return res, err
			}
		case bytecode.OpDivide:
			if res, err := vm.numericBinary(fr, func(a, b float64) bytecode.Value { return bytecode.Number(a / b) }); err != nil {
				return res, err
			}

		case bytecode.OpNot:
			vm.push(bytecode.BoolVal(bytecode.Falsey(vm.pop())))
		case bytecode.OpNegate:
			if !vm.peek(0).IsNumber() {
				return vm.runtimeError(fr, "Operand must be a number.")
			}
			vm.push(bytecode.Number(-vm.pop().Num))

		case bytecode.OpPrint:
			fmt.Fprintln(&vm.out, bytecode.Print(vm.pop()))

		case bytecode.OpJump:
			offset := vm.readU16(fr)
			fr.ip += offset
		case bytecode.OpJumpIfFalse:
			offset := vm.readU16(fr)
			if bytecode.Falsey(vm.peek(0)) {
				fr.ip += offset
			}
		case bytecode.OpLoop:
			offset := vm.readU16(fr)
			fr.ip -= offset

		case bytecode.OpCall:
			argCount := int(vm.readByte(fr))
			res, err := vm.callValue(vm.peek(argCount), argCount)
			if err != nil {
				return res, err
			}
			fr = vm.currentFrame()

		case bytecode.OpClosure:
			fn := vm.readConstant(fr).AsFunction()
			closure := &bytecode.Closure{Fn: fn, Upvalues: make([]*bytecode.Upvalue, fn.UpvalueCount)}
			vm.track(closure)
			for i := 0; i < fn.UpvalueCount; i++ {
				isLocal := vm.readByte(fr)
				index := vm.readByte(fr)
				if isLocal == 1 {
					closure.Upvalues[i] = vm.captureUpvalue(fr.slots + int(index))
				} else {
					closure.Upvalues[i] = fr.closure.Upvalues[index]
				}
			}
			vm.push(bytecode.ObjVal(closure))

		case bytecode.OpCloseUpvalue:
			vm.closeUpvalues(vm.stackTop - 1)
			vm.pop()

		case bytecode.OpReturn:
			result := vm.pop()
			vm.closeUpvalues(fr.slots)
			vm.frameCount--
			if vm.frameCount == 0 {
				vm.pop() // the script closure itself
				return OK, nil
			}
			vm.stackTop = fr.slots
			vm.push(result)
			fr = vm.currentFrame()

		default:
			return vm.runtimeError(fr, "Unknown opcode %d.", op)
		}
	}
}

func (vm *VM) add(fr *frame) (Result, error) {
	b, a := vm.peek(0), vm.peek(1)
	switch {
	case a.IsNumber() && b.IsNumber():
		vm.pop()
		vm.pop()
		vm.push(bytecode.Number(a.Num + b.Num))
	case a.IsString() && b.IsString():
		vm.pop()
		vm.pop()
		concat := vm.interner.FindOrIntern(a.AsString().Chars + b.AsString().Chars)
		vm.push(bytecode.ObjVal(concat))
	default:
		return vm.runtimeError(fr, "Operands must be two numbers or two strings.")
	}
	return OK, nil
}

func (vm *VM) numericBinary(fr *frame, apply func(a, b float64) bytecode.Value) (Result, error) {
	b, a := vm.peek(0), vm.peek(1)
	if !a.IsNumber() || !b.IsNumber() {
		return vm.runtimeError(fr, "Operands must be numbers.")
	}
	vm.pop()
	vm.pop()
	vm.push(apply(a.Num, b.Num))
	return OK, nil
}

// --- call mechanics (§4.F) --------------------------------------------------

func (vm *VM) callValue(callee bytecode.Value, argCount int) (Result, error) {
	if callee.IsClosure() {
		return vm.callClosure(callee.AsClosure(), argCount)
	}
	if callee.IsNative() {
		return vm.callNative(callee.AsNative(), argCount)
	}
	return vm.runtimeError(vm.currentFrame(), "Can only call functions and classes.")
}

func (vm *VM) callClosure(closure *bytecode.Closure, argCount int) (Result, error) {
	if argCount != closure.Fn.Arity {
		return vm.runtimeError(nil, "Expected %d arguments but got %d.", closure.Fn.Arity, argCount)
	}
	if vm.frameCount >= maxCallDepth {
		return vm.runtimeError(nil, "Stack overflow.")
	}
	vm.frames[vm.frameCount] = frame{
		closure: closure,
		ip:      0,
		slots:   vm.stackTop - argCount - 1,
	}
	vm.frameCount++
	return OK, nil
}

func (vm *VM) callNative(native *bytecode.Native, argCount int) (Result, error) {
	args := vm.stack[vm.stackTop-argCount : vm.stackTop]
	result, err := native.Fn(argCount, args)
	if err != nil {
		return vm.runtimeError(vm.currentFrame(), "%s", err.Error())
	}
	vm.stackTop -= argCount + 1
	vm.push(result)
	return OK, nil
}

// --- errors & diagnostics (§4.F, §7) ---------------------------------------

// RuntimeFailure carries the formatted message plus the frame-by-frame
// trace printed per §4.F. (Named apart from the Result value RuntimeError:
// Go doesn't allow a constant and a type to share one package-scope name.)
type RuntimeFailure struct {
	Message string
	Trace   []string
}

func (e *RuntimeFailure) Error() string {
	if len(e.Trace) == 0 {
		return e.Message
	}
	return e.Message + "\n" + strings.Join(e.Trace, "\n")
}

// runtimeError formats the message, walks frames top-down for the trace,
// resets the stacks, and reports RuntimeError (§4.F, §7). fr may be nil
// when the error originates before any frame is pushed (e.g. arity
// mismatch on the very first call). The message and trace go only into the
// returned *RuntimeFailure — never into vm.out, which callers treat as
// program print output, not a diagnostics stream.
func (vm *VM) runtimeError(fr *frame, format string, args ...interface{}) (Result, error) {
	message := fmt.Sprintf(format, args...)

	trace := make([]string, 0, vm.frameCount)
	for i := vm.frameCount - 1; i >= 0; i-- {
		f := &vm.frames[i]
		fn := f.closure.Fn
		line := fn.Chunk.LineAt(f.ip - 1)
		name := "script"
		if fn.Name != nil {
			name = fn.Name.Chars + "()"
		}
		traceLine := fmt.Sprintf("[line %d] in %s", line, name)
		trace = append(trace, traceLine)
	}

	vm.resetStack()
	if vm.logger != nil {
		vm.logger.WithField("message", message).Debug("runtime error")
	}
	return RuntimeError, &RuntimeFailure{Message: message, Trace: trace}
}
