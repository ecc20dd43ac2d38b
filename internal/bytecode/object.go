package bytecode

// String is an immutable interned byte string with a precomputed FNV-1a
// hash. Every string Value refers into the intern table; two equal strings
// are the same object (§3).
type String struct {
	Header
	Chars string
	Hash  uint32
}

func (*String) objKind() ObjKind { return ObjString }

// Function is a compiled, named-or-anonymous callable: arity, declared
// upvalue count, and the Chunk holding its bytecode. Name is nil for the
// top-level script function.
type Function struct {
	Header
	Arity        int
	UpvalueCount int
	Name         *String
	Chunk        *Chunk
}

func (*Function) objKind() ObjKind { return ObjFunction }

// NativeFunc is a host-provided callable. It receives the argument count
// and a slice holding exactly those arguments, and returns one Value.
type NativeFunc func(argCount int, args []Value) (Value, error)

// Native wraps a host callable exposed to script code.
type Native struct {
	Header
	Name *String
	Fn   NativeFunc
}

func (*Native) objKind() ObjKind { return ObjNative }

// Upvalue is a capture cell: open while Location points into a live VM
// stack slot, closed once Location is nil and Closed holds the owned
// value. NextOpen threads the VM's open-upvalue list, kept in descending
// order by stack address while open.
type Upvalue struct {
	Header
	Location *Value
	Closed   Value
	NextOpen *Upvalue
}

func (*Upvalue) objKind() ObjKind { return ObjUpvalue }

func (u *Upvalue) Get() Value {
	if u.Location != nil {
		return *u.Location
	}
	return u.Closed
}

func (u *Upvalue) Set(v Value) {
	if u.Location != nil {
		*u.Location = v
		return
	}
	u.Closed = v
}

// Close lifts the upvalue off the stack, copying the current value into
// Closed and clearing Location. Idempotent.
func (u *Upvalue) Close() {
	if u.Location == nil {
		return
	}
	u.Closed = *u.Location
	u.Location = nil
}

// Closure pairs a Function with a fixed-length array of captured upvalues,
// length equal to the Function's declared upvalue count, populated once at
// OP_CLOSURE time.
type Closure struct {
	Header
	Fn       *Function
	Upvalues []*Upvalue
}

func (*Closure) objKind() ObjKind { return ObjClosure }
