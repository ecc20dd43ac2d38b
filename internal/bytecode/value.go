package bytecode

import "fmt"

// Kind tags the variant carried by a Value.
type Kind uint8

const (
	KindNil Kind = iota
	KindBool
	KindNumber
	KindObj
)

// Value is the VM's tagged sum type (§3): nil, bool, number, or a heap
// object reference. It is small and passed by copy.
type Value struct {
	Kind Kind
	Num  float64
	Bool bool
	Obj  Obj
}

// Obj is implemented by every heap object kind (String, Function, Native,
// Closure, Upvalue). Each concrete type embeds Header to thread the
// allocation list used for whole-VM teardown; AllocNext/SetAllocNext give
// the VM (a different package) access to that link without exposing the
// embedded field itself.
type Obj interface {
	objKind() ObjKind
	AllocNext() Obj
	SetAllocNext(Obj)
}

// ObjKind distinguishes heap object variants for printing/equality.
type ObjKind uint8

const (
	ObjString ObjKind = iota
	ObjFunction
	ObjNative
	ObjClosure
	ObjUpvalue
)

// Header threads every heap object into the VM's singly-linked allocation
// list so teardown can release them wholesale (§3: objects are "freed
// wholesale at VM teardown"). There is no tracing GC in this core.
type Header struct {
	next Obj
}

func (h *Header) AllocNext() Obj      { return h.next }
func (h *Header) SetAllocNext(o Obj) { h.next = o }

func Nil() Value            { return Value{Kind: KindNil} }
func BoolVal(b bool) Value  { return Value{Kind: KindBool, Bool: b} }
func Number(n float64) Value { return Value{Kind: KindNumber, Num: n} }
func ObjVal(o Obj) Value    { return Value{Kind: KindObj, Obj: o} }

func (v Value) IsNil() bool    { return v.Kind == KindNil }
func (v Value) IsBool() bool   { return v.Kind == KindBool }
func (v Value) IsNumber() bool { return v.Kind == KindNumber }
func (v Value) IsObj() bool    { return v.Kind == KindObj }

func (v Value) isObjKind(k ObjKind) bool {
	return v.Kind == KindObj && v.Obj != nil && v.Obj.objKind() == k
}

func (v Value) IsString() bool   { return v.isObjKind(ObjString) }
func (v Value) IsFunction() bool { return v.isObjKind(ObjFunction) }
func (v Value) IsNative() bool   { return v.isObjKind(ObjNative) }
func (v Value) IsClosure() bool  { return v.isObjKind(ObjClosure) }

// AsString returns the underlying *String. Unspecified if v is not a string.
func (v Value) AsString() *String { s, _ := v.Obj.(*String); return s }

// AsClosure returns the underlying *Closure. Unspecified if v is not a closure.
func (v Value) AsClosure() *Closure { c, _ := v.Obj.(*Closure); return c }

// AsFunction returns the underlying *Function. Unspecified if v is not a function.
func (v Value) AsFunction() *Function { f, _ := v.Obj.(*Function); return f }

// AsNative returns the underlying *Native. Unspecified if v is not a native.
func (v Value) AsNative() *Native { n, _ := v.Obj.(*Native); return n }

// Falsey reports whether v belongs to the canonical falsey set {nil, false}.
// Every other value, including 0 and "", is truthy.
func Falsey(v Value) bool {
	return v.IsNil() || (v.IsBool() && !v.Bool)
}

// ValuesEqual implements value equality per §3: nil==nil; bool/number
// compared by payload (IEEE-754, so NaN != NaN); object equality is
// identity, except that interned strings make string equality reduce to
// identity too (two equal strings are the same *String).
func ValuesEqual(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNil:
		return true
	case KindBool:
		return a.Bool == b.Bool
	case KindNumber:
		return a.Num == b.Num
	case KindObj:
		return a.Obj == b.Obj
	default:
		return false
	}
}

// Print renders v using the language's bit-exact surface formatting (§6):
// integral numbers print without a trailing ".0", booleans as true/false,
// nil as nil, strings as raw bytes, and other objects as <fn name>,
// <native fn>, or <closure>.
func Print(v Value) string {
	switch v.Kind {
	case KindNil:
		return "nil"
	case KindBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case KindNumber:
		return formatNumber(v.Num)
	case KindObj:
		return printObj(v.Obj)
	default:
		return "<invalid>"
	}
}

func formatNumber(n float64) string {
	if n == float64(int64(n)) {
		return fmt.Sprintf("%d", int64(n))
	}
	return fmt.Sprintf("%g", n)
}

func printObj(o Obj) string {
	switch obj := o.(type) {
	case *String:
		return obj.Chars
	case *Function:
		if obj.Name == nil {
			return "<script>"
		}
		return fmt.Sprintf("<fn %s>", obj.Name.Chars)
	case *Native:
		return "<native fn>"
	case *Closure:
		return "<closure>"
	default:
		return "<obj>"
	}
}
