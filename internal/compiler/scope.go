package compiler

const (
	maxLocals   = 256
	maxUpvalues = 256
)

// local is one entry of a funcCompiler's locals stack (§4.E). depth == -1
// means "declared but not yet initialized" — reading it in that state is a
// compile error ("read in its own initializer").
type local struct {
	name       string
	depth      int
	isCaptured bool
}

// upvalRef is one entry of a funcCompiler's upvalues table (§4.E): index is
// either a slot in the immediately enclosing function's locals (isLocal ==
// true) or an index into the enclosing function's own upvalue table
// (isLocal == false).
type upvalRef struct {
	index   byte
	isLocal bool
}
