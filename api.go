// Package ash is the embedding façade over internal/vm (§6): InitVM/FreeVM/
// Interpret plus a configurable VM type a host can load natives into before
// running, generalized from the teacher's api.go VM wrapper down to this
// language's flat value surface (no arrays/objects/Go-struct marshaling —
// that surface doesn't exist here).
package ash

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ashlang/ash/internal/bytecode"
	"github.com/ashlang/ash/internal/vm"
)

// Result mirrors §6's tri-state outcome.
type Result = vm.Result

const (
	OK           = vm.OK
	CompileError = vm.CompileError
	RuntimeError = vm.RuntimeError
)

// Interpret runs source in a fresh, one-shot VM (InitVM, run, FreeVM in one
// call, §6's simplest embedding path).
func Interpret(source string) (Result, string, error) {
	return vm.Interpret(source, nil)
}

// VM is a long-lived embedding session: its globals and string table
// persist across calls to Run, the way a host REPL needs `var` declarations
// from one line to be visible on the next (grounded on the teacher's api.VM,
// narrowed to this language's natives-only extension point).
type VM struct {
	mu     sync.Mutex
	inner  *vm.VM
	logger *logrus.Logger
}

// NewVM constructs a VM (InitVM, §6). logger may be nil.
func NewVM(logger *logrus.Logger) *VM {
	return &VM{inner: vm.New(logger), logger: logger}
}

// Close releases the VM's heap state (FreeVM, §6). A closed VM must not be
// reused.
func (v *VM) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.inner.Free()
}

// Run compiles and executes source against this VM's persistent globals,
// returning everything written via `print` during this call.
func (v *VM) Run(source string) (Result, string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	res, err := v.inner.Interpret(source)
	return res, v.inner.Output(), err
}

// DefineNative registers a host function as a global callable from script
// code, the extension point the teacher's builtin-plugin registry served
// (internal/builtins/*/plugin.go), generalized here to a single call instead
// of a discovery-by-side-effect-import registry, since this language has no
// plugin surface to discover.
func (v *VM) DefineNative(name string, fn NativeFunc) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.inner.DefineNative(name, func(argCount int, args []bytecode.Value) (bytecode.Value, error) {
		return fn(args)
	})
}

// NativeFunc is a host callable exposed to script code via DefineNative. It
// receives exactly the arguments the script call passed.
type NativeFunc func(args []bytecode.Value) (bytecode.Value, error)

// RuntimeErr gives the host access to the runtime error's per-frame trace
// without depending on internal/vm directly (the teacher's
// convertRuntimeError boundary, generalized).
type RuntimeErr = vm.RuntimeFailure
