package vm

import (
	"fmt"
	"time"

	"github.com/ashlang/ash/internal/bytecode"
)

// DefineNative installs a host function as a global, the same shape the
// teacher's plugin registry used for wiring builtins into the global
// namespace, generalized here to this language's single flat native table
// (§6).
func (vm *VM) DefineNative(name string, fn bytecode.NativeFunc) {
	nameObj := vm.interner.FindOrIntern(name)
	native := &bytecode.Native{Name: nameObj, Fn: fn}
	vm.track(native)
	vm.globals[nameObj] = bytecode.ObjVal(native)
}

// RegisterDefaults installs the natives every VM session gets for free
// (§6): clock() for benchmarking scripts end to end.
func RegisterDefaults(vm *VM) {
	vm.DefineNative("clock", nativeClock)
}

// processStart is clock()'s epoch. time.Since reads Go's monotonic clock, so
// successive clock() results never decrease.
var processStart = time.Now()

func nativeClock(argCount int, args []bytecode.Value) (bytecode.Value, error) {
	if argCount != 0 {
		return bytecode.Nil(), fmt.Errorf("clock() takes no arguments")
	}
	return bytecode.Number(time.Since(processStart).Seconds()), nil
}
