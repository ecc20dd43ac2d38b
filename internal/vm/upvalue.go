package vm

import (
	"unsafe"

	"github.com/ashlang/ash/internal/bytecode"
)

// addr gives a comparable ordering key for a slot pointer into vm.stack,
// used to keep the open-upvalue list sorted by descending stack address
// without needing the numeric slot index itself.
func addr(v *bytecode.Value) uintptr { return uintptr(unsafe.Pointer(v)) }

// captureUpvalue returns an open upvalue pointing at vm.stack[slot],
// reusing an existing one if some other closure already captured that
// exact slot (closures that share a captured variable must observe each
// other's writes). The open list stays sorted by descending stack address
// so closeUpvalues can stop as soon as it passes the target slot.
func (vm *VM) captureUpvalue(slot int) *bytecode.Upvalue {
	target := &vm.stack[slot]
	var prev *bytecode.Upvalue
	cur := vm.openUpvalues

	for cur != nil && addr(cur.Location) > addr(target) {
		prev = cur
		cur = cur.NextOpen
	}
	if cur != nil && cur.Location == target {
		return cur
	}

	created := &bytecode.Upvalue{Location: target}
	vm.track(created)
	created.NextOpen = cur
	if prev == nil {
		vm.openUpvalues = created
	} else {
		prev.NextOpen = created
	}
	return created
}

// closeUpvalues closes every open upvalue captured at or above lastSlot,
// copying its value off the stack before that slot's storage is reused or
// discarded (OP_CLOSE_UPVALUE and OP_RETURN).
func (vm *VM) closeUpvalues(lastSlot int) {
	boundary := addr(&vm.stack[lastSlot])
	for vm.openUpvalues != nil && addr(vm.openUpvalues.Location) >= boundary {
		u := vm.openUpvalues
		u.Close()
		vm.openUpvalues = u.NextOpen
	}
}
