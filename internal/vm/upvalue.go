package vm

import "github.com/continuable/luavm/internal/value"

// UpValue is a mutable slot shared among closures: open while it still
// aliases a live register in a pushed Frame, closed once it owns its
// value outright.
//
// Rather than a raw pointer into a frame's register slice (which cannot
// outlive a process and cannot be walked by a general-purpose graph
// serializer — spec section 9's design note), an open UpValue is the pair
// (frameID, slot); it is resolved through the owning ExecutionStack at
// every Get/Set/Close. This is the teacher's upvalue.go shape
// (location/closed fields, get/set/close methods) adapted exactly as
// spec section 9 prescribes.
type UpValue struct {
	open    bool
	frameID int
	slot    int
	closed  value.Value
}

func newOpenUpvalue(frameID, slot int) *UpValue {
	return &UpValue{open: true, frameID: frameID, slot: slot}
}

// IsOpen reports whether the cell still aliases a live register.
func (uv *UpValue) IsOpen() bool { return uv != nil && uv.open }

// FrameID and Slot expose the back-reference pair for snapshot encoding.
func (uv *UpValue) FrameID() int { return uv.frameID }
func (uv *UpValue) Slot() int    { return uv.slot }

// Get reads the current value, resolving through stack if still open.
func (uv *UpValue) Get(stack *ExecutionStack) value.Value {
	if uv == nil {
		return value.Nil()
	}
	if !uv.open {
		return uv.closed
	}
	if fr := stack.FrameByID(uv.frameID); fr != nil && uv.slot < len(fr.Regs) {
		return fr.Regs[uv.slot]
	}
	return value.Nil()
}

// Set writes through to the live register if still open, else to the
// closed storage.
func (uv *UpValue) Set(stack *ExecutionStack, v value.Value) {
	if uv == nil {
		return
	}
	if !uv.open {
		uv.closed = v
		return
	}
	if fr := stack.FrameByID(uv.frameID); fr != nil && uv.slot < len(fr.Regs) {
		fr.Regs[uv.slot] = v
	}
}

// Close snaps the cell from open to closed, copying the current value out
// of its frame. Idempotent: closing an already-closed cell is a no-op,
// matching spec section 8's law.
func (uv *UpValue) Close(stack *ExecutionStack) {
	if uv == nil || !uv.open {
		return
	}
	if fr := stack.FrameByID(uv.frameID); fr != nil && uv.slot < len(fr.Regs) {
		uv.closed = fr.Regs[uv.slot]
	}
	uv.open = false
}
