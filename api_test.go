package luavm

import (
	"testing"

	"github.com/continuable/luavm/internal/asm"
	"github.com/continuable/luavm/internal/proto"
	"github.com/continuable/luavm/internal/value"
	"github.com/continuable/luavm/internal/vm"
)

// buildArithmetic assembles: return 1 + 2 * 3
func buildArithmetic() *Prototype {
	b := asm.New("arith").MaxStack(3)
	k1 := b.K(value.Int(1))
	k2 := b.K(value.Int(2))
	k3 := b.K(value.Int(3))
	b.ABx(proto.OP_LOADK, 0, k1)
	b.ABx(proto.OP_LOADK, 1, k2)
	b.ABx(proto.OP_LOADK, 2, k3)
	b.ABC(proto.OP_MUL, 1, 1, 2)
	b.ABC(proto.OP_ADD, 0, 0, 1)
	b.ABC(proto.OP_RETURN, 0, 2, 0)
	return b.Build()
}

func TestBasicArithmeticReturnsExpectedValue(t *testing.T) {
	engine := DefaultEngine()
	cl := engine.Load(buildArithmetic(), NewGlobals())

	res, err := Call(cl)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := res.First(); !got.IsInt() || got.I != 7 {
		t.Fatalf("expected 7, got %v", got)
	}
}

// buildCounter assembles a closure factory: the outer chunk seeds a
// local at 0 and returns a nested closure that captures it as an
// upvalue, increments it by one, writes it back, and returns the new
// count.
func buildCounter() *Prototype {
	child := asm.New("counter").MaxStack(2)
	k1 := child.K(value.Int(1))
	child.ABC(proto.OP_GETUPVAL, 0, 0, 0)
	child.ABx(proto.OP_LOADK, 1, k1)
	child.ABC(proto.OP_ADD, 0, 0, 1)
	child.ABC(proto.OP_SETUPVAL, 0, 0, 0)
	child.ABC(proto.OP_RETURN, 0, 2, 0)
	child.Upvalue("count", true, 0)
	childProto := child.Build()

	outer := asm.New("make_counter").MaxStack(2)
	k0 := outer.K(value.Int(0))
	outer.ABx(proto.OP_LOADK, 0, k0)
	idx := outer.Child(childProto)
	outer.ABx(proto.OP_CLOSURE, 1, idx)
	outer.ABC(proto.OP_RETURN, 1, 2, 0)
	return outer.Build()
}

func TestClosureUpvalueIsSharedAcrossCalls(t *testing.T) {
	engine := DefaultEngine()
	factory := engine.Load(buildCounter(), NewGlobals())

	res, err := Call(factory)
	if err != nil {
		t.Fatalf("unexpected error building counter: %v", err)
	}
	counter, ok := res.First().Fn.(*vm.Closure)
	if !ok {
		t.Fatalf("expected a closure value, got %v", res.First())
	}

	first, err := Call(counter)
	if err != nil {
		t.Fatalf("unexpected error on first call: %v", err)
	}
	if got := first.First(); !got.IsInt() || got.I != 1 {
		t.Fatalf("expected 1, got %v", got)
	}

	second, err := Call(counter)
	if err != nil {
		t.Fatalf("unexpected error on second call: %v", err)
	}
	if got := second.First(); !got.IsInt() || got.I != 2 {
		t.Fatalf("expected 2, got %v (upvalue not shared across calls)", got)
	}
}

// buildSuspendingScript assembles: return suspend_op(5) + 1
func buildSuspendingScript() *Prototype {
	b := asm.New("suspend_script").MaxStack(3)
	name := b.K(value.Str("suspend_op"))
	arg := b.K(value.Int(5))
	one := b.K(value.Int(1))
	b.ABC(proto.OP_GETTABUP, 0, 0, asm.RK(name))
	b.ABx(proto.OP_LOADK, 1, arg)
	b.ABC(proto.OP_CALL, 0, 2, 2)
	b.ABx(proto.OP_LOADK, 1, one)
	b.ABC(proto.OP_ADD, 0, 0, 1)
	b.ABC(proto.OP_RETURN, 0, 2, 0)
	return b.Build()
}

func TestSuspendSerializeAndResumeAcrossFreshClosure(t *testing.T) {
	engine := DefaultEngine()
	globals := NewGlobals()
	BindSuspendingHostFunc(globals, "suspend_op", func(stack *ExecutionStack, args Varargs) (Varargs, bool, error) {
		return Varargs{}, true, nil
	})
	cl := engine.Load(buildSuspendingScript(), globals)

	_, yielded, err := SuspendableCall(cl)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !yielded {
		t.Fatalf("expected the call to suspend at the host boundary")
	}

	data, err := SerializeExecutionContext(cl)
	if err != nil {
		t.Fatalf("serialize failed: %v", err)
	}

	restored, err := DeserializeExecutionContext(data)
	if err != nil {
		t.Fatalf("deserialize failed: %v", err)
	}

	res, yielded, err := Resume(restored, value.Int(100))
	if err != nil {
		t.Fatalf("unexpected error resuming: %v", err)
	}
	if yielded {
		t.Fatalf("did not expect a second suspension")
	}
	if got := res.First(); !got.IsInt() || got.I != 101 {
		t.Fatalf("expected 101 (spliced 100 + 1), got %v", got)
	}
}

// buildNestedSuspendingScript assembles a two-level call chain: the outer
// chunk calls a nested closure (non-tail, via OP_CALL) whose own body is
// buildSuspendingScript's "return suspend_op(5) + 1", then adds 10 to
// whatever that nested call eventually returns. This mirrors the
// already-two-levels-deep shape a method call reaches through its own
// wrapper before the host boundary suspends.
func buildNestedSuspendingScript() *Prototype {
	inner := asm.New("inner_suspend").MaxStack(3)
	name := inner.K(value.Str("suspend_op"))
	arg := inner.K(value.Int(5))
	one := inner.K(value.Int(1))
	inner.ABC(proto.OP_GETTABUP, 0, 0, asm.RK(name))
	inner.ABx(proto.OP_LOADK, 1, arg)
	inner.ABC(proto.OP_CALL, 0, 2, 2)
	inner.ABx(proto.OP_LOADK, 1, one)
	inner.ABC(proto.OP_ADD, 0, 0, 1)
	inner.ABC(proto.OP_RETURN, 0, 2, 0)
	innerProto := inner.Build()

	outer := asm.New("outer_wrapper").MaxStack(2)
	idx := outer.Child(innerProto)
	ten := outer.K(value.Int(10))
	outer.ABx(proto.OP_CLOSURE, 0, idx)
	outer.ABC(proto.OP_CALL, 0, 1, 2)
	outer.ABx(proto.OP_LOADK, 1, ten)
	outer.ABC(proto.OP_ADD, 0, 0, 1)
	outer.ABC(proto.OP_RETURN, 0, 2, 0)
	return outer.Build()
}

func TestNestedCallSuspendSerializeAndResume(t *testing.T) {
	engine := DefaultEngine()
	globals := NewGlobals()
	BindSuspendingHostFunc(globals, "suspend_op", func(stack *ExecutionStack, args Varargs) (Varargs, bool, error) {
		return Varargs{}, true, nil
	})
	cl := engine.Load(buildNestedSuspendingScript(), globals)

	_, yielded, err := SuspendableCall(cl)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !yielded {
		t.Fatalf("expected the call to suspend at the host boundary two levels deep")
	}

	data, err := SerializeExecutionContext(cl)
	if err != nil {
		t.Fatalf("serialize failed: %v", err)
	}

	restored, err := DeserializeExecutionContext(data)
	if err != nil {
		t.Fatalf("deserialize failed: %v", err)
	}

	res, yielded, err := Resume(restored, value.Int(100))
	if err != nil {
		t.Fatalf("unexpected error resuming: %v", err)
	}
	if yielded {
		t.Fatalf("did not expect a second suspension")
	}
	// inner: 100 + 1 = 101, outer: 101 + 10 = 111. Getting 111 means the
	// splice landed at the real suspended depth (two levels in); getting
	// anything else (in particular a call-a-nil-value error) means
	// CurrentLevel was clobbered on the way back out of the outer frame.
	if got := res.First(); !got.IsInt() || got.I != 111 {
		t.Fatalf("expected 111 (nested splice of 100 through both levels), got %v", got)
	}
}

func TestStopUnwindsWithoutFurtherSideEffects(t *testing.T) {
	engine := DefaultEngine()
	globals := NewGlobals()
	BindSuspendingHostFunc(globals, "suspend_op", func(stack *ExecutionStack, args Varargs) (Varargs, bool, error) {
		return Varargs{}, true, nil
	})
	cl := engine.Load(buildSuspendingScript(), globals)

	if _, yielded, err := SuspendableCall(cl); err != nil || !yielded {
		t.Fatalf("expected a clean suspend, got yielded=%v err=%v", yielded, err)
	}

	Stop(cl)

	res, yielded, err := Resume(cl, value.Int(999))
	if err != nil {
		t.Fatalf("unexpected error after stop: %v", err)
	}
	if yielded {
		t.Fatalf("stop should not leave the chain suspended")
	}
	if res.Len() != 0 {
		t.Fatalf("expected no return values after a stopped chain unwinds, got %v", res.Slice())
	}
}

// outerTailcallShell finishes assembling the outer prototype once its
// inner child is known, so the two constructions share one Builder.
func outerTailcallShell(b *asm.Builder) *Prototype {
	// R0 will hold the inner closure, loaded via OP_CLOSURE at index 0.
	b.ABx(proto.OP_CLOSURE, 0, 0)
	b.ABC(proto.OP_TAILCALL, 0, 1, 0)
	b.ABC(proto.OP_RETURN, 0, 0, 0)
	return b.Build()
}

func TestTailcallTrampolineResolvesToInnerReturn(t *testing.T) {
	inner := asm.New("inner").MaxStack(1)
	k42 := inner.K(value.Int(42))
	inner.ABx(proto.OP_LOADK, 0, k42)
	inner.ABC(proto.OP_RETURN, 0, 2, 0)
	innerProto := inner.Build()

	outer := asm.New("outer").MaxStack(1)
	outer.Child(innerProto)
	outerProto := outerTailcallShell(outer)

	engine := DefaultEngine()
	cl := engine.Load(outerProto, NewGlobals())

	res, err := Call(cl)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := res.First(); !got.IsInt() || got.I != 42 {
		t.Fatalf("expected 42 via tailcall trampoline, got %v", got)
	}
}
