package vm

import (
	"testing"

	"github.com/continuable/luavm/internal/asm"
	"github.com/continuable/luavm/internal/proto"
	"github.com/continuable/luavm/internal/value"
)

func TestUpvalueCloseIsIdempotent(t *testing.T) {
	stack := NewExecutionStack()
	fr := &Frame{ID: 0, Regs: []value.Value{value.Int(7)}}
	stack.Frames = append(stack.Frames, fr)

	uv := stack.findOrMakeOpenUpvalue(0, 0)
	uv.Close(stack)
	fr.Regs[0] = value.Int(99) // mutate after close; must not be observed

	uv.Close(stack) // second close must be a no-op

	if got := uv.Get(stack); got.I != 7 {
		t.Fatalf("expected closed value 7, got %v", got)
	}
}

func TestGetTableChasesIndexMetamethod(t *testing.T) {
	base := value.NewTable()
	fallback := value.NewTable()
	fallback.RawSet(value.Str("greeting"), value.Str("hi"))
	meta := value.NewTable()
	meta.RawSet(value.Str("__index"), value.TableVal(fallback))
	base.Meta = meta

	v, err := GetTable(nil, value.TableVal(base), value.Str("greeting"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v.IsString() || v.S != "hi" {
		t.Fatalf("expected 'hi' via __index chase, got %v", v)
	}
}

func TestSyncCallCannotSuspend(t *testing.T) {
	host := &SuspendingHostFunc{
		Name: "pause",
		Fn: func(stack *ExecutionStack, args value.Varargs) (value.Varargs, bool, error) {
			return value.Varargs{}, true, nil
		},
	}
	globals := value.TableVal(value.NewTable())
	globals.T.RawSet(value.Str("pause"), value.FuncVal(host))

	b := asm.New("calls_pause").MaxStack(2)
	name := b.K(value.Str("pause"))
	b.ABC(proto.OP_GETTABUP, 0, 0, asm.RK(name))
	b.ABC(proto.OP_CALL, 0, 1, 1)
	b.ABC(proto.OP_RETURN, 0, 1, 0)
	cl := NewClosure(b.Build(), globals)

	_, err := cl.Invoke(value.Varargs{})
	if err == nil {
		t.Fatalf("expected an error: a suspending host call cannot suspend on the sync path")
	}
	if _, ok := err.(*HostException); !ok {
		t.Fatalf("expected a *HostException, got %T: %v", err, err)
	}
}

func TestNilCalleeRoutesThroughSyncErrorEvenWhenSuspendable(t *testing.T) {
	globals := value.TableVal(value.NewTable())
	b := asm.New("calls_nil").MaxStack(2)
	name := b.K(value.Str("missing"))
	b.ABC(proto.OP_GETTABUP, 0, 0, asm.RK(name))
	b.ABC(proto.OP_CALL, 0, 1, 1)
	b.ABC(proto.OP_RETURN, 0, 1, 0)
	cl := NewClosure(b.Build(), globals)

	_, yielded, err := cl.SuspendableCall(value.Varargs{})
	if yielded {
		t.Fatalf("a nil callee must never suspend the runtime")
	}
	if _, ok := err.(*LuaError); !ok {
		t.Fatalf("expected a *LuaError, got %T: %v", err, err)
	}
}
