package vm

import "github.com/continuable/luavm/internal/value"

// HostFunc is a host-provided callable that never suspends the runtime
// (spec section 6, case (a)). It can be called from either the
// synchronous or the suspendable dispatch loop with identical effect.
type HostFunc struct {
	Name string
	Fn   func(args value.Varargs) (value.Varargs, error)
}

func (h *HostFunc) FuncID() string { return "host:" + h.Name }

// SuspendingHostFunc is a host-provided callable that may pause the
// cooperative runtime (spec section 6, case (b)). Fn is invoked exactly
// once per call site: if it reports suspended, the engine unwinds every
// Go frame back to the caller of Call/SuspendableCall without producing
// a value, and the eventual resumed value is supplied out of band via
// ExecutionStack.ReturnValue rather than by calling Fn a second time.
//
// Fn receives the stack so it can, if it chooses, read or set
// ReturnValue itself — but ordinarily the host sets it later, after
// computing the deferred result, and then calls Resume.
type SuspendingHostFunc struct {
	Name string
	Fn   func(stack *ExecutionStack, args value.Varargs) (result value.Varargs, suspended bool, err error)
}

func (h *SuspendingHostFunc) FuncID() string { return "suspending-host:" + h.Name }
