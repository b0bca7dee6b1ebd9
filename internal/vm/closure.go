package vm

import (
	"github.com/continuable/luavm/internal/proto"
	"github.com/continuable/luavm/internal/value"
)

// Closure is a live function value: an immutable Prototype closed over a
// globals table and a set of captured upvalues, plus — only for a
// closure that is (or might become) the root of a suspendable call chain
// — the ExecutionStack it is currently running on. Grounded on the
// teacher's Function type (internal/vm/value.go) and its pushFrame/Run
// pairing, generalized from a single VM-owned call stack to the
// per-chain ExecutionStack spec section 5 describes.
type Closure struct {
	Proto          *proto.Prototype
	Env            value.Value // the globals table (spec section 3: not a captured upvalue)
	Upvalues       []*UpValue
	ExecutionStack *ExecutionStack
	Name           string

	// MaxCallDepth and MaxRegisters, when positive, seed the limits of any
	// ExecutionStack this closure creates (internal/config.EngineConfig,
	// set by Engine.Load) — zero means unbounded.
	MaxCallDepth int
	MaxRegisters int

	// ErrorHook, when set, seeds the ExecutionStack.ErrorHook of any stack
	// this closure creates (spec section 7).
	ErrorHook *HostFunc
}

// NewClosure builds a fresh closure over env with no captured upvalues —
// the shape OP_CLOSURE instantiates for the entry chunk, and what a host
// driver uses to wrap a freshly loaded Prototype (spec section 4.4).
func NewClosure(p *proto.Prototype, env value.Value) *Closure {
	return &Closure{Proto: p, Env: env, Name: p.Source}
}

func (c *Closure) FuncID() string {
	if c.Name != "" {
		return "closure:" + c.Name
	}
	return "closure:" + c.Proto.Source
}

// --- synchronous entry points (spec section 4.4, non-suspending path) ---

func (c *Closure) Call0() (value.Varargs, error) { return c.Invoke(value.Varargs{}) }
func (c *Closure) Call1(a value.Value) (value.Varargs, error) {
	return c.Invoke(value.Args(a))
}
func (c *Closure) Call2(a, b value.Value) (value.Varargs, error) {
	return c.Invoke(value.Args(a, b))
}
func (c *Closure) Call3(a, b, cc value.Value) (value.Varargs, error) {
	return c.Invoke(value.Args(a, b, cc))
}

// Invoke is the general synchronous call entry point. It always runs on
// a fresh, throwaway ExecutionStack: the synchronous loop never
// suspends, so there is nothing to persist and no need to share the
// chain-wide bookkeeping a suspendable call requires.
func (c *Closure) Invoke(args value.Varargs) (value.Varargs, error) {
	stack := NewExecutionStack()
	stack.MaxCallDepth = c.MaxCallDepth
	stack.MaxRegisters = c.MaxRegisters
	stack.ErrorHook = c.ErrorHook
	return c.OnInvoke(stack, 0, args)
}

// OnInvoke runs this closure at the given stack level and resolves any
// tail-call trampoline the run produces before returning, per spec
// section 4.4's "on_invoke" contract.
func (c *Closure) OnInvoke(stack *ExecutionStack, level int, args value.Varargs) (value.Varargs, error) {
	cur, curArgs := c, args
	for {
		fr := stack.replaceFrame(level, cur, curArgs)
		res, _, err := runLoop(stack, fr, false)
		if err != nil {
			return value.Varargs{}, err
		}
		if res.Tail == nil {
			stack.popFrame()
			return res.Values, nil
		}
		switch callee := res.Tail.Callee.(type) {
		case *Closure:
			cur, curArgs = callee, res.Tail.Args
			continue
		case *HostFunc:
			return callee.Fn(res.Tail.Args)
		case *SuspendingHostFunc:
			vs, suspended, err := callee.Fn(nil, res.Tail.Args)
			if suspended {
				return value.Varargs{}, newHostException(callee.Name, errCannotSuspendHere)
			}
			return vs, err
		default:
			return value.Varargs{}, &LuaError{Message: "attempt to call a non-function value"}
		}
	}
}

// --- suspendable entry points (spec section 4.4/4.6/4.7) ---

// restoreOrCreateStack returns the closure's shared ExecutionStack,
// creating one on first use — either the closure was just built fresh by
// a host driver (no stack yet), or it was just populated by
// DeserializeExecutionContext (stack already set).
func (c *Closure) restoreOrCreateStack() *ExecutionStack {
	if c.ExecutionStack == nil {
		stack := NewExecutionStack()
		stack.MaxCallDepth = c.MaxCallDepth
		stack.MaxRegisters = c.MaxRegisters
		stack.ErrorHook = c.ErrorHook
		c.ExecutionStack = stack
	}
	return c.ExecutionStack
}

// SuspendableCall is the root entry point a host driver uses both for
// the very first invocation of a resumable chain and for every resume
// thereafter: on a fresh closure it starts a new chain at level 0; on a
// closure just populated by deserialization, it re-enters the saved
// frame stack exactly where it left off.
func (c *Closure) SuspendableCall(args value.Varargs) (value.Varargs, bool, error) {
	stack := c.restoreOrCreateStack()
	return c.OnSuspendableInvoke(stack, stack.CurrentLevel, args)
}

// Resume supplies the deferred result of the host call that suspended
// this chain and re-enters it. The splice in the CALL opcode handler —
// not a fresh invocation of the host callable — is what actually
// delivers rv to the waiting script frame.
func (c *Closure) Resume(rv value.Value) (value.Varargs, bool, error) {
	stack := c.restoreOrCreateStack()
	stack.ReturnValue = rv
	if stack.HostLevel == noHostLevel {
		// A chain that suspended in this process and was never serialized
		// gets the same level swap Serialize performs, so the splice fires
		// at the suspended call site when re-entered from the root frame.
		stack.HostLevel = stack.CurrentLevel
		stack.CurrentLevel = 0
	}
	return c.OnSuspendableInvoke(stack, stack.CurrentLevel, value.Varargs{})
}

// OnSuspendableInvoke runs this closure at the given stack level,
// resolving tail-call trampolines the same way OnInvoke does, but
// returning early with yielded=true the moment any nested call
// suspends instead of completing it.
func (c *Closure) OnSuspendableInvoke(stack *ExecutionStack, level int, args value.Varargs) (value.Varargs, bool, error) {
	cur, curArgs := c, args
	tailHop := false
	for {
		cur.ExecutionStack = stack
		var fr *Frame
		if tailHop {
			fr = stack.replaceFrame(level, cur, curArgs)
		} else {
			fr = stack.pushFrame(level, cur, curArgs)
		}
		res, yielded, err := runLoop(stack, fr, true)
		if err != nil || yielded {
			return value.Varargs{}, yielded, err
		}
		if res.Tail == nil {
			stack.popFrame()
			return res.Values, false, nil
		}
		switch callee := res.Tail.Callee.(type) {
		case *Closure:
			stack.CloseUpvaluesFrom(level, 0)
			cur, curArgs = callee, res.Tail.Args
			tailHop = true
			continue
		case *HostFunc:
			vs, err := callee.Fn(res.Tail.Args)
			return vs, false, err
		case *SuspendingHostFunc:
			vs, suspended, err := callee.Fn(stack, res.Tail.Args)
			return vs, suspended, err
		default:
			return value.Varargs{}, false, &LuaError{Message: "attempt to call a non-function value"}
		}
	}
}
