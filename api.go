// Package luavm is the public surface of a Lua 5.2 bytecode interpreter
// whose distinguishing feature is a call chain that can suspend at a
// host call boundary, be serialized in full, and resume — in this
// process or a fresh one — exactly where it left off. It loads
// Prototypes produced elsewhere (an out-of-scope compiler/loader; see
// internal/asm for the programmatic builder tests and cmd/luavm use in
// its place) and drives them through either a plain synchronous call or
// the suspendable cooperative loop.
//
// The re-export layer here — thin wrapper functions and type aliases
// over internal/vm — follows the shape of the teacher's own api.go: a
// small public vocabulary (Call, SuspendableCall, Resume,
// SerializeExecutionContext) sitting on top of a larger internal engine.
package luavm

import (
	"errors"

	"github.com/continuable/luavm/internal/config"
	"github.com/continuable/luavm/internal/proto"
	"github.com/continuable/luavm/internal/value"
	"github.com/continuable/luavm/internal/vm"
)

// Re-exported types, so callers of this package never need to import
// internal/vm or internal/value directly.
type (
	Value              = value.Value
	Varargs            = value.Varargs
	Prototype          = proto.Prototype
	Closure            = vm.Closure
	ExecutionStack     = vm.ExecutionStack
	HostFunc           = vm.HostFunc
	SuspendingHostFunc = vm.SuspendingHostFunc
	LuaError           = vm.LuaError
	IllegalOpcode      = vm.IllegalOpcode
	HostException      = vm.HostException
	Config             = config.Config
)

// ErrNotSuspended is returned by SerializeExecutionContext when the
// given closure was never run through the suspendable path, so it has
// no ExecutionStack to snapshot.
var ErrNotSuspended = errors.New("closure has no active execution stack to serialize")

// Engine holds the configuration a host applies to every ExecutionStack
// it creates. It carries no other state — every persisted or in-flight
// execution lives entirely in its own Closure/ExecutionStack pair, never
// in the Engine.
type Engine struct {
	Config config.Config
}

// NewEngine builds an Engine from a resolved Config.
func NewEngine(cfg config.Config) *Engine { return &Engine{Config: cfg} }

// DefaultEngine builds an Engine with config.Default().
func DefaultEngine() *Engine { return &Engine{Config: config.Default()} }

// Load wraps a compiled Prototype in a fresh root Closure over globals,
// ready for Call or SuspendableCall. The closure carries the Engine's
// resource limits (max call depth, max register-file growth) so every
// ExecutionStack it ever creates — sync or suspendable — inherits them.
func (e *Engine) Load(p *Prototype, globals Value) *Closure {
	cl := vm.NewClosure(p, globals)
	cl.MaxCallDepth = e.Config.Engine.MaxCallDepth
	cl.MaxRegisters = e.Config.Engine.MaxRegisters
	return cl
}

// NewGlobals returns an empty globals table.
func NewGlobals() Value { return value.TableVal(value.NewTable()) }

// SetGlobal installs a value into a globals table built by NewGlobals.
func SetGlobal(globals Value, name string, v Value) {
	globals.T.RawSet(value.Str(name), v)
}

// BindHostFunc installs a non-suspending host callable (spec section 6,
// case (a)) under name in globals.
func BindHostFunc(globals Value, name string, fn func(Varargs) (Varargs, error)) {
	SetGlobal(globals, name, value.FuncVal(&vm.HostFunc{Name: name, Fn: fn}))
}

// BindSuspendingHostFunc installs a host callable that may pause the
// cooperative runtime (spec section 6, case (b)) under name in globals.
func BindSuspendingHostFunc(globals Value, name string, fn func(*ExecutionStack, Varargs) (Varargs, bool, error)) {
	SetGlobal(globals, name, value.FuncVal(&vm.SuspendingHostFunc{Name: name, Fn: fn}))
}

// SetErrorHook installs a script-defined error hook on cl (spec section
// 7): every LuaError raised while executing cl is passed through fn once,
// and fn's first returned value, if a string, replaces the error's
// message before it keeps propagating. fn is disallowed from observing
// its own errors reentrantly — the hook is nulled for the duration of
// each call and restored after.
func SetErrorHook(cl *Closure, fn func(Varargs) (Varargs, error)) {
	cl.ErrorHook = &vm.HostFunc{Name: "error_hook", Fn: fn}
	if cl.ExecutionStack != nil {
		cl.ExecutionStack.ErrorHook = cl.ErrorHook
	}
}

// Call runs cl synchronously to completion. It never suspends: a
// SuspendingHostFunc reached along the way that actually tries to pause
// surfaces as a HostException instead.
func Call(cl *Closure, args ...Value) (Varargs, error) {
	return cl.Invoke(value.Args(args...))
}

// SuspendableCall drives cl through the cooperative dispatch loop.
// yielded reports whether execution paused at a host call boundary
// instead of returning a result; when it does, the caller should
// eventually call Resume (after computing the deferred result) or
// SerializeExecutionContext (to persist and resume later, possibly in a
// different process).
func SuspendableCall(cl *Closure, args ...Value) (result Varargs, yielded bool, err error) {
	return cl.SuspendableCall(value.Args(args...))
}

// Resume supplies the deferred result of the host call that suspended cl
// and continues execution from exactly that point.
func Resume(cl *Closure, result Value) (Varargs, bool, error) {
	return cl.Resume(result)
}

// Stop implements the graceful-teardown protocol: the next Resume of cl
// returns an empty result with yielded=false instead of continuing
// normally, without running any further side effects. The frames of the
// suspended chain do not execute their own RETURN instructions.
func Stop(cl *Closure) {
	if cl.ExecutionStack != nil {
		cl.ExecutionStack.Stop()
	}
}

// SerializeExecutionContext snapshots cl's entire suspended call chain —
// every frame, every reachable table and closure, every prototype they
// run — into a self-contained byte string.
func SerializeExecutionContext(cl *Closure) ([]byte, error) {
	if cl.ExecutionStack == nil {
		return nil, ErrNotSuspended
	}
	return cl.ExecutionStack.Serialize()
}

// DeserializeExecutionContext rebuilds a suspended call chain from a
// snapshot produced by SerializeExecutionContext, in this process or a
// fresh one with no prior state. The returned Closure is the chain's
// root; calling SuspendableCall or Resume on it continues execution from
// exactly where it suspended.
func DeserializeExecutionContext(data []byte) (*Closure, error) {
	cl, _, err := vm.DeserializeExecutionContext(data)
	return cl, err
}
