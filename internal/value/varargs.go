package value

// Varargs is an ordered, 1-based sequence of Values with O(1) Arg/Sub,
// matching spec section 3's "flat sequence or {Value, Varargs} pair"
// design note. A flat slice already gives O(1) access and slicing for the
// sizes this engine deals with (call argument lists, multi-results), so
// the cons-pair variant isn't needed in practice — Sub is just a re-slice.
type Varargs struct {
	vals []Value
}

// Args builds a Varargs from individual values.
func Args(vs ...Value) Varargs {
	return Varargs{vals: vs}
}

// ArgsFromSlice wraps an existing slice without copying.
func ArgsFromSlice(vs []Value) Varargs {
	return Varargs{vals: vs}
}

// Len returns the number of values.
func (v Varargs) Len() int { return len(v.vals) }

// Arg returns the i-th value, 1-based; out of range yields Nil.
func (v Varargs) Arg(i int) Value {
	if i < 1 || i > len(v.vals) {
		return Nil()
	}
	return v.vals[i-1]
}

// Sub returns the sub-sequence starting at the i-th value (1-based,
// inclusive); out-of-range i yields an empty Varargs.
func (v Varargs) Sub(i int) Varargs {
	if i < 1 {
		i = 1
	}
	if i > len(v.vals) {
		return Varargs{}
	}
	return Varargs{vals: v.vals[i-1:]}
}

// Slice exposes the backing values; callers must not mutate past len().
func (v Varargs) Slice() []Value { return v.vals }

// First is shorthand for Arg(1), the common "single return value" case.
func (v Varargs) First() Value { return v.Arg(1) }

// TailcallVarargs is the trampoline sentinel a frame produces when it
// executes a Lua TAILCALL: {callee, args}. The outer driver
// (Closure.OnInvoke or Closure.OnSuspendableInvoke) loops, running each
// callee in turn at the same stack level, until a concrete Varargs
// (non-trampoline) comes back.
type TailcallVarargs struct {
	Callee Function
	Args   Varargs
}
