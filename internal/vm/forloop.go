package vm

import "github.com/continuable/luavm/internal/value"

// forNumbers coerces the three control values of a numeric for loop to
// numbers, as OP_FORPREP requires before the first iteration.
func forNumbers(fr *Frame, initV, limitV, stepV value.Value) (value.Value, value.Value, value.Value, error) {
	init, ok := initV.AsFloat()
	if !ok {
		return value.Nil(), value.Nil(), value.Nil(), newLuaError(fr, "'for' initial value must be a number")
	}
	limit, ok := limitV.AsFloat()
	if !ok {
		return value.Nil(), value.Nil(), value.Nil(), newLuaError(fr, "'for' limit must be a number")
	}
	step, ok := stepV.AsFloat()
	if !ok {
		return value.Nil(), value.Nil(), value.Nil(), newLuaError(fr, "'for' step must be a number")
	}
	if initV.IsInt() && limitV.IsInt() && stepV.IsInt() {
		return initV, limitV, stepV, nil
	}
	return value.Float(init), value.Float(limit), value.Float(step), nil
}

// forSub computes the value OP_FORPREP leaves behind (init - step), so
// that the first OP_FORLOOP's (v + step) lands back on init.
func forSub(init, step value.Value) value.Value {
	v, _ := value.Sub(init, step)
	return v
}

func forAdd(v, step value.Value) value.Value {
	r, _ := value.Add(v, step)
	return r
}

// forContinues reports whether the loop variable is still within range,
// honoring the sign of step per spec section 4.5's FORLOOP semantics.
func forContinues(v, limit, step value.Value) bool {
	stepF, _ := step.AsFloat()
	vF, _ := v.AsFloat()
	limitF, _ := limit.AsFloat()
	if stepF >= 0 {
		return vF <= limitF
	}
	return vF >= limitF
}
