package vm

import "github.com/continuable/luavm/internal/value"

const maxMetaChase = 100

// GetTable implements indexing with __index chasing: a plain Table whose
// raw slot is non-nil returns it directly; otherwise if the table (or, if
// __index is itself a table, that table) carries a metatable with an
// __index entry, the chase continues — through another table, or by
// calling an __index function. This split (raw access in value.Table,
// metamethod dispatch here) mirrors the real Lua engine's ltable.c /
// lvm.c boundary, kept out of package value so that value stays free of
// any dependency on callable dispatch.
func GetTable(fr *Frame, base value.Value, key value.Value) (value.Value, error) {
	cur := base
	for i := 0; i < maxMetaChase; i++ {
		if !cur.IsTable() {
			return value.Nil(), newLuaError(fr, "attempt to index a %s value", cur.TypeName())
		}
		t := cur.T
		raw := t.RawGet(key)
		if !raw.IsNil() || t.Meta == nil {
			return raw, nil
		}
		idx := t.Meta.RawGet(value.Str("__index"))
		if idx.IsNil() {
			return value.Nil(), nil
		}
		if idx.IsFunction() {
			res, err := callValueSync(idx, value.Args(cur, key))
			if err != nil {
				return value.Nil(), err
			}
			return res.First(), nil
		}
		cur = idx
	}
	return value.Nil(), newLuaError(fr, "'__index' chain too long; possible loop")
}

// SetTable mirrors GetTable for writes: a present raw slot, or a table
// with no __newindex, is written directly; otherwise the chase continues
// through a __newindex table or calls a __newindex function.
func SetTable(fr *Frame, base value.Value, key, val value.Value) error {
	cur := base
	for i := 0; i < maxMetaChase; i++ {
		if !cur.IsTable() {
			return newLuaError(fr, "attempt to index a %s value", cur.TypeName())
		}
		t := cur.T
		if !t.RawGet(key).IsNil() || t.Meta == nil {
			t.RawSet(key, val)
			return nil
		}
		ni := t.Meta.RawGet(value.Str("__newindex"))
		if ni.IsNil() {
			t.RawSet(key, val)
			return nil
		}
		if ni.IsFunction() {
			_, err := callValueSync(ni, value.Args(cur, key, val))
			return err
		}
		cur = ni
	}
	return newLuaError(fr, "'__newindex' chain too long; possible loop")
}

// callValueSync invokes any callable Value synchronously, used for
// metamethods (__index/__newindex/__eq functions) which never need to
// suspend the cooperative runtime.
func callValueSync(callee value.Value, args value.Varargs) (value.Varargs, error) {
	if !callee.IsFunction() {
		return value.Varargs{}, &LuaError{Message: "attempt to call a " + callee.TypeName() + " value"}
	}
	switch fn := callee.Fn.(type) {
	case *Closure:
		return fn.Invoke(args)
	case *HostFunc:
		return fn.Fn(args)
	case *SuspendingHostFunc:
		res, suspended, err := fn.Fn(nil, args)
		if suspended {
			return value.Varargs{}, newHostException(fn.Name, errCannotSuspendHere)
		}
		return res, err
	default:
		return value.Varargs{}, &LuaError{Message: "attempt to call an uncallable function value"}
	}
}

// eqValues implements == including an __eq fallback for two tables that
// compare unequal by raw identity but share a metatable __eq handler.
func eqValues(a, b value.Value) (bool, error) {
	if value.Eq(a, b) {
		return true, nil
	}
	if a.IsTable() && b.IsTable() && a.T.Meta != nil {
		if h := a.T.Meta.RawGet(value.Str("__eq")); h.IsFunction() {
			res, err := callValueSync(h, value.Args(a, b))
			if err != nil {
				return false, err
			}
			return res.First().ToBoolean(), nil
		}
	}
	return false, nil
}
