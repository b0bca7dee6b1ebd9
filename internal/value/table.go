package value

// Table is a Lua table: a hybrid array/hash associative structure with an
// optional metatable. The array part is a simple optimization for the
// common 1..n sequence case; arbitrary keys always fall back to the hash
// part. Metamethod chasing (__index/__newindex) is deliberately NOT done
// here — it requires invoking a callable, and Table must stay free of any
// dependency on the closure/call machinery in package vm. Callers needing
// metamethod-aware access use the helpers in vm.GetTable/vm.SetTable.
type Table struct {
	Array []Value          // 1-based sequence part; Array[i] holds key i+1
	Hash  map[Value]Value  // everything else
	Meta  *Table
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{}
}

func (t *Table) FuncID() string { return "" } // Table is not callable; present only if needed by generic code.

// RawGet reads a key without consulting the metatable.
func (t *Table) RawGet(key Value) Value {
	if t == nil {
		return Nil()
	}
	if key.Kind == KindInt && key.I >= 1 && int(key.I) <= len(t.Array) {
		return t.Array[key.I-1]
	}
	if key.Kind == KindFloat {
		if iv, ok := floatToExactInt(key.F); ok {
			key = Int(iv)
			if key.I >= 1 && int(key.I) <= len(t.Array) {
				return t.Array[key.I-1]
			}
		}
	}
	if t.Hash == nil {
		return Nil()
	}
	if v, ok := t.Hash[normalizeKey(key)]; ok {
		return v
	}
	return Nil()
}

// RawSet writes a key without consulting the metatable. Setting a value to
// nil removes the key (matching Lua semantics).
func (t *Table) RawSet(key Value, val Value) {
	if key.Kind == KindFloat {
		if iv, ok := floatToExactInt(key.F); ok {
			key = Int(iv)
		}
	}
	if key.Kind == KindInt {
		idx := key.I
		switch {
		case idx >= 1 && int(idx) <= len(t.Array):
			t.Array[idx-1] = val
			if val.IsNil() && int(idx) == len(t.Array) {
				t.Array = t.Array[:idx-1]
			}
			return
		case idx == int64(len(t.Array))+1 && !val.IsNil():
			t.Array = append(t.Array, val)
			t.migrateFromHash()
			return
		}
	}
	if val.IsNil() {
		if t.Hash != nil {
			delete(t.Hash, normalizeKey(key))
		}
		return
	}
	if t.Hash == nil {
		t.Hash = make(map[Value]Value)
	}
	t.Hash[normalizeKey(key)] = val
}

// migrateFromHash pulls any contiguous successors of the array part out of
// the hash, the way appending to a Lua table's sequence naturally does.
func (t *Table) migrateFromHash() {
	if t.Hash == nil {
		return
	}
	for {
		next := Int(int64(len(t.Array)) + 1)
		v, ok := t.Hash[next]
		if !ok {
			return
		}
		t.Array = append(t.Array, v)
		delete(t.Hash, next)
	}
}

// Len implements the Lua length operator on tables: a border of the
// sequence part. With no holes (the common case) this is just len(Array).
func (t *Table) Len() int64 {
	if t == nil {
		return 0
	}
	n := len(t.Array)
	for n > 0 && t.Array[n-1].IsNil() {
		n--
	}
	return int64(n)
}

// Next supports stateless iteration (for `pairs`/TFORCALL): given a key
// (Nil to start), returns the next key/value pair in an unspecified but
// stable-for-the-table's-lifetime order, or ok=false when exhausted.
func (t *Table) Next(key Value) (Value, Value, bool) {
	if t == nil {
		return Nil(), Nil(), false
	}
	if key.IsNil() {
		if len(t.Array) > 0 {
			return Int(1), t.Array[0], true
		}
		return t.firstHashEntry()
	}
	if key.Kind == KindInt && key.I >= 1 && int(key.I) <= len(t.Array) {
		if int(key.I) < len(t.Array) {
			return Int(key.I + 1), t.Array[key.I], true
		}
		return t.firstHashEntry()
	}
	// Hash-part iteration: Go map order is randomized per run but stable
	// within a single range; we snapshot keys on demand.
	keys := t.hashKeys()
	nk := normalizeKey(key)
	for i, k := range keys {
		if k == nk {
			if i+1 < len(keys) {
				next := keys[i+1]
				return denormalizeKey(next), t.Hash[next], true
			}
			return Nil(), Nil(), false
		}
	}
	return Nil(), Nil(), false
}

func (t *Table) firstHashEntry() (Value, Value, bool) {
	keys := t.hashKeys()
	if len(keys) == 0 {
		return Nil(), Nil(), false
	}
	k := keys[0]
	return denormalizeKey(k), t.Hash[k], true
}

func (t *Table) hashKeys() []Value {
	if t.Hash == nil {
		return nil
	}
	keys := make([]Value, 0, len(t.Hash))
	for k := range t.Hash {
		keys = append(keys, k)
	}
	return keys
}

// normalizeKey strips fields that must not participate in map-key equality
// (Value is comparable via ==, but Table/Function carry pointers/interfaces
// that already compare by identity, which is what Lua wants for non-number
// non-string keys).
func normalizeKey(v Value) Value {
	return v
}

func denormalizeKey(v Value) Value { return v }

func floatToExactInt(f float64) (int64, bool) {
	i := int64(f)
	if float64(i) == f {
		return i, true
	}
	return 0, false
}
