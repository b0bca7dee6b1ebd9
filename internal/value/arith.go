package value

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ArithError is returned by the arithmetic/comparison helpers on a type
// mismatch; the vm package wraps it into a LuaError with frame context.
type ArithError struct {
	Msg string
}

func (e *ArithError) Error() string { return e.Msg }

func errf(format string, args ...interface{}) error {
	return &ArithError{Msg: fmt.Sprintf(format, args...)}
}

// coerceNumber converts a Value to a number following Lua 5.2 arithmetic
// coercion rules: numbers pass through, strings are parsed if they look
// like a complete numeral.
func coerceNumber(v Value) (Value, bool) {
	switch v.Kind {
	case KindInt, KindFloat:
		return v, true
	case KindString:
		s := strings.TrimSpace(v.S)
		if s == "" {
			return Nil(), false
		}
		if i, err := strconv.ParseInt(s, 0, 64); err == nil {
			return Int(i), true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return Float(f), true
		}
		return Nil(), false
	default:
		return Nil(), false
	}
}

func bothInt(a, b Value) (int64, int64, bool) {
	if a.Kind == KindInt && b.Kind == KindInt {
		return a.I, b.I, true
	}
	return 0, 0, false
}

func toFloats(a, b Value) (float64, float64) {
	af, _ := a.AsFloat()
	bf, _ := b.AsFloat()
	return af, bf
}

func arithPrep(opName string, a, b Value) (Value, Value, error) {
	ca, ok := coerceNumber(a)
	if !ok {
		return Nil(), Nil(), errf("attempt to perform arithmetic (%s) on a %s value", opName, a.TypeName())
	}
	cb, ok := coerceNumber(b)
	if !ok {
		return Nil(), Nil(), errf("attempt to perform arithmetic (%s) on a %s value", opName, b.TypeName())
	}
	return ca, cb, nil
}

func Add(a, b Value) (Value, error) {
	ca, cb, err := arithPrep("add", a, b)
	if err != nil {
		return Nil(), err
	}
	if ai, bi, ok := bothInt(ca, cb); ok {
		return Int(ai + bi), nil
	}
	af, bf := toFloats(ca, cb)
	return Float(af + bf), nil
}

func Sub(a, b Value) (Value, error) {
	ca, cb, err := arithPrep("sub", a, b)
	if err != nil {
		return Nil(), err
	}
	if ai, bi, ok := bothInt(ca, cb); ok {
		return Int(ai - bi), nil
	}
	af, bf := toFloats(ca, cb)
	return Float(af - bf), nil
}

func Mul(a, b Value) (Value, error) {
	ca, cb, err := arithPrep("mul", a, b)
	if err != nil {
		return Nil(), err
	}
	if ai, bi, ok := bothInt(ca, cb); ok {
		return Int(ai * bi), nil
	}
	af, bf := toFloats(ca, cb)
	return Float(af * bf), nil
}

// Div is always float division in Lua 5.2, even for two integers.
func Div(a, b Value) (Value, error) {
	ca, cb, err := arithPrep("div", a, b)
	if err != nil {
		return Nil(), err
	}
	af, bf := toFloats(ca, cb)
	return Float(af / bf), nil
}

func Mod(a, b Value) (Value, error) {
	ca, cb, err := arithPrep("mod", a, b)
	if err != nil {
		return Nil(), err
	}
	if ai, bi, ok := bothInt(ca, cb); ok {
		if bi == 0 {
			return Nil(), errf("attempt to perform 'n%%0'")
		}
		m := ai % bi
		if m != 0 && (m^bi) < 0 {
			m += bi
		}
		return Int(m), nil
	}
	af, bf := toFloats(ca, cb)
	m := math.Mod(af, bf)
	if m != 0 && (m < 0) != (bf < 0) {
		m += bf
	}
	return Float(m), nil
}

func Pow(a, b Value) (Value, error) {
	ca, cb, err := arithPrep("pow", a, b)
	if err != nil {
		return Nil(), err
	}
	af, bf := toFloats(ca, cb)
	return Float(math.Pow(af, bf)), nil
}

func Unm(a Value) (Value, error) {
	ca, ok := coerceNumber(a)
	if !ok {
		return Nil(), errf("attempt to perform arithmetic (unm) on a %s value", a.TypeName())
	}
	if ca.Kind == KindInt {
		return Int(-ca.I), nil
	}
	return Float(-ca.F), nil
}

func Not(a Value) Value {
	return Bool(!a.ToBoolean())
}

// Len implements the `#` operator for strings and tables. An __len
// metamethod is not consulted, here or in the vm package.
func Len(a Value) (Value, error) {
	switch a.Kind {
	case KindString:
		return Int(int64(len(a.S))), nil
	case KindTable:
		return Int(a.T.Len()), nil
	default:
		return Nil(), errf("attempt to get length of a %s value", a.TypeName())
	}
}

// Eq is raw equality: numbers compare by value (across int/float), strings
// by content, everything else by identity. __eq metamethod dispatch (only
// triggered when both raw-unequal operands are tables) is handled by the
// vm package since it requires a call.
func Eq(a, b Value) bool {
	if a.Kind != b.Kind {
		if a.IsNumber() && b.IsNumber() {
			af, _ := a.AsFloat()
			bf, _ := b.AsFloat()
			return af == bf
		}
		return false
	}
	switch a.Kind {
	case KindNil:
		return true
	case KindBool:
		return a.B == b.B
	case KindInt:
		return a.I == b.I
	case KindFloat:
		return a.F == b.F
	case KindString:
		return a.S == b.S
	case KindTable:
		return a.T == b.T
	case KindFunction:
		return a.Fn == b.Fn
	case KindUserData:
		return a.U == b.U
	default:
		return false
	}
}

// Lt implements the `<` operator: numeric comparison with coercion between
// int/float (but NOT string->number — Lua 5.2 requires both operands be
// numbers, or both be strings, for ordering), lexicographic string
// comparison otherwise.
func Lt(a, b Value) (bool, error) {
	if a.IsNumber() && b.IsNumber() {
		af, bf := toFloats(a, b)
		return af < bf, nil
	}
	if a.Kind == KindString && b.Kind == KindString {
		return a.S < b.S, nil
	}
	return false, errf("attempt to compare %s with %s", a.TypeName(), b.TypeName())
}

func Le(a, b Value) (bool, error) {
	if a.IsNumber() && b.IsNumber() {
		af, bf := toFloats(a, b)
		return af <= bf, nil
	}
	if a.Kind == KindString && b.Kind == KindString {
		return a.S <= b.S, nil
	}
	return false, errf("attempt to compare %s with %s", a.TypeName(), b.TypeName())
}

// concatString reports whether v is a valid `..` operand (string or
// number) and its string form — the coercion the vm package's
// Buffer-backed CONCAT implementation folds left to right.
func concatString(v Value) (string, bool) {
	switch v.Kind {
	case KindString:
		return v.S, true
	case KindInt, KindFloat:
		return v.String(), true
	default:
		return "", false
	}
}
