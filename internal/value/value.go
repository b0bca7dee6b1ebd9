// Package value implements the tagged Lua value model: nil, booleans,
// integers, floats, strings, tables, functions and userdata, plus the
// varargs and buffer helpers the dispatch loops need.
package value

import "fmt"

// Kind tags the variant currently held by a Value.
type Kind int

const (
	KindNil Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindTable
	KindFunction
	KindUserData
)

func (k Kind) String() string {
	switch k {
	case KindNil:
		return "nil"
	case KindBool:
		return "boolean"
	case KindInt, KindFloat:
		return "number"
	case KindString:
		return "string"
	case KindTable:
		return "table"
	case KindFunction:
		return "function"
	case KindUserData:
		return "userdata"
	default:
		return "unknown"
	}
}

// Function is the common interface satisfied by anything callable from
// Lua bytecode: both script closures and host-provided callables.
//
// The concrete closure type lives in package vm; Value only needs the
// ability to identify and compare callables, so it holds an opaque
// reference rather than importing vm (which would create a cycle).
type Function interface {
	// FuncID is a stable identity for equality/disassembly purposes.
	FuncID() string
}

// Value is a tagged union of all representable Lua values. A single flat
// struct (rather than an interface-per-kind hierarchy) keeps Value cheap
// to copy and switch on, matching how the reference dispatch loop treats
// registers as plain words.
type Value struct {
	Kind Kind
	B    bool
	I    int64
	F    float64
	S    string
	T    *Table
	Fn   Function
	U    interface{} // userdata payload, opaque to the engine
}

// NIL is the singleton nil value. Because Value is a plain struct, any
// zero-valued Value also compares equal to NIL — Nil() always returns the
// canonical form for callers that want identity-style comparison.
var NIL = Value{Kind: KindNil}

func Nil() Value                 { return NIL }
func Bool(b bool) Value          { return Value{Kind: KindBool, B: b} }
func Int(i int64) Value          { return Value{Kind: KindInt, I: i} }
func Float(f float64) Value      { return Value{Kind: KindFloat, F: f} }
func Str(s string) Value         { return Value{Kind: KindString, S: s} }
func TableVal(t *Table) Value    { return Value{Kind: KindTable, T: t} }
func FuncVal(f Function) Value   { return Value{Kind: KindFunction, Fn: f} }
func UserData(u interface{}) Value { return Value{Kind: KindUserData, U: u} }

func (v Value) IsNil() bool      { return v.Kind == KindNil }
func (v Value) IsBool() bool     { return v.Kind == KindBool }
func (v Value) IsNumber() bool   { return v.Kind == KindInt || v.Kind == KindFloat }
func (v Value) IsInt() bool      { return v.Kind == KindInt }
func (v Value) IsFloat() bool    { return v.Kind == KindFloat }
func (v Value) IsString() bool   { return v.Kind == KindString }
func (v Value) IsTable() bool    { return v.Kind == KindTable }
func (v Value) IsFunction() bool { return v.Kind == KindFunction }

// ToBoolean implements Lua's truthiness: everything is true except nil
// and false.
func (v Value) ToBoolean() bool {
	switch v.Kind {
	case KindNil:
		return false
	case KindBool:
		return v.B
	default:
		return true
	}
}

// TypeName returns the Lua type name used in error messages.
func (v Value) TypeName() string {
	return v.Kind.String()
}

// AsFloat returns the value as a float64, converting an integer if needed.
// ok is false for non-numbers.
func (v Value) AsFloat() (float64, bool) {
	switch v.Kind {
	case KindInt:
		return float64(v.I), true
	case KindFloat:
		return v.F, true
	default:
		return 0, false
	}
}

func (v Value) String() string {
	switch v.Kind {
	case KindNil:
		return "nil"
	case KindBool:
		if v.B {
			return "true"
		}
		return "false"
	case KindInt:
		return fmt.Sprintf("%d", v.I)
	case KindFloat:
		return formatFloat(v.F)
	case KindString:
		return v.S
	case KindTable:
		return fmt.Sprintf("table: %p", v.T)
	case KindFunction:
		return fmt.Sprintf("function: %s", idOf(v.Fn))
	case KindUserData:
		return fmt.Sprintf("userdata: %p", &v.U)
	default:
		return "?"
	}
}

func idOf(f Function) string {
	if f == nil {
		return "<nil>"
	}
	return f.FuncID()
}

func formatFloat(f float64) string {
	// Lua 5.2 prints floats with %.14g and always keeps a decimal marker.
	s := fmt.Sprintf("%.14g", f)
	for _, c := range s {
		if c == '.' || c == 'e' || c == 'n' || c == 'i' {
			return s
		}
	}
	return s + ".0"
}
