// Package asm is a small programmatic bytecode builder standing in for
// the compiler/loader spec section 1 places out of scope: tests and the
// demo driver assemble Prototypes directly through this API instead of
// parsing Lua source text. Shaped after the teacher's compiler.go
// Chunk-builder methods and disasm_test.go's hand-built-Prototype style —
// a fluent builder with one method per instruction format (ABC, ABx,
// AsBx) that emits into a growable
// instruction slice and freezes into a *proto.Prototype on Build.
package asm

import (
	"github.com/continuable/luavm/internal/proto"
	"github.com/continuable/luavm/internal/value"
)

// Builder accumulates one Prototype's instructions, constants and child
// prototypes.
type Builder struct {
	source       string
	code         []proto.Instruction
	lines        []int
	k            []value.Value
	p            []*proto.Prototype
	upvalues     []proto.UpvalueDesc
	numParams    uint8
	isVararg     bool
	maxStackSize uint8
	curLine      int
}

// New starts a builder for a chunk/function named source.
func New(source string) *Builder {
	return &Builder{source: source, maxStackSize: 2}
}

func (b *Builder) Params(n uint8) *Builder    { b.numParams = n; return b }
func (b *Builder) Vararg(v bool) *Builder     { b.isVararg = v; return b }
func (b *Builder) MaxStack(n uint8) *Builder  { b.maxStackSize = n; return b }
func (b *Builder) Line(n int) *Builder        { b.curLine = n; return b }
func (b *Builder) Upvalue(name string, inStack bool, idx uint8) *Builder {
	b.upvalues = append(b.upvalues, proto.UpvalueDesc{Name: name, InStack: inStack, Idx: idx})
	return b
}

// K interns a constant and returns its index for use with RK-encoded
// operands (0x100 | index).
func (b *Builder) K(v value.Value) int {
	for i, existing := range b.k {
		if sameConstant(existing, v) {
			return i
		}
	}
	b.k = append(b.k, v)
	return len(b.k) - 1
}

func sameConstant(a, b value.Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case value.KindNil:
		return true
	case value.KindBool:
		return a.B == b.B
	case value.KindInt:
		return a.I == b.I
	case value.KindFloat:
		return a.F == b.F
	case value.KindString:
		return a.S == b.S
	default:
		return false
	}
}

// RK returns the RK-encoded operand for a constant index, per spec
// section 4.5's RK(x) convention.
func RK(kIndex int) int { return 0x100 | kIndex }

// Child registers a nested Prototype (built by a separate Builder) and
// returns its index for OP_CLOSURE's Bx operand.
func (b *Builder) Child(p *proto.Prototype) int {
	b.p = append(b.p, p)
	return len(b.p) - 1
}

func (b *Builder) emit(i proto.Instruction) int {
	b.code = append(b.code, i)
	b.lines = append(b.lines, b.curLine)
	return len(b.code) - 1
}

// Here returns the index the next emitted instruction will occupy —
// useful for computing jump offsets before the jump target exists yet.
func (b *Builder) Here() int { return len(b.code) }

// Patch overwrites a previously emitted jump's sBx once its target is
// known.
func (b *Builder) Patch(pc int, op proto.OpCode, a, target int) {
	b.code[pc] = proto.EncodeSBx(op, a, target-(pc+1))
}

func (b *Builder) ABC(op proto.OpCode, a, bOp, c int) int  { return b.emit(proto.Encode(op, a, bOp, c)) }
func (b *Builder) ABx(op proto.OpCode, a, bx int) int      { return b.emit(proto.EncodeBx(op, a, bx)) }
func (b *Builder) ASBx(op proto.OpCode, a, sbx int) int    { return b.emit(proto.EncodeSBx(op, a, sbx)) }

// Build freezes the accumulated instructions into an immutable Prototype.
func (b *Builder) Build() *proto.Prototype {
	return &proto.Prototype{
		Source:       b.source,
		Code:         b.code,
		K:            b.k,
		P:            b.p,
		Upvalues:     b.upvalues,
		NumParams:    b.numParams,
		IsVararg:     b.isVararg,
		MaxStackSize: b.maxStackSize,
		LineInfo:     b.lines,
	}
}
