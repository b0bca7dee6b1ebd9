package proto

import "github.com/continuable/luavm/internal/value"

// UpvalueDesc records where a closure's Nth upvalue is captured from: a
// register slot in the immediately enclosing function's frame (InStack),
// or an upvalue slot of the immediately enclosing closure itself.
type UpvalueDesc struct {
	Name    string
	InStack bool
	Idx     uint8
}

// Prototype is an immutable compiled chunk, built once by the (out of
// scope) compiler/loader and never mutated afterward. Child prototypes
// (nested function literals) are instantiated into live Closures by
// OP_CLOSURE at runtime.
type Prototype struct {
	Source       string
	Code         []Instruction
	K            []value.Value
	P            []*Prototype
	Upvalues     []UpvalueDesc
	NumParams    uint8
	IsVararg     bool
	MaxStackSize uint8
	LineInfo     []int // parallel to Code; LineInfo[pc] is the source line for Code[pc]
}

// LineAt returns the source line for a given pc, or 0 if unavailable.
func (p *Prototype) LineAt(pc int) int {
	if pc < 0 || pc >= len(p.LineInfo) {
		return 0
	}
	return p.LineInfo[pc]
}
