package vm

import (
	"github.com/continuable/luavm/internal/proto"
	"github.com/continuable/luavm/internal/value"
)

// Frame is one activation record: a register window plus the bookkeeping
// the dispatch loop needs to resume mid-instruction across a suspend
// boundary. Shaped after the teacher's vm.go frame struct, generalized
// from a fixed operand-stack to Lua's register-file model (spec section
// 4.3).
type Frame struct {
	ID      int // index into the owning ExecutionStack.Frames; also the
	// (frameID) half of an UpValue's open address.
	Closure *Closure
	Pc      int
	Regs    []value.Value
	Varargs value.Varargs // extra args beyond NumParams, when Closure.Proto.IsVararg
	Top     int           // -1, or one past the last live register left by a
	// multret-producing event (a CALL with C=0, or a VARARG with B=0),
	// consumed by a subsequent B=0/C=0 instruction such as RETURN or SETLIST.
}

func newFrame(id int, cl *Closure) *Frame {
	size := int(cl.Proto.MaxStackSize)
	if size < int(cl.Proto.NumParams)+2 {
		size = int(cl.Proto.NumParams) + 2
	}
	return &Frame{
		ID:      id,
		Closure: cl,
		Regs:    make([]value.Value, size),
		Top:     -1,
	}
}

// bind lays the call arguments into the frame's parameter registers and
// captures any surplus as varargs, per spec section 4.3's calling
// convention.
func (fr *Frame) bind(args value.Varargs) {
	np := int(fr.Closure.Proto.NumParams)
	for i := 0; i < np; i++ {
		fr.Regs[i] = args.Arg(i + 1)
	}
	if fr.Closure.Proto.IsVararg && args.Len() > np {
		fr.Varargs = args.Sub(np + 1)
	}
}

func (fr *Frame) growTo(n int) {
	if n <= len(fr.Regs) {
		return
	}
	grown := make([]value.Value, n)
	copy(grown, fr.Regs)
	fr.Regs = grown
}

func (fr *Frame) fetch() proto.Instruction {
	return fr.Closure.Proto.Code[fr.Pc]
}

func (fr *Frame) line() int {
	return fr.Closure.Proto.LineAt(fr.Pc)
}
