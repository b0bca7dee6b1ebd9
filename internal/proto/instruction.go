package proto

// Instruction is a single packed 32-bit Lua 5.2 bytecode word. Field
// layout (spec section 4.5):
//
//	op  = i & 0x3f            (6 bits)
//	a   = (i >> 6) & 0xff     (8 bits)
//	c   = (i >> 14) & 0x1ff   (9 bits)
//	b   = i >>> 23             (9 bits)
//	bx  = i >>> 14             (18 bits, b and c combined)
//	sbx = bx - 0x1ffff          (signed bx, bias 131071)
type Instruction uint32

const sbxBias = 0x1ffff

// Encode packs an A/B/C-form instruction.
func Encode(op OpCode, a, b, c int) Instruction {
	return Instruction(uint32(op)&0x3f | uint32(a&0xff)<<6 | uint32(c&0x1ff)<<14 | uint32(b&0x1ff)<<23)
}

// EncodeBx packs an A/Bx-form instruction (Bx unsigned, 18 bits).
func EncodeBx(op OpCode, a, bx int) Instruction {
	return Instruction(uint32(op)&0x3f | uint32(a&0xff)<<6 | uint32(bx&0x3ffff)<<14)
}

// EncodeSBx packs an A/sBx-form instruction (signed, bias 0x1ffff).
func EncodeSBx(op OpCode, a, sbx int) Instruction {
	return EncodeBx(op, a, sbx+sbxBias)
}

func (i Instruction) Op() OpCode { return OpCode(uint32(i) & 0x3f) }
func (i Instruction) A() int     { return int((uint32(i) >> 6) & 0xff) }
func (i Instruction) C() int     { return int((uint32(i) >> 14) & 0x1ff) }
func (i Instruction) B() int     { return int(uint32(i) >> 23) }
func (i Instruction) Bx() int    { return int(uint32(i) >> 14) }
func (i Instruction) SBx() int   { return i.Bx() - sbxBias }

// IsConstant reports whether an RK operand slot refers to the constant
// table rather than a register (spec: "if x > 0xff then k[x&0xff] else
// stack[x]").
func IsConstant(rk int) bool { return rk > 0xff }

// ConstIndex extracts the constant-pool index from an RK operand that
// IsConstant has confirmed refers to a constant.
func ConstIndex(rk int) int { return rk & 0xff }
