package proto

import "testing"

func TestEncodeDecodeABC(t *testing.T) {
	i := Encode(OP_ADD, 1, 2, 3)
	if i.Op() != OP_ADD || i.A() != 1 || i.B() != 2 || i.C() != 3 {
		t.Fatalf("decode mismatch: op=%v a=%d b=%d c=%d", i.Op(), i.A(), i.B(), i.C())
	}
}

func TestEncodeDecodeSBx(t *testing.T) {
	i := EncodeSBx(OP_JMP, 0, -5)
	if i.Op() != OP_JMP || i.SBx() != -5 {
		t.Fatalf("decode mismatch: op=%v sbx=%d", i.Op(), i.SBx())
	}
	i2 := EncodeSBx(OP_JMP, 0, 100)
	if i2.SBx() != 100 {
		t.Fatalf("expected sbx 100, got %d", i2.SBx())
	}
}

func TestRKHelpers(t *testing.T) {
	if IsConstant(5) {
		t.Fatalf("5 should be a register operand")
	}
	if !IsConstant(0x100) {
		t.Fatalf("0x100 should be a constant operand")
	}
	if ConstIndex(0x105) != 5 {
		t.Fatalf("expected const index 5, got %d", ConstIndex(0x105))
	}
}
