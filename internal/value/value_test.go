package value

import "testing"

func TestArithIntStaysInt(t *testing.T) {
	product, err := Mul(Int(2), Int(3))
	if err != nil {
		t.Fatalf("mul: %v", err)
	}
	v, err := Add(Int(1), product)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if v.Kind != KindInt || v.I != 7 {
		t.Fatalf("expected int 7, got %v", v)
	}
}

func TestDivAlwaysFloat(t *testing.T) {
	v, err := Div(Int(7), Int(2))
	if err != nil {
		t.Fatalf("div: %v", err)
	}
	if v.Kind != KindFloat {
		t.Fatalf("expected float result from div, got %v", v.Kind)
	}
	if v.F != 3.5 {
		t.Fatalf("expected 3.5, got %v", v.F)
	}
}

func TestStringNumberCoercion(t *testing.T) {
	v, err := Add(Str("10"), Int(5))
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if v.Kind != KindInt || v.I != 15 {
		t.Fatalf("expected 15, got %v", v)
	}
}

func TestTableArrayPart(t *testing.T) {
	tbl := NewTable()
	tbl.RawSet(Int(1), Str("x"))
	tbl.RawSet(Int(2), Str("y"))
	if tbl.Len() != 2 {
		t.Fatalf("expected len 2, got %d", tbl.Len())
	}
	if got := tbl.RawGet(Int(1)).String(); got != "x" {
		t.Fatalf("expected x, got %q", got)
	}
}

func TestTableNextIteratesArrayThenHash(t *testing.T) {
	tbl := NewTable()
	tbl.RawSet(Int(1), Str("a"))
	tbl.RawSet(Str("k"), Str("b"))

	k, v, ok := tbl.Next(Nil())
	if !ok || k.I != 1 || v.S != "a" {
		t.Fatalf("expected (1,a), got (%v,%v,%v)", k, v, ok)
	}
	k2, v2, ok2 := tbl.Next(k)
	if !ok2 || k2.S != "k" || v2.S != "b" {
		t.Fatalf("expected (k,b), got (%v,%v,%v)", k2, v2, ok2)
	}
	_, _, ok3 := tbl.Next(k2)
	if ok3 {
		t.Fatalf("expected iteration to end")
	}
}

func TestVarargsSubIsOConeAccess(t *testing.T) {
	va := Args(Int(1), Int(2), Int(3))
	sub := va.Sub(2)
	if sub.Len() != 2 || sub.Arg(1).I != 2 || sub.Arg(2).I != 3 {
		t.Fatalf("unexpected sub %v", sub)
	}
}

func TestBufferAccumulatesLeftToRight(t *testing.T) {
	buf, err := NewBuffer(Str("a"))
	if err != nil {
		t.Fatalf("new buffer: %v", err)
	}
	if err := buf.Append(Str("b")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := buf.Append(Int(3)); err != nil {
		t.Fatalf("append: %v", err)
	}
	if got := buf.Value().String(); got != "ab3" {
		t.Fatalf("expected ab3, got %q", got)
	}
}
