package value

import "strings"

// Buffer supports left-to-right string accumulation, the shape CONCAT
// needs when folding a run of registers without building intermediate
// strings pairwise. It is bound to the Value that produced it only in the
// sense that Value() re-wraps the accumulated text as a string Value.
type Buffer struct {
	b strings.Builder
}

// NewBuffer creates a buffer seeded with an initial value's string form.
func NewBuffer(seed Value) (*Buffer, error) {
	buf := &Buffer{}
	s, ok := concatString(seed)
	if !ok {
		return nil, errf("attempt to concatenate a %s value", seed.TypeName())
	}
	buf.b.WriteString(s)
	return buf, nil
}

// Append adds another value's string form to the buffer.
func (buf *Buffer) Append(v Value) error {
	s, ok := concatString(v)
	if !ok {
		return errf("attempt to concatenate a %s value", v.TypeName())
	}
	buf.b.WriteString(s)
	return nil
}

// Value flattens the buffer into a string Value.
func (buf *Buffer) Value() Value {
	return Str(buf.b.String())
}
