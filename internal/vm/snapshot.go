package vm

import (
	"github.com/continuable/luavm/internal/proto"
	"github.com/continuable/luavm/internal/value"
	"github.com/fxamacker/cbor/v2"
)

// wireSnapshot (below) is the self-contained, wire-friendly image of a suspended
// ExecutionStack: every frame, every closure and table reachable from
// it, and every prototype those closures run, flattened into indexed
// tables so the graph survives a round trip through cbor's tree-shaped
// encoder. Modeled on chazu-maggie's vm/dist/wire.go MarshalChunk
// pattern (flatten-with-index-refs, cbor canonical mode) combined with
// the teacher's duplicate.go visited-map approach to cycle safety.
//
// Serialization requires every UpValue reachable from the stack to
// already be closed (spec section 6): an open upvalue's identity is a
// live (frameID, slot) pointer into a Frame that is itself only
// reachable through this same snapshot, and a tree encoder cannot walk
// that cycle. CloseAllUpvalues breaks it into a plain acyclic DAG of
// closed values before any of this runs.
type wireValue struct {
	Kind int8
	B    bool
	I    int64
	F    float64
	S    string
	Ref  int // index into the enclosing snapshot's Tables or Closures, by Kind
}

const refNone = -1

type wireProto struct {
	Source       string
	Code         []uint32
	K            []wireValue
	P            []int // indices into the flattened Prototypes list
	Upvalues     []proto.UpvalueDesc
	NumParams    uint8
	IsVararg     bool
	MaxStackSize uint8
	LineInfo     []int
}

type wireTable struct {
	Array    []wireValue
	HashKeys []wireValue
	HashVals []wireValue
	Meta     int
}

type wireClosure struct {
	ProtoRef int
	Env      wireValue
	Name     string
	Upvalues []wireValue
}

type wireFrame struct {
	ClosureRef int
	Pc         int
	Regs       []wireValue
	Varargs    []wireValue
	Top        int
}

type wireSnapshot struct {
	Prototypes      []wireProto
	Tables          []wireTable
	Closures        []wireClosure
	Frames          []wireFrame
	CurrentLevel    int
	HostLevel       int
	ReturnValue     wireValue
	UserEndCall     bool
	ScriptStartTime int64
	SnapshotID      string
	MaxCallDepth    int
	MaxRegisters    int
}

// encoder accumulates the flattened object tables during one DFS walk
// of a live execution graph, deduplicating by pointer identity so a
// table or closure referenced from multiple places is written once.
type encoder struct {
	protos    map[*proto.Prototype]int
	tables    map[*value.Table]int
	closures  map[*Closure]int
	protoList []wireProto
	tableList []wireTable
	closList  []wireClosure
}

func newEncoder() *encoder {
	return &encoder{
		protos:   make(map[*proto.Prototype]int),
		tables:   make(map[*value.Table]int),
		closures: make(map[*Closure]int),
	}
}

func (e *encoder) value(v value.Value) wireValue {
	switch v.Kind {
	case value.KindNil:
		return wireValue{Kind: int8(value.KindNil), Ref: refNone}
	case value.KindBool:
		return wireValue{Kind: int8(value.KindBool), B: v.B, Ref: refNone}
	case value.KindInt:
		return wireValue{Kind: int8(value.KindInt), I: v.I, Ref: refNone}
	case value.KindFloat:
		return wireValue{Kind: int8(value.KindFloat), F: v.F, Ref: refNone}
	case value.KindString:
		return wireValue{Kind: int8(value.KindString), S: v.S, Ref: refNone}
	case value.KindTable:
		return wireValue{Kind: int8(value.KindTable), Ref: e.table(v.T)}
	case value.KindFunction:
		if cl, ok := v.Fn.(*Closure); ok {
			return wireValue{Kind: int8(value.KindFunction), Ref: e.closure(cl)}
		}
		// Host-provided callables have no portable identity: a snapshot
		// resumed in a fresh process can only re-acquire them by name
		// through whatever host-binding step reconstructs the engine, not
		// by value. Encoding a placeholder keeps the register slot shaped
		// right; the host driver is responsible for re-binding it after
		// DeserializeExecutionContext.
		return wireValue{Kind: int8(value.KindFunction), S: v.Fn.FuncID(), Ref: refNone}
	default:
		return wireValue{Kind: int8(value.KindNil), Ref: refNone}
	}
}

func (e *encoder) table(t *value.Table) int {
	if t == nil {
		return refNone
	}
	if idx, ok := e.tables[t]; ok {
		return idx
	}
	idx := len(e.tableList)
	e.tables[t] = idx
	e.tableList = append(e.tableList, wireTable{})

	wt := wireTable{Meta: refNone}
	for _, v := range t.Array {
		wt.Array = append(wt.Array, e.value(v))
	}
	for k, v := range t.Hash {
		wt.HashKeys = append(wt.HashKeys, e.value(k))
		wt.HashVals = append(wt.HashVals, e.value(v))
	}
	if t.Meta != nil {
		wt.Meta = e.table(t.Meta)
	}
	e.tableList[idx] = wt
	return idx
}

func (e *encoder) closure(cl *Closure) int {
	if cl == nil {
		return refNone
	}
	if idx, ok := e.closures[cl]; ok {
		return idx
	}
	idx := len(e.closList)
	e.closures[cl] = idx
	e.closList = append(e.closList, wireClosure{})

	wc := wireClosure{
		ProtoRef: e.prototype(cl.Proto),
		Env:      e.value(cl.Env),
		Name:     cl.Name,
	}
	for _, uv := range cl.Upvalues {
		// Every upvalue must be closed by this point (CloseAllUpvalues ran
		// before Serialize); Get with a nil stack is safe precisely because
		// a closed cell never touches its stack argument.
		wc.Upvalues = append(wc.Upvalues, e.value(uv.Get(nil)))
	}
	e.closList[idx] = wc
	return idx
}

func (e *encoder) prototype(p *proto.Prototype) int {
	if p == nil {
		return refNone
	}
	if idx, ok := e.protos[p]; ok {
		return idx
	}
	idx := len(e.protoList)
	e.protos[p] = idx
	e.protoList = append(e.protoList, wireProto{})

	wp := wireProto{
		Source:       p.Source,
		Upvalues:     p.Upvalues,
		NumParams:    p.NumParams,
		IsVararg:     p.IsVararg,
		MaxStackSize: p.MaxStackSize,
		LineInfo:     append([]int(nil), p.LineInfo...),
	}
	for _, instr := range p.Code {
		wp.Code = append(wp.Code, uint32(instr))
	}
	for _, k := range p.K {
		wp.K = append(wp.K, e.value(k))
	}
	for _, child := range p.P {
		wp.P = append(wp.P, e.prototype(child))
	}
	e.protoList[idx] = wp
	return idx
}

// decoder rebuilds live objects from a wireSnapshot, memoizing by index
// so shared references are restored as shared pointers rather than
// duplicated.
type decoder struct {
	snap      *wireSnapshot
	protos    []*proto.Prototype
	tables    []*value.Table
	closures  []*Closure
	protoDone []bool
	tableDone []bool
	closDone  []bool
}

func newDecoder(snap *wireSnapshot) *decoder {
	return &decoder{
		snap:      snap,
		protos:    make([]*proto.Prototype, len(snap.Prototypes)),
		tables:    make([]*value.Table, len(snap.Tables)),
		closures:  make([]*Closure, len(snap.Closures)),
		protoDone: make([]bool, len(snap.Prototypes)),
		tableDone: make([]bool, len(snap.Tables)),
		closDone:  make([]bool, len(snap.Closures)),
	}
}

func (d *decoder) value(wv wireValue) value.Value {
	switch value.Kind(wv.Kind) {
	case value.KindNil:
		return value.Nil()
	case value.KindBool:
		return value.Bool(wv.B)
	case value.KindInt:
		return value.Int(wv.I)
	case value.KindFloat:
		return value.Float(wv.F)
	case value.KindString:
		return value.Str(wv.S)
	case value.KindTable:
		return value.TableVal(d.table(wv.Ref))
	case value.KindFunction:
		if wv.Ref == refNone {
			return value.Nil() // unresolved host callable; host must re-bind.
		}
		return value.FuncVal(d.closure(wv.Ref))
	default:
		return value.Nil()
	}
}

func (d *decoder) table(ref int) *value.Table {
	if ref == refNone {
		return nil
	}
	if d.tableDone[ref] {
		return d.tables[ref]
	}
	t := value.NewTable()
	d.tables[ref] = t
	d.tableDone[ref] = true

	wt := d.snap.Tables[ref]
	for _, v := range wt.Array {
		t.Array = append(t.Array, d.value(v))
	}
	for i, k := range wt.HashKeys {
		t.RawSet(d.value(k), d.value(wt.HashVals[i]))
	}
	if wt.Meta != refNone {
		t.Meta = d.table(wt.Meta)
	}
	return t
}

func (d *decoder) closure(ref int) *Closure {
	if ref == refNone {
		return nil
	}
	if d.closDone[ref] {
		return d.closures[ref]
	}
	cl := &Closure{}
	d.closures[ref] = cl
	d.closDone[ref] = true

	wc := d.snap.Closures[ref]
	cl.Proto = d.prototype(wc.ProtoRef)
	cl.Env = d.value(wc.Env)
	cl.Name = wc.Name
	for _, wv := range wc.Upvalues {
		uv := &UpValue{open: false, closed: d.value(wv)}
		cl.Upvalues = append(cl.Upvalues, uv)
	}
	return cl
}

func (d *decoder) prototype(ref int) *proto.Prototype {
	if ref == refNone {
		return nil
	}
	if d.protoDone[ref] {
		return d.protos[ref]
	}
	p := &proto.Prototype{}
	d.protos[ref] = p
	d.protoDone[ref] = true

	wp := d.snap.Prototypes[ref]
	p.Source = wp.Source
	p.Upvalues = wp.Upvalues
	p.NumParams = wp.NumParams
	p.IsVararg = wp.IsVararg
	p.MaxStackSize = wp.MaxStackSize
	p.LineInfo = wp.LineInfo
	for _, c := range wp.Code {
		p.Code = append(p.Code, proto.Instruction(c))
	}
	for _, k := range wp.K {
		p.K = append(p.K, d.value(k))
	}
	for _, cref := range wp.P {
		p.P = append(p.P, d.prototype(cref))
	}
	return p
}

func cborMode() (cbor.EncMode, error) {
	return cbor.CanonicalEncOptions().EncMode()
}

// Serialize produces a self-contained snapshot of this ExecutionStack,
// suitable for storage and later rehydration in a different process via
// DeserializeExecutionContext (spec section 6). It force-closes every
// open upvalue first, which is the step that turns the live call graph
// into something a tree-shaped encoder can walk.
func (s *ExecutionStack) Serialize() ([]byte, error) {
	s.CloseAllUpvalues()

	// The pending call that suspended this chain sits at depth
	// CurrentLevel; recording it as HostLevel and resetting CurrentLevel
	// to 0 is what lets a resumed run recognize, purely by re-decoding
	// the same CALL instruction at the same relative depth, that this is
	// a splice rather than a fresh invocation (spec section 6).
	s.HostLevel = s.CurrentLevel
	s.CurrentLevel = 0

	e := newEncoder()
	snap := wireSnapshot{
		CurrentLevel:    s.CurrentLevel,
		HostLevel:       s.HostLevel,
		ReturnValue:     e.value(s.ReturnValue),
		UserEndCall:     s.UserEndCall,
		ScriptStartTime: s.ScriptStartTime,
		SnapshotID:      s.SnapshotID,
		MaxCallDepth:    s.MaxCallDepth,
		MaxRegisters:    s.MaxRegisters,
	}
	for _, fr := range s.Frames {
		wf := wireFrame{
			ClosureRef: e.closure(fr.Closure),
			Pc:         fr.Pc,
			Top:        fr.Top,
		}
		for _, r := range fr.Regs {
			wf.Regs = append(wf.Regs, e.value(r))
		}
		for i := 1; i <= fr.Varargs.Len(); i++ {
			wf.Varargs = append(wf.Varargs, e.value(fr.Varargs.Arg(i)))
		}
		snap.Frames = append(snap.Frames, wf)
	}
	snap.Prototypes = e.protoList
	snap.Tables = e.tableList
	snap.Closures = e.closList

	mode, err := cborMode()
	if err != nil {
		return nil, err
	}
	return mode.Marshal(snap)
}

// DeserializeExecutionContext rebuilds an ExecutionStack and its root
// Closure from a snapshot produced by Serialize, in a fresh process with
// no prior state. The returned closure's ExecutionStack is already set;
// calling SuspendableCall on it resumes exactly where it suspended.
func DeserializeExecutionContext(data []byte) (*Closure, *ExecutionStack, error) {
	var snap wireSnapshot
	if err := cbor.Unmarshal(data, &snap); err != nil {
		return nil, nil, err
	}

	stack := &ExecutionStack{
		CurrentLevel:    snap.CurrentLevel,
		HostLevel:       snap.HostLevel,
		UserEndCall:     snap.UserEndCall,
		ScriptStartTime: snap.ScriptStartTime,
		SnapshotID:      snap.SnapshotID,
		MaxCallDepth:    snap.MaxCallDepth,
		MaxRegisters:    snap.MaxRegisters,
	}

	d := newDecoder(&snap)
	stack.ReturnValue = d.value(snap.ReturnValue)
	for _, wf := range snap.Frames {
		fr := &Frame{
			Closure: d.closure(wf.ClosureRef),
			Pc:      wf.Pc,
			Top:     wf.Top,
		}
		for _, wv := range wf.Regs {
			fr.Regs = append(fr.Regs, d.value(wv))
		}
		var va []value.Value
		for _, wv := range wf.Varargs {
			va = append(va, d.value(wv))
		}
		fr.Varargs = value.ArgsFromSlice(va)
		stack.Frames = append(stack.Frames, fr)
	}
	for i, fr := range stack.Frames {
		fr.ID = i
	}

	var root *Closure
	if len(stack.Frames) > 0 {
		root = stack.Frames[0].Closure
	}
	if root != nil {
		root.ExecutionStack = stack
	}
	return root, stack, nil
}
