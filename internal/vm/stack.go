package vm

import (
	"time"

	"github.com/continuable/luavm/internal/value"
	"github.com/google/uuid"
)

// noHostLevel is the sentinel meaning "no pending splice": host_level
// takes a real value when a suspended chain is serialized (or resumed in
// process) and is reset to this sentinel once the splice has fired.
const noHostLevel = -1

// ExecutionStack is the persistable unit spec section 5 describes: every
// frame of one cooperative call chain, plus the current_level/host_level
// splice bookkeeping that lets a resumed run re-enter at the exact
// OP_CALL that suspended it instead of re-invoking the host. New relative
// to the teacher (go-flux never needed cross-process resume); the
// single-goroutine, one-execution-stack-per-chain shape follows the
// chazu-maggie worker's serialize-by-construction design.
type ExecutionStack struct {
	Frames          []*Frame
	CurrentLevel    int
	HostLevel       int
	ReturnValue     value.Value
	UserEndCall     bool
	ScriptStartTime int64
	SnapshotID      string
	OpenUpvalues    []*UpValue

	// MaxCallDepth, when positive, bounds CurrentLevel: a host sets this
	// from its config.EngineConfig to stop a runaway recursive script
	// from growing Frames without limit. Zero means unbounded.
	MaxCallDepth int

	// MaxRegisters, when positive, bounds how large a single Frame's
	// register file may grow via a multret CALL/VARARG splice. Zero means
	// unbounded.
	MaxRegisters int

	// ErrorHook, when set, receives the message of every raised LuaError
	// before it propagates further (spec section 7). Not part of the
	// serialized snapshot — like any host-provided callable it has no
	// portable identity across a process boundary (decision 7); a host
	// resuming a deserialized chain that wants hook behavior back must
	// re-install it.
	ErrorHook *HostFunc
}

// NewExecutionStack creates a fresh, never-suspended execution context.
func NewExecutionStack() *ExecutionStack {
	return &ExecutionStack{
		HostLevel:       noHostLevel,
		ScriptStartTime: time.Now().Unix(),
		SnapshotID:      uuid.New().String(),
	}
}

// FrameByID returns the frame at the given level, or nil once it has
// been popped. Frame IDs are assigned as the index into Frames at push
// time and never reused while a frame is live, which is exactly the
// address an open UpValue needs (spec section 9).
func (s *ExecutionStack) FrameByID(id int) *Frame {
	if s == nil || id < 0 || id >= len(s.Frames) {
		return nil
	}
	return s.Frames[id]
}

// pushFrame installs a fresh frame at the next level, or — on a resumed
// stack where that level already holds a frame from before suspension —
// reuses it untouched so execution picks up from its saved Pc.
func (s *ExecutionStack) pushFrame(level int, cl *Closure, args value.Varargs) *Frame {
	if level < len(s.Frames) && s.Frames[level] != nil {
		return s.Frames[level]
	}
	fr := newFrame(level, cl)
	fr.bind(args)
	if level < len(s.Frames) {
		s.Frames[level] = fr
	} else {
		s.Frames = append(s.Frames, fr)
	}
	return fr
}

// replaceFrame unconditionally installs a fresh frame at level, closing
// out whatever upvalues the previous occupant (if any) still owned.
// Used for tail-call hops, where the new callee's frame replaces the
// caller's rather than nesting under it.
func (s *ExecutionStack) replaceFrame(level int, cl *Closure, args value.Varargs) *Frame {
	if level < len(s.Frames) && s.Frames[level] != nil {
		s.CloseUpvaluesFrom(level, 0)
	}
	fr := newFrame(level, cl)
	fr.bind(args)
	if level < len(s.Frames) {
		s.Frames[level] = fr
	} else {
		s.Frames = append(s.Frames, fr)
	}
	return fr
}

// popFrame discards the deepest frame and closes any upvalues it still
// owns, since nothing may observe its registers again.
func (s *ExecutionStack) popFrame() {
	n := len(s.Frames)
	if n == 0 {
		return
	}
	last := s.Frames[n-1]
	s.CloseUpvaluesFrom(last.ID, 0)
	s.Frames = s.Frames[:n-1]
}

// findOrMakeOpenUpvalue returns the existing open UpValue for
// (frameID, slot) if one is shared already, else creates it — the
// "findupval" step OP_CLOSURE needs (spec section 4.3).
func (s *ExecutionStack) findOrMakeOpenUpvalue(frameID, slot int) *UpValue {
	for _, uv := range s.OpenUpvalues {
		if uv.IsOpen() && uv.frameID == frameID && uv.slot == slot {
			return uv
		}
	}
	uv := newOpenUpvalue(frameID, slot)
	s.OpenUpvalues = append(s.OpenUpvalues, uv)
	return uv
}

// CloseUpvaluesFrom closes every open upvalue belonging to frameID at or
// above fromSlot — OP_JMP's close-upvalues-on-scope-exit behavior and the
// tail end of a returning frame's cleanup.
func (s *ExecutionStack) CloseUpvaluesFrom(frameID, fromSlot int) {
	kept := s.OpenUpvalues[:0]
	for _, uv := range s.OpenUpvalues {
		if uv.IsOpen() && uv.frameID == frameID && uv.slot >= fromSlot {
			uv.Close(s)
			continue
		}
		kept = append(kept, uv)
	}
	s.OpenUpvalues = kept
}

// CloseAllUpvalues force-closes every still-open upvalue across the whole
// stack. Required before serialization: a cyclic web of open upvalues
// pointing into live frames is not something a tree-shaped encoder like
// cbor can walk, so closing breaks it into an acyclic snapshot (spec
// section 6, and the teacher's duplicate.go visited-map precedent for
// cycle-safe state copies).
func (s *ExecutionStack) CloseAllUpvalues() {
	for _, uv := range s.OpenUpvalues {
		uv.Close(s)
	}
	s.OpenUpvalues = nil
}

// Stop implements the graceful-teardown protocol (spec section 4.8):
// mark the stack as user-ended so that the next Resume enters the root
// frame, where runLoop returns an empty result instead of decoding its
// next instruction — no further script-level side effects run. Frames
// deeper than the one entered are neither executed nor unwound one by
// one, and no per-frame RETURN runs.
func (s *ExecutionStack) Stop() {
	s.UserEndCall = true
}
