package vm

import (
	"github.com/continuable/luavm/internal/proto"
	"github.com/continuable/luavm/internal/value"
)

// frameResult is what runLoop produces when a frame stops executing:
// either a normal return (Values), or an unresolved tail-call trampoline
// (Tail) that the caller — OnInvoke or OnSuspendableInvoke — must loop
// on, per spec section 4.4's description of TAILCALL.
type frameResult struct {
	Values value.Varargs
	Tail   *value.TailcallVarargs
}

// runLoop is the single opcode dispatch core shared by the synchronous
// and suspendable call paths (spec sections 4.4/4.6/4.7 describe them as
// two entry points over the same semantics). suspendable selects whether
// a nested Closure call recurses through OnSuspendableInvoke (able to
// report yielded=true) or through OnInvoke (always runs to completion),
// and whether a SuspendingHostFunc is allowed to actually suspend.
//
// This mirrors the teacher's vm.go Run method: a for loop around a
// switch on decoded opcode, fetching/incrementing pc once per iteration
// except where a jump or a yield needs different bookkeeping.
func runLoop(stack *ExecutionStack, fr *Frame, suspendable bool) (res frameResult, yielded bool, err error) {
	cl := fr.Closure
	code := cl.Proto.Code

	defer func() {
		if err != nil {
			err = passThroughErrorHook(stack, err)
		}
	}()

	if stack.UserEndCall {
		stack.CloseUpvaluesFrom(fr.ID, 0)
		return frameResult{Values: value.Varargs{}}, false, nil
	}

	for {
		if fr.Pc < 0 || fr.Pc >= len(code) {
			return frameResult{}, false, newLuaError(fr, "pc out of range")
		}
		pc := fr.Pc
		instr := code[pc]
		op := instr.Op()
		a := instr.A()

		switch op {
		case proto.OP_MOVE:
			fr.Regs[a] = fr.Regs[instr.B()]

		case proto.OP_LOADK:
			fr.Regs[a] = cl.Proto.K[instr.Bx()]

		case proto.OP_LOADBOOL:
			fr.Regs[a] = value.Bool(instr.B() != 0)
			if instr.C() != 0 {
				fr.Pc = pc + 2
				continue
			}

		case proto.OP_LOADNIL:
			b := instr.B()
			for i := a; i <= a+b; i++ {
				fr.Regs[i] = value.Nil()
			}

		case proto.OP_GETUPVAL:
			fr.Regs[a] = upvalAt(cl, instr.B()).Get(stack)

		case proto.OP_SETUPVAL:
			upvalAt(cl, instr.B()).Set(stack, fr.Regs[a])

		case proto.OP_GETTABUP:
			// simplified per spec section 3's Closure data model: Env is a
			// direct field rather than a captured _ENV upvalue, so B (the
			// conventional upvalue index) is not consulted.
			key := rk(fr, cl, instr.C())
			v, err := GetTable(fr, cl.Env, key)
			if err != nil {
				return frameResult{}, false, err
			}
			fr.Regs[a] = v

		case proto.OP_SETTABUP:
			key := rk(fr, cl, instr.B())
			val := rk(fr, cl, instr.C())
			if err := SetTable(fr, cl.Env, key, val); err != nil {
				return frameResult{}, false, err
			}

		case proto.OP_GETTABLE:
			key := rk(fr, cl, instr.C())
			v, err := GetTable(fr, fr.Regs[instr.B()], key)
			if err != nil {
				return frameResult{}, false, err
			}
			fr.Regs[a] = v

		case proto.OP_SETTABLE:
			key := rk(fr, cl, instr.B())
			val := rk(fr, cl, instr.C())
			if err := SetTable(fr, fr.Regs[a], key, val); err != nil {
				return frameResult{}, false, err
			}

		case proto.OP_NEWTABLE:
			fr.Regs[a] = value.TableVal(value.NewTable())

		case proto.OP_SELF:
			obj := fr.Regs[instr.B()]
			fr.Regs[a+1] = obj
			key := rk(fr, cl, instr.C())
			v, err := GetTable(fr, obj, key)
			if err != nil {
				return frameResult{}, false, err
			}
			fr.Regs[a] = v

		case proto.OP_ADD, proto.OP_SUB, proto.OP_MUL, proto.OP_DIV, proto.OP_MOD, proto.OP_POW:
			x := rk(fr, cl, instr.B())
			y := rk(fr, cl, instr.C())
			res, err := arithOp(op, x, y)
			if err != nil {
				return frameResult{}, false, wrapLuaError(fr, err)
			}
			fr.Regs[a] = res

		case proto.OP_UNM:
			res, err := value.Unm(fr.Regs[instr.B()])
			if err != nil {
				return frameResult{}, false, wrapLuaError(fr, err)
			}
			fr.Regs[a] = res

		case proto.OP_NOT:
			fr.Regs[a] = value.Not(fr.Regs[instr.B()])

		case proto.OP_LEN:
			res, err := value.Len(fr.Regs[instr.B()])
			if err != nil {
				return frameResult{}, false, wrapLuaError(fr, err)
			}
			fr.Regs[a] = res

		case proto.OP_CONCAT:
			// Left-to-right accumulation through value.Buffer, per spec
			// section 4.1's description of CONCAT, rather than folding
			// pairwise.
			b, c := instr.B(), instr.C()
			buf, err := value.NewBuffer(fr.Regs[b])
			if err != nil {
				return frameResult{}, false, wrapLuaError(fr, err)
			}
			for i := b + 1; i <= c; i++ {
				if err := buf.Append(fr.Regs[i]); err != nil {
					return frameResult{}, false, wrapLuaError(fr, err)
				}
			}
			fr.Regs[a] = buf.Value()

		case proto.OP_JMP:
			if a > 0 {
				stack.CloseUpvaluesFrom(fr.ID, a-1)
			}
			fr.Pc = pc + 1 + instr.SBx()
			continue

		case proto.OP_EQ, proto.OP_LT, proto.OP_LE:
			x := rk(fr, cl, instr.B())
			y := rk(fr, cl, instr.C())
			var cond bool
			var err error
			switch op {
			case proto.OP_EQ:
				cond, err = eqValues(x, y)
			case proto.OP_LT:
				cond, err = value.Lt(x, y)
			case proto.OP_LE:
				cond, err = value.Le(x, y)
			}
			if err != nil {
				return frameResult{}, false, wrapLuaError(fr, err)
			}
			if cond != (a != 0) {
				fr.Pc = pc + 2
				continue
			}

		case proto.OP_TEST:
			if fr.Regs[a].ToBoolean() != (instr.C() != 0) {
				fr.Pc = pc + 2
				continue
			}

		case proto.OP_TESTSET:
			v := fr.Regs[instr.B()]
			if v.ToBoolean() != (instr.C() != 0) {
				fr.Pc = pc + 2
				continue
			}
			fr.Regs[a] = v

		case proto.OP_CALL:
			args := gatherArgs(fr, a, instr.B())
			values, yielded, err := dispatchCall(stack, fr, a, fr.Regs[a], args, suspendable)
			if err != nil {
				return frameResult{}, false, err
			}
			if yielded {
				return frameResult{}, true, nil
			}
			if err := storeResults(stack, fr, a, instr.C(), values); err != nil {
				return frameResult{}, false, err
			}

		case proto.OP_TAILCALL:
			args := gatherArgs(fr, a, instr.B())
			callee := fr.Regs[a]
			if !callee.IsFunction() {
				return frameResult{}, false, newLuaError(fr, "attempt to call a %s value", callee.TypeName())
			}
			stack.CloseUpvaluesFrom(fr.ID, 0)
			return frameResult{Tail: &value.TailcallVarargs{Callee: callee.Fn, Args: args}}, false, nil

		case proto.OP_RETURN:
			// B=1 returns nothing, B>=2 returns B-1 values starting at a
			// itself, B=0 returns every register from a up to fr.Top.
			var vals value.Varargs
			if b := instr.B(); b == 0 {
				n := fr.Top - a
				if n < 0 {
					n = 0
				}
				vals = value.ArgsFromSlice(append([]value.Value(nil), fr.Regs[a:a+n]...))
			} else {
				vals = value.ArgsFromSlice(append([]value.Value(nil), fr.Regs[a:a+b-1]...))
			}
			stack.CloseUpvaluesFrom(fr.ID, 0)
			return frameResult{Values: vals}, false, nil

		case proto.OP_FORPREP:
			initV, limitV, stepV := fr.Regs[a], fr.Regs[a+1], fr.Regs[a+2]
			init, limit, step, err := forNumbers(fr, initV, limitV, stepV)
			if err != nil {
				return frameResult{}, false, err
			}
			fr.Regs[a], fr.Regs[a+1], fr.Regs[a+2] = init, limit, step
			fr.Regs[a] = forSub(init, step)
			fr.Pc = pc + 1 + instr.SBx()
			continue

		case proto.OP_FORLOOP:
			next := forAdd(fr.Regs[a], fr.Regs[a+2])
			if forContinues(next, fr.Regs[a+1], fr.Regs[a+2]) {
				fr.Regs[a] = next
				fr.Regs[a+3] = next
				fr.Pc = pc + 1 + instr.SBx()
				continue
			}

		case proto.OP_TFORCALL:
			c := instr.C()
			funcV := fr.Regs[a]
			args := value.Args(fr.Regs[a+1], fr.Regs[a+2])
			values, yielded, err := dispatchCall(stack, fr, a+3, funcV, args, suspendable)
			if err != nil {
				return frameResult{}, false, err
			}
			if yielded {
				return frameResult{}, true, nil
			}
			if err := storeResults(stack, fr, a+3, c+1, values); err != nil {
				return frameResult{}, false, err
			}

		case proto.OP_TFORLOOP:
			if !fr.Regs[a+1].IsNil() {
				fr.Regs[a] = fr.Regs[a+1]
				fr.Pc = pc + 1 + instr.SBx()
				continue
			}

		case proto.OP_SETLIST:
			b, c := instr.B(), instr.C()
			if c == 0 {
				// The count lives in the following EXTRAARG word; stepping
				// the local pc past it makes the epilogue below land two
				// past this SETLIST.
				c = int(code[pc+1].Bx())
				pc++
			}
			t := fr.Regs[a]
			if !t.IsTable() {
				return frameResult{}, false, newLuaError(fr, "attempt to index a %s value", t.TypeName())
			}
			n := b
			if n == 0 {
				n = fr.Top - (a + 1)
			}
			const fieldsPerFlush = 50
			base := (c - 1) * fieldsPerFlush
			for i := 1; i <= n; i++ {
				t.T.RawSet(value.Int(int64(base+i)), fr.Regs[a+i])
			}

		case proto.OP_CLOSURE:
			child := cl.Proto.P[instr.Bx()]
			nc := &Closure{Proto: child, Env: cl.Env, Name: child.Source}
			nc.Upvalues = make([]*UpValue, len(child.Upvalues))
			for i, ud := range child.Upvalues {
				if ud.InStack {
					nc.Upvalues[i] = stack.findOrMakeOpenUpvalue(fr.ID, int(ud.Idx))
				} else {
					nc.Upvalues[i] = upvalAt(cl, int(ud.Idx))
				}
			}
			fr.Regs[a] = value.FuncVal(nc)

		case proto.OP_VARARG:
			b := instr.B()
			if b == 0 {
				need := a + fr.Varargs.Len()
				if stack.MaxRegisters > 0 && need > stack.MaxRegisters {
					return frameResult{}, false, newLuaError(fr, "register file exceeds configured limit (%d)", stack.MaxRegisters)
				}
				fr.growTo(need)
				for i := 0; i < fr.Varargs.Len(); i++ {
					fr.Regs[a+i] = fr.Varargs.Arg(i + 1)
				}
				fr.Top = a + fr.Varargs.Len()
			} else {
				for i := 0; i < b-1; i++ {
					fr.Regs[a+i] = fr.Varargs.Arg(i + 1)
				}
			}

		case proto.OP_EXTRAARG:
			// only ever consumed inline by OP_SETLIST; reaching it as a
			// freestanding instruction is a no-op.

		default:
			// spec section 7: IllegalOpcode is fatal and is never surfaced
			// on its own — it is always immediately wrapped into a LuaError
			// at the point of detection.
			return frameResult{}, false, wrapLuaError(fr, &IllegalOpcode{Source: cl.Proto.Source, Pc: pc, Op: byte(op)})
		}

		fr.Pc = pc + 1
	}
}

func upvalAt(cl *Closure, idx int) *UpValue {
	if idx < 0 || idx >= len(cl.Upvalues) {
		return nil
	}
	return cl.Upvalues[idx]
}

func rk(fr *Frame, cl *Closure, x int) value.Value {
	if proto.IsConstant(x) {
		return cl.Proto.K[proto.ConstIndex(x)]
	}
	return fr.Regs[x]
}

// gatherArgs implements the B-operand calling convention: B=1 means no
// arguments, B>=2 means B-1 fixed arguments starting at a+1, B=0 means
// "every register from a+1 up to the frame's current Top", the
// multret convention a preceding CALL/VARARG with an open result count
// leaves behind.
func gatherArgs(fr *Frame, a, b int) value.Varargs {
	if b == 0 {
		n := fr.Top - (a + 1)
		if n < 0 {
			n = 0
		}
		return value.ArgsFromSlice(append([]value.Value(nil), fr.Regs[a+1:a+1+n]...))
	}
	return value.ArgsFromSlice(append([]value.Value(nil), fr.Regs[a+1:a+b]...))
}

// storeResults implements the C-operand result convention: C=1 discards
// all results, C>=2 stores C-1 results (nil-padded) starting at a, C=0
// stores every result and leaves fr.Top open for a subsequent B=0 read.
func storeResults(stack *ExecutionStack, fr *Frame, a, c int, vs value.Varargs) error {
	if c == 0 {
		need := a + vs.Len()
		if stack.MaxRegisters > 0 && need > stack.MaxRegisters {
			return newLuaError(fr, "register file exceeds configured limit (%d)", stack.MaxRegisters)
		}
		fr.growTo(need)
		for i := 0; i < vs.Len(); i++ {
			fr.Regs[a+i] = vs.Arg(i + 1)
		}
		fr.Top = a + vs.Len()
		return nil
	}
	n := c - 1
	fr.growTo(a + n)
	for i := 0; i < n; i++ {
		fr.Regs[a+i] = vs.Arg(i + 1)
	}
	return nil
}

// dispatchCall implements the one place spec section 4.6/4.7 describes
// suspension happening: a CALL (or TFORCALL) whose callee is a
// host-provided suspending function, or a nested Closure running on the
// suspendable path.
func dispatchCall(stack *ExecutionStack, fr *Frame, a int, callee value.Value, args value.Varargs, suspendable bool) (values value.Varargs, yielded bool, err error) {
	if suspendable {
		// The splice check must run before any validation of callee: on a
		// resumed chain, the register that used to hold a host-provided
		// callable was restored as a placeholder nil (spec section 6 — a
		// host-provided callable has no portable identity to snapshot),
		// but this CALL instruction is never actually re-invoked, only
		// recognized and spliced over.
		level := fr.ID + 1
		if level == stack.HostLevel {
			rv := stack.ReturnValue
			stack.HostLevel = noHostLevel
			stack.CurrentLevel = fr.ID
			return value.Args(rv), false, nil
		}
	}

	if !callee.IsFunction() {
		// Supplemented feature: a nil (or otherwise non-function) callee
		// always takes the synchronous error path, even under the
		// suspendable dispatch loop — there is nothing to suspend on.
		return value.Varargs{}, false, newLuaError(fr, "attempt to call a %s value", callee.TypeName())
	}

	if suspendable {
		level := fr.ID + 1
		if stack.MaxCallDepth > 0 && level > stack.MaxCallDepth {
			return value.Varargs{}, false, newLuaError(fr, "call depth exceeds configured limit (%d)", stack.MaxCallDepth)
		}
		stack.CurrentLevel = level
		switch fn := callee.Fn.(type) {
		case *Closure:
			vs, y, err := fn.OnSuspendableInvoke(stack, level, args)
			if err != nil || y {
				// A yield (or error) below must leave stack.CurrentLevel at
				// whatever depth the suspension actually happened at — that
				// is what Serialize() later captures as HostLevel. Resetting
				// it to fr.ID here would make every enclosing caller erase
				// the real suspended depth on its own way back out, so a
				// nested resume could never find its splice point again.
				return value.Varargs{}, y, err
			}
			stack.CurrentLevel = fr.ID
			return vs, false, nil
		case *HostFunc:
			vs, err := fn.Fn(args)
			stack.CurrentLevel = fr.ID
			if err != nil {
				return value.Varargs{}, false, newHostException(fn.Name, err)
			}
			return vs, false, nil
		case *SuspendingHostFunc:
			vs, susp, err := fn.Fn(stack, args)
			if err != nil {
				return value.Varargs{}, false, newHostException(fn.Name, err)
			}
			if susp {
				return value.Varargs{}, true, nil
			}
			stack.CurrentLevel = fr.ID
			return vs, false, nil
		}
		return value.Varargs{}, false, newLuaError(fr, "attempt to call an uncallable function value")
	}

	switch fn := callee.Fn.(type) {
	case *Closure:
		vs, err := fn.Invoke(args)
		if err != nil {
			return value.Varargs{}, false, err
		}
		return vs, false, nil
	case *HostFunc:
		vs, err := fn.Fn(args)
		if err != nil {
			return value.Varargs{}, false, newHostException(fn.Name, err)
		}
		return vs, false, nil
	case *SuspendingHostFunc:
		vs, susp, err := fn.Fn(nil, args)
		if err != nil {
			return value.Varargs{}, false, newHostException(fn.Name, err)
		}
		if susp {
			return value.Varargs{}, false, newHostException(fn.Name, errCannotSuspendHere)
		}
		return vs, false, nil
	}
	return value.Varargs{}, false, newLuaError(fr, "attempt to call an uncallable function value")
}
