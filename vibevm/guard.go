package vibevm

// StmtInfo describes one guarded statement of an instrumented function.
type StmtInfo struct {
	// Line is the line number in the original source file.
	Line int
	// StartIP and EndIP delimit the compiled statement, EndIP exclusive.
	StartIP int
	EndIP   int
	// ResumeVar is the assignment target when the statement is a simple
	// single-name assignment, empty otherwise.
	ResumeVar string
	// Return reports whether the statement is a return statement.
	Return bool
}

// Fault captures a failed or paused guarded statement. Env is the live
// frame environment, mutations through it are visible to the resumed
// execution.
type Fault struct {
	VM      *VM
	Fun     *Function
	StmtIdx int
	Stmt    StmtInfo
	Env     *Env
	// BaseEnv is the frame entry environment, locals live between Env
	// and BaseEnv inclusive.
	BaseEnv *Env
	// Err is nil when the fault is a step pause.
	Err error
}

// Locals collects the frame-local bindings of the fault, innermost
// binding winning.
func (f *Fault) Locals() map[string]any {
	ret := make(map[string]any)
	var envs []*Env
	for e := f.Env; e != nil; e = e.Parent {
		envs = append(envs, e)
		if e == f.BaseEnv {
			break
		}
	}
	for i := len(envs) - 1; i >= 0; i-- {
		for name, val := range envs[i].Vars {
			ret[name] = val
		}
	}
	return ret
}

// Resolution tells the VM how to leave a fault.
type Resolution struct {
	// Value substitutes the failed statement when HasValue is set: it
	// becomes the return value for a return statement, or rebinds the
	// assignment target named by ResumeVar.
	Value    any
	HasValue bool
	// Step requests a pause at the next guarded statement.
	Step bool
	// Err aborts handling: the error propagates to the Run consumer.
	Err error
}

type Handler func(*Fault) Resolution

type raised uint8

const (
	raiseStop raised = iota
	raiseHandled
	raiseContinue
)

// raise routes an execution error. With a handler installed and a
// guarded frame on the stack, control unwinds to that frame and the
// handler decides how to proceed. Otherwise the error is yielded.
func (v *VM) raise(err error, yield func(*Interrupt, error) bool) raised {
	if v.Handler != nil {
		if v.guardStmt >= 0 {
			return v.enterGuard(err, yield)
		}
		for i := len(v.CallStack) - 1; i >= 0; i-- {
			frame := v.CallStack[i]
			if frame.GuardStmt < 0 {
				continue
			}
			v.CallStack = v.CallStack[:i]
			v.CurrentFun = frame.Fun
			v.IP = frame.ReturnIP
			v.Scope = frame.Env
			v.BaseEnv = frame.BaseEnv
			v.BP = frame.BP
			v.guardStmt = frame.GuardStmt
			v.guardSP = frame.GuardSP
			v.guardEnv = frame.GuardEnv
			return v.enterGuard(err, yield)
		}
	}
	if !yield(nil, err) {
		return raiseStop
	}
	return raiseContinue
}

func (v *VM) enterGuard(err error, yield func(*Interrupt, error) bool) raised {
	stmt := v.CurrentFun.Guards[v.guardStmt]
	// discard partial evaluation of the failed statement
	v.drop(v.SP - v.guardSP)
	if v.guardEnv != nil {
		v.Scope = v.guardEnv
	}

	res := v.Handler(&Fault{
		VM:      v,
		Fun:     v.CurrentFun,
		StmtIdx: v.guardStmt,
		Stmt:    stmt,
		Env:     v.Scope,
		BaseEnv: v.BaseEnv,
		Err:     err,
	})

	if res.Err != nil {
		if !yield(nil, res.Err) {
			return raiseStop
		}
	}
	if res.Step {
		v.stepPending = true
	}
	if res.HasValue {
		if stmt.Return {
			v.returnFrom(res.Value)
			return raiseHandled
		}
		if stmt.ResumeVar != "" {
			v.Scope.Def(stmt.ResumeVar, res.Value)
		}
	}
	v.IP = stmt.EndIP
	return raiseHandled
}

// pause enters the handler at a guarded statement without an error,
// before the statement executes.
func (v *VM) pause(yield func(*Interrupt, error) bool) raised {
	stmt := v.CurrentFun.Guards[v.guardStmt]
	res := v.Handler(&Fault{
		VM:      v,
		Fun:     v.CurrentFun,
		StmtIdx: v.guardStmt,
		Stmt:    stmt,
		Env:     v.Scope,
		BaseEnv: v.BaseEnv,
	})
	if res.Err != nil {
		if !yield(nil, res.Err) {
			return raiseStop
		}
	}
	if res.Step {
		v.stepPending = true
	}
	return raiseHandled
}
