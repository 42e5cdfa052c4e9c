package vibevm

import (
	"errors"
	"testing"
)

// x = 1 / 0
// return x
func guardedDivFunc() *Function {
	return &Function{
		Name: "f",
		Code: []OpCode{
			OpGuard.With(0),
			OpLoadConst.With(0),
			OpLoadConst.With(1),
			OpDiv,
			OpDefVar.With(2),
			OpGuard.With(1),
			OpLoadVar.With(2),
			OpReturn,
		},
		Constants: []any{int64(1), int64(0), "x"},
		Guards: []StmtInfo{
			{Line: 2, StartIP: 0, EndIP: 5, ResumeVar: "x"},
			{Line: 3, StartIP: 5, EndIP: 8, Return: true},
		},
	}
}

func TestGuardResumeValue(t *testing.T) {
	vm := NewVM(guardedDivFunc())

	var faults []*Fault
	vm.Handler = func(f *Fault) Resolution {
		faults = append(faults, f)
		return Resolution{
			Value:    int64(42),
			HasValue: true,
		}
	}

	for _, err := range vm.Run {
		t.Fatal(err)
	}

	if len(faults) != 1 {
		t.Fatalf("got %d faults", len(faults))
	}
	if faults[0].Err == nil {
		t.Fatal("expected error")
	}
	if faults[0].Stmt.Line != 2 {
		t.Fatalf("got line %d", faults[0].Stmt.Line)
	}
	if res := vm.Result(); res != int64(42) {
		t.Fatalf("got %v", res)
	}
}

func TestGuardSkip(t *testing.T) {
	vm := NewVM(guardedDivFunc())

	var errs []error
	vm.Handler = func(f *Fault) Resolution {
		errs = append(errs, f.Err)
		return Resolution{}
	}

	var runErrs []error
	for _, err := range vm.Run {
		runErrs = append(runErrs, err)
	}

	// first fault skips the assignment, so the return statement faults
	// on the undefined variable
	if len(errs) != 2 {
		t.Fatalf("got %d faults", len(errs))
	}
	if len(runErrs) != 0 {
		t.Fatalf("got %v", runErrs)
	}
}

func TestGuardStepPause(t *testing.T) {
	vm := NewVM(guardedDivFunc())

	var pauses int
	vm.Handler = func(f *Fault) Resolution {
		if f.Err == nil {
			pauses++
			return Resolution{}
		}
		return Resolution{
			Value:    int64(7),
			HasValue: true,
			Step:     true,
		}
	}

	for _, err := range vm.Run {
		t.Fatal(err)
	}

	if pauses != 1 {
		t.Fatalf("got %d pauses", pauses)
	}
	if res := vm.Result(); res != int64(7) {
		t.Fatalf("got %v", res)
	}
}

func TestGuardAbort(t *testing.T) {
	vm := NewVM(guardedDivFunc())

	abort := errors.New("session terminated")
	vm.Handler = func(f *Fault) Resolution {
		return Resolution{
			Err: abort,
		}
	}

	var got []error
	for _, err := range vm.Run {
		got = append(got, err)
		break
	}
	if len(got) != 1 || !errors.Is(got[0], abort) {
		t.Fatalf("got %v", got)
	}
}

func TestUnguardedErrorYields(t *testing.T) {
	fn := &Function{
		Name: "main",
		Code: []OpCode{
			OpLoadVar.With(0),
			OpReturn,
		},
		Constants: []any{"nope"},
	}
	vm := NewVM(fn)

	var errs []error
	for _, err := range vm.Run {
		errs = append(errs, err)
	}
	if len(errs) != 1 {
		t.Fatalf("got %v", errs)
	}
}

func TestGuardUnwindsNestedCall(t *testing.T) {
	// callee has no guards, fails on an undefined variable
	callee := &Function{
		Name: "boom",
		Code: []OpCode{
			OpLoadVar.With(0),
			OpReturn,
		},
		Constants: []any{"nope"},
	}

	// y = boom()
	// return y
	caller := &Function{
		Name: "caller",
		Code: []OpCode{
			OpGuard.With(0),
			OpLoadVar.With(0),
			OpCall.With(0),
			OpDefVar.With(1),
			OpGuard.With(1),
			OpLoadVar.With(1),
			OpReturn,
		},
		Constants: []any{"boom", "y"},
		Guards: []StmtInfo{
			{Line: 10, StartIP: 0, EndIP: 4, ResumeVar: "y"},
			{Line: 11, StartIP: 4, EndIP: 7, Return: true},
		},
	}

	vm := NewVM(caller)
	vm.Def("boom", &Closure{Fun: callee, Env: vm.Scope})

	var faults []*Fault
	vm.Handler = func(f *Fault) Resolution {
		faults = append(faults, f)
		return Resolution{
			Value:    int64(1),
			HasValue: true,
		}
	}

	for _, err := range vm.Run {
		t.Fatal(err)
	}

	if len(faults) != 1 {
		t.Fatalf("got %d faults", len(faults))
	}
	if faults[0].Fun != caller {
		t.Fatalf("fault in %s", faults[0].Fun.Name)
	}
	if faults[0].Stmt.Line != 10 {
		t.Fatalf("got line %d", faults[0].Stmt.Line)
	}
	if res := vm.Result(); res != int64(1) {
		t.Fatalf("got %v", res)
	}
}
