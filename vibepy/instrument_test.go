package vibepy

import (
	"errors"
	"strings"
	"testing"

	"github.com/vibego/vibego/sourcemaps"
	"github.com/vibego/vibego/vibevm"
)

func instrumentFunc(t *testing.T, vm *vibevm.VM, name string, registry *sourcemaps.Registry) *vibevm.Closure {
	t.Helper()
	val, ok := vm.Get(name)
	if !ok {
		t.Fatalf("%s not found", name)
	}
	closure, ok := val.(*vibevm.Closure)
	if !ok {
		t.Fatalf("%s is %T", name, val)
	}
	instrumented, err := Instrument(closure, registry)
	if err != nil {
		t.Fatal(err)
	}
	vm.Def(name, instrumented)
	return instrumented
}

func call(t *testing.T, vm *vibevm.VM, expr string) any {
	t.Helper()
	fn, err := CompileExpr("call", expr)
	if err != nil {
		t.Fatal(err)
	}
	vm.Reset(fn)
	for _, err := range vm.Run {
		if err != nil {
			t.Fatalf("runtime error: %v", err)
		}
	}
	return vm.Result()
}

func TestInstrumentResume(t *testing.T) {
	vm := run(t, `
def risky(a):
	x = a / 0
	return x + 1
`)
	registry := sourcemaps.NewRegistry()
	instrumentFunc(t, vm, "risky", registry)

	var fault *vibevm.Fault
	vm.Handler = func(f *vibevm.Fault) vibevm.Resolution {
		fault = f
		return vibevm.Resolution{Value: int64(41), HasValue: true}
	}

	res := call(t, vm, "risky(2)")
	if res != int64(42) {
		t.Errorf("result = %v, want 42", res)
	}

	if fault == nil {
		t.Fatal("handler not called")
	}
	if fault.Err == nil {
		t.Error("fault has no error")
	}
	if fault.Stmt.Line != 3 {
		t.Errorf("fault line = %d, want 3", fault.Stmt.Line)
	}
	if fault.Stmt.ResumeVar != "x" {
		t.Errorf("resume var = %q, want x", fault.Stmt.ResumeVar)
	}
	locals := fault.Locals()
	if locals["a"] != int64(2) {
		t.Errorf("locals[a] = %v, want 2", locals["a"])
	}
}

func TestInstrumentReturnSubstitution(t *testing.T) {
	vm := run(t, `
def f():
	return unknown_var
`)
	instrumentFunc(t, vm, "f", nil)

	vm.Handler = func(f *vibevm.Fault) vibevm.Resolution {
		if !f.Stmt.Return {
			t.Errorf("fault is not at a return statement")
		}
		return vibevm.Resolution{Value: int64(99), HasValue: true}
	}

	if res := call(t, vm, "f()"); res != int64(99) {
		t.Errorf("result = %v, want 99", res)
	}
}

func TestInstrumentStep(t *testing.T) {
	vm := run(t, `
def f(a):
	x = a / 0
	y = 10
	z = y + x
	return z
`)
	instrumentFunc(t, vm, "f", nil)

	var pauseLines []int
	vm.Handler = func(f *vibevm.Fault) vibevm.Resolution {
		if f.Err != nil {
			return vibevm.Resolution{Value: int64(1), HasValue: true, Step: true}
		}
		pauseLines = append(pauseLines, f.Stmt.Line)
		return vibevm.Resolution{Step: true}
	}

	if res := call(t, vm, "f(2)"); res != int64(11) {
		t.Errorf("result = %v, want 11", res)
	}

	want := []int{4, 5, 6}
	if len(pauseLines) != len(want) {
		t.Fatalf("pause lines = %v, want %v", pauseLines, want)
	}
	for i, line := range want {
		if pauseLines[i] != line {
			t.Errorf("pause %d at line %d, want %d", i, pauseLines[i], line)
		}
	}
}

func TestInstrumentSkipAndRefault(t *testing.T) {
	// skipping a failed assignment leaves its target undefined, using
	// it later faults again in the same frame
	vm := run(t, `
def f():
	z = 1 / 0
	return z
`)
	instrumentFunc(t, vm, "f", nil)

	var faultCount int
	vm.Handler = func(f *vibevm.Fault) vibevm.Resolution {
		faultCount++
		if faultCount == 1 {
			// skip without binding
			return vibevm.Resolution{}
		}
		return vibevm.Resolution{Value: int64(7), HasValue: true}
	}

	if res := call(t, vm, "f()"); res != int64(7) {
		t.Errorf("result = %v, want 7", res)
	}
	if faultCount != 2 {
		t.Errorf("fault count = %d, want 2", faultCount)
	}
}

func TestInstrumentLoopFault(t *testing.T) {
	vm := run(t, `
def f():
	total = 0
	i = 0
	while i < 3:
		total = total + [1, 2][i]
		i = i + 1
	return total
`)
	instrumentFunc(t, vm, "f", nil)

	var faultLine int
	vm.Handler = func(f *vibevm.Fault) vibevm.Resolution {
		faultLine = f.Stmt.Line
		return vibevm.Resolution{Value: int64(100), HasValue: true}
	}

	// third iteration indexes out of range, resolution rebinds total
	if res := call(t, vm, "f()"); res != int64(100) {
		t.Errorf("result = %v, want 100", res)
	}
	if faultLine != 6 {
		t.Errorf("fault line = %d, want 6", faultLine)
	}
}

func TestInstrumentNestedCallUnwind(t *testing.T) {
	// callee is not instrumented, its fault surfaces at the guarded
	// caller statement
	vm := run(t, `
def inner(n):
	return n / 0

def outer():
	v = inner(3)
	return v
`)
	instrumentFunc(t, vm, "outer", nil)

	var fault *vibevm.Fault
	vm.Handler = func(f *vibevm.Fault) vibevm.Resolution {
		fault = f
		return vibevm.Resolution{Value: int64(5), HasValue: true}
	}

	if res := call(t, vm, "outer()"); res != int64(5) {
		t.Errorf("result = %v, want 5", res)
	}
	if fault == nil {
		t.Fatal("handler not called")
	}
	if fault.Fun.Name != "outer" {
		t.Errorf("fault in %s, want outer", fault.Fun.Name)
	}
	if fault.Stmt.Line != 6 {
		t.Errorf("fault line = %d, want 6", fault.Stmt.Line)
	}
}

func TestInstrumentAbort(t *testing.T) {
	vm := run(t, `
def f():
	x = 1 / 0
	return x
`)
	instrumentFunc(t, vm, "f", nil)

	abortErr := errors.New("session aborted")
	vm.Handler = func(f *vibevm.Fault) vibevm.Resolution {
		return vibevm.Resolution{Err: abortErr}
	}

	fn, err := CompileExpr("call", "f()")
	if err != nil {
		t.Fatal(err)
	}
	vm.Reset(fn)
	var got error
	for _, err := range vm.Run {
		if err != nil {
			got = err
			break
		}
	}
	if !errors.Is(got, abortErr) {
		t.Errorf("error = %v, want %v", got, abortErr)
	}
}

func TestInstrumentNoop(t *testing.T) {
	vm := run(t, `
def f():
	return 1
`)
	first := instrumentFunc(t, vm, "f", nil)
	again, err := Instrument(first, nil)
	if err != nil {
		t.Fatal(err)
	}
	if again != first {
		t.Error("instrumenting twice should be a no-op")
	}
}

func TestInstrumentNoSource(t *testing.T) {
	closure := &vibevm.Closure{
		Fun: &vibevm.Function{Name: "opaque"},
	}
	_, err := Instrument(closure, nil)
	if !errors.Is(err, ErrNoSource) {
		t.Errorf("error = %v, want ErrNoSource", err)
	}
}

func TestInstrumentKeepsDefaults(t *testing.T) {
	vm := run(t, `
def f(a, b=40):
	return a + b
`)
	instrumentFunc(t, vm, "f", nil)
	if res := call(t, vm, "f(2)"); res != int64(42) {
		t.Errorf("result = %v, want 42", res)
	}
	if res := call(t, vm, "f(2, 3)"); res != int64(5) {
		t.Errorf("result = %v, want 5", res)
	}
}

func TestInstrumentRegistry(t *testing.T) {
	vm := run(t, `
def f():
	x = 1
	return x
`)
	registry := sourcemaps.NewRegistry()
	instrumented := instrumentFunc(t, vm, "f", registry)

	entry, ok := registry.Lookup(instrumented.Fun)
	if !ok {
		t.Fatal("instrumented function not registered")
	}
	if entry.Filename != "test" {
		t.Errorf("filename = %q", entry.Filename)
	}
	if entry.FirstLine != 2 {
		t.Errorf("first line = %d, want 2", entry.FirstLine)
	}

	line, ok := registry.Line(instrumented.Fun, 3)
	if !ok {
		t.Fatal("line 3 not found")
	}
	if strings.TrimSpace(line) != "x = 1" {
		t.Errorf("line 3 = %q", line)
	}
}
