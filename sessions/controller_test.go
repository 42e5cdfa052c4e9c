package sessions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/reusee/dscope"
	"github.com/vibego/vibego/agents"
	"github.com/vibego/vibego/modes"
	"github.com/vibego/vibego/sourcemaps"
	"github.com/vibego/vibego/vibepy"
	"github.com/vibego/vibego/vibevm"
)

// scriptAgent replays a fixed command sequence and records every
// output flush.
type scriptAgent struct {
	commands []string
	outputs  []string
	idx      int
}

var _ agents.Agent = new(scriptAgent)

func (s *scriptAgent) ReceiveOutput(text string) {
	s.outputs = append(s.outputs, text)
}

func (s *scriptAgent) NextCommand(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.idx >= len(s.commands) {
		return "", fmt.Errorf("command script exhausted")
	}
	command := s.commands[s.idx]
	s.idx++
	return command, nil
}

func (s *scriptAgent) allOutput() string {
	return strings.Join(s.outputs, "")
}

func newTestController(t *testing.T, ctx context.Context, agent agents.Agent) (*Controller, *sourcemaps.Registry) {
	t.Helper()
	var ctrl *Controller
	var registry *sourcemaps.Registry
	dscope.New(
		new(Module),
		modes.ForTest(t),
	).Call(func(
		newController NewController,
		reg *sourcemaps.Registry,
	) {
		ctrl = newController(ctx, agent)
		registry = reg
	})
	return ctrl, registry
}

// runInstrumented compiles src, instruments the named function, wires
// the controller as the VM guard handler, and evaluates callExpr.
func runInstrumented(t *testing.T, src string, name string, callExpr string, ctrl *Controller, registry *sourcemaps.Registry) (any, error) {
	t.Helper()

	vm, err := vibepy.NewVM("script.py", strings.NewReader(src))
	if err != nil {
		t.Fatal(err)
	}
	for _, err := range vm.Run {
		if err != nil {
			t.Fatalf("runtime error: %v", err)
		}
	}

	val, ok := vm.Get(name)
	if !ok {
		t.Fatalf("%s not found", name)
	}
	closure, ok := val.(*vibevm.Closure)
	if !ok {
		t.Fatalf("%s is %T", name, val)
	}
	instrumented, err := vibepy.Instrument(closure, registry)
	if err != nil {
		t.Fatal(err)
	}
	vm.Def(name, instrumented)
	vm.Handler = ctrl.Enter

	fn, err := vibepy.CompileExpr("call", callExpr)
	if err != nil {
		t.Fatal(err)
	}
	vm.Reset(fn)
	var runErr error
	for _, err := range vm.Run {
		if err != nil {
			runErr = err
			break
		}
	}
	return vm.Result(), runErr
}

const divideSrc = `
def f():
	x = 1
	y = 0
	z = x / y
	return z
`

func TestSessionSkipThenRefault(t *testing.T) {
	// continue with no value skips the failed assignment, the
	// subsequent return of the undefined name opens a second session
	agent := &scriptAgent{
		commands: []string{
			"list",
			"locals",
			"continue",
			"continue 0",
		},
	}
	ctrl, registry := newTestController(t, context.Background(), agent)

	res, err := runInstrumented(t, divideSrc, "f", "f()", ctrl, registry)
	if err != nil {
		t.Fatal(err)
	}
	if res != int64(0) {
		t.Errorf("result = %v, want 0", res)
	}

	output := agent.allOutput()
	if !strings.Contains(output, "division by zero") {
		t.Errorf("output missing failure text:\n%s", output)
	}
	if !strings.Contains(output, `file "script.py", line 5, in f`) {
		t.Errorf("output missing position:\n%s", output)
	}
	// line 5 carries the current-line marker
	if !strings.Contains(output, "-->    5\t") {
		t.Errorf("output missing line marker:\n%s", output)
	}
	if !strings.Contains(output, "x = 1") || !strings.Contains(output, "y = 0") {
		t.Errorf("locals missing:\n%s", output)
	}
	if strings.Contains(output, excName) {
		t.Errorf("locals leaked %s:\n%s", excName, output)
	}
	// the refault names z
	if !strings.Contains(output, "undefined variable: z") {
		t.Errorf("second session missing:\n%s", output)
	}
}

func TestSessionRepairAndContinue(t *testing.T) {
	agent := &scriptAgent{
		commands: []string{
			"!z = 99",
			"continue",
		},
	}
	ctrl, registry := newTestController(t, context.Background(), agent)

	res, err := runInstrumented(t, divideSrc, "f", "f()", ctrl, registry)
	if err != nil {
		t.Fatal(err)
	}
	if res != int64(99) {
		t.Errorf("result = %v, want 99", res)
	}
}

func TestSessionContinueWithValue(t *testing.T) {
	agent := &scriptAgent{
		commands: []string{
			"continue 7 * 6",
		},
	}
	ctrl, registry := newTestController(t, context.Background(), agent)

	res, err := runInstrumented(t, divideSrc, "f", "f()", ctrl, registry)
	if err != nil {
		t.Fatal(err)
	}
	// the resume value binds the failed assignment's target
	if res != int64(42) {
		t.Errorf("result = %v, want 42", res)
	}
}

func TestSessionReadAfterWrite(t *testing.T) {
	agent := &scriptAgent{
		commands: []string{
			"!x = 42",
			"p x",
			"continue 1",
		},
	}
	ctrl, registry := newTestController(t, context.Background(), agent)

	if _, err := runInstrumented(t, divideSrc, "f", "f()", ctrl, registry); err != nil {
		t.Fatal(err)
	}

	// flush after p carries the repaired value
	output := agent.allOutput()
	if !strings.Contains(output, "42\n") {
		t.Errorf("p x output missing:\n%s", output)
	}
}

func TestSessionBadCommandReportsError(t *testing.T) {
	// a raw-text reply is treated as a statement, fails safely, and
	// the error is visible in the next flush
	agent := &scriptAgent{
		commands: []string{
			"well, try list",
			"continue 1",
		},
	}
	ctrl, registry := newTestController(t, context.Background(), agent)

	if _, err := runInstrumented(t, divideSrc, "f", "f()", ctrl, registry); err != nil {
		t.Fatal(err)
	}

	output := agent.allOutput()
	if !strings.Contains(output, `error executing "well, try list"`) {
		t.Errorf("evaluation error not reported:\n%s", output)
	}
}

func TestSessionOutputBeforeCommand(t *testing.T) {
	// every flush precedes the command request of the same cycle
	var events []string
	agent := &orderAgent{
		events: &events,
		commands: []string{
			"locals",
			"continue 1",
		},
	}
	ctrl, registry := newTestController(t, context.Background(), agent)

	if _, err := runInstrumented(t, divideSrc, "f", "f()", ctrl, registry); err != nil {
		t.Fatal(err)
	}

	for i, event := range events {
		if event == "command" {
			if i == 0 || events[i-1] != "output" {
				t.Fatalf("command without preceding output flush: %v", events)
			}
		}
	}
}

type orderAgent struct {
	events   *[]string
	commands []string
	idx      int
}

func (o *orderAgent) ReceiveOutput(text string) {
	*o.events = append(*o.events, "output")
}

func (o *orderAgent) NextCommand(ctx context.Context) (string, error) {
	*o.events = append(*o.events, "command")
	if o.idx >= len(o.commands) {
		return "", fmt.Errorf("command script exhausted")
	}
	command := o.commands[o.idx]
	o.idx++
	return command, nil
}

func TestSessionStep(t *testing.T) {
	src := `
def f():
	x = 1 / 0
	y = 10
	z = y + x
	return z
`
	agent := &scriptAgent{
		commands: []string{
			"!x = 1",
			"step",
			"continue",
		},
	}
	ctrl, registry := newTestController(t, context.Background(), agent)

	res, err := runInstrumented(t, src, "f", "f()", ctrl, registry)
	if err != nil {
		t.Fatal(err)
	}
	if res != int64(11) {
		t.Errorf("result = %v, want 11", res)
	}

	output := agent.allOutput()
	if !strings.Contains(output, "paused") {
		t.Errorf("step pause not reported:\n%s", output)
	}
}

func TestSessionCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	agent := &scriptAgent{
		commands: []string{"locals"},
	}
	ctrl, registry := newTestController(t, ctx, agent)

	_, err := runInstrumented(t, divideSrc, "f", "f()", ctrl, registry)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestSessionDebugFrame(t *testing.T) {
	agent := &scriptAgent{
		commands: []string{
			"debug_frame",
			"continue 1",
		},
	}
	ctrl, registry := newTestController(t, context.Background(), agent)

	if _, err := runInstrumented(t, divideSrc, "f", "f()", ctrl, registry); err != nil {
		t.Fatal(err)
	}

	output := agent.allOutput()
	if !strings.Contains(output, `frame: file="script.py" function=f line=5`) {
		t.Errorf("frame debug missing:\n%s", output)
	}
	// the raw dump is unfiltered
	if !strings.Contains(output, excName) {
		t.Errorf("raw local names missing %s:\n%s", excName, output)
	}
}

func TestPrettyRepr(t *testing.T) {
	val := map[any]any{
		"name": "x",
		"items": &vibevm.List{
			Elements: []any{int64(1), int64(2)},
		},
	}
	got := prettyRepr(val)
	if !strings.Contains(got, `"name": "x"`) {
		t.Errorf("pretty repr = %s", got)
	}
	if !strings.Contains(got, "\n") {
		t.Errorf("pretty repr not multi-line: %s", got)
	}
}
