package sessions

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/vibego/vibego/agents"
	"github.com/vibego/vibego/debugs"
	"github.com/vibego/vibego/logs"
	"github.com/vibego/vibego/sourcemaps"
	"github.com/vibego/vibego/vibepy"
	"github.com/vibego/vibego/vibevm"
)

// names the controller introduces into the captured frame, never shown
// by the locals command
const excName = "_exc"

// Controller owns one live debug session at a time, bound to the
// faulted frame it is entered with. It mediates between the captured
// execution context and the decision agent: buffered output flows to
// the agent, commands flow back and are executed against the live
// frame environment.
type Controller struct {
	agent    agents.Agent
	registry *sourcemaps.Registry
	ctx      context.Context
	logger   logs.Logger
	tap      debugs.Tap

	buf strings.Builder
}

// Handler adapts the controller to the VM guard hook.
func (c *Controller) Handler() vibevm.Handler {
	return c.Enter
}

// Enter runs one complete session against the faulted frame, from
// priming to a terminal command. Command evaluation failures are
// reported into the output buffer and never end the session; agent
// transport failures and cancellation do.
func (c *Controller) Enter(fault *vibevm.Fault) vibevm.Resolution {
	c.logger.InfoContext(c.ctx, "debug session",
		"function", fault.Fun.Name,
		"line", fault.Stmt.Line,
		"error", fault.Err,
	)

	if fault.Err != nil {
		fault.Env.Def(excName, fault.Err.Error())
	}

	c.prime(fault)

	for {
		if c.buf.Len() > 0 {
			text := c.buf.String()
			c.buf.Reset()
			c.agent.ReceiveOutput(text)
		}

		command, err := c.agent.NextCommand(c.ctx)
		if err != nil {
			return vibevm.Resolution{Err: err}
		}

		res, done := c.dispatch(fault, command)
		if done {
			return res
		}
	}
}

func (c *Controller) prime(fault *vibevm.Fault) {
	fmt.Fprintf(&c.buf, "--- debug session ---\n")

	fmt.Fprintf(&c.buf, "traceback (most recent call first):\n")
	fmt.Fprintf(&c.buf, "  %s at %s:%d\n", fault.Fun.Name, fault.Fun.Filename, fault.Stmt.Line)
	stack := fault.VM.CallStack
	for i := len(stack) - 1; i >= 0; i-- {
		frame := stack[i]
		if frame.GuardStmt >= 0 && frame.GuardStmt < len(frame.Fun.Guards) {
			fmt.Fprintf(&c.buf, "  %s at %s:%d\n",
				frame.Fun.Name, frame.Fun.Filename, frame.Fun.Guards[frame.GuardStmt].Line)
		} else {
			fmt.Fprintf(&c.buf, "  %s at %s\n", frame.Fun.Name, frame.Fun.Filename)
		}
	}

	if fault.Err != nil {
		fmt.Fprintf(&c.buf, "error: %v\n", fault.Err)
	} else {
		fmt.Fprintf(&c.buf, "paused\n")
	}
	fmt.Fprintf(&c.buf, "file %q, line %d, in %s\n", fault.Fun.Filename, fault.Stmt.Line, fault.Fun.Name)

	c.writeLocals(fault)
	c.writeListing(fault, fault.Stmt.Line-5, fault.Stmt.Line+5)
}

func (c *Controller) dispatch(fault *vibevm.Fault, command string) (vibevm.Resolution, bool) {
	command = strings.TrimSpace(command)
	verb, rest, _ := strings.Cut(command, " ")
	rest = strings.TrimSpace(rest)

	switch verb {

	case "list", "l":
		first, last, err := parseListRange(rest, fault.Stmt.Line)
		if err != nil {
			fmt.Fprintf(&c.buf, "error: %v\n", err)
			return vibevm.Resolution{}, false
		}
		c.writeListing(fault, first, last)

	case "locals":
		c.writeLocals(fault)

	case "p":
		c.evalAndReport(fault, rest, false)

	case "pp":
		c.evalAndReport(fault, rest, true)

	case "step", "next", "s", "n":
		return vibevm.Resolution{Step: true}, true

	case "continue", "c":
		if rest == "" {
			return vibevm.Resolution{}, true
		}
		val, err := c.eval(fault, rest, true)
		if err != nil {
			fmt.Fprintf(&c.buf, "error evaluating %q: %v\n", rest, err)
			return vibevm.Resolution{}, false
		}
		return vibevm.Resolution{Value: val, HasValue: true}, true

	case "debug_frame":
		c.writeFrameDebug(fault)

	case "tap":
		// drop the operator into a REPL over the frame locals
		c.tap(c.ctx, "session "+fault.Fun.Name, fault.Locals())

	case "":
		// empty input, ask again

	default:
		// anything else executes as a statement against the live frame
		stmt := command
		if after, ok := strings.CutPrefix(command, "!"); ok {
			stmt = strings.TrimSpace(after)
		}
		if _, err := c.eval(fault, stmt, false); err != nil {
			fmt.Fprintf(&c.buf, "error executing %q: %v\n", stmt, err)
		}
	}

	return vibevm.Resolution{}, false
}

// eval compiles and runs text against the live frame environment.
// Definitions and assignments land directly in the activation's
// storage, so resumed execution observes them.
func (c *Controller) eval(fault *vibevm.Fault, src string, expr bool) (any, error) {
	var fn *vibevm.Function
	var err error
	if expr {
		fn, err = vibepy.CompileExpr("<session>", src)
	} else {
		fn, err = vibepy.Compile("<session>", strings.NewReader(src))
	}
	if err != nil {
		return nil, err
	}

	sub := vibevm.NewVM(fn)
	sub.Scope = fault.Env
	sub.BaseEnv = fault.Env
	sub.Stdout = &c.buf

	for _, err := range sub.Run {
		if err != nil {
			return nil, err
		}
	}
	return sub.Result(), nil
}

func (c *Controller) evalAndReport(fault *vibevm.Fault, src string, pretty bool) {
	if src == "" {
		fmt.Fprintf(&c.buf, "error: missing expression\n")
		return
	}
	val, err := c.eval(fault, src, true)
	if err != nil {
		fmt.Fprintf(&c.buf, "error evaluating %q: %v\n", src, err)
		return
	}
	if pretty {
		fmt.Fprintf(&c.buf, "%s\n", prettyRepr(val))
	} else {
		fmt.Fprintf(&c.buf, "%s\n", vibevm.Repr(val))
	}
}

func (c *Controller) writeLocals(fault *vibevm.Fault) {
	locals := fault.Locals()
	names := make([]string, 0, len(locals))
	for name := range locals {
		if name == excName || strings.HasPrefix(name, "__") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(&c.buf, "locals:\n")
	for _, name := range names {
		fmt.Fprintf(&c.buf, "  %s = %s\n", name, vibevm.Repr(locals[name]))
	}
}

func (c *Controller) writeListing(fault *vibevm.Fault, first, last int) {
	current := fault.Stmt.Line
	printed := false
	for line := first; line <= last; line++ {
		if line < 1 {
			continue
		}
		text, ok := c.sourceLine(fault.Fun, line)
		if !ok {
			continue
		}
		marker := "   "
		if line == current {
			marker = "-->"
		}
		fmt.Fprintf(&c.buf, "%s %4d\t%s\n", marker, line, text)
		printed = true
	}
	if !printed {
		fmt.Fprintf(&c.buf, "no source available for %s\n", fault.Fun.Name)
	}
}

func (c *Controller) sourceLine(fn *vibevm.Function, line int) (string, bool) {
	if c.registry != nil {
		if text, ok := c.registry.Line(fn, line); ok {
			return text, true
		}
		if _, registered := c.registry.Lookup(fn); registered {
			return "", false
		}
	}
	// not registered, fall back to the file on disk
	content, err := os.ReadFile(fn.Filename)
	if err != nil {
		return "", false
	}
	lines := strings.Split(string(content), "\n")
	if line < 1 || line > len(lines) {
		return "", false
	}
	return lines[line-1], true
}

func (c *Controller) writeFrameDebug(fault *vibevm.Fault) {
	fmt.Fprintf(&c.buf, "frame: file=%q function=%s line=%d\n",
		fault.Fun.Filename, fault.Fun.Name, fault.Stmt.Line)
	locals := fault.Locals()
	names := make([]string, 0, len(locals))
	for name := range locals {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintf(&c.buf, "local names: %s\n", strings.Join(names, ", "))
}

func parseListRange(args string, current int) (first int, last int, err error) {
	if args == "" {
		return current - 5, current + 5, nil
	}
	parts := strings.FieldsFunc(args, func(r rune) bool {
		return r == ',' || r == ' '
	})
	switch len(parts) {
	case 1:
		center, err := strconv.Atoi(parts[0])
		if err != nil {
			return 0, 0, fmt.Errorf("bad list argument %q", parts[0])
		}
		return center - 5, center + 5, nil
	case 2:
		first, err1 := strconv.Atoi(parts[0])
		last, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil {
			return 0, 0, fmt.Errorf("bad list range %q", args)
		}
		return first, last, nil
	}
	return 0, 0, fmt.Errorf("bad list range %q", args)
}

func prettyRepr(val any) string {
	var sb strings.Builder
	prettyReprTo(&sb, val, 0)
	return sb.String()
}

func prettyReprTo(sb *strings.Builder, val any, depth int) {
	indent := strings.Repeat("  ", depth)
	switch v := val.(type) {

	case *vibevm.List:
		if len(v.Elements) == 0 {
			sb.WriteString("[]")
			return
		}
		sb.WriteString("[\n")
		for _, elem := range v.Elements {
			sb.WriteString(indent + "  ")
			prettyReprTo(sb, elem, depth+1)
			sb.WriteString(",\n")
		}
		sb.WriteString(indent + "]")

	case map[any]any:
		if len(v) == 0 {
			sb.WriteString("{}")
			return
		}
		keys := make([]string, 0, len(v))
		byRepr := make(map[string]any, len(v))
		for k := range v {
			r := vibevm.Repr(k)
			keys = append(keys, r)
			byRepr[r] = k
		}
		sort.Strings(keys)
		sb.WriteString("{\n")
		for _, k := range keys {
			sb.WriteString(indent + "  " + k + ": ")
			prettyReprTo(sb, v[byRepr[k]], depth+1)
			sb.WriteString(",\n")
		}
		sb.WriteString(indent + "}")

	default:
		sb.WriteString(vibevm.Repr(val))
	}
}
