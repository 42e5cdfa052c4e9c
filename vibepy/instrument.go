package vibepy

import (
	"errors"
	"fmt"
	"strings"

	"github.com/vibego/vibego/sourcemaps"
	"github.com/vibego/vibego/vibevm"
	"go.starlark.net/syntax"
)

var ErrNoSource = errors.New("no source available")

// Instrument recompiles a function with every statement guarded, so a
// fault inside it suspends the frame and hands control to the VM
// handler instead of unwinding. The returned closure captures the same
// environment and defaults as the original. Instrumenting an already
// instrumented closure is a no-op.
func Instrument(c *vibevm.Closure, registry *sourcemaps.Registry) (*vibevm.Closure, error) {
	fn := c.Fun
	if len(fn.Guards) > 0 {
		return c, nil
	}
	if len(fn.SourceLines) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoSource, fn.Name)
	}

	src := strings.Join(fn.SourceLines, "\n")
	file, err := fileOptions.Parse(fn.Filename, []byte(src), 0)
	if err != nil {
		return nil, fmt.Errorf("reparsing %s: %w", fn.Name, err)
	}

	var def *syntax.DefStmt
	for _, stmt := range file.Stmts {
		if d, ok := stmt.(*syntax.DefStmt); ok {
			def = d
			break
		}
	}
	if def == nil {
		return nil, fmt.Errorf("no function definition in source of %s", fn.Name)
	}

	sub := newCompiler(fn.Name)
	sub.filename = fn.Filename
	sub.lineOffset = fn.FirstLine - 1
	sub.srcLines = strings.Split(src, "\n")
	sub.guard = true
	if err := sub.compileStmts(def.Body); err != nil {
		return nil, fmt.Errorf("instrumenting %s: %w", fn.Name, err)
	}
	sub.emit(vibevm.OpLoadConst.With(sub.addConst(nil)))
	sub.emit(vibevm.OpReturn)

	instrumented := sub.toFunction()
	instrumented.ParamNames = fn.ParamNames
	instrumented.NumParams = fn.NumParams
	instrumented.NumDefaults = fn.NumDefaults
	instrumented.Variadic = fn.Variadic
	instrumented.Filename = fn.Filename
	instrumented.FirstLine = fn.FirstLine
	instrumented.SourceLines = fn.SourceLines

	if registry != nil {
		registry.Register(instrumented, sourcemaps.Entry{
			Filename:  fn.Filename,
			FirstLine: fn.FirstLine,
			Lines:     fn.SourceLines,
		})
	}

	return &vibevm.Closure{
		Fun:      instrumented,
		Env:      c.Env,
		Defaults: c.Defaults,
	}, nil
}
