package vibepy

import (
	"io"
	"strings"

	"github.com/vibego/vibego/vibevm"
	"go.starlark.net/syntax"
)

func Compile(name string, source io.Reader) (*vibevm.Function, error) {
	content, err := io.ReadAll(source)
	if err != nil {
		return nil, err
	}

	file, err := fileOptions.Parse(name, content, 0)
	if err != nil {
		return nil, err
	}

	c := newCompiler(name)
	c.filename = name
	c.srcLines = strings.Split(string(content), "\n")
	if err := c.compileStmts(file.Stmts); err != nil {
		return nil, err
	}
	// Implicit return nil at end of module/function
	c.emit(vibevm.OpLoadConst.With(c.addConst(nil)))
	c.emit(vibevm.OpReturn)

	fn := c.toFunction()
	fn.Filename = name
	fn.FirstLine = 1
	fn.SourceLines = c.srcLines
	return fn, nil
}

// CompileExpr compiles a single expression into a function returning
// its value.
func CompileExpr(name string, src string) (*vibevm.Function, error) {
	expr, err := fileOptions.ParseExpr(name, src, 0)
	if err != nil {
		return nil, err
	}

	c := newCompiler(name)
	c.filename = name
	if err := c.compileExpr(expr); err != nil {
		return nil, err
	}
	c.emit(vibevm.OpReturn)

	return c.toFunction(), nil
}

var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
}
