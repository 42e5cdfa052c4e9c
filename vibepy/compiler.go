package vibepy

import (
	"fmt"
	"slices"

	"github.com/vibego/vibego/vibevm"
	"go.starlark.net/syntax"
)

type compiler struct {
	name      string
	code      []vibevm.OpCode
	constants []any
	constMap  map[any]int
	loops     []*loopContext

	filename   string
	lineOffset int
	srcLines   []string

	// guard mode wraps every statement for fault interception
	guard  bool
	guards []vibevm.StmtInfo
}

type loopContext struct {
	continueIP int
	breakIPs   []int
}

func newCompiler(name string) *compiler {
	return &compiler{
		name:     name,
		constMap: make(map[any]int),
	}
}

func (c *compiler) toFunction() *vibevm.Function {
	return &vibevm.Function{
		Name:      c.name,
		Code:      c.code,
		Constants: c.constants,
		Guards:    c.guards,
	}
}

func (c *compiler) addConst(val any) int {
	if isComparable(val) {
		if idx, ok := c.constMap[val]; ok {
			return idx
		}
	}
	idx := len(c.constants)
	c.constants = append(c.constants, val)
	if isComparable(val) {
		c.constMap[val] = idx
	}
	return idx
}

func isComparable(v any) bool {
	switch v.(type) {
	case int64, float64, string, bool, nil:
		return true
	}
	return false
}

func (c *compiler) emit(op vibevm.OpCode) {
	c.code = append(c.code, op)
}

func (c *compiler) currentIP() int {
	return len(c.code)
}

func (c *compiler) patchJump(ip int, target int) {
	offset := target - ip - 1
	op := c.code[ip] & 0xff
	c.code[ip] = op.With(offset)
}

func (c *compiler) compileStmts(stmts []syntax.Stmt) error {
	for _, stmt := range stmts {
		if c.guard {
			if err := c.compileGuardedStmt(stmt); err != nil {
				return err
			}
			continue
		}
		if err := c.compileStmt(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (c *compiler) compileGuardedStmt(stmt syntax.Stmt) error {
	start, _ := stmt.Span()
	idx := len(c.guards)
	info := vibevm.StmtInfo{
		Line:    int(start.Line) + c.lineOffset,
		StartIP: c.currentIP(),
	}
	if a, ok := stmt.(*syntax.AssignStmt); ok {
		if id, ok := a.LHS.(*syntax.Ident); ok {
			info.ResumeVar = id.Name
		}
	}
	if _, ok := stmt.(*syntax.ReturnStmt); ok {
		info.Return = true
	}
	c.guards = append(c.guards, info)

	guardIP := c.currentIP()
	c.emit(vibevm.OpGuard.With(idx))

	var err error
	switch s := stmt.(type) {
	case *syntax.WhileStmt:
		// loop back through the guard so a condition fault on a later
		// iteration is still attributed to the while statement
		err = c.compileWhileFrom(s, guardIP)
	case *syntax.ForStmt:
		err = c.compileFor(s, idx)
	default:
		err = c.compileStmt(stmt)
	}
	if err != nil {
		return err
	}

	c.guards[idx].EndIP = c.currentIP()
	return nil
}

func (c *compiler) compileStmt(stmt syntax.Stmt) error {
	switch s := stmt.(type) {
	case *syntax.ExprStmt:
		if err := c.compileExpr(s.X); err != nil {
			return err
		}
		c.emit(vibevm.OpPop)
	case *syntax.AssignStmt:
		return c.compileAssign(s)
	case *syntax.DefStmt:
		return c.compileDef(s)
	case *syntax.ReturnStmt:
		if s.Result != nil {
			if err := c.compileExpr(s.Result); err != nil {
				return err
			}
		} else {
			c.emit(vibevm.OpLoadConst.With(c.addConst(nil)))
		}
		c.emit(vibevm.OpReturn)
	case *syntax.IfStmt:
		return c.compileIf(s)
	case *syntax.WhileStmt:
		return c.compileWhileFrom(s, -1)
	case *syntax.ForStmt:
		return c.compileFor(s, -1)
	case *syntax.BranchStmt:
		return c.compileBranch(s)
	default:
		return fmt.Errorf("unsupported statement type: %T", stmt)
	}
	return nil
}

func (c *compiler) compileAssign(s *syntax.AssignStmt) error {
	if s.Op == syntax.EQ {
		return c.compileSimpleAssign(s.LHS, s.RHS)
	}
	return c.compileAugmentedAssign(s)
}

func (c *compiler) compileStore(lhs syntax.Expr) error {
	switch node := lhs.(type) {
	case *syntax.Ident:
		c.emit(vibevm.OpDefVar.With(c.addConst(node.Name)))
		return nil
	case *syntax.ParenExpr:
		return c.compileStore(node.X)
	case *syntax.ListExpr:
		c.emit(vibevm.OpUnpack.With(len(node.List)))
		for _, elem := range node.List {
			if err := c.compileStore(elem); err != nil {
				return err
			}
		}
		return nil
	case *syntax.TupleExpr:
		c.emit(vibevm.OpUnpack.With(len(node.List)))
		for _, elem := range node.List {
			if err := c.compileStore(elem); err != nil {
				return err
			}
		}
		return nil
	case *syntax.DotExpr:
		c.emit(vibevm.OpDefVar.With(c.addConst(".$tmp")))
		if err := c.compileExpr(node.X); err != nil {
			return err
		}
		c.emit(vibevm.OpLoadConst.With(c.addConst(node.Name.Name)))
		c.emit(vibevm.OpLoadVar.With(c.addConst(".$tmp")))
		c.emit(vibevm.OpSetAttr)
		return nil
	case *syntax.IndexExpr:
		c.emit(vibevm.OpDefVar.With(c.addConst(".$tmp")))
		if err := c.compileExpr(node.X); err != nil {
			return err
		}
		if err := c.compileExpr(node.Y); err != nil {
			return err
		}
		c.emit(vibevm.OpLoadVar.With(c.addConst(".$tmp")))
		c.emit(vibevm.OpSetIndex)
		return nil
	default:
		return fmt.Errorf("unsupported assignment target: %T", lhs)
	}
}

func (c *compiler) compileBranch(s *syntax.BranchStmt) error {
	if s.Token == syntax.PASS {
		return nil
	}

	if len(c.loops) == 0 {
		return fmt.Errorf("%s outside loop", s.Token.String())
	}
	loop := c.loops[len(c.loops)-1]

	switch s.Token {
	case syntax.BREAK:
		loop.breakIPs = append(loop.breakIPs, c.currentIP())
		c.emit(vibevm.OpJump)
	case syntax.CONTINUE:
		ip := c.currentIP()
		c.emit(vibevm.OpJump)
		c.patchJump(ip, loop.continueIP)
	}
	return nil
}

func (c *compiler) compileExpr(expr syntax.Expr) error {
	switch e := expr.(type) {
	case *syntax.Literal:
		switch val := e.Value.(type) {
		case int64, float64, string:
			c.emit(vibevm.OpLoadConst.With(c.addConst(val)))
		case int:
			c.emit(vibevm.OpLoadConst.With(c.addConst(int64(val))))
		default:
			return fmt.Errorf("unsupported literal: %T", e.Value)
		}
	case *syntax.Ident:
		switch e.Name {
		case "None":
			c.emit(vibevm.OpLoadConst.With(c.addConst(nil)))
		case "True":
			c.emit(vibevm.OpLoadConst.With(c.addConst(true)))
		case "False":
			c.emit(vibevm.OpLoadConst.With(c.addConst(false)))
		default:
			c.emit(vibevm.OpLoadVar.With(c.addConst(e.Name)))
		}
	case *syntax.UnaryExpr:
		return c.compileUnaryExpr(e)
	case *syntax.BinaryExpr:
		return c.compileBinaryExpr(e)
	case *syntax.CallExpr:
		return c.compileCallExpr(e)
	case *syntax.ListExpr:
		return c.compileListExpr(e)
	case *syntax.DictExpr:
		return c.compileDictExpr(e)
	case *syntax.IndexExpr:
		return c.compileIndexExpr(e)
	case *syntax.TupleExpr:
		return c.compileTupleExpr(e)
	case *syntax.ParenExpr:
		return c.compileExpr(e.X)
	case *syntax.SliceExpr:
		return c.compileSliceExpr(e)
	case *syntax.DotExpr:
		return c.compileDotExpr(e)
	case *syntax.CondExpr:
		return c.compileCondExpr(e)
	case *syntax.LambdaExpr:
		return c.compileLambdaExpr(e)
	case *syntax.Comprehension:
		return c.compileComprehension(e)
	default:
		return fmt.Errorf("unsupported expression: %T", expr)
	}
	return nil
}

func (c *compiler) compileIf(s *syntax.IfStmt) error {
	if err := c.compileExpr(s.Cond); err != nil {
		return err
	}
	jumpFalseIP := c.currentIP()
	c.emit(vibevm.OpJumpFalse)

	if err := c.compileStmts(s.True); err != nil {
		return err
	}

	jumpEndIP := c.currentIP()
	c.emit(vibevm.OpJump)

	c.patchJump(jumpFalseIP, c.currentIP())

	if len(s.False) > 0 {
		if err := c.compileStmts(s.False); err != nil {
			return err
		}
	}

	c.patchJump(jumpEndIP, c.currentIP())
	return nil
}

func (c *compiler) compileWhileFrom(s *syntax.WhileStmt, headIP int) error {
	if headIP < 0 {
		headIP = c.currentIP()
	}
	loop := &loopContext{
		continueIP: headIP,
	}
	c.loops = append(c.loops, loop)

	if err := c.compileExpr(s.Cond); err != nil {
		return err
	}

	jumpExitIP := c.currentIP()
	c.emit(vibevm.OpJumpFalse)

	if err := c.compileStmts(s.Body); err != nil {
		return err
	}

	loopIP := c.currentIP()
	offset := headIP - (loopIP + 1)
	c.emit(vibevm.OpJump.With(offset))

	c.patchJump(jumpExitIP, c.currentIP())

	for _, ip := range loop.breakIPs {
		c.patchJump(ip, c.currentIP())
	}
	c.loops = c.loops[:len(c.loops)-1]

	return nil
}

func (c *compiler) compileFor(s *syntax.ForStmt, guardIdx int) error {
	if err := c.compileExpr(s.X); err != nil {
		return err
	}
	c.emit(vibevm.OpGetIter)

	loopHeadIP := c.currentIP()
	loop := &loopContext{
		continueIP: loopHeadIP,
	}
	c.loops = append(c.loops, loop)

	// NextIter with placeholder jump
	nextIterIP := c.currentIP()
	c.emit(vibevm.OpNextIter)

	if err := c.compileStore(s.Vars); err != nil {
		return err
	}

	if guardIdx >= 0 {
		// re-attribute faults to the for statement on every iteration
		c.emit(vibevm.OpGuard.With(guardIdx))
	}

	if err := c.compileStmts(s.Body); err != nil {
		return err
	}

	// jump back to NextIter
	jumpBackIP := c.currentIP()
	c.emit(vibevm.OpJump)
	c.patchJump(jumpBackIP, loopHeadIP)

	// breaks jump here to pop the iterator
	if len(loop.breakIPs) > 0 {
		breakIP := c.currentIP()
		c.emit(vibevm.OpPop)
		for _, ip := range loop.breakIPs {
			c.patchJump(ip, breakIP)
		}
	}

	endIP := c.currentIP()
	c.patchJump(nextIterIP, endIP)

	c.loops = c.loops[:len(c.loops)-1]
	return nil
}

func (c *compiler) compileDef(s *syntax.DefStmt) error {
	sub := newCompiler(s.Name.Name)
	sub.filename = c.filename
	sub.lineOffset = c.lineOffset
	sub.srcLines = c.srcLines
	if err := sub.compileStmts(s.Body); err != nil {
		return err
	}
	sub.emit(vibevm.OpLoadConst.With(sub.addConst(nil)))
	sub.emit(vibevm.OpReturn)

	fn := sub.toFunction()
	var err error
	var isVariadic bool
	var defaults []syntax.Expr
	fn.ParamNames, defaults, isVariadic, err = c.extractParamNames(s.Params)
	if err != nil {
		return err
	}
	fn.NumParams = len(fn.ParamNames)
	fn.NumDefaults = len(defaults)
	fn.Variadic = isVariadic

	start, end := s.Span()
	fn.Filename = c.filename
	fn.FirstLine = int(start.Line) + c.lineOffset
	if lo, hi := int(start.Line)-1, int(end.Line); c.srcLines != nil &&
		lo >= 0 && lo < hi && hi <= len(c.srcLines) {
		fn.SourceLines = slices.Clone(c.srcLines[lo:hi])
	}

	for _, d := range defaults {
		if err := c.compileExpr(d); err != nil {
			return err
		}
	}

	c.emit(vibevm.OpMakeClosure.With(c.addConst(fn)))
	c.emit(vibevm.OpDefVar.With(c.addConst(s.Name.Name)))

	return nil
}

func (c *compiler) extractParamNames(params []syntax.Expr) ([]string, []syntax.Expr, bool, error) {
	names := make([]string, 0, len(params))
	var defaults []syntax.Expr
	isVariadic := false
	seenDefault := false

	for _, p := range params {
		if isVariadic {
			return nil, nil, false, fmt.Errorf("variadic parameter must be last")
		}
		if id, ok := p.(*syntax.Ident); ok {
			if seenDefault {
				return nil, nil, false, fmt.Errorf("non-default argument follows default argument")
			}
			names = append(names, id.Name)
		} else if u, ok := p.(*syntax.UnaryExpr); ok && u.Op == syntax.STAR {
			if id, ok := u.X.(*syntax.Ident); ok {
				names = append(names, id.Name)
				isVariadic = true
			} else {
				return nil, nil, false, fmt.Errorf("variadic parameter must be identifier")
			}
		} else if bin, ok := p.(*syntax.BinaryExpr); ok && bin.Op == syntax.EQ {
			if id, ok := bin.X.(*syntax.Ident); ok {
				names = append(names, id.Name)
				defaults = append(defaults, bin.Y)
				seenDefault = true
			} else {
				return nil, nil, false, fmt.Errorf("parameter name must be identifier")
			}
		} else {
			return nil, nil, false, fmt.Errorf("complex parameters not supported")
		}
	}
	return names, defaults, isVariadic, nil
}

func (c *compiler) compileSimpleAssign(lhs, rhs syntax.Expr) error {
	switch node := lhs.(type) {
	case *syntax.Ident, *syntax.ListExpr, *syntax.TupleExpr, *syntax.ParenExpr:
		if err := c.compileExpr(rhs); err != nil {
			return err
		}
		return c.compileStore(node)
	case *syntax.IndexExpr:
		if err := c.compileExpr(node.X); err != nil {
			return err
		}
		if err := c.compileExpr(node.Y); err != nil {
			return err
		}
		if err := c.compileExpr(rhs); err != nil {
			return err
		}
		c.emit(vibevm.OpSetIndex)
	case *syntax.SliceExpr:
		if err := c.compileExpr(node.X); err != nil {
			return err
		}
		if err := c.compileSliceArgs(node); err != nil {
			return err
		}
		if err := c.compileExpr(rhs); err != nil {
			return err
		}
		c.emit(vibevm.OpSetSlice)
	case *syntax.DotExpr:
		if err := c.compileExpr(node.X); err != nil {
			return err
		}
		c.emit(vibevm.OpLoadConst.With(c.addConst(node.Name.Name)))
		if err := c.compileExpr(rhs); err != nil {
			return err
		}
		c.emit(vibevm.OpSetAttr)
	default:
		return fmt.Errorf("unsupported assignment target: %T", lhs)
	}
	return nil
}

func (c *compiler) compileAugmentedAssign(s *syntax.AssignStmt) error {
	var op vibevm.OpCode
	switch s.Op {
	case syntax.PLUS_EQ:
		op = vibevm.OpAdd
	case syntax.MINUS_EQ:
		op = vibevm.OpSub
	case syntax.STAR_EQ:
		op = vibevm.OpMul
	case syntax.SLASH_EQ:
		op = vibevm.OpDiv
	case syntax.SLASHSLASH_EQ:
		op = vibevm.OpFloorDiv
	case syntax.PERCENT_EQ:
		op = vibevm.OpMod
	case syntax.AMP_EQ:
		op = vibevm.OpBitAnd
	case syntax.PIPE_EQ:
		op = vibevm.OpBitOr
	case syntax.CIRCUMFLEX_EQ:
		op = vibevm.OpBitXor
	case syntax.LTLT_EQ:
		op = vibevm.OpBitLsh
	case syntax.GTGT_EQ:
		op = vibevm.OpBitRsh
	default:
		return fmt.Errorf("augmented assignment op %s not supported", s.Op)
	}

	switch lhs := s.LHS.(type) {
	case *syntax.Ident:
		c.emit(vibevm.OpLoadVar.With(c.addConst(lhs.Name)))
		if err := c.compileExpr(s.RHS); err != nil {
			return err
		}
		c.emit(op)
		return c.compileStore(lhs)

	case *syntax.IndexExpr:
		if err := c.compileExpr(lhs.X); err != nil {
			return err
		}
		if err := c.compileExpr(lhs.Y); err != nil {
			return err
		}
		c.emit(vibevm.OpDup2)
		c.emit(vibevm.OpGetIndex)
		if err := c.compileExpr(s.RHS); err != nil {
			return err
		}
		c.emit(op)
		c.emit(vibevm.OpSetIndex)

	case *syntax.DotExpr:
		if err := c.compileExpr(lhs.X); err != nil {
			return err
		}
		c.emit(vibevm.OpLoadConst.With(c.addConst(lhs.Name.Name)))
		c.emit(vibevm.OpDup2)
		c.emit(vibevm.OpGetAttr)
		if err := c.compileExpr(s.RHS); err != nil {
			return err
		}
		c.emit(op)
		c.emit(vibevm.OpSetAttr)

	default:
		return fmt.Errorf("unsupported augmented assignment target: %T", s.LHS)
	}
	return nil
}

func (c *compiler) compileUnaryExpr(e *syntax.UnaryExpr) error {
	switch e.Op {
	case syntax.PLUS:
		return c.compileExpr(e.X)
	case syntax.MINUS:
		if err := c.compileExpr(e.X); err != nil {
			return err
		}
		c.emit(vibevm.OpNeg)
	case syntax.NOT:
		if err := c.compileExpr(e.X); err != nil {
			return err
		}
		c.emit(vibevm.OpNot)
	case syntax.TILDE:
		if err := c.compileExpr(e.X); err != nil {
			return err
		}
		c.emit(vibevm.OpBitNot)
	default:
		return fmt.Errorf("unsupported unary op: %v", e.Op)
	}
	return nil
}

func (c *compiler) compileBinaryExpr(e *syntax.BinaryExpr) error {
	// short-circuit operators
	if e.Op == syntax.AND {
		if err := c.compileExpr(e.X); err != nil {
			return err
		}
		c.emit(vibevm.OpDup)
		jumpFalseIP := c.currentIP()
		c.emit(vibevm.OpJumpFalse)
		c.emit(vibevm.OpPop)
		if err := c.compileExpr(e.Y); err != nil {
			return err
		}
		c.patchJump(jumpFalseIP, c.currentIP())
		return nil
	}
	if e.Op == syntax.OR {
		if err := c.compileExpr(e.X); err != nil {
			return err
		}
		c.emit(vibevm.OpDup)
		jumpFalseIP := c.currentIP()
		c.emit(vibevm.OpJumpFalse)

		// X is true, jump to end
		jumpEndIP := c.currentIP()
		c.emit(vibevm.OpJump)

		// X is false
		c.patchJump(jumpFalseIP, c.currentIP())
		c.emit(vibevm.OpPop)
		if err := c.compileExpr(e.Y); err != nil {
			return err
		}

		c.patchJump(jumpEndIP, c.currentIP())
		return nil
	}

	if err := c.compileExpr(e.X); err != nil {
		return err
	}
	if err := c.compileExpr(e.Y); err != nil {
		return err
	}
	switch e.Op {
	case syntax.PLUS:
		c.emit(vibevm.OpAdd)
	case syntax.MINUS:
		c.emit(vibevm.OpSub)
	case syntax.STAR:
		c.emit(vibevm.OpMul)
	case syntax.SLASH:
		c.emit(vibevm.OpDiv)
	case syntax.SLASHSLASH:
		c.emit(vibevm.OpFloorDiv)
	case syntax.PERCENT:
		c.emit(vibevm.OpMod)
	case syntax.EQL:
		c.emit(vibevm.OpEq)
	case syntax.NEQ:
		c.emit(vibevm.OpNe)
	case syntax.LT:
		c.emit(vibevm.OpLt)
	case syntax.LE:
		c.emit(vibevm.OpLe)
	case syntax.GT:
		c.emit(vibevm.OpGt)
	case syntax.GE:
		c.emit(vibevm.OpGe)
	case syntax.PIPE:
		c.emit(vibevm.OpBitOr)
	case syntax.AMP:
		c.emit(vibevm.OpBitAnd)
	case syntax.CIRCUMFLEX:
		c.emit(vibevm.OpBitXor)
	case syntax.LTLT:
		c.emit(vibevm.OpBitLsh)
	case syntax.GTGT:
		c.emit(vibevm.OpBitRsh)
	case syntax.IN:
		c.emit(vibevm.OpContains)
	case syntax.NOT_IN:
		c.emit(vibevm.OpContains)
		c.emit(vibevm.OpNot)
	case syntax.STARSTAR:
		c.emit(vibevm.OpPow)
	default:
		return fmt.Errorf("unsupported binary op: %v", e.Op)
	}
	return nil
}

func (c *compiler) compileCallExpr(e *syntax.CallExpr) error {
	if err := c.compileExpr(e.Fn); err != nil {
		return err
	}

	isSimple := true
	for _, arg := range e.Args {
		if bin, ok := arg.(*syntax.BinaryExpr); ok && bin.Op == syntax.EQ {
			isSimple = false
			break
		}
		if u, ok := arg.(*syntax.UnaryExpr); ok && (u.Op == syntax.STAR || u.Op == syntax.STARSTAR) {
			isSimple = false
			break
		}
	}

	if isSimple {
		for _, arg := range e.Args {
			if err := c.compileExpr(arg); err != nil {
				return err
			}
		}
		c.emit(vibevm.OpCall.With(len(e.Args)))
		return nil
	}

	// dynamic path using OpCallKw, callee is already on the stack

	// positional args list
	hasListOnStack := false
	var pendingPos []syntax.Expr

	flushPos := func() error {
		if len(pendingPos) == 0 && hasListOnStack {
			return nil
		}
		for _, arg := range pendingPos {
			if err := c.compileExpr(arg); err != nil {
				return err
			}
		}
		c.emit(vibevm.OpMakeList.With(len(pendingPos)))
		if hasListOnStack {
			c.emit(vibevm.OpAdd)
		}
		hasListOnStack = true
		pendingPos = nil
		return nil
	}

	for _, arg := range e.Args {
		if bin, ok := arg.(*syntax.BinaryExpr); ok && bin.Op == syntax.EQ {
			continue
		}
		if u, ok := arg.(*syntax.UnaryExpr); ok && u.Op == syntax.STARSTAR {
			continue
		}

		if u, ok := arg.(*syntax.UnaryExpr); ok && u.Op == syntax.STAR {
			if err := flushPos(); err != nil {
				return err
			}
			if err := c.compileExpr(u.X); err != nil {
				return err
			}
			if hasListOnStack {
				c.emit(vibevm.OpAdd)
			} else {
				hasListOnStack = true
			}
		} else {
			pendingPos = append(pendingPos, arg)
		}
	}
	if err := flushPos(); err != nil {
		return err
	}
	if !hasListOnStack {
		c.emit(vibevm.OpMakeList.With(0))
	}

	// keyword args map
	hasMapOnStack := false
	var pendingKw []*syntax.BinaryExpr

	flushKw := func() error {
		if len(pendingKw) == 0 && hasMapOnStack {
			return nil
		}
		for _, kw := range pendingKw {
			id := kw.X.(*syntax.Ident)
			c.emit(vibevm.OpLoadConst.With(c.addConst(id.Name)))
			if err := c.compileExpr(kw.Y); err != nil {
				return err
			}
		}
		c.emit(vibevm.OpMakeMap.With(len(pendingKw)))
		if hasMapOnStack {
			c.emit(vibevm.OpBitOr)
		}
		hasMapOnStack = true
		pendingKw = nil
		return nil
	}

	for _, arg := range e.Args {
		if bin, ok := arg.(*syntax.BinaryExpr); ok && bin.Op == syntax.EQ {
			pendingKw = append(pendingKw, bin)
		} else if u, ok := arg.(*syntax.UnaryExpr); ok && u.Op == syntax.STARSTAR {
			if err := flushKw(); err != nil {
				return err
			}
			if err := c.compileExpr(u.X); err != nil {
				return err
			}
			if hasMapOnStack {
				c.emit(vibevm.OpBitOr)
			} else {
				hasMapOnStack = true
			}
		}
	}
	if err := flushKw(); err != nil {
		return err
	}
	if !hasMapOnStack {
		c.emit(vibevm.OpMakeMap.With(0))
	}

	c.emit(vibevm.OpCallKw)
	return nil
}

func (c *compiler) compileListExpr(e *syntax.ListExpr) error {
	for _, elem := range e.List {
		if err := c.compileExpr(elem); err != nil {
			return err
		}
	}
	c.emit(vibevm.OpMakeList.With(len(e.List)))
	return nil
}

func (c *compiler) compileDictExpr(e *syntax.DictExpr) error {
	for _, entry := range e.List {
		entry := entry.(*syntax.DictEntry)
		if err := c.compileExpr(entry.Key); err != nil {
			return err
		}
		if err := c.compileExpr(entry.Value); err != nil {
			return err
		}
	}
	c.emit(vibevm.OpMakeMap.With(len(e.List)))
	return nil
}

func (c *compiler) compileIndexExpr(e *syntax.IndexExpr) error {
	if err := c.compileExpr(e.X); err != nil {
		return err
	}
	if err := c.compileExpr(e.Y); err != nil {
		return err
	}
	c.emit(vibevm.OpGetIndex)
	return nil
}

func (c *compiler) compileTupleExpr(e *syntax.TupleExpr) error {
	for _, elem := range e.List {
		if err := c.compileExpr(elem); err != nil {
			return err
		}
	}
	c.emit(vibevm.OpMakeTuple.With(len(e.List)))
	return nil
}

func (c *compiler) compileSliceArgs(node *syntax.SliceExpr) error {
	if node.Lo != nil {
		if err := c.compileExpr(node.Lo); err != nil {
			return err
		}
	} else {
		c.emit(vibevm.OpLoadConst.With(c.addConst(nil)))
	}
	if node.Hi != nil {
		if err := c.compileExpr(node.Hi); err != nil {
			return err
		}
	} else {
		c.emit(vibevm.OpLoadConst.With(c.addConst(nil)))
	}
	if node.Step != nil {
		if err := c.compileExpr(node.Step); err != nil {
			return err
		}
	} else {
		c.emit(vibevm.OpLoadConst.With(c.addConst(nil)))
	}
	return nil
}

func (c *compiler) compileSliceExpr(e *syntax.SliceExpr) error {
	if err := c.compileExpr(e.X); err != nil {
		return err
	}
	if err := c.compileSliceArgs(e); err != nil {
		return err
	}
	c.emit(vibevm.OpGetSlice)
	return nil
}

func (c *compiler) compileDotExpr(e *syntax.DotExpr) error {
	if err := c.compileExpr(e.X); err != nil {
		return err
	}
	c.emit(vibevm.OpLoadConst.With(c.addConst(e.Name.Name)))
	c.emit(vibevm.OpGetAttr)
	return nil
}

func (c *compiler) compileCondExpr(e *syntax.CondExpr) error {
	if err := c.compileExpr(e.Cond); err != nil {
		return err
	}
	jumpFalseIP := c.currentIP()
	c.emit(vibevm.OpJumpFalse)

	if err := c.compileExpr(e.True); err != nil {
		return err
	}

	jumpEndIP := c.currentIP()
	c.emit(vibevm.OpJump)

	c.patchJump(jumpFalseIP, c.currentIP())

	if err := c.compileExpr(e.False); err != nil {
		return err
	}

	c.patchJump(jumpEndIP, c.currentIP())
	return nil
}

func (c *compiler) compileLambdaExpr(e *syntax.LambdaExpr) error {
	sub := newCompiler("<lambda>")
	sub.filename = c.filename
	sub.lineOffset = c.lineOffset
	if err := sub.compileExpr(e.Body); err != nil {
		return err
	}
	sub.emit(vibevm.OpReturn)

	fn := sub.toFunction()
	var err error
	var isVariadic bool
	var defaults []syntax.Expr
	fn.ParamNames, defaults, isVariadic, err = c.extractParamNames(e.Params)
	if err != nil {
		return err
	}
	fn.NumParams = len(fn.ParamNames)
	fn.NumDefaults = len(defaults)
	fn.Variadic = isVariadic

	for _, d := range defaults {
		if err := c.compileExpr(d); err != nil {
			return err
		}
	}

	c.emit(vibevm.OpMakeClosure.With(c.addConst(fn)))
	return nil
}

func (c *compiler) compileComprehension(e *syntax.Comprehension) error {
	c.emit(vibevm.OpEnterScope)

	if e.Curly {
		c.emit(vibevm.OpMakeMap.With(0))
	} else {
		c.emit(vibevm.OpMakeList.With(0))
	}

	resultName := ".result"
	c.emit(vibevm.OpDefVar.With(c.addConst(resultName)))

	if err := c.compileComprehensionClauses(e, 0, resultName); err != nil {
		return err
	}

	c.emit(vibevm.OpLoadVar.With(c.addConst(resultName)))
	c.emit(vibevm.OpLeaveScope)
	return nil
}

func (c *compiler) compileComprehensionClauses(e *syntax.Comprehension, idx int, resultName string) error {
	if idx >= len(e.Clauses) {
		if e.Curly {
			entry, ok := e.Body.(*syntax.DictEntry)
			if !ok {
				return fmt.Errorf("dict comprehension body must be DictEntry")
			}

			c.emit(vibevm.OpLoadVar.With(c.addConst(resultName)))
			if err := c.compileExpr(entry.Key); err != nil {
				return err
			}
			if err := c.compileExpr(entry.Value); err != nil {
				return err
			}
			c.emit(vibevm.OpSetIndex)
		} else {
			c.emit(vibevm.OpLoadVar.With(c.addConst(resultName)))
			if err := c.compileExpr(e.Body); err != nil {
				return err
			}
			c.emit(vibevm.OpListAppend)
			c.emit(vibevm.OpPop)
		}
		return nil
	}

	clause := e.Clauses[idx]
	switch cl := clause.(type) {
	case *syntax.ForClause:
		if err := c.compileExpr(cl.X); err != nil {
			return err
		}
		c.emit(vibevm.OpGetIter)

		loopHeadIP := c.currentIP()
		nextIterIP := c.currentIP()
		c.emit(vibevm.OpNextIter)

		if err := c.compileStore(cl.Vars); err != nil {
			return err
		}

		if err := c.compileComprehensionClauses(e, idx+1, resultName); err != nil {
			return err
		}

		jumpBackIP := c.currentIP()
		c.emit(vibevm.OpJump)
		c.patchJump(jumpBackIP, loopHeadIP)

		endIP := c.currentIP()
		c.patchJump(nextIterIP, endIP)

	case *syntax.IfClause:
		if err := c.compileExpr(cl.Cond); err != nil {
			return err
		}
		jumpFalseIP := c.currentIP()
		c.emit(vibevm.OpJumpFalse)

		if err := c.compileComprehensionClauses(e, idx+1, resultName); err != nil {
			return err
		}

		c.patchJump(jumpFalseIP, c.currentIP())

	default:
		return fmt.Errorf("unsupported comprehension clause: %T", clause)
	}

	return nil
}
