package vibevm

import (
	"io"
	"os"
)

type VM struct {
	CurrentFun   *Function
	IP           int
	OperandStack []any
	SP           int
	BP           int
	CallStack    []Frame
	Scope        *Env

	// Handler observes guarded statement faults, see guard.go
	Handler Handler

	// Stdout receives print output, os.Stdout when nil
	Stdout io.Writer

	// BaseEnv is the entry environment of the current frame, the
	// boundary between frame locals and captured scope.
	BaseEnv *Env

	guardStmt   int
	guardSP     int
	guardEnv    *Env
	stepPending bool
}

func NewVM(main *Function) *VM {
	scope := &Env{}
	return &VM{
		CurrentFun:   main,
		Scope:        scope,
		BaseEnv:      scope,
		OperandStack: make([]any, 1024),
		CallStack:    make([]Frame, 0, 64),
		guardStmt:    -1,
	}
}

func (v *VM) Get(name string) (any, bool) {
	return v.Scope.Get(name)
}

func (v *VM) Def(name string, val any) {
	v.Scope.Def(name, val)
}

func (v *VM) Set(name string, val any) bool {
	return v.Scope.Set(name, val)
}

func (v *VM) Out() io.Writer {
	if v.Stdout != nil {
		return v.Stdout
	}
	return os.Stdout
}

// Result returns the top of the operand stack, the value left by a
// finished run.
func (v *VM) Result() any {
	if v.SP > 0 {
		return v.OperandStack[v.SP-1]
	}
	return nil
}

// Reset prepares the VM to run another function in the same scope.
func (v *VM) Reset(fn *Function) {
	v.drop(v.SP)
	v.CallStack = v.CallStack[:0]
	v.CurrentFun = fn
	v.IP = 0
	v.BP = 0
	v.BaseEnv = v.Scope
	v.guardStmt = -1
	v.guardSP = 0
	v.guardEnv = nil
	v.stepPending = false
}

func (v *VM) push(val any) {
	if v.SP >= len(v.OperandStack) {
		v.growOperandStack()
	}
	v.OperandStack[v.SP] = val
	v.SP++
}

func (v *VM) growOperandStack() {
	newCap := len(v.OperandStack) * 2
	if newCap == 0 {
		newCap = 8
	}
	newStack := make([]any, newCap)
	copy(newStack, v.OperandStack)
	v.OperandStack = newStack
}

func (v *VM) pop() any {
	if v.SP <= 0 {
		return nil
	}
	v.SP--
	val := v.OperandStack[v.SP]
	v.OperandStack[v.SP] = nil
	return val
}

func (v *VM) drop(n int) {
	if n <= 0 {
		return
	}
	if n > v.SP {
		n = v.SP
	}
	start := v.SP - n
	for i := 0; i < n; i++ {
		v.OperandStack[start+i] = nil
	}
	v.SP = start
}
