package vibevm

import "fmt"

type NativeFunc struct {
	Name string
	Func func(vm *VM, args []any) (any, error)
}

func (n NativeFunc) Call(vm *VM, args []any) (any, error) {
	if n.Func == nil {
		return nil, fmt.Errorf("native function %s is missing", n.Name)
	}
	return n.Func(vm, args)
}
