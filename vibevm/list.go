package vibevm

import "fmt"

type List struct {
	Elements []any
}

func ListAppend(vm *VM, args []any) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("append expects 2 arguments")
	}
	l, ok := args[0].(*List)
	if !ok {
		return nil, fmt.Errorf("append receiver must be list, got %T", args[0])
	}
	l.Elements = append(l.Elements, args[1])
	return nil, nil
}
