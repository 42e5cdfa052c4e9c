package vibevm

import (
	"fmt"
	"slices"
	"strings"
)

func getAttr(target any, name string) (any, error) {
	switch t := target.(type) {

	case *List:
		switch name {
		case "append":
			return NativeFunc{
				Name: "append",
				Func: func(vm *VM, args []any) (any, error) {
					if len(args) != 1 {
						return nil, fmt.Errorf("append expects 1 argument")
					}
					t.Elements = append(t.Elements, args[0])
					return nil, nil
				},
			}, nil
		case "pop":
			return NativeFunc{
				Name: "pop",
				Func: func(vm *VM, args []any) (any, error) {
					if len(t.Elements) == 0 {
						return nil, fmt.Errorf("pop from empty list")
					}
					idx := len(t.Elements) - 1
					if len(args) == 1 {
						i, err := normIndex(args[0], len(t.Elements))
						if err != nil {
							return nil, err
						}
						idx = i
					}
					val := t.Elements[idx]
					t.Elements = slices.Delete(t.Elements, idx, idx+1)
					return val, nil
				},
			}, nil
		case "sort":
			return NativeFunc{
				Name: "sort",
				Func: func(vm *VM, args []any) (any, error) {
					var sortErr error
					slices.SortStableFunc(t.Elements, func(a, b any) int {
						less, err := compare(OpLt, a, b)
						if err != nil {
							sortErr = err
							return 0
						}
						if less {
							return -1
						}
						if Equal(a, b) {
							return 0
						}
						return 1
					})
					return nil, sortErr
				},
			}, nil
		}

	case map[any]any:
		switch name {
		case "get":
			return NativeFunc{
				Name: "get",
				Func: func(vm *VM, args []any) (any, error) {
					if len(args) < 1 || len(args) > 2 {
						return nil, fmt.Errorf("get expects 1 or 2 arguments")
					}
					if val, ok := t[args[0]]; ok {
						return val, nil
					}
					if len(args) == 2 {
						return args[1], nil
					}
					return nil, nil
				},
			}, nil
		case "keys":
			return NativeFunc{
				Name: "keys",
				Func: func(vm *VM, args []any) (any, error) {
					it, err := NewIterator(t)
					if err != nil {
						return nil, err
					}
					var keys []any
					for k, ok := it.Next(); ok; k, ok = it.Next() {
						keys = append(keys, k)
					}
					return &List{Elements: keys}, nil
				},
			}, nil
		case "values":
			return NativeFunc{
				Name: "values",
				Func: func(vm *VM, args []any) (any, error) {
					it, err := NewIterator(t)
					if err != nil {
						return nil, err
					}
					var vals []any
					for k, ok := it.Next(); ok; k, ok = it.Next() {
						vals = append(vals, t[k])
					}
					return &List{Elements: vals}, nil
				},
			}, nil
		case "items":
			return NativeFunc{
				Name: "items",
				Func: func(vm *VM, args []any) (any, error) {
					it, err := NewIterator(t)
					if err != nil {
						return nil, err
					}
					var items []any
					for k, ok := it.Next(); ok; k, ok = it.Next() {
						items = append(items, []any{k, t[k]})
					}
					return &List{Elements: items}, nil
				},
			}, nil
		}
		// plain key access fallback
		if val, ok := t[name]; ok {
			return val, nil
		}

	case map[string]any:
		if val, ok := t[name]; ok {
			return val, nil
		}

	case string:
		switch name {
		case "upper":
			return stringMethod(name, func(args []any) (any, error) {
				return strings.ToUpper(t), nil
			}), nil
		case "lower":
			return stringMethod(name, func(args []any) (any, error) {
				return strings.ToLower(t), nil
			}), nil
		case "strip":
			return stringMethod(name, func(args []any) (any, error) {
				return strings.TrimSpace(t), nil
			}), nil
		case "startswith":
			return stringMethod(name, func(args []any) (any, error) {
				prefix, ok := argString(args)
				if !ok {
					return nil, fmt.Errorf("startswith expects a string argument")
				}
				return strings.HasPrefix(t, prefix), nil
			}), nil
		case "endswith":
			return stringMethod(name, func(args []any) (any, error) {
				suffix, ok := argString(args)
				if !ok {
					return nil, fmt.Errorf("endswith expects a string argument")
				}
				return strings.HasSuffix(t, suffix), nil
			}), nil
		case "split":
			return stringMethod(name, func(args []any) (any, error) {
				var parts []string
				if len(args) == 0 {
					parts = strings.Fields(t)
				} else {
					sep, ok := argString(args)
					if !ok {
						return nil, fmt.Errorf("split expects a string argument")
					}
					parts = strings.Split(t, sep)
				}
				elems := make([]any, len(parts))
				for i, p := range parts {
					elems[i] = p
				}
				return &List{Elements: elems}, nil
			}), nil
		case "join":
			return stringMethod(name, func(args []any) (any, error) {
				if len(args) != 1 {
					return nil, fmt.Errorf("join expects 1 argument")
				}
				l, ok := args[0].(*List)
				if !ok {
					return nil, fmt.Errorf("join expects a list")
				}
				parts := make([]string, len(l.Elements))
				for i, e := range l.Elements {
					s, ok := e.(string)
					if !ok {
						return nil, fmt.Errorf("join expects string elements, got %T", e)
					}
					parts[i] = s
				}
				return strings.Join(parts, t), nil
			}), nil
		case "replace":
			return stringMethod(name, func(args []any) (any, error) {
				if len(args) != 2 {
					return nil, fmt.Errorf("replace expects 2 arguments")
				}
				old, ok1 := args[0].(string)
				new_, ok2 := args[1].(string)
				if !ok1 || !ok2 {
					return nil, fmt.Errorf("replace expects string arguments")
				}
				return strings.ReplaceAll(t, old, new_), nil
			}), nil
		}

	}
	return nil, fmt.Errorf("%s has no attribute %q", Repr(target), name)
}

func stringMethod(name string, fn func(args []any) (any, error)) NativeFunc {
	return NativeFunc{
		Name: name,
		Func: func(vm *VM, args []any) (any, error) {
			return fn(args)
		},
	}
}

func argString(args []any) (string, bool) {
	if len(args) != 1 {
		return "", false
	}
	s, ok := args[0].(string)
	return s, ok
}

func setAttr(target any, name string, val any) error {
	switch t := target.(type) {
	case map[any]any:
		t[name] = val
		return nil
	case map[string]any:
		t[name] = val
		return nil
	}
	return fmt.Errorf("type %T does not support attribute assignment", target)
}
