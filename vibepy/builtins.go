package vibepy

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/vibego/vibego/vibevm"
)

var Len = vibevm.NativeFunc{
	Name: "len",
	Func: func(vm *vibevm.VM, args []any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("len expects 1 argument")
		}
		switch v := args[0].(type) {
		case string:
			return int64(len([]rune(v))), nil
		case *vibevm.List:
			return int64(len(v.Elements)), nil
		case []any:
			return int64(len(v)), nil
		case map[any]any:
			return int64(len(v)), nil
		case *vibevm.Range:
			return v.Len(), nil
		default:
			return nil, fmt.Errorf("object of type %T has no len()", v)
		}
	},
}

var Range = vibevm.NativeFunc{
	Name: "range",
	Func: func(vm *vibevm.VM, args []any) (any, error) {
		var start, stop, step int64
		step = 1

		switch len(args) {
		case 1:
			s, ok := vibevm.ToInt64(args[0])
			if !ok {
				return nil, fmt.Errorf("range argument must be integer")
			}
			stop = s
		case 2:
			s1, ok1 := vibevm.ToInt64(args[0])
			s2, ok2 := vibevm.ToInt64(args[1])
			if !ok1 || !ok2 {
				return nil, fmt.Errorf("range arguments must be integers")
			}
			start = s1
			stop = s2
		case 3:
			s1, ok1 := vibevm.ToInt64(args[0])
			s2, ok2 := vibevm.ToInt64(args[1])
			s3, ok3 := vibevm.ToInt64(args[2])
			if !ok1 || !ok2 || !ok3 {
				return nil, fmt.Errorf("range arguments must be integers")
			}
			start = s1
			stop = s2
			step = s3
		default:
			return nil, fmt.Errorf("range expects 1 to 3 arguments")
		}

		if step == 0 {
			return nil, fmt.Errorf("range step cannot be zero")
		}

		return &vibevm.Range{
			Start: start,
			Stop:  stop,
			Step:  step,
		}, nil
	},
}

var Print = vibevm.NativeFunc{
	Name: "print",
	Func: func(vm *vibevm.VM, args []any) (any, error) {
		parts := make([]string, len(args))
		for i, arg := range args {
			parts[i] = vibevm.Str(arg)
		}
		fmt.Fprintln(vm.Out(), strings.Join(parts, " "))
		return nil, nil
	},
}

var StrFunc = vibevm.NativeFunc{
	Name: "str",
	Func: func(vm *vibevm.VM, args []any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("str expects 1 argument")
		}
		return vibevm.Str(args[0]), nil
	},
}

var ReprFunc = vibevm.NativeFunc{
	Name: "repr",
	Func: func(vm *vibevm.VM, args []any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("repr expects 1 argument")
		}
		return vibevm.Repr(args[0]), nil
	},
}

var Int = vibevm.NativeFunc{
	Name: "int",
	Func: func(vm *vibevm.VM, args []any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("int expects 1 argument")
		}
		switch v := args[0].(type) {
		case int64:
			return v, nil
		case float64:
			return int64(v), nil
		case bool:
			if v {
				return int64(1), nil
			}
			return int64(0), nil
		case string:
			i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid literal for int(): %q", v)
			}
			return i, nil
		}
		return nil, fmt.Errorf("int() argument must be a number or string, got %T", args[0])
	},
}

var Float = vibevm.NativeFunc{
	Name: "float",
	Func: func(vm *vibevm.VM, args []any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("float expects 1 argument")
		}
		switch v := args[0].(type) {
		case float64:
			return v, nil
		case int64:
			return float64(v), nil
		case bool:
			if v {
				return float64(1), nil
			}
			return float64(0), nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return nil, fmt.Errorf("invalid literal for float(): %q", v)
			}
			return f, nil
		}
		return nil, fmt.Errorf("float() argument must be a number or string, got %T", args[0])
	},
}

var Bool = vibevm.NativeFunc{
	Name: "bool",
	Func: func(vm *vibevm.VM, args []any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("bool expects 1 argument")
		}
		return vibevm.Truth(args[0]), nil
	},
}

var Type = vibevm.NativeFunc{
	Name: "type",
	Func: func(vm *vibevm.VM, args []any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("type expects 1 argument")
		}
		switch args[0].(type) {
		case nil:
			return "NoneType", nil
		case bool:
			return "bool", nil
		case int64:
			return "int", nil
		case float64:
			return "float", nil
		case string:
			return "str", nil
		case *vibevm.List:
			return "list", nil
		case []any:
			return "tuple", nil
		case map[any]any:
			return "dict", nil
		case *vibevm.Range:
			return "range", nil
		case *vibevm.Closure, vibevm.NativeFunc:
			return "function", nil
		}
		return fmt.Sprintf("%T", args[0]), nil
	},
}

var Pow = vibevm.NativeFunc{
	Name: "pow",
	Func: func(vm *vibevm.VM, args []any) (any, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("pow expects 2 arguments")
		}
		a := args[0]
		b := args[1]

		if isFloat(a) || isFloat(b) {
			f1, ok1 := vibevm.ToFloat64(a)
			f2, ok2 := vibevm.ToFloat64(b)
			if !ok1 || !ok2 {
				return nil, fmt.Errorf("invalid arguments for pow: %T, %T", a, b)
			}
			return math.Pow(f1, f2), nil
		}

		i1, ok1 := vibevm.ToInt64(a)
		i2, ok2 := vibevm.ToInt64(b)
		if ok1 && ok2 {
			if i2 < 0 {
				return math.Pow(float64(i1), float64(i2)), nil
			}
			base := i1
			exp := i2
			result := int64(1)
			for exp > 0 {
				if exp&1 == 1 {
					result *= base
				}
				base *= base
				exp >>= 1
			}
			return result, nil
		}

		return nil, fmt.Errorf("unsupported argument types for pow: %T, %T", a, b)
	},
}

func isFloat(v any) bool {
	switch v.(type) {
	case float32, float64:
		return true
	}
	return false
}

var Abs = vibevm.NativeFunc{
	Name: "abs",
	Func: func(vm *vibevm.VM, args []any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("abs expects 1 argument")
		}
		a := args[0]
		if i, ok := vibevm.ToInt64(a); ok {
			if i < 0 {
				return -i, nil
			}
			return i, nil
		}
		if f, ok := vibevm.ToFloat64(a); ok {
			return math.Abs(f), nil
		}
		return nil, fmt.Errorf("bad operand type for abs(): %T", a)
	},
}

var Sqrt = vibevm.NativeFunc{
	Name: "sqrt",
	Func: func(vm *vibevm.VM, args []any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("sqrt expects 1 argument")
		}
		f, ok := vibevm.ToFloat64(args[0])
		if !ok {
			return nil, fmt.Errorf("sqrt argument must be a number, got %T", args[0])
		}
		if f < 0 {
			return nil, fmt.Errorf("math domain error")
		}
		return math.Sqrt(f), nil
	},
}

var Round = vibevm.NativeFunc{
	Name: "round",
	Func: func(vm *vibevm.VM, args []any) (any, error) {
		if len(args) < 1 || len(args) > 2 {
			return nil, fmt.Errorf("round expects 1 or 2 arguments")
		}
		f, ok := vibevm.ToFloat64(args[0])
		if !ok {
			return nil, fmt.Errorf("round argument must be a number, got %T", args[0])
		}
		if len(args) == 2 {
			digits, ok := vibevm.ToInt64(args[1])
			if !ok {
				return nil, fmt.Errorf("round digits must be integer, got %T", args[1])
			}
			scale := math.Pow(10, float64(digits))
			return math.Round(f*scale) / scale, nil
		}
		return int64(math.Round(f)), nil
	},
}

var Min = vibevm.NativeFunc{
	Name: "min",
	Func: func(vm *vibevm.VM, args []any) (any, error) {
		return minMax(args, -1)
	},
}

var Max = vibevm.NativeFunc{
	Name: "max",
	Func: func(vm *vibevm.VM, args []any) (any, error) {
		return minMax(args, 1)
	},
}

func minMax(args []any, wantCmp int) (any, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("expected at least 1 argument")
	}
	items, err := collect(args)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("empty sequence")
	}

	val := items[0]
	for _, x := range items[1:] {
		cmp, err := compareValues(x, val)
		if err != nil {
			return nil, err
		}
		if cmp == wantCmp {
			val = x
		}
	}
	return val, nil
}

var Sum = vibevm.NativeFunc{
	Name: "sum",
	Func: func(vm *vibevm.VM, args []any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("sum expects 1 argument")
		}
		items, err := collect(args)
		if err != nil {
			return nil, err
		}
		var acc any = int64(0)
		for _, x := range items {
			if i, ok := acc.(int64); ok {
				if j, ok := x.(int64); ok {
					acc = i + j
					continue
				}
			}
			f1, ok1 := vibevm.ToFloat64(acc)
			f2, ok2 := vibevm.ToFloat64(x)
			if !ok1 || !ok2 {
				return nil, fmt.Errorf("unsupported operand type for sum: %T", x)
			}
			acc = f1 + f2
		}
		return acc, nil
	},
}

var Sorted = vibevm.NativeFunc{
	Name: "sorted",
	Func: func(vm *vibevm.VM, args []any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("sorted expects 1 argument")
		}
		items, err := collect(args)
		if err != nil {
			return nil, err
		}
		out := make([]any, len(items))
		copy(out, items)
		var sortErr error
		sort.SliceStable(out, func(i, j int) bool {
			cmp, err := compareValues(out[i], out[j])
			if err != nil && sortErr == nil {
				sortErr = err
			}
			return cmp < 0
		})
		if sortErr != nil {
			return nil, sortErr
		}
		return &vibevm.List{Elements: out}, nil
	},
}

// collect flattens the single-iterable or varargs calling conventions
// shared by min, max, sum and sorted.
func collect(args []any) ([]any, error) {
	if len(args) != 1 {
		return args, nil
	}
	switch v := args[0].(type) {
	case *vibevm.List:
		return v.Elements, nil
	case []any:
		return v, nil
	case *vibevm.Range:
		n := v.Len()
		items := make([]any, 0, n)
		curr := v.Start
		for i := int64(0); i < n; i++ {
			items = append(items, curr)
			curr += v.Step
		}
		return items, nil
	case int64, float64:
		return args, nil
	default:
		return nil, fmt.Errorf("object of type %T is not iterable", v)
	}
}

func compareValues(a, b any) (int, error) {
	if i1, ok1 := a.(int64); ok1 {
		if i2, ok2 := b.(int64); ok2 {
			if i1 < i2 {
				return -1, nil
			}
			if i1 > i2 {
				return 1, nil
			}
			return 0, nil
		}
	}

	if isFloat(a) || isFloat(b) {
		f1, ok1 := vibevm.ToFloat64(a)
		f2, ok2 := vibevm.ToFloat64(b)
		if ok1 && ok2 {
			if f1 < f2 {
				return -1, nil
			}
			if f1 > f2 {
				return 1, nil
			}
			return 0, nil
		}
	}

	if s1, ok1 := a.(string); ok1 {
		if s2, ok2 := b.(string); ok2 {
			if s1 < s2 {
				return -1, nil
			}
			if s1 > s2 {
				return 1, nil
			}
			return 0, nil
		}
	}

	return 0, fmt.Errorf("unsupported comparison: %T vs %T", a, b)
}

var JSONLoads = vibevm.NativeFunc{
	Name: "json_loads",
	Func: func(vm *vibevm.VM, args []any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("json_loads expects 1 argument")
		}
		s, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("json_loads argument must be string, got %T", args[0])
		}
		dec := json.NewDecoder(strings.NewReader(s))
		dec.UseNumber()
		var raw any
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("invalid json: %w", err)
		}
		return fromJSON(raw), nil
	},
}

var JSONDumps = vibevm.NativeFunc{
	Name: "json_dumps",
	Func: func(vm *vibevm.VM, args []any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("json_dumps expects 1 argument")
		}
		encodable, err := toJSON(args[0])
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(encodable); err != nil {
			return nil, err
		}
		return strings.TrimSuffix(buf.String(), "\n"), nil
	},
}

func fromJSON(raw any) any {
	switch v := raw.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		f, _ := v.Float64()
		return f
	case []any:
		elems := make([]any, len(v))
		for i, e := range v {
			elems[i] = fromJSON(e)
		}
		return &vibevm.List{Elements: elems}
	case map[string]any:
		m := make(map[any]any, len(v))
		for k, e := range v {
			m[k] = fromJSON(e)
		}
		return m
	}
	return raw
}

func toJSON(val any) (any, error) {
	switch v := val.(type) {
	case nil, bool, int64, float64, string:
		return v, nil
	case *vibevm.List:
		out := make([]any, len(v.Elements))
		for i, e := range v.Elements {
			enc, err := toJSON(e)
			if err != nil {
				return nil, err
			}
			out[i] = enc
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			enc, err := toJSON(e)
			if err != nil {
				return nil, err
			}
			out[i] = enc
		}
		return out, nil
	case map[any]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			ks, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("json object keys must be strings, got %T", k)
			}
			enc, err := toJSON(e)
			if err != nil {
				return nil, err
			}
			out[ks] = enc
		}
		return out, nil
	}
	return nil, fmt.Errorf("object of type %T is not json serializable", val)
}
