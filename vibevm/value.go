package vibevm

import (
	"fmt"
	"math"
	"reflect"
	"strings"
)

func Truth(val any) bool {
	switch v := val.(type) {
	case nil:
		return false
	case bool:
		return v
	case int64:
		return v != 0
	case float64:
		return v != 0
	case string:
		return v != ""
	case *List:
		return len(v.Elements) > 0
	case []any:
		return len(v) > 0
	case map[any]any:
		return len(v) > 0
	case *Range:
		return v.Len() > 0
	}
	return true
}

func Equal(a, b any) bool {
	if x, y, ok := floatPair(a, b); ok {
		return x == y
	}
	return reflect.DeepEqual(a, b)
}

func floatPair(a, b any) (float64, float64, bool) {
	x, okX := ToFloat64(a)
	y, okY := ToFloat64(b)
	if !okX || !okY {
		return 0, 0, false
	}
	// int64 vs int64 pairs are compared exactly elsewhere
	_, intA := a.(int64)
	_, intB := b.(int64)
	if intA && intB {
		return 0, 0, false
	}
	return x, y, true
}

func ToInt64(val any) (int64, bool) {
	switch v := val.(type) {
	case int64:
		return v, true
	case float64:
		if v == math.Trunc(v) {
			return int64(v), true
		}
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func ToFloat64(val any) (float64, bool) {
	switch v := val.(type) {
	case int64:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

func arith(op OpCode, a, b any) (any, error) {
	if op == OpAdd {
		if s1, ok := a.(string); ok {
			if s2, ok := b.(string); ok {
				return s1 + s2, nil
			}
		}
		if l1, ok := a.(*List); ok {
			if l2, ok := b.(*List); ok {
				elems := make([]any, 0, len(l1.Elements)+len(l2.Elements))
				elems = append(elems, l1.Elements...)
				elems = append(elems, l2.Elements...)
				return &List{Elements: elems}, nil
			}
		}
	}

	i1, okA := a.(int64)
	i2, okB := b.(int64)
	if okA && okB {
		switch op {
		case OpAdd:
			return i1 + i2, nil
		case OpSub:
			return i1 - i2, nil
		case OpMul:
			return i1 * i2, nil
		case OpDiv:
			if i2 == 0 {
				return nil, fmt.Errorf("division by zero")
			}
			return float64(i1) / float64(i2), nil
		case OpFloorDiv:
			if i2 == 0 {
				return nil, fmt.Errorf("division by zero")
			}
			q := i1 / i2
			if (i1%i2 != 0) && ((i1 < 0) != (i2 < 0)) {
				q--
			}
			return q, nil
		case OpMod:
			if i2 == 0 {
				return nil, fmt.Errorf("division by zero")
			}
			m := i1 % i2
			if m != 0 && ((i1 < 0) != (i2 < 0)) {
				m += i2
			}
			return m, nil
		case OpPow:
			if i2 < 0 {
				return math.Pow(float64(i1), float64(i2)), nil
			}
			ret := int64(1)
			for range i2 {
				ret *= i1
			}
			return ret, nil
		}
	}

	f1, okA := ToFloat64(a)
	f2, okB := ToFloat64(b)
	if !okA || !okB {
		return nil, fmt.Errorf("unsupported operand types: %T and %T", a, b)
	}
	switch op {
	case OpAdd:
		return f1 + f2, nil
	case OpSub:
		return f1 - f2, nil
	case OpMul:
		return f1 * f2, nil
	case OpDiv:
		if f2 == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return f1 / f2, nil
	case OpFloorDiv:
		if f2 == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return math.Floor(f1 / f2), nil
	case OpMod:
		if f2 == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		m := math.Mod(f1, f2)
		if m != 0 && (m < 0) != (f2 < 0) {
			m += f2
		}
		return m, nil
	case OpPow:
		return math.Pow(f1, f2), nil
	}
	return nil, fmt.Errorf("bad arithmetic op: %d", op)
}

func bitop(op OpCode, a, b any) (any, error) {
	i1, ok1 := a.(int64)
	i2, ok2 := b.(int64)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("bitwise operands must be int, got %T and %T", a, b)
	}
	switch op {
	case OpBitAnd:
		return i1 & i2, nil
	case OpBitOr:
		return i1 | i2, nil
	case OpBitXor:
		return i1 ^ i2, nil
	case OpBitLsh:
		if i2 < 0 {
			return nil, fmt.Errorf("negative shift count: %d", i2)
		}
		return i1 << i2, nil
	case OpBitRsh:
		if i2 < 0 {
			return nil, fmt.Errorf("negative shift count: %d", i2)
		}
		return i1 >> i2, nil
	}
	return nil, fmt.Errorf("bad bitwise op: %d", op)
}

func compare(op OpCode, a, b any) (bool, error) {
	if s1, ok := a.(string); ok {
		s2, ok := b.(string)
		if !ok {
			return false, fmt.Errorf("comparison type mismatch: string vs %T", b)
		}
		switch op {
		case OpLt:
			return s1 < s2, nil
		case OpLe:
			return s1 <= s2, nil
		case OpGt:
			return s1 > s2, nil
		case OpGe:
			return s1 >= s2, nil
		}
	}

	f1, okA := ToFloat64(a)
	f2, okB := ToFloat64(b)
	if !okA || !okB {
		return false, fmt.Errorf("unsupported types for comparison: %T and %T", a, b)
	}
	switch op {
	case OpLt:
		return f1 < f2, nil
	case OpLe:
		return f1 <= f2, nil
	case OpGt:
		return f1 > f2, nil
	case OpGe:
		return f1 >= f2, nil
	}
	return false, fmt.Errorf("bad comparison op: %d", op)
}

func contains(container, val any) (bool, error) {
	switch c := container.(type) {
	case *List:
		for _, e := range c.Elements {
			if Equal(e, val) {
				return true, nil
			}
		}
		return false, nil
	case []any:
		for _, e := range c {
			if Equal(e, val) {
				return true, nil
			}
		}
		return false, nil
	case map[any]any:
		_, ok := c[val]
		return ok, nil
	case string:
		s, ok := val.(string)
		if !ok {
			return false, fmt.Errorf("'in <string>' requires string, got %T", val)
		}
		return strings.Contains(c, s), nil
	}
	return false, fmt.Errorf("type %T does not support 'in'", container)
}
