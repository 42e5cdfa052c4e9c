package vibevm

import (
	"fmt"
	"maps"
)

func (v *VM) Run(yield func(*Interrupt, error) bool) {
	for {
		if v.IP < 0 || v.IP >= len(v.CurrentFun.Code) {
			return
		}

		inst := v.CurrentFun.Code[v.IP]
		v.IP++
		op := inst & 0xff

		switch op {

		case OpLoadConst:
			idx := int(inst >> 8)
			if v.SP >= len(v.OperandStack) {
				v.growOperandStack()
			}
			v.OperandStack[v.SP] = v.CurrentFun.Constants[idx]
			v.SP++

		case OpLoadVar:
			name := v.CurrentFun.Constants[int(inst>>8)].(string)
			val, ok := v.Scope.Get(name)
			if !ok {
				switch v.raise(fmt.Errorf("undefined variable: %s", name), yield) {
				case raiseStop:
					return
				case raiseHandled:
					continue
				}
				v.push(nil)
				continue
			}
			v.push(val)

		case OpDefVar:
			name := v.CurrentFun.Constants[int(inst>>8)].(string)
			v.Scope.Def(name, v.pop())

		case OpPop:
			if v.SP > 0 {
				v.SP--
				v.OperandStack[v.SP] = nil
			}

		case OpDup:
			if v.SP > 0 {
				v.push(v.OperandStack[v.SP-1])
			}

		case OpDup2:
			if v.SP >= 2 {
				a := v.OperandStack[v.SP-2]
				b := v.OperandStack[v.SP-1]
				v.push(a)
				v.push(b)
			}

		case OpJump:
			offset := int(int32(inst) >> 8)
			v.IP += offset

		case OpJumpFalse:
			offset := int(int32(inst) >> 8)
			if !Truth(v.pop()) {
				v.IP += offset
			}

		case OpEnterScope:
			v.Scope = v.Scope.NewChild()

		case OpLeaveScope:
			if v.Scope.Parent != nil {
				v.Scope = v.Scope.Parent
			}

		case OpMakeClosure:
			idx := int(inst >> 8)
			fun := v.CurrentFun.Constants[idx].(*Function)
			var defaults []any
			if n := fun.NumDefaults; n > 0 {
				defaults = make([]any, n)
				copy(defaults, v.OperandStack[v.SP-n:v.SP])
				v.drop(n)
			}
			v.push(&Closure{
				Fun:      fun,
				Env:      v.Scope,
				Defaults: defaults,
			})

		case OpCall:
			argc := int(inst >> 8)
			if v.SP < argc+1 {
				switch v.raise(fmt.Errorf("stack underflow during call"), yield) {
				case raiseStop:
					return
				}
				continue
			}

			// callee is below args on the stack
			calleeIdx := v.SP - argc - 1
			callee := v.OperandStack[calleeIdx]

			switch fn := callee.(type) {

			case *Closure:
				numParams := fn.Fun.NumParams

				if fn.Fun.Variadic {
					if argc < numParams-1 {
						switch v.raise(fmt.Errorf("%s: arity mismatch: want at least %d, got %d", fn.Fun.Name, numParams-1, argc), yield) {
						case raiseStop:
							return
						case raiseHandled:
							continue
						}
						v.drop(argc + 1)
						v.push(nil)
						continue
					}
					fixed := numParams - 1
					varArgsCount := argc - fixed
					slice := make([]any, varArgsCount)
					base := calleeIdx + 1 + fixed
					copy(slice, v.OperandStack[base:base+varArgsCount])
					if varArgsCount == 0 {
						v.push(slice)
					} else {
						v.OperandStack[base] = slice
						for i := base + 1; i < v.SP; i++ {
							v.OperandStack[i] = nil
						}
						v.SP = base + 1
					}
					argc = numParams

				} else if argc != numParams {
					if missing := numParams - argc; missing > 0 && missing <= len(fn.Defaults) {
						for i := len(fn.Defaults) - missing; i < len(fn.Defaults); i++ {
							v.push(fn.Defaults[i])
						}
						argc = numParams
					} else {
						switch v.raise(fmt.Errorf("%s: arity mismatch: want %d, got %d", fn.Fun.Name, numParams, argc), yield) {
						case raiseStop:
							return
						case raiseHandled:
							continue
						}
						v.drop(argc + 1)
						v.push(nil)
						continue
					}
				}

				newEnv := fn.Env.NewChild()
				for i := range argc {
					newEnv.Def(fn.Fun.ParamNames[i], v.OperandStack[calleeIdx+1+i])
				}
				v.pushFrame(fn.Fun, newEnv, calleeIdx)

			case NativeFunc:
				// slice view is valid only until the next stack change
				args := v.OperandStack[calleeIdx+1 : v.SP]
				res, err := fn.Call(v, args)
				if err != nil {
					switch v.raise(err, yield) {
					case raiseStop:
						return
					case raiseHandled:
						continue
					}
					res = nil
				}
				v.OperandStack[calleeIdx] = res
				for i := calleeIdx + 1; i < v.SP; i++ {
					v.OperandStack[i] = nil
				}
				v.SP = calleeIdx + 1

			default:
				switch v.raise(fmt.Errorf("calling non-function: %T", callee), yield) {
				case raiseStop:
					return
				case raiseHandled:
					continue
				}
				v.drop(argc + 1)
				v.push(nil)
			}

		case OpCallKw:
			kwVal := v.pop()
			posVal := v.pop()
			callee := v.pop()

			kw, _ := kwVal.(map[any]any)
			var pos []any
			switch p := posVal.(type) {
			case *List:
				pos = p.Elements
			case []any:
				pos = p
			}

			switch fn := callee.(type) {

			case *Closure:
				args, err := bindArgs(fn, pos, kw)
				if err != nil {
					switch v.raise(err, yield) {
					case raiseStop:
						return
					case raiseHandled:
						continue
					}
					v.push(nil)
					continue
				}
				newEnv := fn.Env.NewChild()
				for i, name := range fn.Fun.ParamNames {
					newEnv.Def(name, args[i])
				}
				v.pushFrame(fn.Fun, newEnv, v.SP)

			case NativeFunc:
				if len(kw) > 0 {
					switch v.raise(fmt.Errorf("%s: keyword arguments not supported", fn.Name), yield) {
					case raiseStop:
						return
					case raiseHandled:
						continue
					}
					v.push(nil)
					continue
				}
				res, err := fn.Call(v, pos)
				if err != nil {
					switch v.raise(err, yield) {
					case raiseStop:
						return
					case raiseHandled:
						continue
					}
					res = nil
				}
				v.push(res)

			default:
				switch v.raise(fmt.Errorf("calling non-function: %T", callee), yield) {
				case raiseStop:
					return
				case raiseHandled:
					continue
				}
				v.push(nil)
			}

		case OpReturn:
			if v.returnFrom(v.pop()) {
				return
			}

		case OpSuspend:
			if !yield(InterruptSuspend, nil) {
				return
			}

		case OpGuard:
			idx := int(inst >> 8)
			v.guardStmt = idx
			v.guardSP = v.SP
			v.guardEnv = v.Scope
			if v.stepPending && v.Handler != nil {
				v.stepPending = false
				if v.pause(yield) == raiseStop {
					return
				}
			}

		case OpMakeList:
			n := int(inst >> 8)
			elems := make([]any, n)
			start := v.SP - n
			copy(elems, v.OperandStack[start:v.SP])
			v.drop(n)
			v.push(&List{Elements: elems})

		case OpMakeTuple:
			n := int(inst >> 8)
			elems := make([]any, n)
			start := v.SP - n
			copy(elems, v.OperandStack[start:v.SP])
			v.drop(n)
			v.push(elems)

		case OpMakeMap:
			n := int(inst >> 8)
			m := make(map[any]any, n)
			start := v.SP - n*2
			for i := range n {
				k := v.OperandStack[start+i*2]
				val := v.OperandStack[start+i*2+1]
				m[k] = val
			}
			v.drop(n * 2)
			v.push(m)

		case OpListAppend:
			val := v.pop()
			l, ok := v.pop().(*List)
			if !ok {
				switch v.raise(fmt.Errorf("append receiver must be list"), yield) {
				case raiseStop:
					return
				case raiseHandled:
					continue
				}
				v.push(nil)
				continue
			}
			l.Elements = append(l.Elements, val)
			v.push(l)

		case OpGetIndex:
			key := v.pop()
			target := v.pop()
			val, err := getIndex(target, key)
			if err != nil {
				switch v.raise(err, yield) {
				case raiseStop:
					return
				case raiseHandled:
					continue
				}
				val = nil
			}
			v.push(val)

		case OpSetIndex:
			val := v.pop()
			key := v.pop()
			target := v.pop()
			if err := setIndex(target, key, val); err != nil {
				switch v.raise(err, yield) {
				case raiseStop:
					return
				}
				continue
			}

		case OpGetSlice:
			step := v.pop()
			hi := v.pop()
			lo := v.pop()
			target := v.pop()
			val, err := getSlice(target, lo, hi, step)
			if err != nil {
				switch v.raise(err, yield) {
				case raiseStop:
					return
				case raiseHandled:
					continue
				}
				val = nil
			}
			v.push(val)

		case OpSetSlice:
			val := v.pop()
			step := v.pop()
			hi := v.pop()
			lo := v.pop()
			target := v.pop()
			if err := setSlice(target, lo, hi, step, val); err != nil {
				switch v.raise(err, yield) {
				case raiseStop:
					return
				}
				continue
			}

		case OpGetAttr:
			name, _ := v.pop().(string)
			target := v.pop()
			val, err := getAttr(target, name)
			if err != nil {
				switch v.raise(err, yield) {
				case raiseStop:
					return
				case raiseHandled:
					continue
				}
				val = nil
			}
			v.push(val)

		case OpSetAttr:
			val := v.pop()
			name, _ := v.pop().(string)
			target := v.pop()
			if err := setAttr(target, name, val); err != nil {
				switch v.raise(err, yield) {
				case raiseStop:
					return
				}
				continue
			}

		case OpGetIter:
			val := v.pop()
			it, err := NewIterator(val)
			if err != nil {
				switch v.raise(err, yield) {
				case raiseStop:
					return
				case raiseHandled:
					continue
				}
				v.push(nil)
				continue
			}
			v.push(it)

		case OpNextIter:
			offset := int(int32(inst) >> 8)
			it, ok := v.OperandStack[v.SP-1].(Iterator)
			if !ok {
				// iterator slot corrupted, stop the loop
				v.pop()
				v.IP += offset
				continue
			}
			val, ok := it.Next()
			if !ok {
				v.pop()
				v.IP += offset
				continue
			}
			v.push(val)

		case OpUnpack:
			n := int(inst >> 8)
			val := v.pop()
			var elems []any
			switch x := val.(type) {
			case *List:
				elems = x.Elements
			case []any:
				elems = x
			}
			if len(elems) != n {
				switch v.raise(fmt.Errorf("cannot unpack %s into %d values", Repr(val), n), yield) {
				case raiseStop:
					return
				case raiseHandled:
					continue
				}
				for range n {
					v.push(nil)
				}
				continue
			}
			for i := n - 1; i >= 0; i-- {
				v.push(elems[i])
			}

		case OpAdd, OpSub, OpMul, OpDiv, OpFloorDiv, OpMod, OpPow:
			b := v.pop()
			a := v.pop()
			res, err := arith(op, a, b)
			if err != nil {
				switch v.raise(err, yield) {
				case raiseStop:
					return
				case raiseHandled:
					continue
				}
				res = nil
			}
			v.push(res)

		case OpBitAnd, OpBitOr, OpBitXor, OpBitLsh, OpBitRsh:
			b := v.pop()
			a := v.pop()
			if op == OpBitOr {
				// dict union
				if m1, ok := a.(map[any]any); ok {
					if m2, ok := b.(map[any]any); ok {
						merged := make(map[any]any, len(m1)+len(m2))
						maps.Copy(merged, m1)
						maps.Copy(merged, m2)
						v.push(merged)
						continue
					}
				}
			}
			res, err := bitop(op, a, b)
			if err != nil {
				switch v.raise(err, yield) {
				case raiseStop:
					return
				case raiseHandled:
					continue
				}
				res = nil
			}
			v.push(res)

		case OpBitNot:
			val := v.pop()
			i, ok := val.(int64)
			if !ok {
				switch v.raise(fmt.Errorf("bitwise not operand must be int, got %T", val), yield) {
				case raiseStop:
					return
				case raiseHandled:
					continue
				}
				v.push(nil)
				continue
			}
			v.push(^i)

		case OpEq, OpNe:
			b := v.pop()
			a := v.pop()
			match := Equal(a, b)
			if op == OpEq {
				v.push(match)
			} else {
				v.push(!match)
			}

		case OpLt, OpLe, OpGt, OpGe:
			b := v.pop()
			a := v.pop()
			res, err := compare(op, a, b)
			if err != nil {
				switch v.raise(err, yield) {
				case raiseStop:
					return
				case raiseHandled:
					continue
				}
				v.push(nil)
				continue
			}
			v.push(res)

		case OpContains:
			container := v.pop()
			val := v.pop()
			res, err := contains(container, val)
			if err != nil {
				switch v.raise(err, yield) {
				case raiseStop:
					return
				case raiseHandled:
					continue
				}
				v.push(nil)
				continue
			}
			v.push(res)

		case OpNot:
			v.push(!Truth(v.pop()))

		case OpNeg:
			val := v.pop()
			switch x := val.(type) {
			case int64:
				v.push(-x)
			case float64:
				v.push(-x)
			default:
				switch v.raise(fmt.Errorf("cannot negate %T", val), yield) {
				case raiseStop:
					return
				case raiseHandled:
					continue
				}
				v.push(nil)
			}

		}
	}
}

func (v *VM) pushFrame(fn *Function, env *Env, baseSP int) {
	v.CallStack = append(v.CallStack, Frame{
		Fun:       v.CurrentFun,
		ReturnIP:  v.IP,
		Env:       v.Scope,
		BaseEnv:   v.BaseEnv,
		BaseSP:    baseSP,
		BP:        v.BP,
		GuardStmt: v.guardStmt,
		GuardSP:   v.guardSP,
		GuardEnv:  v.guardEnv,
	})
	v.BP = baseSP + 1
	v.CurrentFun = fn
	v.IP = 0
	v.Scope = env
	v.BaseEnv = env
	v.guardStmt = -1
	v.guardSP = 0
	v.guardEnv = nil
}

func (v *VM) returnFrom(retVal any) (atTop bool) {
	n := len(v.CallStack)
	if n == 0 {
		if v.BP > 0 {
			v.drop(v.SP - (v.BP - 1))
		} else {
			v.drop(v.SP)
		}
		v.push(retVal)
		v.IP = len(v.CurrentFun.Code)
		return true
	}
	frame := v.CallStack[n-1]
	v.CallStack = v.CallStack[:n-1]

	v.CurrentFun = frame.Fun
	v.IP = frame.ReturnIP
	v.Scope = frame.Env
	v.BaseEnv = frame.BaseEnv
	v.BP = frame.BP
	v.guardStmt = frame.GuardStmt
	v.guardSP = frame.GuardSP
	v.guardEnv = frame.GuardEnv
	// discard any garbage left by the returning function
	v.drop(v.SP - frame.BaseSP)

	v.push(retVal)
	return false
}

func getIndex(target, key any) (any, error) {
	switch t := target.(type) {

	case *List:
		idx, err := normIndex(key, len(t.Elements))
		if err != nil {
			return nil, err
		}
		return t.Elements[idx], nil

	case []any:
		idx, err := normIndex(key, len(t))
		if err != nil {
			return nil, err
		}
		return t[idx], nil

	case string:
		runes := []rune(t)
		idx, err := normIndex(key, len(runes))
		if err != nil {
			return nil, err
		}
		return string(runes[idx]), nil

	case map[any]any:
		val, ok := t[key]
		if !ok {
			return nil, fmt.Errorf("key not found: %s", Repr(key))
		}
		return val, nil

	case map[string]any:
		k, ok := key.(string)
		if !ok {
			return nil, fmt.Errorf("map key must be string, got %T", key)
		}
		val, ok := t[k]
		if !ok {
			return nil, fmt.Errorf("key not found: %s", Repr(key))
		}
		return val, nil

	case nil:
		return nil, fmt.Errorf("indexing None")

	}
	return nil, fmt.Errorf("type %T is not indexable", target)
}

func setIndex(target, key, val any) error {
	switch t := target.(type) {

	case *List:
		idx, err := normIndex(key, len(t.Elements))
		if err != nil {
			return err
		}
		t.Elements[idx] = val
		return nil

	case map[any]any:
		t[key] = val
		return nil

	case map[string]any:
		k, ok := key.(string)
		if !ok {
			return fmt.Errorf("map key must be string, got %T", key)
		}
		t[k] = val
		return nil

	case nil:
		return fmt.Errorf("assignment to None")

	}
	return fmt.Errorf("type %T does not support item assignment", target)
}

func normIndex(key any, length int) (int, error) {
	i, ok := key.(int64)
	if !ok {
		return 0, fmt.Errorf("index must be int, got %T", key)
	}
	idx := int(i)
	if idx < 0 {
		idx += length
	}
	if idx < 0 || idx >= length {
		return 0, fmt.Errorf("index out of range: %d", i)
	}
	return idx, nil
}

func bindArgs(fn *Closure, pos []any, kw map[any]any) ([]any, error) {
	f := fn.Fun
	numParams := f.NumParams
	args := make([]any, numParams)
	set := make([]bool, numParams)

	fixed := numParams
	if f.Variadic {
		fixed--
	}

	if len(pos) > fixed && !f.Variadic {
		return nil, fmt.Errorf("%s: too many arguments: want %d, got %d", f.Name, fixed, len(pos))
	}
	for i := 0; i < len(pos) && i < fixed; i++ {
		args[i] = pos[i]
		set[i] = true
	}
	if f.Variadic {
		if len(pos) > fixed {
			rest := make([]any, len(pos)-fixed)
			copy(rest, pos[fixed:])
			args[numParams-1] = rest
		} else {
			args[numParams-1] = []any{}
		}
		set[numParams-1] = true
	}

	for k, val := range kw {
		name, ok := k.(string)
		if !ok {
			return nil, fmt.Errorf("%s: keyword must be string, got %T", f.Name, k)
		}
		idx := -1
		for i := 0; i < fixed; i++ {
			if f.ParamNames[i] == name {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, fmt.Errorf("%s: unexpected keyword argument %q", f.Name, name)
		}
		if set[idx] {
			return nil, fmt.Errorf("%s: multiple values for argument %q", f.Name, name)
		}
		args[idx] = val
		set[idx] = true
	}

	for i := 0; i < fixed; i++ {
		if set[i] {
			continue
		}
		di := i - (fixed - len(fn.Defaults))
		if di < 0 || di >= len(fn.Defaults) {
			return nil, fmt.Errorf("%s: missing argument %q", f.Name, f.ParamNames[i])
		}
		args[i] = fn.Defaults[di]
	}
	return args, nil
}
