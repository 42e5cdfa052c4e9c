package vibevm

import "fmt"

func asIndex(val any) (int, bool, error) {
	if val == nil {
		return 0, false, nil
	}
	i, ok := val.(int64)
	if !ok {
		return 0, false, fmt.Errorf("slice index must be int, got %T", val)
	}
	return int(i), true, nil
}

// sliceIndices expands a lo:hi:step slice into element indices.
func sliceIndices(lo, hi, step any, length int) ([]int, error) {
	stp := 1
	if s, present, err := asIndex(step); err != nil {
		return nil, err
	} else if present {
		if s == 0 {
			return nil, fmt.Errorf("slice step cannot be zero")
		}
		stp = s
	}

	norm := func(i int) int {
		if i < 0 {
			i += length
		}
		return i
	}
	clamp := func(i, low, high int) int {
		if i < low {
			return low
		}
		if i > high {
			return high
		}
		return i
	}

	var idxs []int
	if stp > 0 {
		start, stop := 0, length
		if s, present, err := asIndex(lo); err != nil {
			return nil, err
		} else if present {
			start = clamp(norm(s), 0, length)
		}
		if s, present, err := asIndex(hi); err != nil {
			return nil, err
		} else if present {
			stop = clamp(norm(s), 0, length)
		}
		for i := start; i < stop; i += stp {
			idxs = append(idxs, i)
		}
	} else {
		start, stop := length-1, -1
		if s, present, err := asIndex(lo); err != nil {
			return nil, err
		} else if present {
			start = clamp(norm(s), -1, length-1)
		}
		if s, present, err := asIndex(hi); err != nil {
			return nil, err
		} else if present {
			stop = clamp(norm(s), -1, length-1)
		}
		for i := start; i > stop; i += stp {
			idxs = append(idxs, i)
		}
	}
	return idxs, nil
}

func getSlice(target, lo, hi, step any) (any, error) {
	switch t := target.(type) {

	case *List:
		idxs, err := sliceIndices(lo, hi, step, len(t.Elements))
		if err != nil {
			return nil, err
		}
		elems := make([]any, 0, len(idxs))
		for _, i := range idxs {
			elems = append(elems, t.Elements[i])
		}
		return &List{Elements: elems}, nil

	case []any:
		idxs, err := sliceIndices(lo, hi, step, len(t))
		if err != nil {
			return nil, err
		}
		elems := make([]any, 0, len(idxs))
		for _, i := range idxs {
			elems = append(elems, t[i])
		}
		return elems, nil

	case string:
		runes := []rune(t)
		idxs, err := sliceIndices(lo, hi, step, len(runes))
		if err != nil {
			return nil, err
		}
		out := make([]rune, 0, len(idxs))
		for _, i := range idxs {
			out = append(out, runes[i])
		}
		return string(out), nil

	}
	return nil, fmt.Errorf("type %T is not sliceable", target)
}

func setSlice(target, lo, hi, step, val any) error {
	l, ok := target.(*List)
	if !ok {
		return fmt.Errorf("type %T does not support slice assignment", target)
	}
	if s, present, err := asIndex(step); err != nil {
		return err
	} else if present && s != 1 {
		return fmt.Errorf("slice assignment step must be 1")
	}

	idxs, err := sliceIndices(lo, hi, nil, len(l.Elements))
	if err != nil {
		return err
	}

	var src []any
	switch s := val.(type) {
	case *List:
		src = s.Elements
	case []any:
		src = s
	default:
		return fmt.Errorf("can only assign list to slice, got %T", val)
	}

	start, stop := 0, 0
	if len(idxs) > 0 {
		start = idxs[0]
		stop = idxs[len(idxs)-1] + 1
	} else {
		// empty window, insert position from lo
		if s, present, err := asIndex(lo); err != nil {
			return err
		} else if present {
			if s < 0 {
				s += len(l.Elements)
			}
			if s < 0 {
				s = 0
			}
			if s > len(l.Elements) {
				s = len(l.Elements)
			}
			start, stop = s, s
		}
	}

	elems := make([]any, 0, len(l.Elements)-len(idxs)+len(src))
	elems = append(elems, l.Elements[:start]...)
	elems = append(elems, src...)
	elems = append(elems, l.Elements[stop:]...)
	l.Elements = elems
	return nil
}
