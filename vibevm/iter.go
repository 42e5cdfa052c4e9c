package vibevm

import (
	"fmt"
	"slices"
	"strings"
)

type Iterator interface {
	Next() (any, bool)
}

func NewIterator(val any) (Iterator, error) {
	switch v := val.(type) {

	case *List:
		return &ListIterator{List: v}, nil

	case []any:
		return &ListIterator{List: &List{Elements: v}}, nil

	case *Range:
		return &RangeIterator{Range: v, Curr: v.Start}, nil

	case string:
		return &StringIterator{Runes: []rune(v)}, nil

	case map[any]any:
		// deterministic order
		keys := make([]any, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		slices.SortFunc(keys, func(a, b any) int {
			return strings.Compare(Repr(a), Repr(b))
		})
		return &MapIterator{Keys: keys}, nil

	}
	return nil, fmt.Errorf("type %T is not iterable", val)
}

type ListIterator struct {
	List *List
	Idx  int
}

func (it *ListIterator) Next() (any, bool) {
	if it.List == nil || it.Idx >= len(it.List.Elements) {
		return nil, false
	}
	v := it.List.Elements[it.Idx]
	it.Idx++
	return v, true
}

type RangeIterator struct {
	Range *Range
	Curr  int64
}

func (it *RangeIterator) Next() (any, bool) {
	r := it.Range
	if r.Step > 0 && it.Curr >= r.Stop {
		return nil, false
	}
	if r.Step < 0 && it.Curr <= r.Stop {
		return nil, false
	}
	if r.Step == 0 {
		return nil, false
	}
	v := it.Curr
	it.Curr += r.Step
	return v, true
}

type StringIterator struct {
	Runes []rune
	Idx   int
}

func (it *StringIterator) Next() (any, bool) {
	if it.Idx >= len(it.Runes) {
		return nil, false
	}
	v := string(it.Runes[it.Idx])
	it.Idx++
	return v, true
}

type MapIterator struct {
	Keys []any
	Idx  int
}

func (it *MapIterator) Next() (any, bool) {
	if it.Idx >= len(it.Keys) {
		return nil, false
	}
	v := it.Keys[it.Idx]
	it.Idx++
	return v, true
}
