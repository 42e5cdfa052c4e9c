package vibevm

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Repr renders a value for display. It never panics.
func Repr(val any) (ret string) {
	defer func() {
		if p := recover(); p != nil {
			ret = "<unrepresentable>"
		}
	}()
	return reprDepth(val, 0)
}

const maxReprDepth = 8

func reprDepth(val any, depth int) string {
	if depth > maxReprDepth {
		return "..."
	}

	switch v := val.(type) {

	case nil:
		return "None"

	case bool:
		if v {
			return "True"
		}
		return "False"

	case int64:
		return strconv.FormatInt(v, 10)

	case float64:
		s := strconv.FormatFloat(v, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eEnI") {
			s += ".0"
		}
		return s

	case string:
		return strconv.Quote(v)

	case *List:
		var b strings.Builder
		b.WriteByte('[')
		for i, e := range v.Elements {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(reprDepth(e, depth+1))
		}
		b.WriteByte(']')
		return b.String()

	case []any:
		var b strings.Builder
		b.WriteByte('(')
		for i, e := range v {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(reprDepth(e, depth+1))
		}
		if len(v) == 1 {
			b.WriteByte(',')
		}
		b.WriteByte(')')
		return b.String()

	case map[any]any:
		type pair struct {
			key   string
			value string
		}
		pairs := make([]pair, 0, len(v))
		for key, value := range v {
			pairs = append(pairs, pair{
				key:   reprDepth(key, depth+1),
				value: reprDepth(value, depth+1),
			})
		}
		slices.SortFunc(pairs, func(a, b pair) int {
			return strings.Compare(a.key, b.key)
		})
		var b strings.Builder
		b.WriteByte('{')
		for i, p := range pairs {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(p.key)
			b.WriteString(": ")
			b.WriteString(p.value)
		}
		b.WriteByte('}')
		return b.String()

	case *Range:
		return fmt.Sprintf("range(%d, %d, %d)", v.Start, v.Stop, v.Step)

	case *Closure:
		return fmt.Sprintf("<function %s>", v.Fun.Name)

	case NativeFunc:
		return fmt.Sprintf("<native function %s>", v.Name)

	}
	return fmt.Sprintf("%v", val)
}

// Str is like Repr but renders strings bare, for print-like output.
func Str(val any) string {
	if s, ok := val.(string); ok {
		return s
	}
	return Repr(val)
}
