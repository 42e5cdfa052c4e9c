package configs

import (
	"fmt"
	"reflect"

	"github.com/reusee/dscope"
	"github.com/vibego/vibego/vibevm"
)

// VMFork forks scope with Configurable values redefined by script globals.
// A global named after the Configurable type overrides the configured value.
func VMFork(scope dscope.Scope, env *vibevm.Env) (dscope.Scope, error) {
	var defs []any
	for t := range scope.AllTypes() {
		if !t.Implements(configurableType) {
			continue
		}
		value, ok := env.Get(t.Name())
		if !ok {
			continue
		}
		rv := reflect.ValueOf(value)
		if !rv.IsValid() || !rv.Type().ConvertibleTo(t) {
			return scope, fmt.Errorf("cannot use %T as %v", value, t)
		}
		pv := reflect.New(t)
		pv.Elem().Set(rv.Convert(t))
		defs = append(defs, pv.Interface())
	}
	if len(defs) == 0 {
		return scope, nil
	}
	return scope.Fork(defs...), nil
}
