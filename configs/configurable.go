package configs

import "reflect"

// Configurable values can be overridden by the debugged script, see VMFork.
type Configurable interface {
	ConfigExpr() string
}

var configurableType = reflect.TypeFor[Configurable]()
