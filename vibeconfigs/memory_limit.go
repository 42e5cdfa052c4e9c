package vibeconfigs

import (
	"github.com/vibego/vibego/cmds"
	"github.com/vibego/vibego/configs"
	"github.com/vibego/vibego/vars"
)

// MemoryLimit bounds how many recent exchanges the model agent keeps
// in its transcript, the priming entry excluded.
type MemoryLimit int

var _ configs.Configurable = MemoryLimit(0)

func (m MemoryLimit) ConfigExpr() string {
	return "MemoryLimit"
}

var memoryLimitFlag = cmds.Var[int]("-memory-limit")

func (Module) MemoryLimit(
	loader configs.Loader,
) MemoryLimit {
	return MemoryLimit(vars.FirstNonZero(
		*memoryLimitFlag,
		configs.First[int](loader, "memory_limit"),
		20,
	))
}
