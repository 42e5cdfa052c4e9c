package vibeconfigs

import (
	"github.com/vibego/vibego/cmds"
	"github.com/vibego/vibego/configs"
	"github.com/vibego/vibego/vars"
)

type ModelName string

var _ configs.Configurable = ModelName("")

func (m ModelName) ConfigExpr() string {
	return "ModelName"
}

var modelFlag = cmds.Var[string]("-model")

func (Module) ModelName(
	loader configs.Loader,
) ModelName {
	return ModelName(vars.FirstNonZero(
		*modelFlag,
		configs.First[string](loader, "model"),
		"anthropic/claude-sonnet-4",
	))
}
