package vibeconfigs

import (
	"os"

	"github.com/vibego/vibego/cmds"
	"github.com/vibego/vibego/configs"
	"github.com/vibego/vibego/vars"
)

type BaseURL string

var _ configs.Configurable = BaseURL("")

func (b BaseURL) ConfigExpr() string {
	return "BaseURL"
}

var baseURLFlag = cmds.Var[string]("-base-url")

func (Module) BaseURL(
	loader configs.Loader,
) BaseURL {
	return BaseURL(vars.FirstNonZero(
		*baseURLFlag,
		configs.First[string](loader, "base_url"),
		os.Getenv("VIBEGO_BASE_URL"),
		"https://openrouter.ai/api/v1",
	))
}
