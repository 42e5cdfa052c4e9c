package nets

import (
	"github.com/reusee/dscope"
	"github.com/vibego/vibego/configs"
	"github.com/vibego/vibego/logs"
)

type Module struct {
	dscope.Module
	Configs configs.Module
	Logs    logs.Module
}
