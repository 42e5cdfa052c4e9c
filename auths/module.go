package auths

import (
	"github.com/reusee/dscope"
	"github.com/vibego/vibego/logs"
	"github.com/vibego/vibego/vibeconfigs"
)

type Module struct {
	dscope.Module
	Logs        logs.Module
	VibeConfigs vibeconfigs.Module
}
