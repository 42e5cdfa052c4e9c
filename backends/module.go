package backends

import (
	"github.com/reusee/dscope"
	"github.com/vibego/vibego/auths"
	"github.com/vibego/vibego/logs"
	"github.com/vibego/vibego/nets"
	"github.com/vibego/vibego/vibeconfigs"
)

type Module struct {
	dscope.Module
	Auths       auths.Module
	Nets        nets.Module
	Logs        logs.Module
	VibeConfigs vibeconfigs.Module
}
