package drivers

import (
	"github.com/reusee/dscope"
	"github.com/vibego/vibego/logs"
	"github.com/vibego/vibego/sessions"
)

type Module struct {
	dscope.Module
	Sessions sessions.Module
	Logs     logs.Module
}
