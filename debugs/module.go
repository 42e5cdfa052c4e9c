package debugs

import (
	"github.com/reusee/dscope"

	"github.com/vibego/vibego/logs"
)

type Module struct {
	dscope.Module
	Logs logs.Module
}
