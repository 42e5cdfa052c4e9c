package sessions

import (
	"context"

	"github.com/reusee/dscope"
	"github.com/vibego/vibego/agents"
	"github.com/vibego/vibego/debugs"
	"github.com/vibego/vibego/logs"
	"github.com/vibego/vibego/sourcemaps"
)

type Module struct {
	dscope.Module
	Agents agents.Module
	Debugs debugs.Module
	Logs   logs.Module
}

func (Module) Registry() *sourcemaps.Registry {
	return sourcemaps.NewRegistry()
}

type NewController func(ctx context.Context, agent agents.Agent) *Controller

func (Module) NewController(
	registry *sourcemaps.Registry,
	logger logs.Logger,
	tap debugs.Tap,
) NewController {
	return func(ctx context.Context, agent agents.Agent) *Controller {
		return &Controller{
			agent:    agent,
			registry: registry,
			ctx:      ctx,
			logger:   logger,
			tap:      tap,
		}
	}
}
