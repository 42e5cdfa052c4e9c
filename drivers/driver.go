package drivers

import (
	"context"
	"errors"
	"runtime"
	"sort"
	"sync"

	"github.com/vibego/vibego/agents"
	"github.com/vibego/vibego/logs"
	"github.com/vibego/vibego/sessions"
	"github.com/vibego/vibego/sourcemaps"
	"github.com/vibego/vibego/syncs"
	"github.com/vibego/vibego/vibepy"
	"github.com/vibego/vibego/vibevm"
)

// EnableDebugging instruments every top-level function of the VM and
// installs a session controller as the guard handler. It returns the
// number of functions instrumented.
type EnableDebugging func(ctx context.Context, vm *vibevm.VM, agent agents.Agent) int

func (Module) EnableDebugging(
	newController sessions.NewController,
	registry *sourcemaps.Registry,
	logger logs.Logger,
) EnableDebugging {
	return func(ctx context.Context, vm *vibevm.VM, agent agents.Agent) int {
		n := instrumentScope(vm, registry, logger)
		controller := newController(ctx, agent)
		vm.Handler = controller.Handler()
		return n
	}
}

// instrumentScope rewrites every closure bound at the top level of
// the VM, skipping underscore-prefixed names. Each function compiles
// independently, so instrumentation runs in parallel. A function that
// cannot be instrumented keeps its original binding.
func instrumentScope(vm *vibevm.VM, registry *sourcemaps.Registry, logger logs.Logger) int {
	root := vm.Scope.Root()

	names := make([]string, 0, len(root.Vars))
	for name := range root.Vars {
		if len(name) > 0 && name[0] == '_' {
			continue
		}
		if _, ok := root.Vars[name].(*vibevm.Closure); !ok {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	sem := syncs.NewSemaphore(runtime.GOMAXPROCS(0))
	var wg sync.WaitGroup
	var mu sync.Mutex
	instrumented := make(map[string]*vibevm.Closure)

	for _, name := range names {
		closure := root.Vars[name].(*vibevm.Closure)
		wg.Add(1)
		sem.Acquire()
		go func() {
			defer wg.Done()
			defer sem.Release()
			replacement, err := vibepy.Instrument(closure, registry)
			if err != nil {
				if errors.Is(err, vibepy.ErrNoSource) {
					logger.Debug("skipping function without source", "name", name)
				} else {
					logger.Warn("could not instrument function",
						"name", name,
						"error", err,
					)
				}
				return
			}
			if replacement == closure {
				return
			}
			mu.Lock()
			instrumented[name] = replacement
			mu.Unlock()
		}()
	}
	wg.Wait()

	for name, closure := range instrumented {
		root.Vars[name] = closure
	}
	return len(instrumented)
}
