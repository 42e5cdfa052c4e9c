package main

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/reusee/dscope"
	"github.com/vibego/vibego/agents"
	"github.com/vibego/vibego/backends"
	"github.com/vibego/vibego/cmds"
	"github.com/vibego/vibego/drivers"
	"github.com/vibego/vibego/logs"
	"github.com/vibego/vibego/modes"
	"github.com/vibego/vibego/vibeconfigs"
	"github.com/vibego/vibego/vibepy"
)

var (
	codeArg     = cmds.Var[string]("-c")
	humanSwitch = cmds.Switch("-human")
	noDebug     = cmds.Switch("-no-debug")
)

func main() {

	args := os.Args[1:]
	var scriptPath string
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		scriptPath = args[0]
		args = args[1:]
	}
	ce(cmds.Execute(args))

	ctx := context.Background()

	scope := dscope.New(
		new(Module),
		modes.ForProduction(),
	)
	scope, err := vibeconfigs.VibeScriptFork(scope)
	ce(err)

	scope.Call(func(
		logger logs.Logger,
		enableDebugging drivers.EnableDebugging,
		newCompleter backends.NewCompleter,
		newModelAgent agents.NewModelAgent,
	) {

		var name string
		var input io.Reader
		switch {
		case *codeArg != "":
			name = "<command line>"
			input = strings.NewReader(*codeArg)
		case scriptPath != "":
			f, err := os.Open(scriptPath)
			ce(err)
			defer f.Close()
			name = scriptPath
			input = f
		default:
			name = "<stdin>"
			input = os.Stdin
		}

		vm, err := vibepy.NewVM(name, input)
		ce(err)

		for _, err := range vm.Run {
			ce(err)
		}

		if !*noDebug {
			var agent agents.Agent
			if *humanSwitch {
				agent = agents.NewHuman(os.Stdin, os.Stderr)
			} else {
				completer, err := newCompleter()
				ce(err)
				agent = newModelAgent(completer)
			}

			n := enableDebugging(ctx, vm, agent)
			logger.InfoContext(ctx, "debugging enabled",
				"functions", n,
			)
		}

		// run main() when the script defines one
		if _, ok := vm.Get("main"); ok {
			fn, err := vibepy.CompileExpr(name, "main()")
			ce(err)
			vm.Reset(fn)
			for _, err := range vm.Run {
				ce(err)
			}
			if code, ok := vm.Result().(int64); ok && code != 0 {
				os.Exit(int(code))
			}
		}

	})

}

func ce(err error) {
	if err != nil {
		os.Stderr.WriteString(err.Error())
		os.Stderr.WriteString("\n")
		os.Exit(1)
	}
}
