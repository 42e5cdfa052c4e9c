package vibeconfigs

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/reusee/dscope"
	"github.com/vibego/vibego/configs"
	"github.com/vibego/vibego/vibepy"
	"github.com/vibego/vibego/vibevm"
)

// VibeScriptFork executes vibe.py config scripts and forks the scope
// with the values they assign to configurable names. Files are run in
// system, user, local order, each script's environment chained to the
// previous one so local definitions shadow global ones.
func VibeScriptFork(scope dscope.Scope) (dscope.Scope, error) {
	var paths []string

	filenames := []string{
		"vibe.py",
		".vibe.py",
	}

	// system wide dir
	for _, filename := range filenames {
		path := filepath.Join("/etc", filename)
		if _, err := os.Stat(path); err == nil {
			paths = append(paths, path)
		}
	}

	// user config dir
	configDir, err := os.UserConfigDir()
	if err == nil {
		for _, filename := range filenames {
			path := filepath.Join(configDir, filename)
			_, err := os.Stat(path)
			if err == nil {
				paths = append(paths, path)
			}
		}
	}

	// working directory
	workingDir, err := os.Getwd()
	if err == nil {
		for _, filename := range filenames {
			path := filepath.Join(workingDir, filename)
			_, err := os.Stat(path)
			if err == nil {
				paths = append(paths, path)
			}
		}
	}

	var lastEnv *vibevm.Env
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			return scope, err
		}
		vm, err := vibepy.NewVM(path, strings.NewReader(string(content)))
		if err != nil {
			return scope, err
		}
		for _, err := range vm.Run {
			if err != nil {
				return scope, err
			}
		}
		// later files shadow earlier ones through the parent chain
		vm.Scope.Parent = lastEnv
		lastEnv = vm.Scope
		scope, err = configs.VMFork(scope, vm.Scope)
		if err != nil {
			return scope, err
		}
	}

	scope = scope.Fork(ConfigScriptEnv(lastEnv))

	return scope, nil
}

type ConfigScriptEnv *vibevm.Env

func (Module) ConfigScriptEnv() ConfigScriptEnv {
	return nil
}
