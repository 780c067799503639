package runtime

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-host/errors"
)

// FindModule resolves a logical module name on dirs. Each directory is tried
// in order with every extension; a name that already carries one of the
// extensions, or an absolute path, is also tried as is.
func FindModule(name string, dirs, extensions []string) (string, bool) {
	if name == "" {
		return "", false
	}
	if filepath.IsAbs(name) {
		if isRegular(name) {
			return name, true
		}
		return "", false
	}

	candidates := make([]string, 0, len(extensions)+1)
	for _, ext := range extensions {
		if strings.HasSuffix(name, ext) {
			candidates = append(candidates, name)
			break
		}
	}
	for _, ext := range extensions {
		candidates = append(candidates, name+ext)
	}

	for _, dir := range dirs {
		for _, c := range candidates {
			path := filepath.Join(dir, c)
			if isRegular(path) {
				return path, true
			}
		}
	}
	return "", false
}

func isRegular(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}

// loadStartupModules loads the required boot module and then the optional
// site module. The site module is located before the boot module runs so
// that a boot module changing the working directory does not affect it.
func (s *State) loadStartupModules(ctx context.Context) error {
	if s.cfg.SkipBootScript {
		s.log.Debug("boot module skipped")
		return nil
	}

	dirs := s.LoadPath()
	exts := s.cfg.Extensions

	sitePath, haveSite := FindModule(s.cfg.SiteScript, dirs, exts)

	bootPath, ok := FindModule(s.cfg.BootScript, dirs, exts)
	if !ok {
		return errors.MissingBootScript(s.cfg.BootScript, dirs)
	}
	if err := s.LoadModule(ctx, s.cfg.BootScript, bootPath); err != nil {
		return err
	}

	if !haveSite {
		s.log.Debug("no site module", zap.String("name", s.cfg.SiteScript))
		return nil
	}
	return s.LoadModule(ctx, s.cfg.SiteScript, sitePath)
}

// LoadModule reads, compiles and instantiates the module at path under name,
// bound to the current ports and program arguments, and records it. A
// guest that exits with code 0 while starting counts as loaded.
func (s *State) LoadModule(ctx context.Context, name, path string) error {
	eng := s.Engine()
	if eng == nil || s.Modules() == nil {
		return errors.NotInitialized(errors.PhaseLoad, "runtime")
	}

	bin, err := os.ReadFile(path)
	if err != nil {
		return errors.Load("read "+path, err)
	}

	mod, err := eng.Run(ctx, name, bin, s.ModuleConfig().WithName(name))
	if err != nil {
		var exit *sys.ExitError
		if !stderrors.As(err, &exit) || exit.ExitCode() != 0 {
			return errors.Instantiation(name, err)
		}
	}

	s.Modules().Add(LoadedModule{Name: name, Path: path, Module: mod})
	s.log.Info("module loaded", zap.String("name", name), zap.String("path", path))
	return nil
}
