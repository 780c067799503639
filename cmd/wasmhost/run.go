package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wippyai/wasm-host/runtime"
)

type runFlags struct {
	fn          string
	args        []string
	interactive bool
}

func newRunCommand(flags *globalFlags) *cobra.Command {
	rf := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run [module.wasm] [-- guest args...]",
		Short: "Boot the runtime, then run a module or call one of its exports",
		Long: `Boot the runtime, loading the boot and site modules from the load path.

With a module and no --func, the module runs as a command: its start
function and _start export run and the process exits with the guest's
status. With --func the named export is called with --arg values and the
results are printed. -i opens an interactive caller.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newState(flags)
			if err != nil {
				return err
			}
			if rf.interactive && len(args) == 0 {
				return fmt.Errorf("interactive mode needs a module")
			}

			if len(args) == 0 {
				// Boot only: run the boot and site modules, then exit.
				s.Boot([]string{os.Args[0]}, nil, nil)
				return nil
			}
			s.Boot(args, runMain(s, rf), nil)
			return nil
		},
	}

	cmd.Flags().StringVar(&rf.fn, "func", "", "exported function to call")
	cmd.Flags().StringArrayVar(&rf.args, "arg", nil, "argument for --func (repeatable)")
	cmd.Flags().BoolVarP(&rf.interactive, "interactive", "i", false, "interactive mode with TUI")
	return cmd
}

func moduleName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func runMain(s *runtime.State, rf *runFlags) runtime.MainFunc {
	return func(ctx context.Context, _ any, args []string) error {
		path := args[0]
		name := moduleName(path)

		if rf.fn == "" && !rf.interactive {
			return s.LoadModule(ctx, name, path)
		}

		bin, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read module: %w", err)
		}
		compiled, err := s.Engine().Compile(ctx, name, bin)
		if err != nil {
			return err
		}
		defer compiled.Close(ctx)

		funcs := exportedFuncs(compiled)
		mod, err := s.Engine().Instantiate(ctx, compiled, s.ModuleConfig().WithName(name).WithStartFunctions())
		if err != nil {
			return fmt.Errorf("instantiate: %w", err)
		}
		defer mod.Close(ctx)

		if rf.interactive {
			return runInteractive(ctx, path, mod, funcs)
		}

		var target *funcInfo
		for i := range funcs {
			if funcs[i].name == rf.fn {
				target = &funcs[i]
				break
			}
		}
		if target == nil {
			return unknownExport(rf.fn, funcs)
		}

		params, err := parseArgs(*target, rf.args)
		if err != nil {
			return err
		}
		results, err := mod.ExportedFunction(target.name).Call(ctx, params...)
		if err != nil {
			return fmt.Errorf("call %s: %w", target.name, err)
		}
		if len(results) > 0 {
			fmt.Fprintln(s.Standard().Output, formatResults(results, target.results))
		}
		return nil
	}
}
