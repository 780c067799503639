// Command wasmhost boots the embedded runtime and runs WebAssembly modules
// inside it.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/wasm-host/config"
	"github.com/wippyai/wasm-host/engine"
	"github.com/wippyai/wasm-host/port"
	"github.com/wippyai/wasm-host/runtime"
)

type globalFlags struct {
	configPath string
	logLevel   string
	loadPath   []string
	trace      bool
	debug      bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "wasmhost",
		Short:         "Boot the embedded WebAssembly runtime and run modules",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "configuration file (TOML)")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringSliceVarP(&flags.loadPath, "load-path", "L", nil, "prepend a directory to the module search path")
	pf.BoolVar(&flags.trace, "trace", false, "print every boot step")
	pf.BoolVar(&flags.debug, "debug", false, "check boot step prerequisites")

	root.AddCommand(newRunCommand(flags), newStepsCommand(flags), newConfigCommand(flags))
	return root
}

// loadConfig applies command-line overrides on top of the loaded file and
// environment.
func loadConfig(flags *globalFlags) (config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return cfg, err
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	if len(flags.loadPath) > 0 {
		cfg.LoadPath = append(append([]string(nil), flags.loadPath...), cfg.LoadPath...)
	}
	if flags.debug {
		cfg.Debug = true
	}
	return cfg, cfg.Validate()
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	zc.DisableStacktrace = true
	return zc.Build()
}

// newState builds the runtime state and routes every package logger to
// the configured level.
func newState(flags *globalFlags) (*runtime.State, error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}
	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	engine.SetLogger(log.Named("engine"))
	port.SetLogger(log.Named("port"))

	opts := []runtime.Option{runtime.WithLogger(log.Named("runtime"))}
	if flags.trace {
		opts = append(opts, runtime.WithTracer(newTracePrinter(os.Stderr)))
	}
	return runtime.New(cfg, opts...)
}
