// Package config loads host configuration from defaults, an optional TOML
// file and WASMHOST_* environment variables.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/wippyai/wasm-host/errors"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "WASMHOST"

// LoadPathEnv lists extra search directories, separated like PATH.
const LoadPathEnv = EnvPrefix + "_LOAD_PATH"

// Config holds host configuration.
type Config struct {
	// LoadPath is searched first, in order, for boot modules.
	LoadPath   []string `json:"load_path" mapstructure:"load_path"`
	Extensions []string `json:"extensions" mapstructure:"extensions" validate:"min=1,dive,startswith=."`
	// BootScript is the logical name of the required boot module.
	BootScript string `json:"boot_script" mapstructure:"boot_script" validate:"required"`
	// SiteScript is the logical name of the optional site module.
	SiteScript string `json:"site_script" mapstructure:"site_script"`
	SiteDir    string `json:"site_dir" mapstructure:"site_dir"`
	LibraryDir string `json:"library_dir" mapstructure:"library_dir"`
	// CacheDir enables an on-disk compilation cache when set.
	CacheDir string `json:"cache_dir" mapstructure:"cache_dir"`
	LogLevel string `json:"log_level" mapstructure:"log_level" validate:"oneof=debug info warn error" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
	// MemoryLimitPages caps guest memory (64KiB pages); 0 keeps wazero's default.
	MemoryLimitPages uint32 `json:"memory_limit_pages" mapstructure:"memory_limit_pages" validate:"lte=65536" jsonschema:"maximum=65536"`
	// WasmThreads enables the WebAssembly threads proposal (shared memory
	// and atomics) in the engine.
	WasmThreads bool `json:"wasm_threads" mapstructure:"wasm_threads"`
	// MaxThreads bounds the number of goroutines inside the runtime at once.
	MaxThreads     int  `json:"max_threads" mapstructure:"max_threads" validate:"gte=1" jsonschema:"minimum=1"`
	SkipBootScript bool `json:"skip_boot_script" mapstructure:"skip_boot_script"`
	// Debug turns on the boot step prerequisite checks.
	Debug bool `json:"debug" mapstructure:"debug"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Extensions: []string{".wasm"},
		BootScript: "boot",
		SiteScript: "init",
		SiteDir:    filepath.Join("/usr", "local", "share", "wasmhost", "site"),
		LibraryDir: filepath.Join("/usr", "local", "share", "wasmhost", "lib"),
		LogLevel:   "warn",
		MaxThreads: 1024,
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("load_path", d.LoadPath)
	v.SetDefault("extensions", d.Extensions)
	v.SetDefault("boot_script", d.BootScript)
	v.SetDefault("site_script", d.SiteScript)
	v.SetDefault("site_dir", d.SiteDir)
	v.SetDefault("library_dir", d.LibraryDir)
	v.SetDefault("cache_dir", d.CacheDir)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("memory_limit_pages", d.MemoryLimitPages)
	v.SetDefault("max_threads", d.MaxThreads)
	v.SetDefault("skip_boot_script", d.SkipBootScript)
	v.SetDefault("debug", d.Debug)
	v.SetDefault("wasm_threads", d.WasmThreads)
}

// Load reads configuration. path names a TOML file; when empty,
// WASMHOST_CONFIG is consulted and then ~/.config/wasmhost/config.toml,
// and a missing file is not an error.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("toml")

	explicit := path != ""
	if !explicit {
		path = os.Getenv(EnvPrefix + "_CONFIG")
		explicit = path != ""
	}
	if explicit {
		v.SetConfigFile(path)
	} else if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "wasmhost"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if explicit {
			return Config{}, errors.Config("read config "+path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, errors.Config("unmarshal config", err)
	}

	// The load path list uses the OS list separator, not commas.
	if env, ok := os.LookupEnv(LoadPathEnv); ok {
		c.LoadPath = splitList(env)
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.Config("invalid configuration", err)
	}
	return nil
}

// SearchPath returns the directories searched for boot modules: LoadPath,
// then SiteDir, then LibraryDir, without empties or duplicates.
func (c Config) SearchPath() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(dir string) {
		dir = strings.TrimSpace(dir)
		if dir == "" {
			return
		}
		dir = filepath.Clean(dir)
		if _, ok := seen[dir]; ok {
			return
		}
		seen[dir] = struct{}{}
		out = append(out, dir)
	}
	for _, dir := range c.LoadPath {
		add(dir)
	}
	add(c.SiteDir)
	add(c.LibraryDir)
	return out
}

func splitList(s string) []string {
	var out []string
	for _, dir := range filepath.SplitList(s) {
		if dir = strings.TrimSpace(dir); dir != "" {
			out = append(out, dir)
		}
	}
	return out
}
