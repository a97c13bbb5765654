// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JUCI Contributors

// Package config loads jucid configuration from a YAML file and command-line
// flags.
package config

import (
	"errors"
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/mkschreder/jucid/internal/logging"
	"github.com/mkschreder/jucid/internal/xdg"
)

// Error codes returned while loading configuration.
const (
	CodeRead    = "CONFIG_READ"
	CodeInvalid = "CONFIG_INVALID"
)

// Config is the complete daemon configuration.
type Config struct {
	Log     LogConfig     `koanf:"log" json:"log,omitempty"`
	Plugins PluginsConfig `koanf:"plugins" json:"plugins,omitempty"`
	Metrics MetricsConfig `koanf:"metrics" json:"metrics,omitempty"`
	// ACL maps usernames to access key patterns.
	ACL map[string][]string `koanf:"acl" json:"acl,omitempty" jsonschema:"description=Access patterns per user over scope:object:method:perm"`
}

// LogConfig configures logging.
type LogConfig struct {
	Format string `koanf:"format" json:"format,omitempty" jsonschema:"enum=json,enum=text"`
	Level  string `koanf:"level" json:"level,omitempty" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// PluginsConfig configures plugin discovery and loading.
type PluginsConfig struct {
	Dir           string        `koanf:"dir" json:"dir,omitempty" jsonschema:"description=Directory scanned for .lua plugin files"`
	LibPath       string        `koanf:"lib_path" json:"lib_path,omitempty" jsonschema:"description=Directory holding shared Lua libraries"`
	LoadRetries   int           `koanf:"load_retries" json:"load_retries,omitempty" jsonschema:"minimum=0,maximum=10"`
	RetryDelay    time.Duration `koanf:"retry_delay" json:"retry_delay,omitempty" jsonschema:"type=string,description=Delay between load attempts such as 100ms"`
	EnforceAccess bool          `koanf:"enforce_access" json:"enforce_access,omitempty"`
}

// MetricsConfig configures the observability server.
type MetricsConfig struct {
	// Addr is the listen address; empty disables the server.
	Addr string `koanf:"addr" json:"addr,omitempty"`
}

// Flag names bound by RegisterFlags.
const (
	FlagLogFormat     = "log-format"
	FlagLogLevel      = "log-level"
	FlagPluginsDir    = "plugins-dir"
	FlagLibPath       = "lib-path"
	FlagLoadRetries   = "load-retries"
	FlagRetryDelay    = "retry-delay"
	FlagEnforceAccess = "enforce-access"
	FlagMetricsAddr   = "metrics-addr"
)

// flagKeys maps flag names to configuration keys.
var flagKeys = map[string]string{
	FlagLogFormat:     "log.format",
	FlagLogLevel:      "log.level",
	FlagPluginsDir:    "plugins.dir",
	FlagLibPath:       "plugins.lib_path",
	FlagLoadRetries:   "plugins.load_retries",
	FlagRetryDelay:    "plugins.retry_delay",
	FlagEnforceAccess: "plugins.enforce_access",
	FlagMetricsAddr:   "metrics.addr",
}

// Default returns the built-in configuration.
func Default() Config {
	pluginsDir, err := xdg.PluginsDir()
	if err != nil {
		pluginsDir = "plugins"
	}
	return Config{
		Log: LogConfig{
			Format: "json",
			Level:  "info",
		},
		Plugins: PluginsConfig{
			Dir:         pluginsDir,
			LoadRetries: 2,
			RetryDelay:  100 * time.Millisecond,
		},
	}
}

// RegisterFlags adds the configuration override flags to fs, defaulting to
// the built-in configuration.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String(FlagLogFormat, d.Log.Format, "log format (json, text)")
	fs.String(FlagLogLevel, d.Log.Level, "log level (debug, info, warn, error)")
	fs.String(FlagPluginsDir, d.Plugins.Dir, "directory scanned for plugin files")
	fs.String(FlagLibPath, d.Plugins.LibPath, "directory holding shared Lua libraries")
	fs.Int(FlagLoadRetries, d.Plugins.LoadRetries, "extra attempts for a failing plugin load")
	fs.Duration(FlagRetryDelay, d.Plugins.RetryDelay, "delay between plugin load attempts")
	fs.Bool(FlagEnforceAccess, d.Plugins.EnforceAccess, "require an ACL grant for every call")
	fs.String(FlagMetricsAddr, d.Metrics.Addr, "observability listen address (empty disables)")
}

// Load reads the YAML file at path, applies changed flags on top and
// validates the result. An empty path means the default file, which may be
// absent. flags may be nil.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		if p, err := xdg.ConfigFile(); err == nil {
			path = p
		}
	}

	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // path is operator supplied
		switch {
		case err == nil:
			if err := ValidateSchema(data); err != nil {
				return nil, oops.In("config").Code(CodeInvalid).With("path", path).Wrap(err)
			}
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, oops.In("config").Code(CodeRead).With("path", path).Wrap(err)
			}
		case errors.Is(err, os.ErrNotExist) && !explicit:
			// No config file; defaults and flags only.
		default:
			return nil, oops.In("config").Code(CodeRead).With("path", path).Hint("failed to read config file").Wrap(err)
		}
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.In("config").Code(CodeRead).Hint("failed to apply flags").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.In("config").Code(CodeInvalid).With("path", path).Wrap(err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values the schema cannot express and values that came in
// through flags.
func (c *Config) Validate() error {
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return oops.In("config").Code(CodeInvalid).With("log.format", c.Log.Format).
			Errorf("log format must be json or text, got %q", c.Log.Format)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return oops.In("config").Code(CodeInvalid).Wrap(err)
	}
	if c.Plugins.Dir == "" {
		return oops.In("config").Code(CodeInvalid).New("plugins.dir must not be empty")
	}
	if c.Plugins.LoadRetries < 0 {
		return oops.In("config").Code(CodeInvalid).With("plugins.load_retries", c.Plugins.LoadRetries).
			New("plugins.load_retries must not be negative")
	}
	if c.Plugins.RetryDelay < 0 {
		return oops.In("config").Code(CodeInvalid).With("plugins.retry_delay", c.Plugins.RetryDelay).
			New("plugins.retry_delay must not be negative")
	}
	return nil
}
