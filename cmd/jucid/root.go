// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JUCI Contributors

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mkschreder/jucid/internal/config"
	"github.com/mkschreder/jucid/internal/logging"
	"github.com/mkschreder/jucid/internal/plugin"
	"github.com/mkschreder/jucid/internal/plugin/hostfunc"
	pluginlua "github.com/mkschreder/jucid/internal/plugin/lua"
	"github.com/mkschreder/jucid/internal/session"
)

// Global flags available to all subcommands.
var configFile string

const serviceName = "jucid"

// NewRootCmd creates the root command for the jucid CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jucid",
		Short: "jucid - Lua plugin host for JUCI",
		Long: `jucid loads Lua plugin modules into embedded interpreters and
dispatches method calls into them, exchanging arguments and results as
binary blobs.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/jucid/config.yaml)")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewCallCmd())
	cmd.AddCommand(NewListCmd())
	cmd.AddCommand(NewServeCmd())

	return cmd
}

// loadConfig loads the configuration for cmd and installs the default
// logger.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	logging.SetDefault(serviceName, version, cfg.Log.Format, level)
	return cfg, nil
}

// newRegistry builds the plugin registry and ACL described by cfg.
func newRegistry(cfg *config.Config) (*plugin.Registry, *session.ACL, error) {
	acl := session.NewACL()
	if err := acl.Load(cfg.ACL); err != nil {
		return nil, nil, err
	}

	factory := pluginlua.NewStateFactory(
		pluginlua.WithLibDir(cfg.Plugins.LibPath),
		pluginlua.WithHostFunctions(hostfunc.New(hostfunc.WithLogger(slog.Default()))),
	)
	slog.Debug("script library directory", "dir", factory.LibDir())

	registry := plugin.NewRegistry(cfg.Plugins.Dir,
		plugin.WithEngineFactory(factory.NewEngine),
		plugin.WithAccessControl(cfg.Plugins.EnforceAccess),
		plugin.WithLoadRetries(uint64(cfg.Plugins.LoadRetries), cfg.Plugins.RetryDelay), //nolint:gosec // validated non-negative
	)
	return registry, acl, nil
}
