// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JUCI Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/mkschreder/jucid/internal/config"
	"github.com/mkschreder/jucid/internal/observability"
	"github.com/mkschreder/jucid/internal/plugin"
	"github.com/mkschreder/jucid/internal/session"
	"github.com/mkschreder/jucid/pkg/errutil"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Load all plugins and keep them resident",
		Long: `Load every plugin in the plugins directory and keep the objects
resident. SIGHUP reloads the configuration ACL and every plugin; SIGINT and
SIGTERM shut down.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServeWithDeps(cmd, nil)
		},
	}
}

// runServeWithDeps runs the daemon with injectable dependencies.
// If deps is nil, default implementations are used.
func runServeWithDeps(cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.ObservabilityServerFactory == nil {
		deps.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker, plugin.RegisterMetrics)
		}
	}
	if deps.Signals == nil {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)
		deps.Signals = sigChan
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	slog.Info("starting jucid",
		"version", version,
		"plugins_dir", cfg.Plugins.Dir,
		"enforce_access", cfg.Plugins.EnforceAccess)

	registry, acl, err := newRegistry(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := registry.Close(context.Background()); err != nil {
			slog.Warn("error closing plugin registry", "error", err)
		}
	}()

	var ready atomic.Bool
	var obsServer ObservabilityServer
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, ready.Load)
		obsErrChan, err := obsServer.Start()
		if err != nil {
			return oops.In("serve").With("addr", cfg.Metrics.Addr).Hint("failed to start observability server").Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, obsErrChan, "observability")
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := obsServer.Stop(shutdownCtx); err != nil {
				slog.Warn("error stopping observability server", "error", err)
			}
		}()
	}

	if err := registry.LoadAll(ctx); err != nil {
		return err
	}
	recordLoaded(obsServer, registry)
	ready.Store(true)
	if deps.Ready != nil {
		deps.Ready(registry)
	}

	cmd.Println("jucid started")
	slog.Info("jucid ready", "plugins", registry.List())

	waitForShutdown(ctx, deps.Signals, func() {
		reload(ctx, cmd, registry, acl, obsServer)
	})

	slog.Info("shutdown complete")
	return nil
}

// reload re-reads the ACL from the configuration file and reloads every
// plugin. Plugin settings other than the ACL need a restart.
func reload(ctx context.Context, cmd *cobra.Command, registry *plugin.Registry, acl *session.ACL, obsServer ObservabilityServer) {
	slog.Info("reloading")
	status := plugin.StatusSuccess

	if cfg, err := config.Load(configFile, cmd.Flags()); err != nil {
		errutil.LogError(slog.Default(), "failed to reload configuration", err)
		status = plugin.StatusError
	} else if err := acl.Load(cfg.ACL); err != nil {
		errutil.LogError(slog.Default(), "failed to reload access lists", err)
		status = plugin.StatusError
	}

	if err := registry.ReloadAll(ctx); err != nil {
		errutil.LogError(slog.Default(), "failed to reload plugins", err)
		status = plugin.StatusError
	}

	if obsServer != nil {
		obsServer.Metrics().RecordReload(status)
	}
	recordLoaded(obsServer, registry)
	slog.Info("reload complete", "status", status, "plugins", registry.List())
}

// waitForShutdown blocks until a termination signal arrives or ctx is
// cancelled, calling onReload for every SIGHUP.
func waitForShutdown(ctx context.Context, signals <-chan os.Signal, onReload func()) {
	for {
		select {
		case sig := <-signals:
			if sig == syscall.SIGHUP {
				onReload()
				continue
			}
			slog.Info("received shutdown signal", "signal", sig)
			return
		case <-ctx.Done():
			slog.Info("context cancelled, shutting down")
			return
		}
	}
}

func recordLoaded(obsServer ObservabilityServer, registry *plugin.Registry) {
	if obsServer == nil {
		return
	}
	obsServer.Metrics().SetPluginsLoaded(len(registry.List()))
}

// monitorServerErrors cancels ctx when a server reports an error.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
