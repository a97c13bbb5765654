// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JUCI Contributors

package main

import (
	"context"
	"os"

	"github.com/mkschreder/jucid/internal/observability"
	"github.com/mkschreder/jucid/internal/plugin"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer with the plugin metrics registered
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer

	// Signals delivers process signals.
	// Default: signal.Notify for SIGHUP, SIGINT and SIGTERM
	Signals <-chan os.Signal

	// Ready is called once the initial plugin load has finished.
	Ready func(*plugin.Registry)
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}
