// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JUCI Contributors

package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points every default path at temporary directories and resets
// package globals touched by command execution.
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	configFile = ""

	original := slog.Default()
	t.Cleanup(func() {
		slog.SetDefault(original)
		configFile = ""
	})
}

// writeFile creates path under dir with content.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// pluginsDir creates a plugins directory holding the sample plugins.
func pluginsDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "demo/calc.lua", `
local M = {}
function M.add(args) return { sum = args.a + args.b } end
function M.fail(args) error("no luck") end
function M.status(args) return 7 end
return M
`)
	writeFile(t, dir, "hello.lua", `return { greet = function(args) return { msg = "hi" } end }`)
	writeFile(t, dir, "broken.lua", `return {`)
	return dir
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	return executeCmd(cmd, args...)
}

func executeCmd(cmd *cobra.Command, args ...string) (string, error) {
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func decodeJSON(t *testing.T, s string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(s), &v), "output: %s", s)
	return v
}

func TestRootCommand_HasExpectedSubcommands(t *testing.T) {
	isolate(t)

	output, err := execute(t, "--help")
	require.NoError(t, err)

	for _, sub := range []string{"call", "list", "serve"} {
		assert.Contains(t, output, sub, "Help missing %q command", sub)
	}
}

func TestRootCommand_ConfigFlag(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantFlag string
	}{
		{
			name:     "separate value",
			args:     []string{"--config", "/path/to/config.yaml", "--help"},
			wantFlag: "/path/to/config.yaml",
		},
		{
			name:     "config flag with equals",
			args:     []string{"--config=/etc/jucid.yaml", "--help"},
			wantFlag: "/etc/jucid.yaml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)

			_, err := execute(t, tt.args...)
			require.NoError(t, err)
			assert.Equal(t, tt.wantFlag, configFile)
		})
	}
}

func TestRootCommand_PersistentConfigFlags(t *testing.T) {
	isolate(t)

	output, err := execute(t, "call", "--help")
	require.NoError(t, err)

	for _, flag := range []string{"--config", "--plugins-dir", "--lib-path", "--log-level", "--enforce-access", "--user"} {
		assert.Contains(t, output, flag, "call help missing %q", flag)
	}
}

func TestRootCommand_VersionFlag(t *testing.T) {
	isolate(t)

	cmd := NewRootCmd()
	cmd.Version = "test-version"
	output, err := executeCmd(cmd, "--version")
	require.NoError(t, err)
	assert.Contains(t, output, "test-version")
}

func TestRootCommand_NoArgs(t *testing.T) {
	isolate(t)

	_, err := execute(t)
	require.NoError(t, err)
}

func TestUnknownCommand(t *testing.T) {
	isolate(t)

	_, err := execute(t, "nonexistent")
	require.Error(t, err)
}

func TestInvalidFlag(t *testing.T) {
	isolate(t)

	_, err := execute(t, "--invalid-flag")
	require.Error(t, err)
}

func TestLoadConfig_InvalidFileFails(t *testing.T) {
	isolate(t)
	path := writeFile(t, t.TempDir(), "config.yaml", "log:\n  format: xml\n")

	_, err := execute(t, "--config", path, "list")
	require.Error(t, err)
}
