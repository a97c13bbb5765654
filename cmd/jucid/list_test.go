// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JUCI Contributors

package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestListCommand_Text(t *testing.T) {
	isolate(t)
	dir := pluginsDir(t)

	out, err := execute(t, "--plugins-dir", dir, "--load-retries", "0", "list")
	require.NoError(t, err)
	assert.Equal(t, "demo/calc: add, fail, status\nhello: greet\n", out)
}

func TestListCommand_JSON(t *testing.T) {
	isolate(t)
	dir := pluginsDir(t)

	out, err := execute(t, "--plugins-dir", dir, "--load-retries", "0", "list", "-o", "json")
	require.NoError(t, err)
	assert.Equal(t, []any{
		map[string]any{"name": "demo/calc", "methods": []any{"add", "fail", "status"}},
		map[string]any{"name": "hello", "methods": []any{"greet"}},
	}, decodeJSON(t, out))
}

func TestListCommand_YAML(t *testing.T) {
	isolate(t)
	dir := pluginsDir(t)

	out, err := execute(t, "--plugins-dir", dir, "--load-retries", "0", "list", "--output", "yaml")
	require.NoError(t, err)

	var got []objectInfo
	require.NoError(t, yaml.Unmarshal([]byte(out), &got))
	assert.Equal(t, []objectInfo{
		{Name: "demo/calc", Methods: []string{"add", "fail", "status"}},
		{Name: "hello", Methods: []string{"greet"}},
	}, got)
}

func TestListCommand_EmptyDirectory(t *testing.T) {
	isolate(t)

	out, err := execute(t, "--plugins-dir", t.TempDir(), "list", "-o", "json")
	require.NoError(t, err)
	assert.Equal(t, []any{}, decodeJSON(t, out))
}

func TestListCommand_InvalidOutput(t *testing.T) {
	isolate(t)

	_, err := execute(t, "list", "-o", "xml")
	require.Error(t, err)
}

func TestWriteObjects_TextWithoutMethods(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeObjects(&buf, outputText, []objectInfo{{Name: "empty"}}))
	assert.Equal(t, "empty: \n", buf.String())
}
