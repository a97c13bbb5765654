// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JUCI Contributors

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Output formats supported by list.
const (
	outputText = "text"
	outputJSON = "json"
	outputYAML = "yaml"
)

// objectInfo describes one loaded plugin object.
type objectInfo struct {
	Name    string   `json:"name" yaml:"name"`
	Methods []string `json:"methods" yaml:"methods"`
}

// NewListCmd creates the list subcommand.
func NewListCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Load all plugins and print their method signatures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd, output)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", outputText, "output format (text, json, yaml)")

	return cmd
}

func runList(cmd *cobra.Command, output string) error {
	switch output {
	case outputText, outputJSON, outputYAML:
	default:
		return oops.In("cli").Code("INVALID_OUTPUT").With("output", output).
			Errorf("output must be text, json or yaml, got %q", output)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	registry, _, err := newRegistry(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = registry.Close(ctx) }()

	if err := registry.LoadAll(ctx); err != nil {
		return err
	}

	objects := make([]objectInfo, 0)
	for _, name := range registry.List() {
		obj, ok := registry.Get(name)
		if !ok {
			continue
		}
		objects = append(objects, objectInfo{Name: name, Methods: obj.Methods()})
	}

	return writeObjects(cmd.OutOrStdout(), output, objects)
}

func writeObjects(w io.Writer, output string, objects []objectInfo) error {
	switch output {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(objects); err != nil {
			return oops.In("cli").Wrap(err)
		}
	case outputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(objects); err != nil {
			return oops.In("cli").Wrap(err)
		}
		if err := enc.Close(); err != nil {
			return oops.In("cli").Wrap(err)
		}
	default:
		for _, o := range objects {
			if _, err := fmt.Fprintf(w, "%s: %s\n", o.Name, strings.Join(o.Methods, ", ")); err != nil {
				return oops.In("cli").Wrap(err)
			}
		}
	}
	return nil
}
