// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JUCI Contributors

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/mkschreder/jucid/internal/plugin"
	"github.com/mkschreder/jucid/internal/session"
	"github.com/mkschreder/jucid/pkg/blob"
)

// NewCallCmd creates the call subcommand.
func NewCallCmd() *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "call <object> <method> [json-args]",
		Short: "Load one plugin object and call a method on it",
		Long: `Load the named plugin object from the plugins directory, call one of
its methods with an optional JSON object as arguments and print the
result blob as JSON.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var argsJSON string
			if len(args) == 3 {
				argsJSON = args[2]
			}
			return runCall(cmd, args[0], args[1], argsJSON, user)
		},
	}

	cmd.Flags().StringVar(&user, "user", "", "call as this user (required when access is enforced)")

	return cmd
}

func runCall(cmd *cobra.Command, object, method, argsJSON, user string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := plugin.ValidateName(object); err != nil {
		return err
	}

	var args *blob.Field
	if argsJSON != "" {
		data, err := blob.FromJSON([]byte(argsJSON))
		if err != nil {
			return err
		}
		f, err := blob.Parse(data)
		if err != nil {
			return err
		}
		args = &f
	}

	registry, acl, err := newRegistry(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = registry.Close(ctx) }()

	path := filepath.Join(cfg.Plugins.Dir, filepath.FromSlash(object)+".lua")
	if _, err := os.Stat(path); err != nil {
		return oops.In("cli").Code(plugin.CodeObjectNotFound).With("plugin", object).With("path", path).
			Hint("no plugin file for object").Wrap(err)
	}
	if err := registry.Load(ctx, plugin.Discovered{Name: object, Path: path}); err != nil {
		return err
	}

	var sess *session.Session
	if user != "" {
		sess = session.New(user, acl)
	}

	// A nil *Session must reach the registry as a nil interface.
	var out []byte
	if sess != nil {
		out, err = registry.Call(ctx, sess, object, method, args)
	} else {
		out, err = registry.Call(ctx, nil, object, method, args)
	}
	if out != nil {
		if perr := printBlob(cmd, out); perr != nil {
			return perr
		}
	}
	return err
}

func printBlob(cmd *cobra.Command, data []byte) error {
	root, err := blob.Parse(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), root.String())
	return err
}
