// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 JUCI Contributors

package lua

import (
	"os"
	"strings"
)

// Script library locations, probed in order.
const (
	// LibDirEnv overrides the script library directory.
	LibDirEnv = "JUCI_LUA_LIB_PATH"
	// LocalLibDir is the library directory relative to the working directory.
	LocalLibDir = "./lualib/"
	// InstallLibDir is the library directory of an installed system.
	InstallLibDir = "/usr/lib/orange/lib/"
	// fallbackLibDir is used when no candidate exists.
	fallbackLibDir = "./"
)

// DefaultLibDirs returns the library directory candidates: the environment
// override, the local directory and the installation directory.
func DefaultLibDirs() []string {
	return []string{os.Getenv(LibDirEnv), LocalLibDir, InstallLibDir}
}

// ResolveLibDir returns the first candidate that is an existing directory.
// Empty candidates are skipped. Falls back to the current directory.
func ResolveLibDir(candidates ...string) string {
	for _, dir := range candidates {
		if dir == "" {
			continue
		}
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
	}
	return fallbackLibDir
}

// SearchPath builds a package.path value that looks in dir and dir/orange
// before the current path, and finally in the working directory.
func SearchPath(dir, current string) string {
	dir = strings.TrimSuffix(dir, "/")
	parts := []string{dir + "/?.lua", dir + "/orange/?.lua"}
	if current != "" {
		parts = append(parts, current)
	}
	parts = append(parts, "?.lua")
	return strings.Join(parts, ";")
}
