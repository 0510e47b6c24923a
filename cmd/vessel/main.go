// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vessel Contributors

// Package main is the entry point for the Vessel daemon and CLI.
package main

import (
	"fmt"
	"os"

	"github.com/vesselrun/vessel/internal/version"
)

// Build metadata set at build time.
var (
	commit = "unknown"
	date   = "unknown"
)

func main() {
	cmd := NewRootCmd()
	cmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version.Version, commit, date)

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
