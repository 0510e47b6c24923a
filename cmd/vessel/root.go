// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vessel Contributors

package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the Vessel CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vessel",
		Short: "Vessel - a pluggable container-runtime host",
		Long: `Vessel routes container operations to interchangeable OCI backends
and is extensible through sandboxed Lua and binary plugins.`,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	cmd.AddCommand(NewDaemonCmd())
	cmd.AddCommand(NewPluginsCmd())
	cmd.AddCommand(NewMigrateCmd())

	return cmd
}
