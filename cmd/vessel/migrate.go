// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vessel Contributors

package main

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/vesselrun/vessel/internal/audit"
	"github.com/vesselrun/vessel/internal/config"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run audit database migrations",
		Long:  `Apply all pending schema migrations to the audit violation database.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := dbPath
			if path == "" {
				cfg, err := config.Load(configFile, nil)
				if err != nil {
					return err
				}
				path = cfg.Audit.DBPath
			}

			if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
				return oops.Code("CONFIG_INVALID").With("path", path).Wrapf(err, "cannot create audit directory")
			}

			migrator, err := audit.NewMigrator(path)
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := migrator.Close(); closeErr != nil {
					cmd.PrintErrln("warning: failed to close migrator:", closeErr)
				}
			}()

			cmd.Println("Running migrations...")
			if err := migrator.Up(); err != nil {
				return err
			}

			ver, dirty, err := migrator.Version()
			if err != nil {
				return err
			}
			cmd.Printf("Migrations complete (version %d, dirty=%t)\n", ver, dirty)
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db-path", "", "audit database path (default: from config)")
	return cmd
}
