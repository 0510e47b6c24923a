// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vessel Contributors

package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vesselrun/vessel/internal/config"
	"github.com/vesselrun/vessel/internal/plugin"
	"github.com/vesselrun/vessel/internal/version"
)

// NewPluginsCmd creates the plugins subcommand group.
func NewPluginsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "Inspect and validate plugins",
	}

	cmd.AddCommand(newPluginsListCmd())
	cmd.AddCommand(newPluginsValidateCmd())
	cmd.AddCommand(newPluginsSchemaCmd())

	return cmd
}

func newPluginsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List discovered plugins and their load order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile, nil)
			if err != nil {
				return err
			}

			mgr := plugin.NewManager(plugin.ManagerConfig{
				MaxPlugins:  cfg.Plugins.MaxPlugins,
				HostVersion: version.Host(),
			}, plugin.NewDirSource(cfg.Plugins.Dir), nil, nil, nil, nil)

			if _, err := mgr.Discover(context.Background()); err != nil {
				return err
			}

			infos := mgr.Plugins()
			if len(infos) == 0 {
				cmd.Println("no plugins found in", cfg.Plugins.Dir)
				return nil
			}

			order, err := mgr.LoadOrder()
			if err != nil {
				return err
			}
			position := make(map[string]int, len(order))
			for i, name := range order {
				position[name] = i + 1
			}

			sort.Slice(infos, func(i, j int) bool {
				return position[infos[i].Name] < position[infos[j].Name]
			})

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ORDER\tNAME\tVERSION\tTYPE\tSTATE\tCOMMANDS")
			for _, info := range infos {
				commands := "no"
				if info.ProvidesCommands {
					commands = "yes"
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
					position[info.Name], info.Name, info.Version, info.Type, info.State, commands)
			}
			return w.Flush()
		},
	}
}

func newPluginsValidateCmd() *cobra.Command {
	var signingKey string

	cmd := &cobra.Command{
		Use:   "validate <dir>",
		Short: "Validate a plugin directory's manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := args[0]

			manifest, err := plugin.ReadManifest(dir)
			if err != nil {
				return err
			}
			if err := manifest.CompatibleWith(version.Host()); err != nil {
				return err
			}

			if signingKey != "" {
				verifier, err := plugin.NewEd25519Verifier(signingKey)
				if err != nil {
					return err
				}
				if err := verifier.Verify(manifest, dir); err != nil {
					return err
				}
				cmd.Println("signature: ok")
			}

			caps, err := manifest.CapabilitySet()
			if err != nil {
				return err
			}

			cmd.Printf("%s %s (%s): ok\n", manifest.Name, manifest.Version, manifest.Type)
			cmd.Println("capabilities:", strings.Join(caps.List(), ", "))
			return nil
		},
	}

	cmd.Flags().StringVar(&signingKey, "signing-key", "", "hex Ed25519 public key to verify the signature against")
	return cmd
}

func newPluginsSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the plugin manifest JSON schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			schema, err := plugin.GenerateSchema()
			if err != nil {
				return err
			}
			cmd.Println(string(schema))
			return nil
		},
	}
}
