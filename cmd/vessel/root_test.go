// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vessel Contributors

package main

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	configFile = ""
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	cmd := NewRootCmd()

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.Contains(t, names, "daemon")
	assert.Contains(t, names, "plugins")
	assert.Contains(t, names, "migrate")
}

func TestRootCmd_Help(t *testing.T) {
	out, err := execute(t, "--help")
	require.NoError(t, err)
	assert.Contains(t, out, "vessel")
	assert.Contains(t, out, "daemon")
}

func TestRootCmd_ConfigFlag(t *testing.T) {
	cmd := NewRootCmd()
	flag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, flag)
	assert.Equal(t, "", flag.DefValue)
}

func TestRootCmd_UnknownCommand(t *testing.T) {
	_, err := execute(t, "teleport")
	assert.Error(t, err)
}

func findCommand(t *testing.T, root *cobra.Command, path ...string) *cobra.Command {
	t.Helper()
	cmd := root
	for _, name := range path {
		found := false
		for _, sub := range cmd.Commands() {
			if sub.Name() == name {
				cmd = sub
				found = true
				break
			}
		}
		require.True(t, found, "command %q not found", name)
	}
	return cmd
}

func TestPluginsCmd_HasSubcommands(t *testing.T) {
	root := NewRootCmd()
	for _, name := range []string{"list", "validate", "schema"} {
		findCommand(t, root, "plugins", name)
	}
}
