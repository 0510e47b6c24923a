// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vessel Contributors

package plugin_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vesselrun/vessel/internal/plugin"
	"github.com/vesselrun/vessel/pkg/errutil"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to plugin.State
		want     bool
	}{
		{plugin.StateDiscovered, plugin.StateValidated, true},
		{plugin.StateValidated, plugin.StateLoading, true},
		{plugin.StateLoading, plugin.StateLoaded, true},
		{plugin.StateLoaded, plugin.StateSuspended, true},
		{plugin.StateSuspended, plugin.StateLoaded, true},
		{plugin.StateLoaded, plugin.StateUnloading, true},
		{plugin.StateUnloading, plugin.StateUnloaded, true},
		{plugin.StateUnloaded, plugin.StateLoading, true},
		{plugin.StateUnloaded, plugin.StateValidated, true},
		{plugin.StateFailed, plugin.StateLoading, true},
		{plugin.StateDiscovered, plugin.StateLoaded, false},
		{plugin.StateLoaded, plugin.StateLoading, false},
		{plugin.StateUnloaded, plugin.StateLoaded, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, plugin.CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestCanTransition_AnyStateMayFail(t *testing.T) {
	for _, from := range []plugin.State{
		plugin.StateDiscovered, plugin.StateValidated, plugin.StateLoading,
		plugin.StateLoaded, plugin.StateSuspended, plugin.StateUnloading,
		plugin.StateUnloaded,
	} {
		assert.True(t, plugin.CanTransition(from, plugin.StateFailed), "%s -> failed", from)
	}
}

func TestTransition_IllegalMove(t *testing.T) {
	state, err := plugin.Transition("p", plugin.StateDiscovered, plugin.StateLoaded)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, plugin.CodeInvalidTransition)
	assert.Equal(t, plugin.StateDiscovered, state)
}

func TestTransition_LegalMove(t *testing.T) {
	state, err := plugin.Transition("p", plugin.StateValidated, plugin.StateLoading)
	require.NoError(t, err)
	assert.Equal(t, plugin.StateLoading, state)
}
