// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vessel Contributors

package plugin_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vesselrun/vessel/internal/capability"
	"github.com/vesselrun/vessel/internal/plugin"
)

func TestContext_CapabilityChecks(t *testing.T) {
	caps := capability.NewSet(capability.FilesystemRead, capability.NetworkClient)
	pctx := plugin.NewContext("scanner", "1.0.0", "/var/lib/vessel/sandboxes/scanner", caps)

	assert.True(t, pctx.Valid())
	assert.True(t, pctx.Has(capability.FilesystemRead))
	assert.False(t, pctx.Has(capability.FilesystemWrite))
	assert.Equal(t, "scanner", pctx.Name())
	assert.NotEmpty(t, pctx.ID())
}

func TestContext_InvalidateRevokesEverything(t *testing.T) {
	caps := capability.NewSet(capability.FilesystemRead)
	pctx := plugin.NewContext("scanner", "1.0.0", "/tmp/scanner", caps)

	pctx.Invalidate()
	assert.False(t, pctx.Valid())
	assert.False(t, pctx.Has(capability.FilesystemRead))

	// Invalidate is idempotent.
	pctx.Invalidate()
	assert.False(t, pctx.Valid())
}

func TestContext_UniqueIDs(t *testing.T) {
	a := plugin.NewContext("p", "1.0.0", "/tmp/p", 0)
	b := plugin.NewContext("p", "1.0.0", "/tmp/p", 0)
	assert.NotEqual(t, a.ID(), b.ID())
}
