// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vessel Contributors

package plugin

import (
	"crypto/rand"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/vesselrun/vessel/internal/capability"
)

// Context is the per-plugin execution context handed to hosts. It carries
// the plugin's identity, granted capabilities, and working directory, and
// is invalidated when the plugin unloads so stale references cannot be
// used to act on the plugin's behalf.
type Context struct {
	id        string
	name      string
	version   string
	workDir   string
	caps      capability.Set
	createdAt time.Time
	valid     atomic.Bool
}

// NewContext creates a live execution context for a plugin.
func NewContext(name, version, workDir string, caps capability.Set) *Context {
	c := &Context{
		id:        ulid.MustNew(ulid.Now(), rand.Reader).String(),
		name:      name,
		version:   version,
		workDir:   workDir,
		caps:      caps,
		createdAt: time.Now(),
	}
	c.valid.Store(true)
	return c
}

// ID returns the unique context identifier.
func (c *Context) ID() string { return c.id }

// Name returns the plugin name.
func (c *Context) Name() string { return c.name }

// Version returns the plugin version.
func (c *Context) Version() string { return c.version }

// WorkDir returns the plugin's sandbox working directory.
func (c *Context) WorkDir() string { return c.workDir }

// Capabilities returns the granted capability set.
func (c *Context) Capabilities() capability.Set { return c.caps }

// CreatedAt returns when the context was issued.
func (c *Context) CreatedAt() time.Time { return c.createdAt }

// Valid reports whether the context is still live. A context is
// invalidated exactly once, when its plugin unloads.
func (c *Context) Valid() bool { return c.valid.Load() }

// Invalidate marks the context dead. Idempotent.
func (c *Context) Invalidate() { c.valid.Store(false) }

// Has reports whether the context grants a capability. Invalid contexts
// grant nothing.
func (c *Context) Has(cap capability.Capability) bool {
	return c.Valid() && c.caps.Has(cap)
}
