// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vessel Contributors

package audit_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vesselrun/vessel/internal/audit"
	"github.com/vesselrun/vessel/internal/sandbox"
)

func openStore(t *testing.T) *audit.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit", "violations.db")
	store, err := audit.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func violation(plugin string, at time.Time) sandbox.Violation {
	return sandbox.Violation{
		ID:       ulid.Make().String(),
		Time:     at,
		Plugin:   plugin,
		Kind:     sandbox.ViolationFileAccess,
		Severity: sandbox.SeverityMedium,
		Detail:   "read outside sandbox: /etc/shadow",
	}
}

func TestStore_RecordAndQuery(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	v := violation("scanner", time.Now().UTC().Truncate(time.Millisecond))
	require.NoError(t, store.RecordViolation(ctx, v))

	got, err := store.Violations(ctx, audit.Filter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, v.ID, got[0].ID)
	assert.Equal(t, v.Plugin, got[0].Plugin)
	assert.Equal(t, sandbox.ViolationFileAccess, got[0].Kind)
	assert.Equal(t, sandbox.SeverityMedium, got[0].Severity)
	assert.Equal(t, v.Detail, got[0].Detail)
	assert.True(t, v.Time.Equal(got[0].Time))
}

func TestStore_FilterByPlugin(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.RecordViolation(ctx, violation("scanner", now)))
	require.NoError(t, store.RecordViolation(ctx, violation("backup", now)))

	got, err := store.Violations(ctx, audit.Filter{Plugin: "backup"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "backup", got[0].Plugin)
}

func TestStore_FilterBySince(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.RecordViolation(ctx, violation("scanner", now.Add(-time.Hour))))
	require.NoError(t, store.RecordViolation(ctx, violation("scanner", now)))

	got, err := store.Violations(ctx, audit.Filter{Since: now.Add(-time.Minute)})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestStore_OrderAndLimit(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := range 5 {
		require.NoError(t, store.RecordViolation(ctx, violation("scanner", now.Add(time.Duration(i)*time.Second))))
	}

	got, err := store.Violations(ctx, audit.Filter{Limit: 3})
	require.NoError(t, err)
	require.Len(t, got, 3)
	// Newest first.
	assert.True(t, got[0].Time.After(got[1].Time))
	assert.True(t, got[1].Time.After(got[2].Time))
}

func TestStore_CountAndPurge(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.RecordViolation(ctx, violation("scanner", now.Add(-48*time.Hour))))
	require.NoError(t, store.RecordViolation(ctx, violation("scanner", now)))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	removed, err := store.Purge(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	n, err = store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_DuplicateIDRejected(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	v := violation("scanner", time.Now().UTC())
	require.NoError(t, store.RecordViolation(ctx, v))
	assert.Error(t, store.RecordViolation(ctx, v))
}

func TestStore_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "violations.db")
	ctx := context.Background()

	store, err := audit.Open(path)
	require.NoError(t, err)
	require.NoError(t, store.RecordViolation(ctx, violation("scanner", time.Now().UTC())))
	require.NoError(t, store.Close())

	store, err = audit.Open(path)
	require.NoError(t, err)
	defer store.Close() //nolint:errcheck // test cleanup

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
