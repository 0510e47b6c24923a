// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vessel Contributors

package sandbox_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vesselrun/vessel/internal/capability"
	"github.com/vesselrun/vessel/internal/sandbox"
	"github.com/vesselrun/vessel/pkg/errutil"
)

func newManager(t *testing.T, cfg sandbox.Config) *sandbox.Manager {
	t.Helper()
	if cfg.Root == "" {
		cfg.Root = filepath.Join(t.TempDir(), "sandboxes")
	}
	m, err := sandbox.NewManager(cfg, nil, nil)
	require.NoError(t, err)
	return m
}

func create(t *testing.T, m *sandbox.Manager, plugin string, caps capability.Set) *sandbox.Sandbox {
	t.Helper()
	sb, err := m.Create(context.Background(), plugin, caps, capability.DefaultRequirements())
	require.NoError(t, err)
	return sb
}

func TestManager_Create(t *testing.T) {
	m := newManager(t, sandbox.Config{})

	sb := create(t, m, "plugin-x", capability.NewSet(capability.FilesystemRead))

	assert.Equal(t, "plugin-x", sb.Plugin())
	assert.DirExists(t, sb.WorkDir())
	assert.False(t, sb.Enforced(), "isolation disabled means no-op sandbox")
	assert.Equal(t, 1, m.Count())
}

func TestManager_Create_InvalidName(t *testing.T) {
	m := newManager(t, sandbox.Config{})

	tests := []string{"", "UPPER", "-leading", "trailing-", "has space", "../escape"}
	for _, name := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := m.Create(context.Background(), name, 0, capability.DefaultRequirements())
			require.Error(t, err)
		})
	}
}

func TestManager_Create_Duplicate(t *testing.T) {
	m := newManager(t, sandbox.Config{})
	create(t, m, "dup", 0)

	_, err := m.Create(context.Background(), "dup", 0, capability.DefaultRequirements())
	errutil.AssertErrorCode(t, err, sandbox.CodeSandboxExists)
	assert.Equal(t, 1, m.Count())
}

func TestManager_Destroy(t *testing.T) {
	m := newManager(t, sandbox.Config{})
	sb := create(t, m, "victim", 0)
	workDir := sb.WorkDir()

	require.NoError(t, m.Destroy(context.Background(), "victim"))

	assert.NoDirExists(t, workDir)
	assert.Equal(t, 0, m.Count())

	// Exactly once: the second destroy is an error.
	err := m.Destroy(context.Background(), "victim")
	errutil.AssertErrorCode(t, err, sandbox.CodeSandboxNotFound)
}

func TestValidateFileAccess_CapabilityFirst(t *testing.T) {
	m := newManager(t, sandbox.Config{})
	sb := create(t, m, "reader", capability.NewSet(capability.FilesystemRead))

	// Write denied for every path, even inside the sandbox.
	inside := filepath.Join(sb.WorkDir(), "data.txt")
	err := m.ValidateFileAccess(context.Background(), "reader", inside, sandbox.AccessWrite)
	errutil.AssertErrorCode(t, err, sandbox.CodePermissionDenied)

	// Read allowed inside the sandbox root.
	require.NoError(t, m.ValidateFileAccess(context.Background(), "reader", inside, sandbox.AccessRead))

	// The denial was recorded as a capability violation.
	violations := m.Violations().List()
	require.Len(t, violations, 1)
	assert.Equal(t, sandbox.ViolationCapability, violations[0].Kind)
	assert.Equal(t, "reader", violations[0].Plugin)
}

func TestValidateFileAccess_PathTraversal(t *testing.T) {
	m := newManager(t, sandbox.Config{})
	create(t, m, "plugin-x", capability.NewSet(capability.FilesystemRead))

	err := m.ValidateFileAccess(context.Background(), "plugin-x", "../../etc/passwd", sandbox.AccessRead)
	errutil.AssertErrorCode(t, err, sandbox.CodePathTraversal)

	violations := m.Violations().List()
	require.Len(t, violations, 1)
	assert.Equal(t, sandbox.ViolationPathTraversal, violations[0].Kind)
	assert.Equal(t, sandbox.SeverityHigh, violations[0].Severity)
}

func TestValidateFileAccess_AbsoluteOutside(t *testing.T) {
	m := newManager(t, sandbox.Config{})
	create(t, m, "p", capability.NewSet(capability.FilesystemRead))

	err := m.ValidateFileAccess(context.Background(), "p", "/etc/hostname", sandbox.AccessRead)
	errutil.AssertErrorCode(t, err, sandbox.CodeIsolationViolated)
}

func TestValidateFileAccess_RelativeInside(t *testing.T) {
	m := newManager(t, sandbox.Config{})
	create(t, m, "p", capability.NewSet(capability.FilesystemRead, capability.FilesystemWrite))

	require.NoError(t, m.ValidateFileAccess(context.Background(), "p", "subdir/file.txt", sandbox.AccessRead))
	require.NoError(t, m.ValidateFileAccess(context.Background(), "p", "new-file.txt", sandbox.AccessWrite))
}

func TestValidateFileAccess_SymlinkEscape(t *testing.T) {
	m := newManager(t, sandbox.Config{})
	sb := create(t, m, "p", capability.NewSet(capability.FilesystemRead))

	outside := t.TempDir()
	link := filepath.Join(sb.WorkDir(), "sneaky")
	require.NoError(t, os.Symlink(outside, link))

	err := m.ValidateFileAccess(context.Background(), "p", "sneaky/secret.txt", sandbox.AccessRead)
	require.Error(t, err, "symlink pointing outside the sandbox must be rejected")
}

func TestValidateFileAccess_ReadOnlyMode(t *testing.T) {
	m := newManager(t, sandbox.Config{FilesystemMode: sandbox.FilesystemReadOnly})
	sb := create(t, m, "p", capability.NewSet(
		capability.FilesystemRead, capability.FilesystemWrite, capability.FilesystemExecute))

	inside := filepath.Join(sb.WorkDir(), "f")
	require.NoError(t, m.ValidateFileAccess(context.Background(), "p", inside, sandbox.AccessRead))

	err := m.ValidateFileAccess(context.Background(), "p", inside, sandbox.AccessWrite)
	errutil.AssertErrorCode(t, err, sandbox.CodePermissionDenied)

	err = m.ValidateFileAccess(context.Background(), "p", inside, sandbox.AccessExecute)
	errutil.AssertErrorCode(t, err, sandbox.CodePermissionDenied)
}

func TestValidateFileAccess_ReadWriteAllowList(t *testing.T) {
	shared := t.TempDir()
	m := newManager(t, sandbox.Config{
		FilesystemMode: sandbox.FilesystemReadWrite,
		AllowedPaths:   []string{filepath.ToSlash(shared) + "/**"},
	})
	create(t, m, "p", capability.NewSet(capability.FilesystemRead, capability.FilesystemWrite))

	require.NoError(t, m.ValidateFileAccess(context.Background(), "p",
		filepath.Join(shared, "export", "data.json"), sandbox.AccessWrite))

	err := m.ValidateFileAccess(context.Background(), "p", "/etc/hostname", sandbox.AccessRead)
	errutil.AssertErrorCode(t, err, sandbox.CodeIsolationViolated)
}

func TestValidateFileAccess_UnknownSandbox(t *testing.T) {
	m := newManager(t, sandbox.Config{})
	err := m.ValidateFileAccess(context.Background(), "ghost", "f", sandbox.AccessRead)
	errutil.AssertErrorCode(t, err, sandbox.CodeSandboxNotFound)
}

func TestValidateNetworkAccess(t *testing.T) {
	caps := capability.NewSet(capability.NetworkClient, capability.NetworkServer)

	tests := []struct {
		name     string
		mode     sandbox.NetworkMode
		caps     capability.Set
		op       sandbox.NetworkOp
		wantCode string
	}{
		{name: "connect allowed restricted", mode: sandbox.NetworkRestricted, caps: caps, op: sandbox.NetworkConnect},
		{name: "listen denied restricted", mode: sandbox.NetworkRestricted, caps: caps, op: sandbox.NetworkListen, wantCode: sandbox.CodeIsolationViolated},
		{name: "bind denied restricted", mode: sandbox.NetworkRestricted, caps: caps, op: sandbox.NetworkBind, wantCode: sandbox.CodeIsolationViolated},
		{name: "listen allowed none", mode: sandbox.NetworkNone, caps: caps, op: sandbox.NetworkListen},
		{name: "connect denied isolated despite capability", mode: sandbox.NetworkIsolated, caps: caps, op: sandbox.NetworkConnect, wantCode: sandbox.CodeIsolationViolated},
		{name: "connect without capability", mode: sandbox.NetworkNone, caps: 0, op: sandbox.NetworkConnect, wantCode: sandbox.CodePermissionDenied},
		{name: "listen with client capability only", mode: sandbox.NetworkNone, caps: capability.NewSet(capability.NetworkClient), op: sandbox.NetworkListen, wantCode: sandbox.CodePermissionDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newManager(t, sandbox.Config{NetworkMode: tt.mode})
			create(t, m, "p", tt.caps)

			err := m.ValidateNetworkAccess(context.Background(), "p", tt.op)
			if tt.wantCode == "" {
				require.NoError(t, err)
				return
			}
			errutil.AssertErrorCode(t, err, tt.wantCode)
			assert.NotZero(t, m.Violations().Len(), "denial must be recorded")
		})
	}
}

func TestExecuteCommand(t *testing.T) {
	m := newManager(t, sandbox.Config{})
	create(t, m, "runner", capability.NewSet(capability.HostCommand))

	result, err := m.ExecuteCommand(context.Background(), "runner", []string{"true"})
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Positive(t, result.Duration)
}

func TestExecuteCommand_NonZeroExit(t *testing.T) {
	m := newManager(t, sandbox.Config{})
	create(t, m, "runner", capability.NewSet(capability.HostCommand))

	result, err := m.ExecuteCommand(context.Background(), "runner", []string{"false"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.ExitCode)
}

func TestExecuteCommand_MissingCapability(t *testing.T) {
	m := newManager(t, sandbox.Config{})
	create(t, m, "limited", capability.NewSet(capability.FilesystemRead))

	_, err := m.ExecuteCommand(context.Background(), "limited", []string{"true"})
	errutil.AssertErrorCode(t, err, sandbox.CodePermissionDenied)
}

func TestExecuteCommand_RejectsShellMetacharacters(t *testing.T) {
	m := newManager(t, sandbox.Config{})
	create(t, m, "runner", capability.NewSet(capability.HostCommand))

	tests := [][]string{
		{"sh", "-c", "echo hi; rm -rf /"},
		{"echo", "$(whoami)"},
		{"echo", "a|b"},
		{"echo", "`id`"},
		{"cat", "< /etc/passwd"},
	}
	for _, argv := range tests {
		_, err := m.ExecuteCommand(context.Background(), "runner", argv)
		errutil.AssertErrorCode(t, err, sandbox.CodeUnsafeArgument)
	}

	violations := m.Violations().List()
	require.NotEmpty(t, violations)
	assert.Equal(t, sandbox.ViolationSyscall, violations[0].Kind)
}

func TestExecuteCommand_EmptyArgv(t *testing.T) {
	m := newManager(t, sandbox.Config{})
	create(t, m, "runner", capability.NewSet(capability.HostCommand))

	_, err := m.ExecuteCommand(context.Background(), "runner", nil)
	errutil.AssertErrorCode(t, err, sandbox.CodeUnsafeArgument)
}

func TestViolationLog_Drain(t *testing.T) {
	m := newManager(t, sandbox.Config{})
	create(t, m, "p", 0)

	_ = m.ValidateFileAccess(context.Background(), "p", "f", sandbox.AccessRead)
	require.Equal(t, 1, m.Violations().Len())

	drained := m.Violations().Drain()
	assert.Len(t, drained, 1)
	assert.Equal(t, 0, m.Violations().Len())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     sandbox.Config
		wantErr bool
	}{
		{name: "defaults", cfg: sandbox.Config{}},
		{name: "bad filesystem mode", cfg: sandbox.Config{FilesystemMode: "open"}, wantErr: true},
		{name: "bad network mode", cfg: sandbox.Config{NetworkMode: "wide"}, wantErr: true},
		{name: "bad allow pattern", cfg: sandbox.Config{AllowedPaths: []string{"[unclosed"}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.Root = filepath.Join(t.TempDir(), "root")
			_, err := sandbox.NewManager(tt.cfg, nil, nil)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}
