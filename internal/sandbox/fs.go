// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vessel Contributors

package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/oops"

	"github.com/vesselrun/vessel/internal/capability"
)

// AccessType is the kind of file access being validated.
type AccessType string

// File access types.
const (
	AccessRead    AccessType = "read"
	AccessWrite   AccessType = "write"
	AccessExecute AccessType = "execute"
)

func (a AccessType) requiredCapability() (capability.Capability, error) {
	switch a {
	case AccessRead:
		return capability.FilesystemRead, nil
	case AccessWrite:
		return capability.FilesystemWrite, nil
	case AccessExecute:
		return capability.FilesystemExecute, nil
	default:
		return 0, fmt.Errorf("unknown access type %q", a)
	}
}

// ValidateFileAccess checks a file access for the plugin. The capability
// check runs first; only then is the path resolved to a canonical absolute
// form and tested for containment per the configured filesystem mode.
// Denials distinguish PERMISSION_DENIED (capability or mode) from
// PATH_TRAVERSAL / ISOLATION_VIOLATION (containment), and every denial is
// recorded in the violation log.
func (m *Manager) ValidateFileAccess(ctx context.Context, plugin, path string, access AccessType) error {
	sb, err := m.lookup(plugin)
	if err != nil {
		return err
	}

	required, err := access.requiredCapability()
	if err != nil {
		return oops.Code(CodeConfigInvalid).With("plugin", plugin).Wrap(err)
	}
	if err := m.requireCapability(ctx, sb, required,
		fmt.Sprintf("file %s access to %q denied: missing %s", access, path, required)); err != nil {
		return err
	}

	if m.cfg.FilesystemMode == FilesystemReadOnly && access != AccessRead {
		m.violations.Append(ctx, plugin, ViolationFileAccess, SeverityMedium,
			fmt.Sprintf("file %s access to %q denied: filesystem is read-only", access, path))
		return oops.Code(CodePermissionDenied).
			With("plugin", plugin).
			With("path", path).
			With("access", string(access)).
			New("filesystem mode is read-only")
	}

	canonical, err := canonicalize(sb.workDir, path)
	if err != nil {
		return oops.Code(CodeIsolationViolated).
			With("plugin", plugin).
			With("path", path).
			Hint("failed to resolve path").
			Wrap(err)
	}

	if m.contains(sb, canonical) {
		return nil
	}

	// Outside the sandbox. A path that climbed out with ".." is an attempted
	// traversal; anything else is a plain isolation violation.
	if strings.Contains(filepath.ToSlash(path), "..") {
		m.violations.Append(ctx, plugin, ViolationPathTraversal, SeverityHigh,
			fmt.Sprintf("path traversal attempt: %q resolves to %q outside sandbox", path, canonical))
		return oops.Code(CodePathTraversal).
			With("plugin", plugin).
			With("path", path).
			With("resolved", canonical).
			New("path escapes sandbox root")
	}
	m.violations.Append(ctx, plugin, ViolationFileAccess, SeverityMedium,
		fmt.Sprintf("file %s access to %q denied: outside sandbox", access, canonical))
	return oops.Code(CodeIsolationViolated).
		With("plugin", plugin).
		With("path", path).
		With("resolved", canonical).
		New("path is outside the sandbox")
}

// contains reports whether the canonical path is reachable for the sandbox:
// inside its own directory, or, under read_write mode, matching the allow-list.
func (m *Manager) contains(sb *Sandbox, canonical string) bool {
	if within(sb.workDir, canonical) {
		return true
	}
	if m.cfg.FilesystemMode != FilesystemReadWrite {
		return false
	}
	slashed := filepath.ToSlash(canonical)
	for _, g := range m.allowed {
		if g.Match(slashed) {
			return true
		}
	}
	return false
}

// canonicalize resolves path to a canonical absolute form. Relative paths are
// taken relative to the sandbox directory. Symlinks are resolved for the
// longest existing prefix so a link inside the sandbox cannot point out of it.
func canonicalize(base, path string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(base, path)
	}
	path = filepath.Clean(path)

	resolved, err := filepath.EvalSymlinks(path)
	if err == nil {
		return resolved, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}
	// The target does not exist yet (e.g. a file the plugin wants to create).
	// Resolve the deepest existing ancestor and re-attach the remainder.
	dir, file := filepath.Split(path)
	dir = filepath.Clean(dir)
	resolvedDir, dirErr := filepath.EvalSymlinks(dir)
	if dirErr != nil {
		if errors.Is(dirErr, fs.ErrNotExist) {
			return path, nil
		}
		return "", dirErr
	}
	return filepath.Join(resolvedDir, file), nil
}

// within reports whether target equals root or is beneath it.
func within(root, target string) bool {
	if target == root {
		return true
	}
	return strings.HasPrefix(target, root+string(os.PathSeparator))
}
