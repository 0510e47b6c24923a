// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vessel Contributors

package sandbox

// Error codes for sandbox failures.
const (
	CodeConfigInvalid     = "CONFIG_INVALID"
	CodeSandboxExists     = "SANDBOX_EXISTS"
	CodeSandboxNotFound   = "SANDBOX_NOT_FOUND"
	CodePermissionDenied  = "PERMISSION_DENIED"
	CodeIsolationViolated = "ISOLATION_VIOLATION"
	CodePathTraversal     = "PATH_TRAVERSAL"
	CodeUnsafeArgument    = "UNSAFE_ARGUMENT"
	CodeIsolationSetup    = "ISOLATION_SETUP_FAILED"
)
