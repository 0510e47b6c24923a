// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vessel Contributors

package backend

// Error codes attached to oops errors raised by this package.
const (
	CodeRulesInvalid      = "ROUTING_RULES_INVALID"
	CodeUnknownBackend    = "BACKEND_UNKNOWN"
	CodeNoBackend         = "NO_BACKEND"
	CodeContainerExists   = "CONTAINER_EXISTS"
	CodeContainerNotFound = "CONTAINER_NOT_FOUND"
	CodeContainerState    = "CONTAINER_INVALID_STATE"
)
