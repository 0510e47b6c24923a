// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vessel Contributors

package plugin

// Error codes for plugin lifecycle failures.
const (
	CodeConfigInvalid     = "CONFIG_INVALID"
	CodeManifestTooLarge  = "MANIFEST_TOO_LARGE"
	CodeManifestInvalid   = "MANIFEST_INVALID"
	CodeSignatureInvalid  = "SIGNATURE_INVALID"
	CodeDependencyMissing = "DEPENDENCY_MISSING"
	CodeDependencyCycle   = "DEPENDENCY_CYCLE"
	CodeAlreadyLoaded     = "PLUGIN_ALREADY_LOADED"
	CodeNotFound          = "PLUGIN_NOT_FOUND"
	CodeMaxPlugins        = "MAX_PLUGINS_REACHED"
	CodeHotReloadDisabled = "HOT_RELOAD_DISABLED"
	CodeHostIncompatible  = "HOST_INCOMPATIBLE"
	CodeLoadFailed        = "PLUGIN_LOAD_FAILED"
	CodeInvalidTransition = "INVALID_STATE_TRANSITION"
)
