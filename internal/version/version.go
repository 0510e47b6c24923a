// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vessel Contributors

// Package version holds the host version plugins validate against.
package version

import "github.com/Masterminds/semver/v3"

// Version is the host version, overridable at build time with
// -ldflags "-X .../internal/version.Version=x.y.z".
var Version = "0.1.0"

// Host returns the parsed host version. Panics on a malformed build-time
// override, which is a packaging error.
func Host() *semver.Version {
	return semver.MustParse(Version)
}
