// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vessel Contributors

// Package plugin provides plugin discovery, dependency resolution, and
// lifecycle control for the vessel host.
package plugin

import (
	"regexp"

	"github.com/Masterminds/semver/v3"
	"github.com/samber/oops"
	"gopkg.in/yaml.v3"

	"github.com/vesselrun/vessel/internal/capability"
	"github.com/vesselrun/vessel/internal/hook"
)

// Type identifies the plugin runtime.
type Type string

// Plugin types supported by the host.
const (
	TypeLua    Type = "lua"
	TypeBinary Type = "binary"
)

// APIVersion is the plugin API version this host speaks. Manifests must
// declare the same major version.
const APIVersion = "1.0.0"

// MaxManifestSize is the largest plugin.yaml the host will read.
const MaxManifestSize = 64 * 1024

// Manifest represents a plugin.yaml file.
type Manifest struct {
	Name           string                          `yaml:"name" json:"name"`
	Version        string                          `yaml:"version" json:"version"`
	Description    string                          `yaml:"description,omitempty" json:"description,omitempty"`
	APIVersion     string                          `yaml:"api-version" json:"api-version"`
	MinHostVersion string                          `yaml:"min-host-version,omitempty" json:"min-host-version,omitempty"`
	Type           Type                            `yaml:"type" json:"type"`
	Dependencies   []Dependency                    `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`
	Capabilities   []string                        `yaml:"capabilities,omitempty" json:"capabilities,omitempty"`
	Resources      capability.ResourceRequirements `yaml:"resources,omitempty" json:"resources,omitempty"`
	Events         []EventSubscription             `yaml:"events,omitempty" json:"events,omitempty"`
	// ProvidesCommands marks plugins that contribute CLI commands to the
	// host. The flag is informational; command registration happens at load.
	ProvidesCommands bool          `yaml:"provides-commands,omitempty" json:"provides-commands,omitempty"`
	LuaPlugin        *LuaConfig    `yaml:"lua-plugin,omitempty" json:"lua-plugin,omitempty"`
	BinaryPlugin     *BinaryConfig `yaml:"binary-plugin,omitempty" json:"binary-plugin,omitempty"`
}

// Dependency names another plugin that must be loaded first. Optional
// dependencies only order loading; they do not block it when absent.
type Dependency struct {
	Name     string `yaml:"name" json:"name"`
	Optional bool   `yaml:"optional,omitempty" json:"optional,omitempty"`
}

// EventSubscription declares a hook registration the host creates at load.
type EventSubscription struct {
	Event     string `yaml:"event" json:"event"`
	Priority  string `yaml:"priority,omitempty" json:"priority,omitempty"`
	TimeoutMs int    `yaml:"timeout-ms,omitempty" json:"timeout-ms,omitempty"`
}

// LuaConfig holds Lua-specific configuration.
type LuaConfig struct {
	Entry string `yaml:"entry" json:"entry"`
}

// BinaryConfig holds binary plugin configuration.
type BinaryConfig struct {
	Executable string `yaml:"executable" json:"executable"`
}

// maxNameLength is the maximum allowed length for plugin names.
const maxNameLength = 64

// namePattern validates plugin names: must start with a lowercase letter,
// contain only lowercase letters, digits, or hyphens, and not end with a
// hyphen. Single character names are allowed.
var namePattern = regexp.MustCompile(`^[a-z]([a-z0-9-]*[a-z0-9])?$`)

// ParseManifest parses and validates a plugin.yaml file.
func ParseManifest(data []byte) (*Manifest, error) {
	errb := oops.Code(CodeManifestInvalid)
	if len(data) == 0 {
		return nil, errb.New("manifest data is empty")
	}
	if len(data) > MaxManifestSize {
		return nil, oops.Code(CodeManifestTooLarge).
			With("size", len(data)).
			With("max", MaxManifestSize).
			New("manifest exceeds size limit")
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errb.Wrapf(err, "invalid YAML")
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// Validate checks manifest constraints.
func (m *Manifest) Validate() error {
	errb := oops.Code(CodeManifestInvalid).With("plugin", m.Name)

	if m.Name == "" || !namePattern.MatchString(m.Name) {
		return errb.Errorf("name %q must start with a-z, contain only a-z, 0-9, hyphens, and not end with a hyphen", m.Name)
	}
	if len(m.Name) > maxNameLength {
		return errb.Errorf("name must be %d characters or less, got %d", maxNameLength, len(m.Name))
	}

	if _, err := semver.StrictNewVersion(m.Version); err != nil {
		return errb.Wrapf(err, "version %q is not strict semver", m.Version)
	}

	apiVer, err := semver.StrictNewVersion(m.APIVersion)
	if err != nil {
		return errb.Wrapf(err, "api-version %q is not strict semver", m.APIVersion)
	}
	hostAPI := semver.MustParse(APIVersion)
	if apiVer.Major() != hostAPI.Major() {
		return errb.Errorf("api-version %s is incompatible with host API %s", m.APIVersion, APIVersion)
	}

	if m.MinHostVersion != "" {
		if _, err := semver.StrictNewVersion(m.MinHostVersion); err != nil {
			return errb.Wrapf(err, "min-host-version %q is not strict semver", m.MinHostVersion)
		}
	}

	seen := make(map[string]bool, len(m.Dependencies))
	for _, dep := range m.Dependencies {
		if dep.Name == "" || !namePattern.MatchString(dep.Name) {
			return errb.Errorf("dependency name %q is invalid", dep.Name)
		}
		if dep.Name == m.Name {
			return errb.Errorf("plugin cannot depend on itself")
		}
		if seen[dep.Name] {
			return errb.Errorf("duplicate dependency %q", dep.Name)
		}
		seen[dep.Name] = true
	}

	// Rebuild rather than wrap so validation always surfaces
	// MANIFEST_INVALID, not the inner capability code.
	if _, err := capability.ParseSet(m.Capabilities); err != nil {
		return errb.Errorf("invalid capabilities: %s", err)
	}

	if err := m.Resources.Validate(); err != nil {
		return errb.Wrapf(err, "invalid resources")
	}

	for _, sub := range m.Events {
		if sub.Event == "" {
			return errb.Errorf("event subscription is missing event name")
		}
		if _, err := hook.ParsePriority(sub.Priority); err != nil {
			return errb.Errorf("event %q has invalid priority: %s", sub.Event, err)
		}
		if sub.TimeoutMs < 0 {
			return errb.Errorf("event %q has negative timeout-ms", sub.Event)
		}
	}

	switch m.Type {
	case TypeLua:
		if m.LuaPlugin == nil {
			return errb.Errorf("lua-plugin is required when type is lua")
		}
		if m.LuaPlugin.Entry == "" {
			return errb.Errorf("lua-plugin.entry is required")
		}
	case TypeBinary:
		if m.BinaryPlugin == nil {
			return errb.Errorf("binary-plugin is required when type is binary")
		}
		if m.BinaryPlugin.Executable == "" {
			return errb.Errorf("binary-plugin.executable is required")
		}
	default:
		return errb.Errorf("type must be 'lua' or 'binary', got %q", m.Type)
	}

	return nil
}

// CompatibleWith reports whether the manifest's min-host-version is
// satisfied by the running host version.
func (m *Manifest) CompatibleWith(host *semver.Version) error {
	if m.MinHostVersion == "" {
		return nil
	}
	minimum := semver.MustParse(m.MinHostVersion)
	if host.LessThan(minimum) {
		return oops.Code(CodeHostIncompatible).
			With("plugin", m.Name).
			With("min_host_version", m.MinHostVersion).
			With("host_version", host.String()).
			Errorf("plugin requires host %s or newer", m.MinHostVersion)
	}
	return nil
}

// CapabilitySet expands the manifest's capability patterns into a set.
// Validate has already checked the patterns, so this cannot fail on a
// validated manifest.
func (m *Manifest) CapabilitySet() (capability.Set, error) {
	return capability.ParseSet(m.Capabilities)
}
