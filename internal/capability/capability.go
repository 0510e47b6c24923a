// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vessel Contributors

// Package capability defines the closed permission vocabulary plugins declare
// and the resource limits attached to them.
//
// Capability names are dotted, grouped by domain (e.g. "filesystem.read",
// "container.start"). Manifest declarations may use glob patterns with '.' as
// the segment separator:
//   - '*' matches a single segment ("container.*" grants every container op)
//   - '**' matches zero or more segments ("**" grants everything)
//
// A plugin's authority is exactly the set expanded from its declarations at
// discovery time. Capabilities never escalate at runtime.
package capability

import (
	"sort"
	"strings"

	"github.com/gobwas/glob"
	"github.com/samber/oops"
)

// Capability is a single named permission.
type Capability uint8

// The closed capability enumeration.
const (
	FilesystemRead Capability = iota
	FilesystemWrite
	FilesystemExecute
	NetworkClient
	NetworkServer
	NetworkRaw
	ProcessSpawn
	ProcessSignal
	ProcessPtrace
	ContainerCreate
	ContainerStart
	ContainerStop
	ContainerDelete
	ContainerExec
	ContainerList
	ContainerInfo
	HostCommand
	HostMount
	HostDevice
	SystemInfo
	SystemMetrics
	SystemConfigRead
	SystemConfigWrite
	MonitorLogging
	MonitorMetrics
	MonitorTracing
	MonitorAPIServer
	MonitorAPIClient

	numCapabilities
)

var names = [numCapabilities]string{
	FilesystemRead:    "filesystem.read",
	FilesystemWrite:   "filesystem.write",
	FilesystemExecute: "filesystem.execute",
	NetworkClient:     "network.client",
	NetworkServer:     "network.server",
	NetworkRaw:        "network.raw",
	ProcessSpawn:      "process.spawn",
	ProcessSignal:     "process.signal",
	ProcessPtrace:     "process.ptrace",
	ContainerCreate:   "container.create",
	ContainerStart:    "container.start",
	ContainerStop:     "container.stop",
	ContainerDelete:   "container.delete",
	ContainerExec:     "container.exec",
	ContainerList:     "container.list",
	ContainerInfo:     "container.info",
	HostCommand:       "host.command",
	HostMount:         "host.mount",
	HostDevice:        "host.device",
	SystemInfo:        "system.info",
	SystemMetrics:     "system.metrics",
	SystemConfigRead:  "system.config_read",
	SystemConfigWrite: "system.config_write",
	MonitorLogging:    "monitor.logging",
	MonitorMetrics:    "monitor.metrics",
	MonitorTracing:    "monitor.tracing",
	MonitorAPIServer:  "monitor.api_server",
	MonitorAPIClient:  "monitor.api_client",
}

// byName is the reverse lookup for exact capability names.
var byName = func() map[string]Capability {
	m := make(map[string]Capability, numCapabilities)
	for c, n := range names {
		m[n] = Capability(c) //nolint:gosec // c < numCapabilities
	}
	return m
}()

// String returns the dotted name. Unknown values return "unknown".
func (c Capability) String() string {
	if c >= numCapabilities {
		return "unknown"
	}
	return names[c]
}

// Parse resolves an exact dotted name to a Capability.
func Parse(name string) (Capability, error) {
	c, ok := byName[name]
	if !ok {
		return 0, oops.Code("CAPABILITY_UNKNOWN").
			With("capability", name).
			Errorf("unknown capability %q", name)
	}
	return c, nil
}

// Set is a bit-set over the capability enumeration.
//
// The zero value is the empty set. Set is a value type; methods that grow the
// set return a new Set.
type Set uint32

// NewSet builds a set from individual capabilities.
func NewSet(caps ...Capability) Set {
	var s Set
	for _, c := range caps {
		s = s.Add(c)
	}
	return s
}

// Add returns the set with c included.
func (s Set) Add(c Capability) Set {
	if c >= numCapabilities {
		return s
	}
	return s | 1<<c
}

// Has reports whether c is in the set.
func (s Set) Has(c Capability) bool {
	if c >= numCapabilities {
		return false
	}
	return s&(1<<c) != 0
}

// Union returns the union of both sets.
func (s Set) Union(o Set) Set { return s | o }

// Len returns the number of capabilities in the set.
func (s Set) Len() int {
	n := 0
	for c := Capability(0); c < numCapabilities; c++ {
		if s.Has(c) {
			n++
		}
	}
	return n
}

// List returns the member names in enumeration order.
func (s Set) List() []string {
	out := make([]string, 0, s.Len())
	for c := Capability(0); c < numCapabilities; c++ {
		if s.Has(c) {
			out = append(out, c.String())
		}
	}
	return out
}

// String renders the set as a comma-joined name list.
func (s Set) String() string { return strings.Join(s.List(), ",") }

// ParseSet expands declaration patterns into a Set. Each entry is either an
// exact dotted name or a glob pattern with '.' as the separator. A pattern
// that matches no capability in the enumeration is an error: it means the
// manifest asks for authority this host does not know how to grant.
func ParseSet(patterns []string) (Set, error) {
	var s Set
	for i, pattern := range patterns {
		if pattern == "" {
			return 0, oops.Code("CAPABILITY_UNKNOWN").
				With("index", i).
				New("empty capability pattern")
		}
		if c, ok := byName[pattern]; ok {
			s = s.Add(c)
			continue
		}
		g, err := glob.Compile(pattern, '.')
		if err != nil {
			return 0, oops.Code("CAPABILITY_UNKNOWN").
				With("index", i).
				With("pattern", pattern).
				Wrap(err)
		}
		matched := false
		for c := Capability(0); c < numCapabilities; c++ {
			if g.Match(names[c]) {
				s = s.Add(c)
				matched = true
			}
		}
		if !matched {
			return 0, oops.Code("CAPABILITY_UNKNOWN").
				With("index", i).
				With("pattern", pattern).
				Errorf("pattern %q matches no known capability", pattern)
		}
	}
	return s, nil
}

// All returns every capability name in sorted order. Used by the manifest
// JSON Schema and the CLI.
func All() []string {
	out := make([]string, 0, numCapabilities)
	for _, n := range names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
