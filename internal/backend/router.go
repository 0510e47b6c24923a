// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vessel Contributors

package backend

import (
	"sort"
	"strings"

	"github.com/samber/oops"
)

// Router selects a backend for a container spec using a compiled rule
// table. Every backend a rule names must be registered at construction.
type Router struct {
	rules    *Rules
	backends map[string]Backend
}

// NewRouter compiles rulesText and binds it to the given backends.
func NewRouter(rulesText string, backends map[string]Backend) (*Router, error) {
	rules, err := ParseRules(rulesText)
	if err != nil {
		return nil, err
	}

	var missing []string
	for _, name := range rules.Backends() {
		if _, ok := backends[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, oops.Code(CodeUnknownBackend).
			With("backends", strings.Join(missing, ", ")).
			Errorf("routing rules reference unregistered backends")
	}

	return &Router{rules: rules, backends: backends}, nil
}

// Select returns the backend the rules route spec to.
func (r *Router) Select(spec ContainerSpec) (Backend, error) {
	name := r.rules.match(spec)
	b, ok := r.backends[name]
	if !ok {
		return nil, oops.Code(CodeNoBackend).
			With("backend", name).
			With("container", spec.Name).
			Errorf("no backend available")
	}
	return b, nil
}

// Backend returns a registered backend by name.
func (r *Router) Backend(name string) (Backend, bool) {
	b, ok := r.backends[name]
	return b, ok
}

// Backends returns the registered backends sorted by name.
func (r *Router) Backends() []Backend {
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Backend, 0, len(names))
	for _, name := range names {
		out = append(out, r.backends[name])
	}
	return out
}
