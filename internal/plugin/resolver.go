// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vessel Contributors

package plugin

import (
	"sort"

	"github.com/samber/oops"
)

// ResolveLoadOrder orders manifests so every plugin follows its
// dependencies. Ties are broken by ascending plugin name, so the order is
// deterministic for a given manifest set.
//
// A required dependency on a plugin outside the set fails with
// DEPENDENCY_MISSING. Optional dependencies only order loading when the
// target is present. Cycles fail with DEPENDENCY_CYCLE naming the
// participants.
func ResolveLoadOrder(manifests []*Manifest) ([]*Manifest, error) {
	byName := make(map[string]*Manifest, len(manifests))
	for _, m := range manifests {
		byName[m.Name] = m
	}

	// dependents[a] = plugins that must load after a.
	dependents := make(map[string][]string, len(manifests))
	indegree := make(map[string]int, len(manifests))
	for _, m := range manifests {
		indegree[m.Name] += 0
		for _, dep := range m.Dependencies {
			if _, ok := byName[dep.Name]; !ok {
				if dep.Optional {
					continue
				}
				return nil, oops.Code(CodeDependencyMissing).
					With("plugin", m.Name).
					With("dependency", dep.Name).
					Errorf("plugin %s requires %s, which is not available", m.Name, dep.Name)
			}
			dependents[dep.Name] = append(dependents[dep.Name], m.Name)
			indegree[m.Name]++
		}
	}

	ready := make([]string, 0, len(manifests))
	for name, deg := range indegree {
		if deg == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	order := make([]*Manifest, 0, len(manifests))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		order = append(order, byName[name])

		released := false
		for _, next := range dependents[name] {
			indegree[next]--
			if indegree[next] == 0 {
				ready = append(ready, next)
				released = true
			}
		}
		if released {
			sort.Strings(ready)
		}
	}

	if len(order) != len(manifests) {
		var cycle []string
		for name, deg := range indegree {
			if deg > 0 {
				cycle = append(cycle, name)
			}
		}
		sort.Strings(cycle)
		return nil, oops.Code(CodeDependencyCycle).
			With("plugins", cycle).
			Errorf("dependency cycle involving %v", cycle)
	}

	return order, nil
}

// ReverseOrder returns the manifests in reverse, used for shutdown so
// dependents stop before their dependencies.
func ReverseOrder(order []*Manifest) []*Manifest {
	out := make([]*Manifest, len(order))
	for i, m := range order {
		out[len(order)-1-i] = m
	}
	return out
}

// Dependents returns the names of loaded plugins that declare a
// dependency, required or optional, on the given plugin.
func Dependents(manifests []*Manifest, name string) []string {
	var out []string
	for _, m := range manifests {
		for _, dep := range m.Dependencies {
			if dep.Name == name {
				out = append(out, m.Name)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}
