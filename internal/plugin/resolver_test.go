// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vessel Contributors

package plugin_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vesselrun/vessel/internal/plugin"
	"github.com/vesselrun/vessel/pkg/errutil"
)

func manifest(name string, deps ...plugin.Dependency) *plugin.Manifest {
	return &plugin.Manifest{
		Name:         name,
		Version:      "1.0.0",
		APIVersion:   "1.0.0",
		Type:         plugin.TypeLua,
		Dependencies: deps,
		LuaPlugin:    &plugin.LuaConfig{Entry: "main.lua"},
	}
}

func orderNames(t *testing.T, manifests []*plugin.Manifest) []string {
	t.Helper()
	order, err := plugin.ResolveLoadOrder(manifests)
	require.NoError(t, err)
	names := make([]string, len(order))
	for i, m := range order {
		names[i] = m.Name
	}
	return names
}

func TestResolveLoadOrder_DependenciesFirst(t *testing.T) {
	names := orderNames(t, []*plugin.Manifest{
		manifest("web", plugin.Dependency{Name: "db"}, plugin.Dependency{Name: "cache"}),
		manifest("cache", plugin.Dependency{Name: "db"}),
		manifest("db"),
	})
	assert.Equal(t, []string{"db", "cache", "web"}, names)
}

func TestResolveLoadOrder_TieBreakByName(t *testing.T) {
	names := orderNames(t, []*plugin.Manifest{
		manifest("zeta"),
		manifest("alpha"),
		manifest("mid"),
	})
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, names)
}

func TestResolveLoadOrder_Deterministic(t *testing.T) {
	manifests := []*plugin.Manifest{
		manifest("b", plugin.Dependency{Name: "base"}),
		manifest("a", plugin.Dependency{Name: "base"}),
		manifest("base"),
		manifest("top", plugin.Dependency{Name: "a"}, plugin.Dependency{Name: "b"}),
	}
	want := orderNames(t, manifests)
	for range 10 {
		assert.Equal(t, want, orderNames(t, manifests))
	}
	assert.Equal(t, []string{"base", "a", "b", "top"}, want)
}

func TestResolveLoadOrder_MissingRequiredDependency(t *testing.T) {
	_, err := plugin.ResolveLoadOrder([]*plugin.Manifest{
		manifest("alpha", plugin.Dependency{Name: "beta"}),
	})
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, plugin.CodeDependencyMissing)
	errutil.AssertErrorContext(t, err, "dependency", "beta")
}

func TestResolveLoadOrder_MissingOptionalDependencyOK(t *testing.T) {
	names := orderNames(t, []*plugin.Manifest{
		manifest("alpha", plugin.Dependency{Name: "beta", Optional: true}),
	})
	assert.Equal(t, []string{"alpha"}, names)
}

func TestResolveLoadOrder_OptionalDependencyOrdersWhenPresent(t *testing.T) {
	names := orderNames(t, []*plugin.Manifest{
		manifest("alpha", plugin.Dependency{Name: "zeta", Optional: true}),
		manifest("zeta"),
	})
	assert.Equal(t, []string{"zeta", "alpha"}, names)
}

func TestResolveLoadOrder_Cycle(t *testing.T) {
	_, err := plugin.ResolveLoadOrder([]*plugin.Manifest{
		manifest("a", plugin.Dependency{Name: "b"}),
		manifest("b", plugin.Dependency{Name: "c"}),
		manifest("c", plugin.Dependency{Name: "a"}),
		manifest("standalone"),
	})
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, plugin.CodeDependencyCycle)
	errutil.AssertErrorContext(t, err, "plugins", []string{"a", "b", "c"})
}

func TestResolveLoadOrder_Empty(t *testing.T) {
	order, err := plugin.ResolveLoadOrder(nil)
	require.NoError(t, err)
	assert.Empty(t, order)
}

func TestReverseOrder(t *testing.T) {
	manifests := []*plugin.Manifest{manifest("a"), manifest("b"), manifest("c")}
	rev := plugin.ReverseOrder(manifests)
	assert.Equal(t, "c", rev[0].Name)
	assert.Equal(t, "a", rev[2].Name)
}

func TestDependents(t *testing.T) {
	manifests := []*plugin.Manifest{
		manifest("db"),
		manifest("web", plugin.Dependency{Name: "db"}),
		manifest("batch", plugin.Dependency{Name: "db", Optional: true}),
		manifest("standalone"),
	}
	assert.Equal(t, []string{"batch", "web"}, plugin.Dependents(manifests, "db"))
	assert.Empty(t, plugin.Dependents(manifests, "web"))
}
