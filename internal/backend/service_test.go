// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vessel Contributors

package backend_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vesselrun/vessel/internal/backend"
	"github.com/vesselrun/vessel/internal/hook"
	"github.com/vesselrun/vessel/pkg/errutil"
)

// eventRecorder subscribes to container events and records their order.
type eventRecorder struct {
	mu     sync.Mutex
	events []string
	err    error
}

func (r *eventRecorder) subscribe(t *testing.T, bus *hook.Bus, events ...string) {
	t.Helper()
	for _, event := range events {
		require.NoError(t, bus.Register(hook.Registration{
			Plugin:  "recorder",
			Event:   event,
			Enabled: true,
			Callback: func(_ context.Context, evt hook.Event) error {
				r.mu.Lock()
				r.events = append(r.events, evt.Name+":"+evt.Payload["container"])
				r.mu.Unlock()
				return r.err
			},
		}))
	}
}

func (r *eventRecorder) recorded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func serviceFixture(t *testing.T) (*backend.Service, *hook.Bus, *eventRecorder) {
	t.Helper()
	router, _ := routerFixture(t)
	bus := hook.NewBus(hook.TimeoutSkip)
	svc := backend.NewService(router, bus)

	rec := &eventRecorder{}
	rec.subscribe(t, bus,
		backend.EventPreCreate, backend.EventPostCreate,
		backend.EventPreStart, backend.EventPostStart,
		backend.EventPreStop, backend.EventPostStop,
		backend.EventPreDelete, backend.EventPostDelete,
		backend.EventPreExec, backend.EventPostExec)
	return svc, bus, rec
}

func TestService_LifecyclePublishesEvents(t *testing.T) {
	svc, _, rec := serviceFixture(t)
	ctx := context.Background()

	spec := backend.ContainerSpec{Name: "web", Image: "registry.local/web:1", OS: "linux"}
	require.NoError(t, svc.Create(ctx, spec))
	require.NoError(t, svc.Start(ctx, "web"))

	out, err := svc.Exec(ctx, "web", []string{"id"})
	require.NoError(t, err)
	assert.Equal(t, "id\n", out)

	require.NoError(t, svc.Stop(ctx, "web"))
	require.NoError(t, svc.Delete(ctx, "web"))

	assert.Equal(t, []string{
		"container.pre_create:web", "container.post_create:web",
		"container.pre_start:web", "container.post_start:web",
		"container.pre_exec:web", "container.post_exec:web",
		"container.pre_stop:web", "container.post_stop:web",
		"container.pre_delete:web", "container.post_delete:web",
	}, rec.recorded())
}

func TestService_RoutesToRuleBackend(t *testing.T) {
	router, backends := routerFixture(t)
	svc := backend.NewService(router, nil)
	ctx := context.Background()

	spec := backend.ContainerSpec{
		Name:        "dns",
		Annotations: map[string]string{"class": "system"},
	}
	require.NoError(t, svc.Create(ctx, spec))

	_, err := backends["lxc"].Info(ctx, "dns")
	assert.NoError(t, err, "container should land on the lxc backend")
	_, err = backends["runc"].Info(ctx, "dns")
	assert.Error(t, err)
}

func TestService_FailedOperationSkipsPostEvent(t *testing.T) {
	svc, _, rec := serviceFixture(t)
	ctx := context.Background()

	require.NoError(t, svc.Create(ctx, backend.ContainerSpec{Name: "web", Runtime: "native"}))

	// Stop before start fails in the backend.
	err := svc.Stop(ctx, "web")
	require.Error(t, err)

	events := rec.recorded()
	assert.Contains(t, events, "container.pre_stop:web")
	assert.NotContains(t, events, "container.post_stop:web")
}

func TestService_HookFailureDoesNotFailOperation(t *testing.T) {
	router, _ := routerFixture(t)
	bus := hook.NewBus(hook.TimeoutSkip)
	svc := backend.NewService(router, bus)

	rec := &eventRecorder{err: errors.New("plugin exploded")}
	rec.subscribe(t, bus, backend.EventPreCreate)

	err := svc.Create(context.Background(), backend.ContainerSpec{Name: "web", Runtime: "native"})
	assert.NoError(t, err, "hook errors must not fail the container operation")
}

func TestService_UnknownContainer(t *testing.T) {
	svc, _, _ := serviceFixture(t)
	ctx := context.Background()

	errutil.AssertErrorCode(t, svc.Start(ctx, "ghost"), backend.CodeContainerNotFound)
	_, err := svc.Info(ctx, "ghost")
	errutil.AssertErrorCode(t, err, backend.CodeContainerNotFound)
}

func TestService_BackendForSurvivesRestart(t *testing.T) {
	// A container created before a host restart has no in-memory
	// assignment; the service falls back to asking each backend.
	router, backends := routerFixture(t)
	ctx := context.Background()
	require.NoError(t, backends["kata"].Create(ctx, backend.ContainerSpec{Name: "vm"}))

	svc := backend.NewService(router, nil)
	info, err := svc.Info(ctx, "vm")
	require.NoError(t, err)
	assert.Equal(t, "kata", info.Backend)
}

func TestService_ListAggregates(t *testing.T) {
	router, backends := routerFixture(t)
	ctx := context.Background()
	require.NoError(t, backends["runc"].Create(ctx, backend.ContainerSpec{Name: "a"}))
	require.NoError(t, backends["lxc"].Create(ctx, backend.ContainerSpec{Name: "b"}))

	svc := backend.NewService(router, nil)
	infos, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, infos, 2)
}
