// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vessel Contributors

package hook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultTimeout bounds a callback whose registration declares none.
const DefaultTimeout = 5 * time.Second

// retryDelay is the pause before the single extra attempt under TimeoutRetry.
const retryDelay = 10 * time.Millisecond

type statKey struct {
	event  string
	plugin string
}

// Bus is the hook registry and dispatcher. Registrations are kept sorted per
// event so dispatch order is always priority-correct without sorting on the
// dispatch path.
//
// Bus is safe for concurrent use.
type Bus struct {
	strategy TimeoutStrategy
	tracer   trace.Tracer

	mu        sync.RWMutex
	regs      map[string][]*Registration
	executing map[string]bool // plugin name -> mid-execution for any event

	statsMu sync.Mutex
	stats   map[statKey]*Stats
	seq     atomic.Uint64

	wg sync.WaitGroup
}

// NewBus creates a hook bus with the given timeout strategy.
func NewBus(strategy TimeoutStrategy) *Bus {
	return &Bus{
		strategy:  strategy,
		tracer:    otel.Tracer("vessel/hook"),
		regs:      make(map[string][]*Registration),
		executing: make(map[string]bool),
		stats:     make(map[statKey]*Stats),
	}
}

// Register appends a registration to its event's list and re-sorts the list
// by priority, tie-broken by plugin name for determinism.
func (b *Bus) Register(reg Registration) error {
	if err := reg.validate(); err != nil {
		return err
	}
	if reg.Timeout <= 0 {
		reg.Timeout = DefaultTimeout
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	list := append(b.regs[reg.Event], &reg)
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Priority != list[j].Priority {
			return list[i].Priority < list[j].Priority
		}
		return list[i].Plugin < list[j].Plugin
	})
	b.regs[reg.Event] = list
	return nil
}

// UnregisterPlugin removes every registration owned by the plugin across all
// events. Used on unload so a removed plugin can never be dispatched to again.
func (b *Bus) UnregisterPlugin(plugin string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for event, list := range b.regs {
		kept := list[:0]
		for _, reg := range list {
			if reg.Plugin != plugin {
				kept = append(kept, reg)
			}
		}
		if len(kept) == 0 {
			delete(b.regs, event)
		} else {
			b.regs[event] = kept
		}
	}
}

// SetEnabled toggles one (event, plugin) registration. Returns false if no
// such registration exists.
func (b *Bus) SetEnabled(event, plugin string, enabled bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	found := false
	for _, reg := range b.regs[event] {
		if reg.Plugin == plugin {
			reg.Enabled = enabled
			found = true
		}
	}
	return found
}

// Registrations returns (plugin, priority) pairs for an event in dispatch
// order. Intended for introspection and tests.
func (b *Bus) Registrations(event string) []Registration {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Registration, 0, len(b.regs[event]))
	for _, reg := range b.regs[event] {
		out = append(out, *reg)
	}
	return out
}

// RegistrationCount returns the total number of registrations across events.
func (b *Bus) RegistrationCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, list := range b.regs {
		n += len(list)
	}
	return n
}

// Report summarizes one dispatch pass.
type Report struct {
	Invoked  int
	Failed   int
	TimedOut int
	Skipped  int
	Aborted  bool
}

// Dispatch delivers the event to every enabled registration in priority
// order. Callback errors are captured, counted, and logged; they never reach
// the publisher. A plugin already mid-execution for any event is skipped and
// logged, never re-entered.
func (b *Bus) Dispatch(ctx context.Context, evt Event) Report {
	b.mu.RLock()
	list := make([]*Registration, len(b.regs[evt.Name]))
	copy(list, b.regs[evt.Name])
	b.mu.RUnlock()

	ctx, span := b.tracer.Start(ctx, "hook.dispatch",
		trace.WithAttributes(
			attribute.String("event", evt.Name),
			attribute.String("event_id", evt.ID),
			attribute.Int("registrations", len(list)),
		))
	defer span.End()

	var report Report
	for _, reg := range list {
		if !reg.Enabled {
			report.Skipped++
			continue
		}
		if !b.beginExecution(reg.Plugin) {
			report.Skipped++
			reentrancySkips.WithLabelValues(reg.Plugin).Inc()
			slog.Warn("skipping re-entrant hook dispatch",
				"plugin", reg.Plugin,
				"event", evt.Name,
				"event_id", evt.ID)
			continue
		}

		err := b.runWithStrategy(ctx, reg, evt)
		b.endExecution(reg.Plugin)

		report.Invoked++
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			report.TimedOut++
			if b.strategy == TimeoutAbort {
				report.Aborted = true
				slog.Error("aborting event dispatch after hook timeout",
					"plugin", reg.Plugin,
					"event", evt.Name,
					"event_id", evt.ID)
				return report
			}
		case err != nil:
			report.Failed++
			slog.Error("hook callback failed",
				"plugin", reg.Plugin,
				"event", evt.Name,
				"event_id", evt.ID,
				"error", err)
		}
	}
	return report
}

// runWithStrategy invokes the callback, applying the retry strategy when the
// first attempt times out. Statistics are recorded per attempt.
func (b *Bus) runWithStrategy(ctx context.Context, reg *Registration, evt Event) error {
	if b.strategy != TimeoutRetry {
		return b.invoke(ctx, reg, evt)
	}

	backoff := retry.WithMaxRetries(1, retry.NewConstant(retryDelay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := b.invoke(ctx, reg, evt)
		if errors.Is(err, context.DeadlineExceeded) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// invoke runs one callback attempt in its own goroutine under the
// registration's deadline. A timed-out callback is abandoned: its eventual
// result is discarded and delivery moves on.
func (b *Bus) invoke(ctx context.Context, reg *Registration, evt Event) error {
	index := b.seq.Add(1)
	cctx, cancel := context.WithTimeout(ctx, reg.Timeout)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				done <- oops.Code("HOOK_PANIC").
					With("plugin", reg.Plugin).
					With("event", evt.Name).
					Errorf("hook callback panicked: %v", r)
			}
		}()
		done <- reg.Callback(cctx, evt)
	}()

	var err error
	select {
	case err = <-done:
	case <-cctx.Done():
		err = cctx.Err()
	}
	b.record(reg, evt.Name, index, time.Since(start), err)
	return err
}

func (b *Bus) beginExecution(plugin string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.executing[plugin] {
		return false
	}
	b.executing[plugin] = true
	return true
}

func (b *Bus) endExecution(plugin string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.executing, plugin)
}

func (b *Bus) record(reg *Registration, event string, index uint64, d time.Duration, err error) {
	status := statusSuccess
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		status = statusTimeout
	case err != nil:
		status = statusFailure
	}
	dispatches.WithLabelValues(event, status).Inc()
	dispatchDuration.WithLabelValues(event).Observe(d.Seconds())

	b.statsMu.Lock()
	defer b.statsMu.Unlock()

	key := statKey{event: event, plugin: reg.Plugin}
	s, ok := b.stats[key]
	if !ok {
		s = &Stats{}
		b.stats[key] = s
	}
	s.Executions++
	if status == statusFailure {
		s.Failures++
	}
	if status == statusTimeout {
		s.Timeouts++
	}
	if s.MinDuration == 0 || d < s.MinDuration {
		s.MinDuration = d
	}
	if d > s.MaxDuration {
		s.MaxDuration = d
	}
	s.TotalDuration += d
	s.LastExecuted = time.Now().UTC()
	s.LastDispatchIndex = index
}

// Stats returns the running statistic for one (event, plugin) pair.
func (b *Bus) Stats(event, plugin string) (Stats, bool) {
	b.statsMu.Lock()
	defer b.statsMu.Unlock()

	s, ok := b.stats[statKey{event: event, plugin: plugin}]
	if !ok {
		return Stats{}, false
	}
	return *s, true
}

// Drain waits for in-flight callbacks (including abandoned ones) to return,
// bounded by the context.
func (b *Bus) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("draining hook callbacks: %w", ctx.Err())
	}
}
