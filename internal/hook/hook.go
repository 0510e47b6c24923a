// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vessel Contributors

// Package hook implements the named-event fan-out bus plugins subscribe to.
package hook

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Priority orders hook execution within an event. Lower values run first.
type Priority int

// Priorities from first-dispatched to last.
const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityNormal
	PriorityLow
	PriorityBackground
)

var priorityNames = map[Priority]string{
	PriorityCritical:   "critical",
	PriorityHigh:       "high",
	PriorityNormal:     "normal",
	PriorityLow:        "low",
	PriorityBackground: "background",
}

// String returns the priority name. Unknown values return "unknown".
func (p Priority) String() string {
	if n, ok := priorityNames[p]; ok {
		return n
	}
	return "unknown"
}

// ParsePriority resolves a priority name. The empty string means normal.
func ParsePriority(name string) (Priority, error) {
	if name == "" {
		return PriorityNormal, nil
	}
	for p, n := range priorityNames {
		if n == name {
			return p, nil
		}
	}
	return 0, oops.Code("PRIORITY_UNKNOWN").
		With("priority", name).
		Errorf("unknown hook priority %q", name)
}

// TimeoutStrategy selects how dispatch reacts to a timed-out callback.
type TimeoutStrategy string

// Timeout strategies.
const (
	// TimeoutSkip continues to the next hook.
	TimeoutSkip TimeoutStrategy = "skip"
	// TimeoutRetry makes one additional attempt before continuing.
	TimeoutRetry TimeoutStrategy = "retry"
	// TimeoutAbort stops processing the remaining hooks for the event.
	TimeoutAbort TimeoutStrategy = "abort"
)

// ParseTimeoutStrategy validates a strategy name. Empty means skip.
func ParseTimeoutStrategy(name string) (TimeoutStrategy, error) {
	switch TimeoutStrategy(name) {
	case "":
		return TimeoutSkip, nil
	case TimeoutSkip, TimeoutRetry, TimeoutAbort:
		return TimeoutStrategy(name), nil
	default:
		return "", oops.Code("TIMEOUT_STRATEGY_UNKNOWN").
			With("strategy", name).
			Errorf("unknown timeout strategy %q", name)
	}
}

// Event is what dispatch delivers to subscribed callbacks.
type Event struct {
	ID      string
	Name    string
	Time    time.Time
	Payload map[string]string
}

// NewEvent builds an event with a fresh ULID id.
func NewEvent(name string, payload map[string]string) Event {
	return Event{
		ID:      ulid.MustNew(ulid.Now(), rand.Reader).String(),
		Name:    name,
		Time:    time.Now().UTC(),
		Payload: payload,
	}
}

// Callback is a hook function. The context carries the invocation deadline;
// callbacks that block must honor it.
type Callback func(ctx context.Context, evt Event) error

// Registration subscribes one plugin callback to one event name.
type Registration struct {
	Plugin   string
	Event    string
	Callback Callback
	Priority Priority
	Enabled  bool
	Timeout  time.Duration
}

func (r *Registration) validate() error {
	if r.Plugin == "" {
		return oops.Code("REGISTRATION_INVALID").New("plugin name is required")
	}
	if r.Event == "" {
		return oops.Code("REGISTRATION_INVALID").With("plugin", r.Plugin).New("event name is required")
	}
	if r.Callback == nil {
		return oops.Code("REGISTRATION_INVALID").With("plugin", r.Plugin).With("event", r.Event).New("callback is required")
	}
	if _, ok := priorityNames[r.Priority]; !ok {
		return oops.Code("REGISTRATION_INVALID").
			With("plugin", r.Plugin).
			With("event", r.Event).
			Errorf("invalid priority %d", r.Priority)
	}
	return nil
}

// Stats is the running record for one (event, plugin) pair.
type Stats struct {
	Executions        uint64
	Failures          uint64
	Timeouts          uint64
	MinDuration       time.Duration
	MaxDuration       time.Duration
	TotalDuration     time.Duration
	LastExecuted      time.Time
	LastDispatchIndex uint64
}

// AvgDuration returns the mean execution duration, zero before any execution.
func (s Stats) AvgDuration() time.Duration {
	if s.Executions == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(s.Executions) //nolint:gosec // Executions > 0
}

func (s Stats) String() string {
	return fmt.Sprintf("exec=%d fail=%d timeout=%d avg=%s", s.Executions, s.Failures, s.Timeouts, s.AvgDuration())
}
