// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vessel Contributors

package sandbox

import (
	"context"
	"crypto/rand"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ViolationKind classifies a recorded security violation.
type ViolationKind string

// Violation kinds.
const (
	ViolationCapability    ViolationKind = "capability_violation"
	ViolationResourceLimit ViolationKind = "resource_limit_exceeded"
	ViolationFileAccess    ViolationKind = "filesystem_access_denied"
	ViolationNetworkAccess ViolationKind = "network_access_denied"
	ViolationSyscall       ViolationKind = "syscall_blocked"
	ViolationPathTraversal ViolationKind = "path_traversal_attempt"
)

// Severity grades a violation.
type Severity string

// Severities from least to most serious.
const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Violation is one auditable denial or limit breach attributable to a plugin.
type Violation struct {
	ID       string
	Time     time.Time
	Plugin   string
	Kind     ViolationKind
	Severity Severity
	Detail   string
}

// ViolationSink receives violations for durable storage. Sink failures are
// logged, never propagated: losing one audit row must not turn a denial into
// a different error.
type ViolationSink interface {
	RecordViolation(ctx context.Context, v Violation) error
}

// ViolationLog is the sandbox's append-only violation record. Drainable by an
// operator action. Safe for concurrent use.
type ViolationLog struct {
	mu         sync.Mutex
	violations []Violation
	sink       ViolationSink
}

// NewViolationLog creates a log. sink may be nil.
func NewViolationLog(sink ViolationSink) *ViolationLog {
	return &ViolationLog{sink: sink}
}

// Append records a violation, assigning its id and timestamp.
func (l *ViolationLog) Append(ctx context.Context, plugin string, kind ViolationKind, severity Severity, detail string) Violation {
	v := Violation{
		ID:       ulid.MustNew(ulid.Now(), rand.Reader).String(),
		Time:     time.Now().UTC(),
		Plugin:   plugin,
		Kind:     kind,
		Severity: severity,
		Detail:   detail,
	}

	l.mu.Lock()
	l.violations = append(l.violations, v)
	l.mu.Unlock()

	violationsTotal.WithLabelValues(string(kind), string(severity)).Inc()
	slog.Warn("security violation recorded",
		"violation_id", v.ID,
		"plugin", plugin,
		"kind", string(kind),
		"severity", string(severity),
		"detail", detail)

	if l.sink != nil {
		if err := l.sink.RecordViolation(ctx, v); err != nil {
			slog.Error("failed to persist security violation",
				"violation_id", v.ID,
				"plugin", plugin,
				"error", err)
		}
	}
	return v
}

// List returns a copy of the recorded violations.
func (l *ViolationLog) List() []Violation {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Violation, len(l.violations))
	copy(out, l.violations)
	return out
}

// Drain returns the recorded violations and clears the log.
func (l *ViolationLog) Drain() []Violation {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := l.violations
	l.violations = nil
	return out
}

// Len returns the number of recorded violations.
func (l *ViolationLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.violations)
}
