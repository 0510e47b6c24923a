// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vessel Contributors

package plugin

import "github.com/samber/oops"

// State is a plugin lifecycle state.
type State string

// Lifecycle states.
const (
	StateDiscovered State = "discovered"
	StateValidated  State = "validated"
	StateLoading    State = "loading"
	StateLoaded     State = "loaded"
	StateSuspended  State = "suspended"
	StateUnloading  State = "unloading"
	StateUnloaded   State = "unloaded"
	StateFailed     State = "failed"
)

// Health is the result of a plugin health probe.
type Health string

// Health values.
const (
	HealthHealthy   Health = "healthy"
	HealthUnhealthy Health = "unhealthy"
	HealthUnknown   Health = "unknown"
)

// transitions lists the legal lifecycle moves. Any state may move to
// failed, so failed is not listed here. Unloaded may return to validated
// when a reload re-reads the manifest from disk.
var transitions = map[State][]State{
	StateDiscovered: {StateValidated},
	StateValidated:  {StateLoading},
	StateLoading:    {StateLoaded},
	StateLoaded:     {StateSuspended, StateUnloading},
	StateSuspended:  {StateLoaded, StateUnloading},
	StateUnloading:  {StateUnloaded},
	StateUnloaded:   {StateLoading, StateValidated},
	StateFailed:     {StateLoading},
}

// CanTransition reports whether moving from one state to another is legal.
func CanTransition(from, to State) bool {
	if to == StateFailed {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition validates and returns the new state, or an error naming the
// illegal move.
func Transition(plugin string, from, to State) (State, error) {
	if !CanTransition(from, to) {
		return from, oops.Code(CodeInvalidTransition).
			With("plugin", plugin).
			With("from", string(from)).
			With("to", string(to)).
			Errorf("illegal state transition %s -> %s", from, to)
	}
	return to, nil
}
