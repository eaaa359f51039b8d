// SPDX-License-Identifier: MPL-2.0

package lifecycle

import (
	"errors"
	"fmt"
)

const (
	// StateUnbuilt is the initial state: nothing has been selected or built.
	StateUnbuilt State = iota
	// StateBaseSelected indicates the pinned base image is available.
	StateBaseSelected
	// StateDependenciesInstalled indicates the dependency stage image was built.
	StateDependenciesInstalled
	// StateFilesMaterialized indicates the application stage image was built.
	StateFilesMaterialized
	// StateRunning indicates the entrypoint process is alive.
	StateRunning
	// StateStopped is terminal: the entrypoint process exited or was stopped.
	StateStopped
	// StateFailed is terminal: a step failed and progression halted.
	StateFailed
)

// ErrInvalidState is returned when a State value is not one of the defined lifecycle states.
var ErrInvalidState = errors.New("invalid state")

type (
	// State represents the lifecycle state of an environment.
	State int32

	// InvalidStateError is returned when a State value is not recognized.
	// It wraps ErrInvalidState for errors.Is() compatibility.
	InvalidStateError struct {
		Value State
	}
)

// String returns the canonical upper-case name of the state.
func (s State) String() string {
	switch s {
	case StateUnbuilt:
		return "UNBUILT"
	case StateBaseSelected:
		return "BASE_SELECTED"
	case StateDependenciesInstalled:
		return "DEPENDENCIES_INSTALLED"
	case StateFilesMaterialized:
		return "FILES_MATERIALIZED"
	case StateRunning:
		return "RUNNING"
	case StateStopped:
		return "STOPPED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// ParseState returns the State named by s (as produced by String).
func ParseState(s string) (State, error) {
	for st := StateUnbuilt; st <= StateFailed; st++ {
		if st.String() == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidState, s)
}

// Error implements the error interface for InvalidStateError.
func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid state %d (valid: 0=UNBUILT .. 6=FAILED)", e.Value)
}

// Unwrap returns the sentinel error for errors.Is() compatibility.
func (e *InvalidStateError) Unwrap() error {
	return ErrInvalidState
}

// Validate returns nil if the State is one of the defined lifecycle states,
// or an error wrapping ErrInvalidState if it is not.
func (s State) Validate() error {
	if s < StateUnbuilt || s > StateFailed {
		return &InvalidStateError{Value: s}
	}
	return nil
}

// IsTerminal returns true if the state is a terminal state (Stopped or Failed).
func (s State) IsTerminal() bool {
	return s == StateStopped || s == StateFailed
}

// Next returns the only state reachable from s by a successful step.
// Terminal states have no successor.
func (s State) Next() (State, bool) {
	if s.IsTerminal() || s.Validate() != nil {
		return s, false
	}
	return s + 1, true
}
