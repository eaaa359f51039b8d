// SPDX-License-Identifier: MPL-2.0

package types

import (
	"errors"
	"fmt"
	"strconv"
)

const (
	// ExitSuccess is the exit code of a process that completed normally.
	ExitSuccess ExitCode = 0
	// ExitFailure is the generic failure code used for build-phase errors.
	ExitFailure ExitCode = 1
	// ExitEngineError is reported by docker/podman run when the engine
	// itself failed before the entrypoint started.
	ExitEngineError ExitCode = 125
	// ExitCannotInvoke is reported when the entrypoint exists but cannot be executed.
	ExitCannotInvoke ExitCode = 126
	// ExitNotFound is reported when the entrypoint executable was not found.
	ExitNotFound ExitCode = 127
)

// ErrInvalidExitCode is the sentinel error wrapped by InvalidExitCodeError.
var ErrInvalidExitCode = errors.New("invalid exit code")

type (
	// ExitCode represents a process exit status code.
	// Exit codes are in the range 0-255 on POSIX systems.
	// The zero value (0) means success.
	ExitCode int

	// InvalidExitCodeError is returned when an ExitCode is outside the
	// valid range (0-255).
	InvalidExitCodeError struct {
		Value ExitCode
	}
)

// Error implements the error interface.
func (e *InvalidExitCodeError) Error() string {
	return fmt.Sprintf("invalid exit code %d (must be in range 0-255)", e.Value)
}

// Unwrap returns ErrInvalidExitCode so callers can use errors.Is for programmatic detection.
func (e *InvalidExitCodeError) Unwrap() error { return ErrInvalidExitCode }

// Validate returns an error if the ExitCode is outside the valid range (0-255).
func (c ExitCode) Validate() error {
	if c < 0 || c > 255 {
		return &InvalidExitCodeError{Value: c}
	}
	return nil
}

// IsSuccess returns true if the exit code indicates successful execution.
func (c ExitCode) IsSuccess() bool { return c == ExitSuccess }

// IsEngineReserved reports whether the code is one the container engine uses
// for its own failures (125-127). The entrypoint may still have produced it,
// so callers only use this to word diagnostics, never to remap the code.
func (c ExitCode) IsEngineReserved() bool {
	return c == ExitEngineError || c == ExitCannotInvoke || c == ExitNotFound
}

// String returns the decimal string representation of the ExitCode.
func (c ExitCode) String() string { return strconv.Itoa(int(c)) }
