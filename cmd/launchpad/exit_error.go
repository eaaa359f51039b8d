// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"launchpad-cli/pkg/types"
)

// ExitError carries a process exit code out of a RunE handler; Execute
// turns it into os.Exit. A nil Err means the code is the entrypoint's own
// exit status and nothing is printed.
type ExitError struct {
	Code types.ExitCode
	Err  error
}

// failed reports a launchpad failure (recipe, engine, build) as exit 1.
func failed(err error) *ExitError {
	return &ExitError{Code: types.ExitFailure, Err: err}
}

// entrypointExited passes a non-zero entrypoint status through unchanged.
func entrypointExited(code types.ExitCode) *ExitError {
	return &ExitError{Code: code}
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("entrypoint exited with status %d", e.Code)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}
