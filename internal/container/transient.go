// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"errors"
	"os/exec"
	"strings"

	"launchpad-cli/pkg/types"
)

// transientMarkers are output fragments of failures that usually go away on
// a second attempt: registry and package-index networking, registry rate
// limits, and rootless storage races.
var transientMarkers = []string{
	// name resolution and TCP
	"Temporary failure resolving",
	"Could not resolve host",
	"connection timed out",
	"connection refused",
	"connection reset by peer",
	"TLS handshake timeout",
	// pip talking to the package index
	"Failed to establish a new connection",
	"ReadTimeoutError",
	"Max retries exceeded",
	// registry rate limiting
	"toomanyrequests",
	"429 Too Many Requests",
	// rootless podman
	"ping_group_range",
	"OCI runtime error",
	"error creating overlay mount",
	"error mounting layer",
}

// IsTransientError reports whether err looks like a transient engine or
// network failure. Launchpad never retries; the classification only adds a
// re-run hint to the error shown to the user. Cancellation is never
// transient.
func IsTransientError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && types.ExitCode(exitErr.ExitCode()) == types.ExitEngineError {
		return true
	}

	msg := err.Error()
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
