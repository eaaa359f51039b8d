// SPDX-License-Identifier: MPL-2.0

package bootstrap

import (
	"errors"
	"fmt"

	"launchpad-cli/internal/container"
	"launchpad-cli/internal/issue"
)

var (
	// ErrBaseImageUnavailable is returned when the pinned base image can be
	// neither found locally nor pulled.
	ErrBaseImageUnavailable = errors.New("base image unavailable")

	// ErrDependencyInstall is returned when the manifest is missing or
	// malformed, or when the dependencies stage fails to build.
	ErrDependencyInstall = errors.New("dependency installation failed")

	// ErrSourceMissing is returned when the application source tree does
	// not exist or is not a directory.
	ErrSourceMissing = errors.New("application source missing")

	// ErrStartFailed is returned when the engine client could not start the
	// entrypoint container. The entrypoint's own exit status is never an error.
	ErrStartFailed = errors.New("entrypoint failed to start")

	// ErrOutOfOrder is returned when a step is invoked in the wrong state.
	// The environment's state is left unchanged.
	ErrOutOfOrder = errors.New("bootstrap step out of order")

	// ErrNotBuilt is returned by Run for an environment that has not
	// materialized its files.
	ErrNotBuilt = errors.New("environment is not built")
)

func baseImageError(image container.ImageTag, err error) error {
	ctx := issue.NewErrorContext().
		WithOperation("select base image").
		WithResource(string(image)).
		WithSuggestion("Check that the image reference exists and is pinned to a tag or digest").
		WithSuggestion("Check network access to the registry, or pull the image manually")
	if container.IsTransientError(err) {
		ctx.WithSuggestion("The failure looks transient; re-run the command")
	}
	return ctx.Wrap(fmt.Errorf("%w: %w", ErrBaseImageUnavailable, err)).BuildError()
}

func manifestError(path string, err error) error {
	return issue.NewErrorContext().
		WithOperation("read dependency manifest").
		WithResource(path).
		WithSuggestion("Fix the manifest; an empty requirements.txt is valid").
		WithSuggestion("Run 'launchpad validate' to check the recipe and manifest without building").
		Wrap(fmt.Errorf("%w: %w", ErrDependencyInstall, err)).
		BuildError()
}

func installError(image container.ImageTag, err error) error {
	ctx := issue.NewErrorContext().
		WithOperation("install dependencies").
		WithResource(string(image)).
		WithSuggestion("Check the installer output above for the failing requirement").
		WithSuggestion("Check for conflicting version constraints in the manifest")
	if container.IsTransientError(err) {
		ctx.WithSuggestion("The failure looks transient; re-run the command")
	}
	return ctx.Wrap(fmt.Errorf("%w: %w", ErrDependencyInstall, err)).BuildError()
}

func sourceMissingError(dir string, err error) error {
	return issue.NewErrorContext().
		WithOperation("materialize application files").
		WithResource(dir).
		WithSuggestion("Check the recipe's 'source' field; it is resolved relative to the recipe file").
		Wrap(fmt.Errorf("%w: %w", ErrSourceMissing, err)).
		BuildError()
}

func sourceError(dir string, err error) error {
	return issue.NewErrorContext().
		WithOperation("materialize application files").
		WithResource(dir).
		WithSuggestion("Check the ignore patterns in the recipe and .dockerignore").
		Wrap(err).
		BuildError()
}

func startError(image container.ImageTag, err error) error {
	return issue.NewErrorContext().
		WithOperation("start entrypoint").
		WithResource(string(image)).
		WithSuggestion("Check that the container engine is running").
		Wrap(fmt.Errorf("%w: %w", ErrStartFailed, err)).
		BuildError()
}
