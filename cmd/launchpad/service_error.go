// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/charmbracelet/log"

	"launchpad-cli/internal/bootstrap"
	"launchpad-cli/internal/container"
	"launchpad-cli/internal/cueutil"
	"launchpad-cli/internal/issue"
	"launchpad-cli/internal/manifest"
	"launchpad-cli/internal/recipe"
)

// ServiceError is an error that carries an optional issue catalogue entry
// for the CLI layer to render in verbose mode.
// Always create via newServiceError to enforce the Err-must-be-non-nil invariant.
type ServiceError struct {
	// Err is the underlying error (must not be nil).
	Err error
	// IssueID is the optional issue catalogue ID for rendering help text.
	IssueID issue.Id
}

// newServiceError creates a ServiceError with a nil-Err panic guard.
func newServiceError(err error, issueID issue.Id) *ServiceError {
	if err == nil {
		panic("ServiceError: Err must not be nil")
	}
	return &ServiceError{Err: err, IssueID: issueID}
}

// Error implements the error interface.
func (e *ServiceError) Error() string { return e.Err.Error() }

// Unwrap returns the underlying error for errors.Is/As chains.
func (e *ServiceError) Unwrap() error { return e.Err }

// classify attaches the catalogue entry matching err. Manifest problems are
// checked before the dependency-install sentinel that wraps them.
func classify(err error) *ServiceError {
	var schemaErr *cueutil.SchemaError
	switch {
	case errors.Is(err, container.ErrEngineNotAvailable):
		return newServiceError(err, issue.ContainerEngineNotFoundId)
	case errors.Is(err, recipe.ErrRecipeNotFound):
		return newServiceError(err, issue.RecipeNotFoundId)
	case errors.Is(err, recipe.ErrInvalidRecipe), errors.As(err, &schemaErr):
		return newServiceError(err, issue.RecipeParseErrorId)
	case isManifestError(err):
		return newServiceError(err, issue.ManifestInvalidId)
	case errors.Is(err, bootstrap.ErrBaseImageUnavailable):
		return newServiceError(err, issue.BaseImageUnavailableId)
	case errors.Is(err, bootstrap.ErrDependencyInstall):
		return newServiceError(err, issue.DependencyInstallFailedId)
	case errors.Is(err, bootstrap.ErrSourceMissing):
		return newServiceError(err, issue.SourceMissingId)
	case errors.Is(err, bootstrap.ErrStartFailed):
		return newServiceError(err, issue.EntrypointStartFailedId)
	case errors.Is(err, fs.ErrPermission):
		return newServiceError(err, issue.PermissionDeniedId)
	default:
		return newServiceError(err, 0)
	}
}

func isManifestError(err error) bool {
	for _, sentinel := range []error{
		manifest.ErrManifestNotFound,
		manifest.ErrInvalidRequirement,
		manifest.ErrDuplicateRequirement,
		manifest.ErrLocalReference,
		manifest.ErrIncludeEscapes,
		manifest.ErrIncludeCycle,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// renderServiceError prints the catalogue entry of svcErr, if any.
func renderServiceError(stderr io.Writer, svcErr *ServiceError) {
	if svcErr == nil || svcErr.IssueID == 0 {
		return
	}
	if entry := issue.Get(svcErr.IssueID); entry != nil {
		rendered, renderErr := entry.Render("dark")
		if renderErr != nil {
			log.Warn("failed to render issue catalogue entry", "issueID", svcErr.IssueID, "error", renderErr)
			return
		}
		fmt.Fprint(stderr, rendered)
	}
}
