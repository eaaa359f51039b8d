// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"errors"
	"io/fs"
	"strings"
	"testing"

	"launchpad-cli/internal/bootstrap"
	"launchpad-cli/internal/container"
	"launchpad-cli/internal/issue"
	"launchpad-cli/internal/manifest"
	"launchpad-cli/pkg/types"
)

func TestGetVersionString(t *testing.T) {
	// Not parallel: subtests mutate package-level Version/Commit/BuildDate vars.

	t.Run("ldflags version", func(t *testing.T) {
		origVersion, origCommit, origBuildDate := Version, Commit, BuildDate
		t.Cleanup(func() {
			Version, Commit, BuildDate = origVersion, origCommit, origBuildDate
		})

		Version = "v1.2.3"
		Commit = "abc1234"
		BuildDate = "2025-06-15T10:00:00Z"

		want := "v1.2.3 (commit: abc1234, built: 2025-06-15T10:00:00Z)"
		if got := getVersionString(); got != want {
			t.Errorf("getVersionString() = %q, want %q", got, want)
		}
	})

	t.Run("dev build", func(t *testing.T) {
		origVersion := Version
		t.Cleanup(func() { Version = origVersion })

		Version = "dev"
		if got := getVersionString(); got != "dev (built from source)" {
			t.Errorf("getVersionString() = %q", got)
		}
	})
}

func TestExitCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want types.ExitCode
	}{
		{"nil", nil, types.ExitSuccess},
		{"plain error", errors.New("boom"), types.ExitFailure},
		{"entrypoint code", &ExitError{Code: 42}, 42},
		{"wrapped build failure", &ExitError{Code: types.ExitFailure, Err: errors.New("build failed")}, types.ExitFailure},
		{"service error", newServiceError(errors.New("x"), issue.ConfigLoadFailedId), types.ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPrintError(t *testing.T) {
	t.Parallel()

	t.Run("entrypoint exit code is silent", func(t *testing.T) {
		t.Parallel()
		var buf bytes.Buffer
		printError(&buf, &ExitError{Code: 3}, true)
		if buf.Len() != 0 {
			t.Errorf("printError() wrote %q", buf.String())
		}
	})

	t.Run("actionable error shows suggestions", func(t *testing.T) {
		t.Parallel()
		err := issue.NewErrorContext().
			WithOperation("select base image").
			WithResource("python:3.11-slim").
			WithSuggestion("Check the image name").
			Wrap(errors.New("pull access denied")).
			BuildError()

		var buf bytes.Buffer
		printError(&buf, &ExitError{Code: 1, Err: classify(err)}, false)
		out := buf.String()
		for _, want := range []string{"Error: ", "failed to select base image: python:3.11-slim: pull access denied", "Check the image name"} {
			if !strings.Contains(out, want) {
				t.Errorf("printError() missing %q:\n%s", want, out)
			}
		}
	})

	t.Run("verbose adds the catalogue entry", func(t *testing.T) {
		t.Parallel()
		err := &ExitError{Code: 1, Err: newServiceError(bootstrap.ErrSourceMissing, issue.SourceMissingId)}

		var quiet, verbose bytes.Buffer
		printError(&quiet, err, false)
		printError(&verbose, err, true)
		if verbose.Len() <= quiet.Len() {
			t.Errorf("verbose output (%d bytes) is not longer than quiet output (%d bytes)", verbose.Len(), quiet.Len())
		}
	})
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want issue.Id
	}{
		{"base image", bootstrap.ErrBaseImageUnavailable, issue.BaseImageUnavailableId},
		{"installer", bootstrap.ErrDependencyInstall, issue.DependencyInstallFailedId},
		{"manifest inside install", errors.Join(bootstrap.ErrDependencyInstall, manifest.ErrInvalidRequirement), issue.ManifestInvalidId},
		{"source", bootstrap.ErrSourceMissing, issue.SourceMissingId},
		{"start", bootstrap.ErrStartFailed, issue.EntrypointStartFailedId},
		{"engine", &container.EngineNotAvailableError{Engine: container.EngineTypeDocker, Reason: "missing"}, issue.ContainerEngineNotFoundId},
		{"permission", fs.ErrPermission, issue.PermissionDeniedId},
		{"unknown", errors.New("something else"), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := classify(tt.err)
			if got.IssueID != tt.want {
				t.Errorf("classify() IssueID = %d, want %d", got.IssueID, tt.want)
			}
			if !errors.Is(got, tt.err) {
				t.Error("classify() lost the original error")
			}
		})
	}
}

func TestParseEnvFlags(t *testing.T) {
	t.Parallel()

	got, err := parseEnvFlags([]string{"TOKEN=abc", "EMPTY=", "URL=http://x/?a=b"})
	if err != nil {
		t.Fatalf("parseEnvFlags() error: %v", err)
	}
	want := map[string]string{"TOKEN": "abc", "EMPTY": "", "URL": "http://x/?a=b"}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("parseEnvFlags()[%q] = %q, want %q", k, got[k], v)
		}
	}

	for _, bad := range []string{"NOVALUE", "=x", "BAD KEY=1"} {
		if _, err := parseEnvFlags([]string{bad}); err == nil {
			t.Errorf("parseEnvFlags(%q) succeeded", bad)
		}
	}
}

func TestNewServiceError_PanicsOnNil(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Error("newServiceError(nil) did not panic")
		}
	}()
	_ = newServiceError(nil, issue.ConfigLoadFailedId)
}
