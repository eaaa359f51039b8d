// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"launchpad-cli/pkg/platform"
	"launchpad-cli/pkg/types"
)

const (
	// EngineTypePodman selects the Podman CLI.
	EngineTypePodman EngineType = "podman"
	// EngineTypeDocker selects the Docker CLI.
	EngineTypeDocker EngineType = "docker"
)

var (
	// ErrEngineNotAvailable is the sentinel wrapped by EngineNotAvailableError.
	ErrEngineNotAvailable = errors.New("container engine not available")

	// ErrInvalidEngineType is the sentinel wrapped by InvalidEngineTypeError.
	ErrInvalidEngineType = errors.New("invalid container engine type")

	// ErrInvalidImageTag is the sentinel wrapped by InvalidImageTagError.
	ErrInvalidImageTag = errors.New("invalid image tag")
)

type (
	// Engine is the set of container operations the bootstrapper needs.
	Engine interface {
		// Name returns the engine name (docker or podman).
		Name() string
		// Available reports whether the engine CLI is installed and answering.
		Available() bool
		// Version returns the engine version.
		Version(ctx context.Context) (string, error)

		// Build builds and tags an image. Nothing is tagged when the build fails.
		Build(ctx context.Context, opts BuildOptions) error
		// Run runs one container in the foreground and waits for it to exit.
		// A non-zero exit status is reported in RunResult, not as an error.
		Run(ctx context.Context, opts RunOptions) (*RunResult, error)
		// ImageExists reports whether image is present locally.
		ImageExists(ctx context.Context, image ImageTag) (bool, error)
		// Pull fetches image from its registry.
		Pull(ctx context.Context, opts PullOptions) error
		// InspectImage returns the image ID of image.
		InspectImage(ctx context.Context, image ImageTag) (string, error)
		// RemoveImage removes image.
		RemoveImage(ctx context.Context, image ImageTag, force bool) error
	}

	// EngineType identifies the container engine type.
	EngineType string

	// InvalidEngineTypeError is returned for an engine name other than docker or podman.
	InvalidEngineTypeError struct {
		Value EngineType
	}

	// EngineNotAvailableError is returned when neither the preferred engine
	// nor its fallback can be used.
	EngineNotAvailableError struct {
		Engine EngineType
		Reason string
	}

	// ImageTag is an image reference as passed to the engine CLI.
	ImageTag string

	// InvalidImageTagError is returned for an empty or whitespace-containing tag.
	InvalidImageTagError struct {
		Value ImageTag
	}

	// BuildOptions contains options for building an image.
	BuildOptions struct {
		// ContextDir is the build context directory.
		ContextDir string
		// Dockerfile is the Dockerfile path, relative to ContextDir unless absolute.
		Dockerfile string
		Tag        ImageTag
		BuildArgs  map[string]string
		Labels     map[string]string
		NoCache    bool
		Stdout     io.Writer
		Stderr     io.Writer
	}

	// PullOptions contains options for pulling an image.
	PullOptions struct {
		Image  ImageTag
		Stdout io.Writer
		Stderr io.Writer
	}

	// RunOptions contains options for running a container.
	RunOptions struct {
		Image ImageTag
		// Command overrides the image CMD when non-empty.
		Command []string
		WorkDir string
		// Env values are handed to the engine client through its own
		// environment, so they never appear in its argument list.
		Env    map[string]string
		Labels map[string]string
		Name   string
		// Remove deletes the container after it exits.
		Remove      bool
		Interactive bool
		TTY         bool
		Stdin       io.Reader
		Stdout      io.Writer
		Stderr      io.Writer
		// Started is called once the engine client process has started.
		Started func()
		// StopTimeout bounds how long a cancelled run may take to stop after
		// the interrupt before it is killed. Zero waits indefinitely.
		StopTimeout time.Duration
	}

	// RunResult contains the result of running a container.
	RunResult struct {
		// ExitCode is the container process exit status, passed through as is.
		ExitCode types.ExitCode
		// Error is set when the engine client itself could not run.
		Error error
	}
)

// Error implements the error interface.
func (e *InvalidEngineTypeError) Error() string {
	return fmt.Sprintf("invalid container engine %q (valid: docker, podman)", e.Value)
}

// Unwrap returns ErrInvalidEngineType.
func (e *InvalidEngineTypeError) Unwrap() error { return ErrInvalidEngineType }

// Validate returns an error if t is not docker or podman.
func (t EngineType) Validate() error {
	switch t {
	case EngineTypeDocker, EngineTypePodman:
		return nil
	default:
		return &InvalidEngineTypeError{Value: t}
	}
}

// String returns the engine name.
func (t EngineType) String() string { return string(t) }

// Error implements the error interface.
func (e *EngineNotAvailableError) Error() string {
	return fmt.Sprintf("container engine '%s' is not available: %s", e.Engine, e.Reason)
}

// Unwrap returns ErrEngineNotAvailable.
func (e *EngineNotAvailableError) Unwrap() error { return ErrEngineNotAvailable }

// Error implements the error interface.
func (e *InvalidImageTagError) Error() string {
	return fmt.Sprintf("invalid image tag %q: must be non-empty without whitespace", e.Value)
}

// Unwrap returns ErrInvalidImageTag.
func (e *InvalidImageTagError) Unwrap() error { return ErrInvalidImageTag }

// Validate returns an error if the tag is empty or contains whitespace.
func (t ImageTag) Validate() error {
	if t == "" || strings.ContainsAny(string(t), " \t\r\n") {
		return &InvalidImageTagError{Value: t}
	}
	return nil
}

// String returns the tag.
func (t ImageTag) String() string { return string(t) }

// Validate checks the fields the engine CLI cannot recover from.
func (o BuildOptions) Validate() error {
	var errs []error
	if strings.TrimSpace(o.ContextDir) == "" {
		errs = append(errs, errors.New("build context directory must be set"))
	}
	if o.Tag != "" {
		if err := o.Tag.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Validate checks the fields the engine CLI cannot recover from.
func (o RunOptions) Validate() error {
	var errs []error
	if err := o.Image.Validate(); err != nil {
		errs = append(errs, err)
	}
	for k := range o.Env {
		if k == "" || strings.ContainsAny(k, "= \t\n") {
			errs = append(errs, fmt.Errorf("invalid environment variable name %q", k))
		}
	}
	return errors.Join(errs...)
}

// NewEngine creates the preferred engine, falling back to the other one when
// the preferred CLI is missing. Inside a Flatpak or Snap sandbox commands are
// spawned on the host.
func NewEngine(preferredType EngineType, opts ...BaseCLIEngineOption) (Engine, error) {
	if err := preferredType.Validate(); err != nil {
		return nil, err
	}
	opts = append(hostSpawnOptions(), opts...)

	docker := func() Engine { return NewDockerEngine(opts...) }
	podman := func() Engine { return NewPodmanEngine(opts...) }

	order := []func() Engine{docker, podman}
	if preferredType == EngineTypePodman {
		order = []func() Engine{podman, docker}
	}
	for _, candidate := range order {
		if engine := candidate(); engine.Available() {
			return engine, nil
		}
	}

	return nil, &EngineNotAvailableError{
		Engine: preferredType,
		Reason: fmt.Sprintf("%s is not installed or not accessible, and the fallback engine is also not available", preferredType),
	}
}

// AutoDetectEngine returns the first available engine, trying Docker first.
func AutoDetectEngine(opts ...BaseCLIEngineOption) (Engine, error) {
	engine, err := NewEngine(EngineTypeDocker, opts...)
	if err != nil {
		return nil, &EngineNotAvailableError{
			Engine: "any",
			Reason: "no container engine (docker or podman) is available on this system",
		}
	}
	return engine, nil
}

func hostSpawnOptions() []BaseCLIEngineOption {
	if prefix := platform.SpawnPrefix(platform.DetectSandbox()); len(prefix) > 0 {
		return []BaseCLIEngineOption{WithSpawnPrefix(prefix...)}
	}
	return nil
}
