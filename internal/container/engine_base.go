// SPDX-License-Identifier: MPL-2.0

package container

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"launchpad-cli/internal/issue"
	"launchpad-cli/pkg/platform"
	"launchpad-cli/pkg/types"
)

type (
	// ExecCommandFunc is the function signature for creating exec.Cmd.
	// This allows injection of mock implementations for testing.
	ExecCommandFunc func(ctx context.Context, name string, arg ...string) *exec.Cmd

	// BaseCLIEngineOption configures a BaseCLIEngine.
	BaseCLIEngineOption func(*BaseCLIEngine)

	// BaseCLIEngine provides the implementation shared by CLI-based engines.
	// Docker and Podman embed it; engine-specific probes (Available, Version,
	// ImageExists) live on the concrete types.
	BaseCLIEngine struct {
		name        string
		binaryPath  string
		execCommand ExecCommandFunc
		// spawnPrefix runs the binary through a host spawner when launchpad
		// itself is sandboxed (flatpak-spawn --host).
		spawnPrefix     []string
		cmdEnvOverrides map[string]string
	}
)

// --- Option Functions ---

// WithName sets the engine name used in error messages.
func WithName(name string) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		e.name = name
	}
}

// WithExecCommand sets a custom exec command function for testing.
func WithExecCommand(fn ExecCommandFunc) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		e.execCommand = fn
	}
}

// WithBinaryPath overrides the engine binary found on PATH.
func WithBinaryPath(path string) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		e.binaryPath = path
	}
}

// WithSpawnPrefix runs every engine command as prefix... binary args...
func WithSpawnPrefix(prefix ...string) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		e.spawnPrefix = slices.Clone(prefix)
	}
}

// WithCmdEnvOverride adds an environment variable to every command the engine creates.
func WithCmdEnvOverride(key, value string) BaseCLIEngineOption {
	return func(e *BaseCLIEngine) {
		if e.cmdEnvOverrides == nil {
			e.cmdEnvOverrides = make(map[string]string)
		}
		e.cmdEnvOverrides[key] = value
	}
}

// --- Constructor ---

// NewBaseCLIEngine creates a new base engine with the given binary path.
func NewBaseCLIEngine(binaryPath string, opts ...BaseCLIEngineOption) *BaseCLIEngine {
	e := &BaseCLIEngine{
		binaryPath:  binaryPath,
		execCommand: exec.CommandContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// BinaryPath returns the path to the container engine binary.
func (e *BaseCLIEngine) BinaryPath() string {
	return e.binaryPath
}

// --- Argument Builders ---

// BuildArgs constructs arguments for a container build command.
//
// Generated command: <binary> build [options] <context>
func (e *BaseCLIEngine) BuildArgs(opts BuildOptions) []string {
	args := []string{"build"}

	if opts.Dockerfile != "" {
		dockerfilePath := opts.Dockerfile
		if !filepath.IsAbs(dockerfilePath) && opts.ContextDir != "" {
			dockerfilePath = filepath.Join(opts.ContextDir, dockerfilePath)
		}
		args = append(args, "-f", dockerfilePath)
	}

	if opts.Tag != "" {
		args = append(args, "-t", string(opts.Tag))
	}

	if opts.NoCache {
		args = append(args, "--no-cache")
	}

	for _, k := range slices.Sorted(maps.Keys(opts.BuildArgs)) {
		args = append(args, "--build-arg", k+"="+opts.BuildArgs[k])
	}

	for _, k := range slices.Sorted(maps.Keys(opts.Labels)) {
		args = append(args, "--label", k+"="+opts.Labels[k])
	}

	args = append(args, opts.ContextDir)

	return args
}

// RunArgs constructs arguments for a container run command. Environment
// variables are passed by name only; their values come from the client's
// environment (see CreateRunCommand).
//
// Generated command: <binary> run [options] <image> [command...]
func (e *BaseCLIEngine) RunArgs(opts RunOptions) []string {
	args := []string{"run"}

	if opts.Remove {
		args = append(args, "--rm")
	}

	if opts.Name != "" {
		args = append(args, "--name", opts.Name)
	}

	if opts.WorkDir != "" {
		args = append(args, "-w", opts.WorkDir)
	}

	if opts.Interactive {
		args = append(args, "-i")
	}

	if opts.TTY {
		args = append(args, "-t")
	}

	for _, k := range slices.Sorted(maps.Keys(opts.Labels)) {
		args = append(args, "--label", k+"="+opts.Labels[k])
	}

	for _, k := range slices.Sorted(maps.Keys(opts.Env)) {
		args = append(args, "-e", k)
	}

	args = append(args, string(opts.Image))
	return append(args, opts.Command...)
}

// PullArgs constructs arguments for an image pull command.
func (e *BaseCLIEngine) PullArgs(image ImageTag) []string {
	return []string{"pull", string(image)}
}

// RemoveImageArgs constructs arguments for an image remove command.
func (e *BaseCLIEngine) RemoveImageArgs(image ImageTag, force bool) []string {
	args := []string{"rmi"}
	if force {
		args = append(args, "-f")
	}
	args = append(args, string(image))
	return args
}

// --- Command Execution ---

// RunCommandWithOutput executes a command with stdout captured to a buffer.
// Stderr is attached to the returned error.
func (e *BaseCLIEngine) RunCommandWithOutput(ctx context.Context, args ...string) (string, error) {
	cmd := e.CreateCommand(ctx, args...)
	var out, errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(errOut.String()); msg != "" {
			return "", fmt.Errorf("command %s %v failed: %w: %s", e.binaryPath, args, err, msg)
		}
		return "", fmt.Errorf("command %s %v failed: %w", e.binaryPath, args, err)
	}

	return out.String(), nil
}

// CreateCommand creates an exec.Cmd for the given arguments, honoring the
// spawn prefix and environment overrides.
func (e *BaseCLIEngine) CreateCommand(ctx context.Context, args ...string) *exec.Cmd {
	name := e.binaryPath
	if len(e.spawnPrefix) > 0 {
		name = e.spawnPrefix[0]
		full := make([]string, 0, len(e.spawnPrefix)+len(args))
		full = append(full, e.spawnPrefix[1:]...)
		full = append(full, e.binaryPath)
		args = append(full, args...)
	}
	cmd := e.execCommand(ctx, name, args...)
	if len(e.cmdEnvOverrides) > 0 {
		cmd.Env = withEnv(cmd.Env, e.cmdEnvOverrides)
	}
	return cmd
}

// CreateRunCommand creates the command for a foreground run. Cancelling ctx
// interrupts the client, which stops the container; after StopTimeout the
// client is killed.
func (e *BaseCLIEngine) CreateRunCommand(ctx context.Context, opts RunOptions) *exec.Cmd {
	cmd := e.CreateCommand(ctx, e.RunArgs(opts)...)
	if len(opts.Env) > 0 {
		cmd.Env = withEnv(cmd.Env, opts.Env)
	}
	cmd.Stdin = opts.Stdin
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr
	cmd.Cancel = func() error {
		if runtime.GOOS == platform.Windows {
			return cmd.Process.Kill()
		}
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = opts.StopTimeout
	return cmd
}

// withEnv overlays vars on env, starting from the process environment when
// env is nil.
func withEnv(env []string, vars map[string]string) []string {
	if env == nil {
		env = os.Environ()
	}
	out := slices.Clone(env)
	for _, k := range slices.Sorted(maps.Keys(vars)) {
		out = append(out, k+"="+vars[k])
	}
	return out
}

// --- Promoted Engine Methods (shared by Docker and Podman) ---

// Build builds an image from a Dockerfile.
func (e *BaseCLIEngine) Build(ctx context.Context, opts BuildOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}

	cmd := e.CreateCommand(ctx, e.BuildArgs(opts)...)
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr

	if err := cmd.Run(); err != nil {
		return buildContainerError(e.name, opts, err)
	}

	return nil
}

// Run runs a container in the foreground and waits for it to exit.
// The container's exit status is captured in RunResult.ExitCode verbatim.
// Only client failures (binary missing, killed by signal) set RunResult.Error.
func (e *BaseCLIEngine) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	cmd := e.CreateRunCommand(ctx, opts)
	if err := cmd.Start(); err != nil {
		return &RunResult{
			ExitCode: types.ExitCannotInvoke,
			Error:    runContainerError(e.name, opts, err),
		}, nil
	}
	if opts.Started != nil {
		opts.Started()
	}

	err := cmd.Wait()
	result := &RunResult{}
	if cmd.ProcessState != nil && cmd.ProcessState.ExitCode() >= 0 {
		result.ExitCode = types.ExitCode(cmd.ProcessState.ExitCode())
		return result, nil
	}

	result.ExitCode = types.ExitFailure
	switch {
	case ctx.Err() != nil:
		result.Error = fmt.Errorf("%s client did not stop after interrupt: %w", e.name, ctx.Err())
	case err != nil:
		result.Error = runContainerError(e.name, opts, err)
	default:
		result.Error = fmt.Errorf("%s client terminated abnormally", e.name)
	}
	return result, nil
}

// Pull fetches an image.
func (e *BaseCLIEngine) Pull(ctx context.Context, opts PullOptions) error {
	if err := opts.Image.Validate(); err != nil {
		return err
	}

	cmd := e.CreateCommand(ctx, e.PullArgs(opts.Image)...)
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr

	if err := cmd.Run(); err != nil {
		return pullImageError(e.name, opts.Image, err)
	}
	return nil
}

// RemoveImage removes an image.
func (e *BaseCLIEngine) RemoveImage(ctx context.Context, image ImageTag, force bool) error {
	_, err := e.RunCommandWithOutput(ctx, e.RemoveImageArgs(image, force)...)
	return err
}

// InspectImage returns the ID of an image.
func (e *BaseCLIEngine) InspectImage(ctx context.Context, image ImageTag) (string, error) {
	out, err := e.RunCommandWithOutput(ctx, "image", "inspect", "--format", "{{.Id}}", string(image))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// imageProbe runs a command whose exit status answers an existence question.
// Exit status 1 means "no"; failing to run the client at all is an error.
func (e *BaseCLIEngine) imageProbe(ctx context.Context, args ...string) (bool, error) {
	err := e.CreateCommand(ctx, args...).Run()
	if err == nil {
		return true, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return false, nil
	}
	return false, fmt.Errorf("command %s %v failed: %w", e.binaryPath, args, err)
}

// --- Actionable Error Helpers ---

// buildContainerError creates an actionable error for image build failures.
func buildContainerError(engine string, opts BuildOptions, cause error) error {
	ctx := issue.NewErrorContext().
		WithOperation("build container image")

	switch {
	case opts.Tag != "":
		ctx.WithResource(string(opts.Tag))
	case opts.Dockerfile != "":
		ctx.WithResource(opts.Dockerfile)
	case opts.ContextDir != "":
		ctx.WithResource(opts.ContextDir)
	}

	ctx.WithSuggestion("Read the build output above for the failing step")
	ctx.WithSuggestion("Ensure base images are available (try: " + engine + " pull <base-image>)")
	if IsTransientError(cause) {
		ctx.WithSuggestion("The failure looks transient (network or engine); running the command again may succeed")
	}

	return ctx.Wrap(cause).BuildError()
}

// runContainerError creates an actionable error for container run failures.
func runContainerError(engine string, opts RunOptions, cause error) error {
	ctx := issue.NewErrorContext().
		WithOperation("run container").
		WithResource(string(opts.Image))

	ctx.WithSuggestion("Verify the image exists (try: " + engine + " images)")
	ctx.WithSuggestion("Check that the " + engine + " CLI can reach its daemon or service")

	return ctx.Wrap(cause).BuildError()
}

// pullImageError creates an actionable error for image pull failures.
func pullImageError(engine string, image ImageTag, cause error) error {
	ctx := issue.NewErrorContext().
		WithOperation("pull image").
		WithResource(string(image))

	ctx.WithSuggestion("Check the image name and tag for typos")
	ctx.WithSuggestion("Log in if the registry is private (try: " + engine + " login)")
	if IsTransientError(cause) {
		ctx.WithSuggestion("The failure looks transient (network or registry); running the command again may succeed")
	}

	return ctx.Wrap(cause).BuildError()
}
