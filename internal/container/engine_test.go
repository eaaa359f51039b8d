// SPDX-License-Identifier: MPL-2.0

package container

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"runtime"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"launchpad-cli/internal/issue"
	"launchpad-cli/pkg/types"
)

func TestEngineType_Validate(t *testing.T) {
	t.Parallel()

	for _, valid := range []EngineType{EngineTypeDocker, EngineTypePodman} {
		if err := valid.Validate(); err != nil {
			t.Errorf("%s.Validate() = %v", valid, err)
		}
	}
	err := EngineType("containerd").Validate()
	if !errors.Is(err, ErrInvalidEngineType) {
		t.Errorf("Validate() = %v, want ErrInvalidEngineType", err)
	}
	if _, err := NewEngine("lxc"); !errors.Is(err, ErrInvalidEngineType) {
		t.Errorf("NewEngine(lxc) = %v, want ErrInvalidEngineType", err)
	}
}

func TestEngineNotAvailableError(t *testing.T) {
	t.Parallel()

	err := &EngineNotAvailableError{Engine: EngineTypePodman, Reason: "not installed"}
	if got := err.Error(); got != "container engine 'podman' is not available: not installed" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(err, ErrEngineNotAvailable) {
		t.Error("EngineNotAvailableError should unwrap to ErrEngineNotAvailable")
	}
}

func TestImageTag_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		tag     ImageTag
		wantErr bool
	}{
		{"python:3.11-slim", false},
		{"launchpad/bot:deps-0123456789ab", false},
		{"", true},
		{"python 3.11", true},
		{"python:3.11\n", true},
	}
	for _, tt := range tests {
		err := tt.tag.Validate()
		if (err != nil) != tt.wantErr {
			t.Errorf("ImageTag(%q).Validate() = %v, wantErr %v", tt.tag, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrInvalidImageTag) {
			t.Errorf("ImageTag(%q).Validate() = %v, want ErrInvalidImageTag", tt.tag, err)
		}
	}
}

func TestOptions_Validate(t *testing.T) {
	t.Parallel()

	if err := (BuildOptions{}).Validate(); err == nil {
		t.Error("BuildOptions without context should be invalid")
	}
	if err := (BuildOptions{ContextDir: ".", Tag: "bad tag"}).Validate(); !errors.Is(err, ErrInvalidImageTag) {
		t.Errorf("BuildOptions.Validate() = %v, want ErrInvalidImageTag", err)
	}
	if err := (RunOptions{Image: "bot", Env: map[string]string{"A=B": "x"}}).Validate(); err == nil {
		t.Error("RunOptions with a malformed env name should be invalid")
	}
	if err := (RunOptions{Image: "bot", Env: map[string]string{"GUILD_ID": "1"}}).Validate(); err != nil {
		t.Errorf("RunOptions.Validate() = %v", err)
	}
}

func TestEngines_AvailableWithNoPath(t *testing.T) {
	t.Parallel()

	if (&DockerEngine{BaseCLIEngine: NewBaseCLIEngine("")}).Available() {
		t.Error("DockerEngine with empty path should not be available")
	}
	if (&PodmanEngine{BaseCLIEngine: NewBaseCLIEngine("")}).Available() {
		t.Error("PodmanEngine with empty path should not be available")
	}
}

func TestEngines_Name(t *testing.T) {
	t.Parallel()

	recorder := NewMockCommandRecorder()
	if got := newMockDocker(t, recorder).Name(); got != "docker" {
		t.Errorf("docker Name() = %q", got)
	}
	if got := newMockPodman(t, recorder).Name(); got != "podman" {
		t.Errorf("podman Name() = %q", got)
	}
}

func TestEngines_Version(t *testing.T) {
	t.Parallel()

	recorder := NewMockCommandRecorder()
	recorder.Stdout = "27.1.1\n"
	got, err := newMockDocker(t, recorder).Version(t.Context())
	if err != nil || got != "27.1.1" {
		t.Errorf("Version() = %q, %v", got, err)
	}
	recorder.AssertArgsContain(t, "{{.Server.Version}}")
}

func TestEngines_ImageExists(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		engine   func(*testing.T, *MockCommandRecorder) Engine
		exitCode int
		want     bool
		wantArgs []string
	}{
		{
			name:     "docker present",
			engine:   func(t *testing.T, r *MockCommandRecorder) Engine { return newMockDocker(t, r) },
			want:     true,
			wantArgs: []string{"image", "inspect", "--format", "{{.Id}}", "python:3.11-slim"},
		},
		{
			name:     "docker missing",
			engine:   func(t *testing.T, r *MockCommandRecorder) Engine { return newMockDocker(t, r) },
			exitCode: 1,
			wantArgs: []string{"image", "inspect", "--format", "{{.Id}}", "python:3.11-slim"},
		},
		{
			name:     "podman present",
			engine:   func(t *testing.T, r *MockCommandRecorder) Engine { return newMockPodman(t, r) },
			want:     true,
			wantArgs: []string{"image", "exists", "python:3.11-slim"},
		},
		{
			name:     "podman missing",
			engine:   func(t *testing.T, r *MockCommandRecorder) Engine { return newMockPodman(t, r) },
			exitCode: 1,
			wantArgs: []string{"image", "exists", "python:3.11-slim"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			recorder := NewMockCommandRecorder()
			recorder.ExitCode = tt.exitCode
			got, err := tt.engine(t, recorder).ImageExists(t.Context(), "python:3.11-slim")
			if err != nil {
				t.Fatalf("ImageExists() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ImageExists() = %v, want %v", got, tt.want)
			}
			if strings.Join(recorder.LastArgs(), " ") != strings.Join(tt.wantArgs, " ") {
				t.Errorf("args = %v, want %v", recorder.LastArgs(), tt.wantArgs)
			}
		})
	}
}

func TestEngines_ImageExistsClientFailure(t *testing.T) {
	t.Parallel()

	e := NewDockerEngine(
		WithBinaryPath("/nonexistent/launchpad-docker"),
		WithExecCommand(exec.CommandContext),
	)
	if _, err := e.ImageExists(t.Context(), "python:3.11-slim"); err == nil {
		t.Error("ImageExists() should fail when the client cannot start")
	}
}

func TestBaseCLIEngine_Build(t *testing.T) {
	t.Parallel()

	recorder := NewMockCommandRecorder()
	e := newMockDocker(t, recorder)
	var out bytes.Buffer
	recorder.Stdout = "Successfully tagged launchpad/bot:deps-0123456789ab\n"

	err := e.Build(t.Context(), BuildOptions{
		ContextDir: t.TempDir(),
		Dockerfile: "Dockerfile",
		Tag:        "launchpad/bot:deps-0123456789ab",
		Stdout:     &out,
	})
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if !recorder.HasArgPair("-t", "launchpad/bot:deps-0123456789ab") {
		t.Errorf("tag missing from %v", recorder.LastArgs())
	}
	if !strings.Contains(out.String(), "Successfully tagged") {
		t.Errorf("build output not streamed: %q", out.String())
	}
}

func TestBaseCLIEngine_BuildFailure(t *testing.T) {
	t.Parallel()

	recorder := NewMockCommandRecorder()
	recorder.ExitCode = 1
	err := newMockDocker(t, recorder).Build(t.Context(), BuildOptions{
		ContextDir: t.TempDir(),
		Tag:        "launchpad/bot:deps-0123456789ab",
	})

	var ae *issue.ActionableError
	if !errors.As(err, &ae) {
		t.Fatalf("Build() error = %v, want *issue.ActionableError", err)
	}
	if ae.Operation != "build container image" || ae.Resource != "launchpad/bot:deps-0123456789ab" {
		t.Errorf("unexpected error context: %+v", ae)
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Error("cause should be the client's exit error")
	}
}

func TestBaseCLIEngine_BuildRejectsInvalidOptions(t *testing.T) {
	t.Parallel()

	recorder := NewMockCommandRecorder()
	if err := newMockDocker(t, recorder).Build(t.Context(), BuildOptions{}); err == nil {
		t.Fatal("Build() should reject a missing context")
	}
	recorder.AssertInvocationCount(t, 0)
}

func TestBaseCLIEngine_Pull(t *testing.T) {
	t.Parallel()

	recorder := NewMockCommandRecorder()
	e := newMockPodman(t, recorder)
	if err := e.Pull(t.Context(), PullOptions{Image: "python:3.11-slim"}); err != nil {
		t.Fatalf("Pull() error: %v", err)
	}
	if strings.Join(recorder.LastArgs(), " ") != "pull python:3.11-slim" {
		t.Errorf("args = %v", recorder.LastArgs())
	}

	recorder.ExitCode = 125
	recorder.Stderr = "Could not resolve host: registry-1.docker.io"
	err := e.Pull(t.Context(), PullOptions{Image: "python:3.11-slim"})
	var ae *issue.ActionableError
	if !errors.As(err, &ae) {
		t.Fatalf("Pull() error = %v, want *issue.ActionableError", err)
	}
	if ae.Operation != "pull image" {
		t.Errorf("Operation = %q", ae.Operation)
	}
	if !strings.Contains(ae.Format(false), "transient") {
		t.Errorf("exit status 125 should add the transient hint:\n%s", ae.Format(false))
	}
}

func TestBaseCLIEngine_InspectImage(t *testing.T) {
	t.Parallel()

	recorder := NewMockCommandRecorder()
	recorder.Stdout = "sha256:4f2c\n"
	id, err := newMockDocker(t, recorder).InspectImage(t.Context(), "launchpad/bot:app-1")
	if err != nil || id != "sha256:4f2c" {
		t.Errorf("InspectImage() = %q, %v", id, err)
	}

	recorder.ExitCode = 1
	recorder.Stdout = ""
	recorder.Stderr = "No such image"
	_, err = newMockDocker(t, recorder).InspectImage(t.Context(), "launchpad/bot:app-1")
	if err == nil || !strings.Contains(err.Error(), "No such image") {
		t.Errorf("InspectImage() error = %v, want stderr in message", err)
	}
}

func TestBaseCLIEngine_RunExitCodePassthrough(t *testing.T) {
	t.Parallel()

	for _, code := range []int{0, 1, 2, 42, 137} {
		recorder := NewMockCommandRecorder()
		recorder.ExitCode = code
		var started atomic.Bool

		res, err := newMockDocker(t, recorder).Run(t.Context(), RunOptions{
			Image:   "launchpad/bot:app-0123456789ab",
			Started: func() { started.Store(true) },
		})
		if err != nil {
			t.Fatalf("Run() error: %v", err)
		}
		if res.ExitCode != types.ExitCode(code) {
			t.Errorf("ExitCode = %d, want %d", res.ExitCode, code)
		}
		if res.Error != nil {
			t.Errorf("Error = %v, want nil for a container exit", res.Error)
		}
		if !started.Load() {
			t.Error("Started callback not invoked")
		}
	}
}

func TestBaseCLIEngine_RunEnvStaysOutOfArgv(t *testing.T) {
	t.Parallel()

	recorder := NewMockCommandRecorder()
	recorder.EchoEnv = "FIREBASE_KEY"
	var out bytes.Buffer

	res, err := newMockDocker(t, recorder).Run(t.Context(), RunOptions{
		Image:  "launchpad/bot:app-0123456789ab",
		Env:    map[string]string{"FIREBASE_KEY": "s3cret"},
		Stdout: &out,
	})
	if err != nil || res.ExitCode != 0 {
		t.Fatalf("Run() = %+v, %v", res, err)
	}
	if out.String() != "s3cret" {
		t.Errorf("client saw FIREBASE_KEY=%q", out.String())
	}
	if strings.Contains(strings.Join(recorder.LastArgs(), " "), "s3cret") {
		t.Errorf("secret leaked into argv: %v", recorder.LastArgs())
	}
	if !recorder.HasArgPair("-e", "FIREBASE_KEY") {
		t.Errorf("missing -e FIREBASE_KEY in %v", recorder.LastArgs())
	}
}

func TestBaseCLIEngine_RunClientMissing(t *testing.T) {
	t.Parallel()

	e := NewDockerEngine(
		WithBinaryPath("/nonexistent/launchpad-docker"),
		WithExecCommand(exec.CommandContext),
	)
	var started bool
	res, err := e.Run(t.Context(), RunOptions{Image: "bot", Started: func() { started = true }})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.ExitCode != types.ExitCannotInvoke || res.Error == nil {
		t.Errorf("Run() = %+v, want ExitCannotInvoke with an error", res)
	}
	if started {
		t.Error("Started called for a client that never started")
	}
}

// readyWriter closes ready on the first write.
type readyWriter struct {
	once  sync.Once
	ready chan struct{}
}

func (w *readyWriter) Write(p []byte) (int, error) {
	w.once.Do(func() { close(w.ready) })
	return len(p), nil
}

func TestBaseCLIEngine_RunCancelInterruptsClient(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("interrupts are not delivered to child processes on Windows")
	}

	recorder := NewMockCommandRecorder()
	recorder.BlockUntilInterrupt = true
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	w := &readyWriter{ready: make(chan struct{})}
	go func() {
		<-w.ready
		cancel()
	}()

	res, err := newMockDocker(t, recorder).Run(ctx, RunOptions{
		Image:       "launchpad/bot:app-0123456789ab",
		Stdout:      w,
		StopTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.ExitCode != 130 {
		t.Errorf("ExitCode = %d (err %v), want 130 from the interrupted client", res.ExitCode, res.Error)
	}
}

func TestDockerEngine_EnablesBuildKit(t *testing.T) {
	t.Parallel()

	docker := NewDockerEngine(WithBinaryPath("/usr/bin/docker"))
	if !slices.Contains(docker.CreateCommand(t.Context(), "build", ".").Env, "DOCKER_BUILDKIT=1") {
		t.Error("docker commands should run with DOCKER_BUILDKIT=1")
	}

	podman := NewPodmanEngine(WithBinaryPath("/usr/bin/podman"))
	if env := podman.CreateCommand(t.Context(), "build", ".").Env; slices.Contains(env, "DOCKER_BUILDKIT=1") {
		t.Error("podman commands should not carry docker-specific overrides")
	}
}
