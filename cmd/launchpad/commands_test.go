// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"launchpad-cli/internal/bootstrap"
	"launchpad-cli/internal/container"
	"launchpad-cli/internal/issue"
	"launchpad-cli/internal/manifest"
	"launchpad-cli/internal/recipe"
	"launchpad-cli/internal/testutil"
	"launchpad-cli/internal/testutil/enginetest"
)

type harness struct {
	t        *testing.T
	dir      string
	environ  map[string]string
	engine   *enginetest.Fake
	engines  []container.EngineType
	stdout   bytes.Buffer
	stderr   bytes.Buffer
	noEngine bool
}

func newHarness(t *testing.T, engine *enginetest.Fake, files map[string]string) *harness {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		testutil.MustMkdirAll(t, filepath.Dir(p), 0o755)
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return &harness{
		t:       t,
		dir:     dir,
		engine:  engine,
		environ: map[string]string{"LAUNCHPAD_CACHE_DIR": t.TempDir()},
	}
}

func botFiles() map[string]string {
	return map[string]string{
		"requirements.txt": "discord.py>=2.3\n",
		"bot.py":           "print('ready')\n",
	}
}

// run executes one CLI invocation with a fresh App, as a new process would.
func (h *harness) run(args ...string) error {
	h.t.Helper()
	h.stdout.Reset()
	h.stderr.Reset()

	configDir := filepath.Join(h.dir, ".config")
	app := NewApp(Dependencies{
		NewEngine: func(preferred container.EngineType) (container.Engine, error) {
			h.engines = append(h.engines, preferred)
			if h.noEngine {
				return nil, &container.EngineNotAvailableError{Engine: preferred, Reason: "not installed"}
			}
			return h.engine, nil
		},
		Environ:   h.environ,
		ConfigDir: configDir,
		WorkDir:   h.dir,
		Stdin:     strings.NewReader(""),
		Stdout:    &h.stdout,
		Stderr:    &h.stderr,
	})
	root := newRootCommand(app)
	root.SetArgs(args)
	root.SetOut(&h.stdout)
	root.SetErr(&h.stderr)
	return root.ExecuteContext(h.t.Context())
}

func serviceIssue(t *testing.T, err error) issue.Id {
	t.Helper()
	var svcErr *ServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("error %v is not a ServiceError", err)
	}
	return svcErr.IssueID
}

func TestUp_PassesExitCodeAndRecordsHistory(t *testing.T) {
	t.Parallel()

	engine := enginetest.New("python:3.11-slim")
	engine.ExitCode = 3
	h := newHarness(t, engine, botFiles())

	err := h.run("up")
	var exitErr *ExitError
	if !errors.As(err, &exitErr) || exitErr.Code != 3 || exitErr.Err != nil {
		t.Fatalf("up error = %v, want silent exit code 3", err)
	}
	if exitCode(err) != 3 {
		t.Errorf("exitCode() = %d, want 3", exitCode(err))
	}

	if err := h.run("history", "--transitions"); err != nil {
		t.Fatalf("history error: %v", err)
	}
	out := h.stdout.String()
	for _, want := range []string{"STOPPED", "app", "fake", "FILES_MATERIALIZED -> RUNNING", "RUNNING -> STOPPED", "entrypoint " + recipe.Default().Fingerprint()} {
		if !strings.Contains(out, want) {
			t.Errorf("history output missing %q:\n%s", want, out)
		}
	}
}

func TestUp_SuccessExitsZero(t *testing.T) {
	t.Parallel()

	h := newHarness(t, enginetest.New("python:3.11-slim"), botFiles())
	if err := h.run("up"); err != nil {
		t.Fatalf("up error: %v", err)
	}
	if !strings.Contains(h.stderr.String(), "launchpad/app:app-") {
		t.Errorf("expected the application image in the output:\n%s", h.stderr.String())
	}
}

func TestRun_PassesEnvFlagsAndReusesBuild(t *testing.T) {
	t.Parallel()

	engine := enginetest.New("python:3.11-slim")
	h := newHarness(t, engine, botFiles())

	if err := h.run("build"); err != nil {
		t.Fatalf("build error: %v", err)
	}
	builds := len(engine.Builds())

	if err := h.run("run", "-e", "DISCORD_TOKEN=abc"); err != nil {
		t.Fatalf("run error: %v", err)
	}
	if got := len(engine.Builds()); got != builds {
		t.Errorf("run rebuilt stages: %d builds, want %d", got, builds)
	}

	var runs []enginetest.Call
	for _, c := range engine.Calls() {
		if c.Op == enginetest.OpRun {
			runs = append(runs, c)
		}
	}
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}
	if got := runs[0].Run.Env["DISCORD_TOKEN"]; got != "abc" {
		t.Errorf("DISCORD_TOKEN = %q, want abc", got)
	}
	if !runs[0].Run.Remove {
		t.Error("container should be removed after exit by default")
	}
}

func TestRun_RejectsMalformedEnvFlag(t *testing.T) {
	t.Parallel()

	engine := enginetest.New("python:3.11-slim")
	h := newHarness(t, engine, botFiles())
	if err := h.run("run", "-e", "NOVALUE"); exitCode(err) != 1 {
		t.Fatalf("run error = %v, want exit 1", err)
	}
	if len(engine.Calls()) != 0 {
		t.Errorf("engine was used: %v", engine.Ops())
	}
}

func TestBuild_BaseImageUnavailable(t *testing.T) {
	t.Parallel()

	engine := enginetest.New()
	engine.PullErr = errors.New("pull access denied")
	h := newHarness(t, engine, botFiles())

	err := h.run("build")
	if exitCode(err) != 1 {
		t.Fatalf("build exit code = %d, want 1 (err %v)", exitCode(err), err)
	}
	if !errors.Is(err, bootstrap.ErrBaseImageUnavailable) {
		t.Errorf("build error = %v, want ErrBaseImageUnavailable", err)
	}
	if got := serviceIssue(t, err); got != issue.BaseImageUnavailableId {
		t.Errorf("IssueID = %d, want BaseImageUnavailableId", got)
	}

	if err := h.run("history"); err != nil {
		t.Fatalf("history error: %v", err)
	}
	if !strings.Contains(h.stdout.String(), "FAILED") {
		t.Errorf("history should list the failed environment:\n%s", h.stdout.String())
	}
}

func TestBuild_EngineNotAvailable(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, botFiles())
	h.noEngine = true

	err := h.run("build")
	if !errors.Is(err, container.ErrEngineNotAvailable) {
		t.Fatalf("build error = %v, want ErrEngineNotAvailable", err)
	}
	if got := serviceIssue(t, err); got != issue.ContainerEngineNotFoundId {
		t.Errorf("IssueID = %d, want ContainerEngineNotFoundId", got)
	}
}

func TestGlobalEngineFlag(t *testing.T) {
	t.Parallel()

	h := newHarness(t, enginetest.New("python:3.11-slim"), botFiles())
	if err := h.run("--engine", "podman", "build"); err != nil {
		t.Fatalf("build error: %v", err)
	}
	if len(h.engines) != 1 || h.engines[0] != container.EngineTypePodman {
		t.Errorf("preferred engines = %v, want [podman]", h.engines)
	}

	err := h.run("--engine", "lxc", "version")
	if !errors.Is(err, container.ErrInvalidEngineType) {
		t.Fatalf("--engine lxc error = %v, want ErrInvalidEngineType", err)
	}
	if got := serviceIssue(t, err); got != issue.ConfigLoadFailedId {
		t.Errorf("IssueID = %d, want ConfigLoadFailedId", got)
	}
}

func TestEnvironmentEngineOverride(t *testing.T) {
	t.Parallel()

	h := newHarness(t, enginetest.New("python:3.11-slim"), botFiles())
	h.environ["LAUNCHPAD_ENGINE"] = "podman"
	if err := h.run("build"); err != nil {
		t.Fatalf("build error: %v", err)
	}
	if len(h.engines) != 1 || h.engines[0] != container.EngineTypePodman {
		t.Errorf("preferred engines = %v, want [podman]", h.engines)
	}
}

func TestRender_DefaultRecipe(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, botFiles())
	if err := h.run("render"); err != nil {
		t.Fatalf("render error: %v", err)
	}
	out := h.stdout.String()
	for _, want := range []string{
		"FROM python:3.11-slim\n",
		"WORKDIR /app\n",
		"ENV PYTHONUNBUFFERED=1\n",
		"COPY requirements.txt ./requirements.txt\n",
		"COPY . .\n",
		`CMD ["python", "bot.py"]`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("render output missing %q:\n%s", want, out)
		}
	}

	first := out
	if err := h.run("render"); err != nil {
		t.Fatal(err)
	}
	if h.stdout.String() != first {
		t.Error("render is not deterministic")
	}
}

func TestRender_RecipeFile(t *testing.T) {
	t.Parallel()

	files := botFiles()
	files["custom.cue"] = `
name: "bot"
base_image: "python:3.12-slim"
workdir: "/srv/bot"
unbuffered: false
`
	h := newHarness(t, nil, files)
	if err := h.run("render", "-f", "custom.cue"); err != nil {
		t.Fatalf("render error: %v", err)
	}
	out := h.stdout.String()
	if !strings.Contains(out, "FROM python:3.12-slim") || !strings.Contains(out, "WORKDIR /srv/bot") {
		t.Errorf("custom recipe not rendered:\n%s", out)
	}
	if strings.Contains(out, "PYTHONUNBUFFERED") {
		t.Errorf("unbuffered: false still sets PYTHONUNBUFFERED:\n%s", out)
	}
}

func TestRender_MissingRecipeFile(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, botFiles())
	err := h.run("render", "-f", "missing.cue")
	if !errors.Is(err, recipe.ErrRecipeNotFound) {
		t.Fatalf("render error = %v, want ErrRecipeNotFound", err)
	}
	if got := serviceIssue(t, err); got != issue.RecipeNotFoundId {
		t.Errorf("IssueID = %d, want RecipeNotFoundId", got)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	t.Run("valid project", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, nil, botFiles())
		if err := h.run("validate"); err != nil {
			t.Fatalf("validate error: %v", err)
		}
		out := h.stdout.String()
		for _, want := range []string{"is valid", "python:3.11-slim", "python bot.py", "1 from requirements.txt", "discord-py"} {
			if !strings.Contains(out, want) {
				t.Errorf("validate output missing %q:\n%s", want, out)
			}
		}
	})

	t.Run("empty manifest", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, nil, map[string]string{"requirements.txt": "# nothing yet\n", "bot.py": "print('ready')\n"})
		if err := h.run("validate"); err != nil {
			t.Fatalf("validate error: %v", err)
		}
		if out := h.stdout.String(); !strings.Contains(out, "no packages declared") {
			t.Errorf("validate output missing empty-manifest warning:\n%s", out)
		}
	})

	t.Run("invalid requirement", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, nil, map[string]string{"requirements.txt": "aiohttp=3.9\n"})
		err := h.run("validate")
		if exitCode(err) != 1 || !errors.Is(err, manifest.ErrInvalidRequirement) {
			t.Fatalf("validate error = %v, want ErrInvalidRequirement", err)
		}
		if got := serviceIssue(t, err); got != issue.ManifestInvalidId {
			t.Errorf("IssueID = %d, want ManifestInvalidId", got)
		}
	})

	t.Run("missing manifest", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, nil, map[string]string{"bot.py": "print(1)\n"})
		if err := h.run("validate"); !errors.Is(err, manifest.ErrManifestNotFound) {
			t.Fatalf("validate error = %v, want ErrManifestNotFound", err)
		}
	})

	t.Run("unpinned base image", func(t *testing.T) {
		t.Parallel()
		files := botFiles()
		files[recipe.FileNameCUE] = `base_image: "python"` + "\n"
		h := newHarness(t, nil, files)
		err := h.run("validate")
		if !errors.Is(err, recipe.ErrInvalidRecipe) || !errors.Is(err, recipe.ErrUnpinnedBaseImage) {
			t.Fatalf("validate error = %v, want ErrUnpinnedBaseImage", err)
		}
		if got := serviceIssue(t, err); got != issue.RecipeParseErrorId {
			t.Errorf("IssueID = %d, want RecipeParseErrorId", got)
		}
	})

	t.Run("schema violation", func(t *testing.T) {
		t.Parallel()
		files := botFiles()
		files[recipe.FileNameCUE] = `workdir: "app"` + "\n"
		h := newHarness(t, nil, files)
		err := h.run("validate")
		if exitCode(err) != 1 {
			t.Fatalf("validate error = %v, want exit 1", err)
		}
		if got := serviceIssue(t, err); got != issue.RecipeParseErrorId {
			t.Errorf("IssueID = %d, want RecipeParseErrorId", got)
		}
	})
}

func TestInit(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, nil)
	if err := h.run("init"); err != nil {
		t.Fatalf("init error: %v", err)
	}
	p := filepath.Join(h.dir, recipe.FileNameCUE)
	r, err := recipe.Load(p)
	if err != nil {
		t.Fatalf("generated recipe does not load: %v", err)
	}
	if r.Digest() != recipe.Default().Digest() {
		t.Error("generated recipe differs from the default recipe")
	}

	if err := h.run("init"); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Errorf("second init error = %v, want already exists", err)
	}
	if err := h.run("init", "--force"); err != nil {
		t.Errorf("init --force error: %v", err)
	}

	if err := h.run("init", "nested/bot"); err != nil {
		t.Fatalf("init nested/bot error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(h.dir, "nested", "bot", recipe.FileNameCUE)); err != nil {
		t.Errorf("init [dir] did not write the recipe: %v", err)
	}
}

func TestHistory(t *testing.T) {
	t.Parallel()

	t.Run("empty ledger", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, nil, nil)
		if err := h.run("history"); err != nil {
			t.Fatalf("history error: %v", err)
		}
		if !strings.Contains(h.stdout.String(), "No environments recorded yet.") {
			t.Errorf("unexpected output:\n%s", h.stdout.String())
		}
	})

	t.Run("ledger disabled", func(t *testing.T) {
		t.Parallel()
		engine := enginetest.New("python:3.11-slim")
		h := newHarness(t, engine, botFiles())
		h.environ["LAUNCHPAD_LEDGER"] = "false"
		if err := h.run("up"); err != nil {
			t.Fatalf("up error: %v", err)
		}
		if err := h.run("history"); err != nil {
			t.Fatalf("history error: %v", err)
		}
		if !strings.Contains(h.stdout.String(), "ledger is disabled") {
			t.Errorf("unexpected output:\n%s", h.stdout.String())
		}
		if _, err := os.Stat(filepath.Join(h.environ["LAUNCHPAD_CACHE_DIR"], "ledger.db")); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("ledger database created while disabled: %v", err)
		}
	})

	t.Run("limit", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, enginetest.New("python:3.11-slim"), botFiles())
		for range 3 {
			if err := h.run("build"); err != nil {
				t.Fatal(err)
			}
		}
		if err := h.run("history", "-n", "2"); err != nil {
			t.Fatalf("history error: %v", err)
		}
		if got := strings.Count(h.stdout.String(), "FILES_MATERIALIZED"); got != 2 {
			t.Errorf("history -n 2 listed %d environments:\n%s", got, h.stdout.String())
		}
	})
}

func TestConfigCommands(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, nil)
	h.environ["LAUNCHPAD_ENGINE"] = "podman"

	if err := h.run("config", "show"); err != nil {
		t.Fatalf("config show error: %v", err)
	}
	out := h.stdout.String()
	for _, want := range []string{"container_engine", "podman", "(using defaults)", "stop_timeout", "10s", "ledger.db"} {
		if !strings.Contains(out, want) {
			t.Errorf("config show missing %q:\n%s", want, out)
		}
	}

	if err := h.run("config", "init"); err != nil {
		t.Fatalf("config init error: %v", err)
	}
	if err := h.run("config", "path"); err != nil {
		t.Fatal(err)
	}
	path := strings.TrimSpace(h.stdout.String())
	if path != filepath.Join(h.dir, ".config", "config.cue") {
		t.Errorf("config path = %q", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("config init did not write %s: %v", path, err)
	}

	if err := h.run("config", "dump"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(h.stdout.String(), `container_engine: "podman"`) {
		t.Errorf("config dump should reflect overrides:\n%s", h.stdout.String())
	}
}

func TestVersionCommand(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil, nil)
	if err := h.run("version"); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(h.stdout.String(), "launchpad ") {
		t.Errorf("version output = %q", h.stdout.String())
	}
}
