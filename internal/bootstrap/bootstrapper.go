// SPDX-License-Identifier: MPL-2.0

package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"maps"
	"os"
	"path"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"launchpad-cli/internal/container"
	"launchpad-cli/internal/ledger"
	"launchpad-cli/internal/lifecycle"
	"launchpad-cli/internal/manifest"
	"launchpad-cli/internal/recipe"
	"launchpad-cli/internal/stage"
	"launchpad-cli/pkg/types"
)

// TracerName is the instrumentation name of step spans.
const TracerName = "launchpad-cli/internal/bootstrap"

type (
	// Ledger journals environments. Write failures are logged and never
	// change an environment's outcome.
	Ledger interface {
		Begin(ctx context.Context, env ledger.Environment) (int64, error)
		RecordTransition(ctx context.Context, id int64, tr lifecycle.Transition) error
		Finish(ctx context.Context, id int64, out ledger.Outcome) error
	}

	// Bootstrapper builds and runs environments with one container engine.
	Bootstrapper struct {
		engine container.Engine
		stages *stage.Builder
		logger *log.Logger
		ledger Ledger
		tracer trace.Tracer

		stdin       io.Reader
		stdout      io.Writer
		stderr      io.Writer
		progress    io.Writer
		stopTimeout time.Duration
		runEnv      map[string]string
		interactive bool
		tty         bool
		keep        bool
		now         func() time.Time
		newID       func() string
	}
)

// New creates a Bootstrapper. A nil logger discards log output.
func New(engine container.Engine, stages *stage.Builder, logger *log.Logger, opts ...Option) *Bootstrapper {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	b := &Bootstrapper{
		engine: engine,
		stages: stages,
		logger: logger,
		tracer: otel.Tracer(TracerName),
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.progress == nil {
		b.progress = b.stderr
	}
	return b
}

// NewEnvironment creates an UNBUILT environment for r. Transitions are
// logged and, when a ledger is configured, journaled under ctx.
func (b *Bootstrapper) NewEnvironment(ctx context.Context, r *recipe.Recipe) *Environment {
	env := &Environment{ID: b.newID(), Recipe: r}
	env.Machine = lifecycle.NewMachine(
		lifecycle.WithClock(b.now),
		lifecycle.WithObserver(b.logTransition(env)),
	)

	if b.ledger != nil {
		env.ledgerCtx = context.WithoutCancel(ctx)
		id, err := b.ledger.Begin(env.ledgerCtx, ledger.Environment{
			UUID:                  env.ID,
			RecipeName:            r.Name,
			RecipePath:            r.Path,
			RecipeDigest:          r.Digest(),
			Entrypoint:            r.Entrypoint.String(),
			EntrypointFingerprint: r.Fingerprint(),
			Engine:                b.engine.Name(),
		})
		if err != nil {
			b.logger.Warn("ledger unavailable for this environment", "error", err)
		} else {
			env.ledgerID = id
			env.Machine.Observe(b.journalTransition(env))
		}
	}
	return env
}

// Build runs every build step in order and stops at the first failure.
func (b *Bootstrapper) Build(ctx context.Context, env *Environment) error {
	steps := []func(context.Context, *Environment) error{
		b.SelectBase,
		b.EstablishWorkDir,
		b.ConfigureUnbuffered,
		b.InstallDependencies,
		b.MaterializeFiles,
	}
	for _, step := range steps {
		if err := step(ctx, env); err != nil {
			return err
		}
	}
	return nil
}

// Run starts a built environment and returns the entrypoint's exit code.
func (b *Bootstrapper) Run(ctx context.Context, env *Environment) (types.ExitCode, error) {
	if env.State() != lifecycle.StateFilesMaterialized {
		return types.ExitFailure, fmt.Errorf("%w: environment is %s", ErrNotBuilt, env.State())
	}
	if err := b.Start(ctx, env); err != nil {
		return types.ExitFailure, err
	}
	return env.ExitCode, nil
}

// Up builds env and runs it.
func (b *Bootstrapper) Up(ctx context.Context, env *Environment) (types.ExitCode, error) {
	if err := b.Build(ctx, env); err != nil {
		return types.ExitFailure, err
	}
	return b.Run(ctx, env)
}

// SelectBase makes the pinned base image available locally, pulling it when
// absent.
func (b *Bootstrapper) SelectBase(ctx context.Context, env *Environment) error {
	return b.step(ctx, env, "select-base", lifecycle.StateUnbuilt, lifecycle.StateBaseSelected, func(ctx context.Context) error {
		image := container.ImageTag(env.Recipe.BaseImage)
		exists, err := b.engine.ImageExists(ctx, image)
		if err != nil {
			b.logger.Debug("base image lookup failed, pulling", "image", image, "error", err)
		}
		if !exists {
			b.logger.Info("pulling base image", "image", image)
			if err := b.engine.Pull(ctx, container.PullOptions{Image: image, Stdout: b.progress, Stderr: b.progress}); err != nil {
				return baseImageError(image, err)
			}
		}
		id, err := b.engine.InspectImage(ctx, image)
		if err != nil {
			return baseImageError(image, err)
		}
		env.BaseImageID = id
		return nil
	})
}

// EstablishWorkDir records the absolute working directory.
func (b *Bootstrapper) EstablishWorkDir(ctx context.Context, env *Environment) error {
	return b.step(ctx, env, "establish-workdir", lifecycle.StateBaseSelected, lifecycle.StateBaseSelected, func(context.Context) error {
		wd := env.Recipe.WorkDir
		if !path.IsAbs(wd) {
			return fmt.Errorf("working directory %q must be an absolute path", wd)
		}
		env.WorkDir = path.Clean(wd)
		return nil
	})
}

// ConfigureUnbuffered fixes the image environment, including
// PYTHONUNBUFFERED=1 when the recipe asks for unbuffered output.
func (b *Bootstrapper) ConfigureUnbuffered(ctx context.Context, env *Environment) error {
	if env.WorkDir == "" {
		return fmt.Errorf("%w: working directory not established", ErrOutOfOrder)
	}
	return b.step(ctx, env, "configure-unbuffered", lifecycle.StateBaseSelected, lifecycle.StateBaseSelected, func(context.Context) error {
		env.ImageEnv = env.Recipe.ImageEnv()
		return nil
	})
}

// InstallDependencies validates the manifest and builds the dependencies
// stage. A malformed manifest fails before the engine is asked to build.
func (b *Bootstrapper) InstallDependencies(ctx context.Context, env *Environment) error {
	if env.WorkDir == "" || env.ImageEnv == nil {
		return fmt.Errorf("%w: image environment not configured", ErrOutOfOrder)
	}
	return b.step(ctx, env, "install-dependencies", lifecycle.StateBaseSelected, lifecycle.StateDependenciesInstalled, func(ctx context.Context) error {
		manifestPath := env.Recipe.ManifestPath()
		m, err := manifest.Load(manifestPath)
		if err != nil {
			return manifestError(manifestPath, err)
		}
		env.Manifest = m
		if m.Empty() {
			b.logger.Warn("dependency manifest declares no packages", "manifest", manifestPath)
		} else {
			b.logger.Debug("dependency manifest", "manifest", manifestPath, "packages", m.Names())
		}

		res, err := b.stages.Dependencies(ctx, env.Recipe, env.BaseImageID, m)
		if err != nil {
			return installError(b.stages.DependenciesTag(env.Recipe, env.BaseImageID, m), err)
		}
		env.DepsImage = res.Tag
		env.DepsCached = res.Cached
		return nil
	})
}

// MaterializeFiles snapshots the source tree and builds the application
// stage on top of the dependencies stage.
func (b *Bootstrapper) MaterializeFiles(ctx context.Context, env *Environment) error {
	return b.step(ctx, env, "materialize-files", lifecycle.StateDependenciesInstalled, lifecycle.StateFilesMaterialized, func(ctx context.Context) error {
		dir := env.Recipe.SourceDir()
		src, err := stage.Snapshot(env.Recipe)
		switch {
		case errors.Is(err, fs.ErrNotExist), errors.Is(err, stage.ErrSourceNotDirectory):
			return sourceMissingError(dir, err)
		case err != nil:
			return sourceError(dir, err)
		}
		env.Source = src

		res, err := b.stages.Application(ctx, env.Recipe, env.DepsImage, src)
		if err != nil {
			return sourceError(dir, err)
		}
		env.AppImage = res.Tag
		env.AppCached = res.Cached
		return nil
	})
}

// Start runs the application image in the foreground. The environment is
// RUNNING once the engine client has started and STOPPED when it exits;
// the exit code is recorded verbatim.
func (b *Bootstrapper) Start(ctx context.Context, env *Environment) error {
	ctx, span := b.tracer.Start(ctx, "bootstrap.start", b.spanAttributes(env))
	defer span.End()

	if err := env.expect("start", lifecycle.StateFilesMaterialized); err != nil {
		recordSpanError(span, err)
		return err
	}

	runEnv := maps.Clone(env.Recipe.RunEnv)
	if runEnv == nil {
		runEnv = make(map[string]string, len(b.runEnv))
	}
	maps.Copy(runEnv, b.runEnv)

	opts := container.RunOptions{
		Image:       env.AppImage,
		Name:        env.ContainerName(),
		Env:         runEnv,
		Labels:      map[string]string{stage.LabelRecipe: env.Recipe.Name, LabelEnvironment: env.ID},
		Remove:      !b.keep,
		Interactive: b.interactive,
		TTY:         b.tty,
		Stdin:       b.stdin,
		Stdout:      b.stdout,
		Stderr:      b.stderr,
		StopTimeout: b.stopTimeout,
		Started: func() {
			if err := env.Machine.Advance(lifecycle.StateRunning); err != nil {
				b.logger.Warn("unexpected lifecycle state at start", "error", err)
			}
		},
	}

	b.logger.Info("starting entrypoint", "image", opts.Image, "container", opts.Name, "entrypoint", env.Recipe.Entrypoint.String())
	res, err := b.engine.Run(ctx, opts)
	if err == nil && !env.Machine.IsRunning() {
		err = res.Error
		if err == nil {
			err = errors.New("engine client did not start")
		}
	}
	if err != nil {
		err = startError(opts.Image, err)
		_ = env.Machine.Fail(err)
		recordSpanError(span, err)
		return err
	}

	if res.Error != nil {
		b.logger.Warn("engine client reported an error", "error", res.Error)
	}
	env.ExitCode = res.ExitCode
	if err := env.Machine.Advance(lifecycle.StateStopped); err != nil {
		recordSpanError(span, err)
		return err
	}
	span.SetAttributes(attribute.Int("launchpad.exit_code", int(res.ExitCode)))
	span.SetStatus(codes.Ok, "")

	if res.ExitCode.IsEngineReserved() {
		b.logger.Warn("entrypoint exited with a code the engine also uses for its own failures", "exit_code", res.ExitCode)
	} else {
		b.logger.Info("entrypoint exited", "exit_code", res.ExitCode)
	}
	return nil
}

// step runs fn in state from and advances to to on success. A step with
// from == to does not transition. Failures move the environment to FAILED.
func (b *Bootstrapper) step(ctx context.Context, env *Environment, name string, from, to lifecycle.State, fn func(context.Context) error) error {
	ctx, span := b.tracer.Start(ctx, "bootstrap."+name, b.spanAttributes(env))
	defer span.End()

	if err := env.expect(name, from); err != nil {
		recordSpanError(span, err)
		return err
	}

	b.logger.Debug("step started", "step", name, "recipe", env.Recipe.Name)
	err := fn(ctx)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		_ = env.Machine.Fail(err)
		recordSpanError(span, err)
		return err
	}

	if from != to {
		if err := env.Machine.Advance(to); err != nil {
			recordSpanError(span, err)
			return err
		}
	}
	span.SetStatus(codes.Ok, "")
	b.logger.Debug("step completed", "step", name)
	return nil
}

func (b *Bootstrapper) spanAttributes(env *Environment) trace.SpanStartOption {
	return trace.WithAttributes(
		attribute.String("launchpad.environment", env.ID),
		attribute.String("launchpad.recipe", env.Recipe.Name),
		attribute.String("launchpad.engine", b.engine.Name()),
	)
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// logTransition logs every state change.
func (b *Bootstrapper) logTransition(env *Environment) lifecycle.Observer {
	return func(tr lifecycle.Transition) {
		if tr.To == lifecycle.StateFailed {
			b.logger.Error("environment failed", "environment", env.ID, "from", tr.From, "error", tr.Err)
			return
		}
		b.logger.Info("environment state changed", "environment", env.ID, "from", tr.From, "to", tr.To)
	}
}

// journalTransition writes transitions, and the outcome on terminal states,
// to the ledger.
func (b *Bootstrapper) journalTransition(env *Environment) lifecycle.Observer {
	return func(tr lifecycle.Transition) {
		if err := b.ledger.RecordTransition(env.ledgerCtx, env.ledgerID, tr); err != nil {
			b.logger.Warn("ledger write failed", "error", err)
		}
		if !tr.To.IsTerminal() {
			return
		}
		out := ledger.Outcome{State: tr.To, ImageTag: string(env.AppImage), Err: tr.Err}
		if tr.To == lifecycle.StateStopped {
			code := env.ExitCode
			out.ExitCode = &code
		}
		if err := b.ledger.Finish(env.ledgerCtx, env.ledgerID, out); err != nil {
			b.logger.Warn("ledger write failed", "error", err)
		}
	}
}
