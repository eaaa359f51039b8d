// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"launchpad-cli/internal/bootstrap"
	"launchpad-cli/internal/config"
	"launchpad-cli/internal/container"
	"launchpad-cli/internal/issue"
	"launchpad-cli/internal/ledger"
	"launchpad-cli/internal/recipe"
	"launchpad-cli/internal/stage"
	"launchpad-cli/internal/telemetry"
)

const shutdownTimeout = 5 * time.Second

type (
	// EngineFactory creates the container engine for a preferred type.
	EngineFactory func(preferred container.EngineType) (container.Engine, error)

	// App wires CLI services and shared dependencies. Every command handler
	// receives the App and reads the configuration it loaded.
	App struct {
		config    config.Provider
		newEngine EngineFactory
		environ   map[string]string
		configDir string
		workDir   string
		stdin     io.Reader
		stdout    io.Writer
		stderr    io.Writer

		// Global flags.
		verbose bool
		cfgFile string
		engine  string

		cfg     *config.Config
		cfgPath string
		logger  *log.Logger
	}

	// Dependencies defines the injection points for building an App. Nil
	// fields are replaced with production defaults by NewApp.
	Dependencies struct {
		Config    config.Provider
		NewEngine EngineFactory
		// Environ replaces the process environment for LAUNCHPAD_* overrides.
		Environ map[string]string
		// ConfigDir replaces the platform config directory.
		ConfigDir string
		// WorkDir is where recipes are looked up. Defaults to the current directory.
		WorkDir string
		Stdin   io.Reader
		Stdout  io.Writer
		Stderr  io.Writer
	}

	// runtime is the per-invocation wiring behind build, run and up.
	runtime struct {
		boot   *bootstrap.Bootstrapper
		engine container.Engine
		closer []func(context.Context) error
	}

	runtimeOptions struct {
		noCache     bool
		runEnv      map[string]string
		interactive bool
	}
)

// NewApp creates an App, filling unset dependencies with production defaults.
func NewApp(deps Dependencies) *App {
	a := &App{
		config:    deps.Config,
		newEngine: deps.NewEngine,
		environ:   deps.Environ,
		configDir: deps.ConfigDir,
		workDir:   deps.WorkDir,
		stdin:     deps.Stdin,
		stdout:    deps.Stdout,
		stderr:    deps.Stderr,
	}
	if a.config == nil {
		a.config = config.NewProvider()
	}
	if a.newEngine == nil {
		a.newEngine = func(preferred container.EngineType) (container.Engine, error) {
			return container.NewEngine(preferred)
		}
	}
	if a.stdin == nil {
		a.stdin = os.Stdin
	}
	if a.stdout == nil {
		a.stdout = os.Stdout
	}
	if a.stderr == nil {
		a.stderr = os.Stderr
	}
	return a
}

// loadConfig loads the tool configuration and applies the global flags on
// top of it.
func (a *App) loadConfig(ctx context.Context) error {
	loaded, err := a.config.Load(ctx, config.LoadOptions{
		ConfigFilePath: a.cfgFile,
		ConfigDirPath:  a.configDir,
		Environ:        a.environ,
	})
	if err != nil {
		return newServiceError(err, issue.ConfigLoadFailedId)
	}
	cfg := loaded.Config
	if a.engine != "" {
		cfg.ContainerEngine = container.EngineType(a.engine)
		if err := cfg.ContainerEngine.Validate(); err != nil {
			return newServiceError(err, issue.ConfigLoadFailedId)
		}
	}
	if a.verbose {
		cfg.UI.Verbose = true
	}

	a.cfg = cfg
	a.cfgPath = loaded.Path
	a.logger = telemetry.NewLogger(a.stderr, cfg.UI.Verbose)
	return nil
}

// resolve makes p absolute against the App's working directory.
func (a *App) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || a.workDir == "" {
		return p
	}
	return filepath.Join(a.workDir, p)
}

// loadRecipe loads the recipe at file, or the one in the working directory.
// Without any recipe file the default recipe is used.
func (a *App) loadRecipe(file string) (*recipe.Recipe, error) {
	if file != "" {
		r, err := recipe.Load(a.resolve(file))
		if err != nil {
			return nil, classify(err)
		}
		return r, nil
	}

	dir := a.workDir
	if dir == "" {
		dir = "."
	}
	p, err := recipe.Find(dir)
	if errors.Is(err, recipe.ErrRecipeNotFound) {
		r := recipe.Default()
		if a.workDir != "" {
			r.Path = filepath.Join(a.workDir, recipe.FileNameCUE)
		}
		a.logger.Debug("no recipe file, using the default recipe", "dir", dir)
		return r, nil
	}
	if err != nil {
		return nil, classify(err)
	}
	r, err := recipe.Load(p)
	if err != nil {
		return nil, classify(err)
	}
	return r, nil
}

// newRuntime wires an engine, stage builder, ledger and tracer into a
// Bootstrapper. Ledger and tracing failures are logged and skipped.
func (a *App) newRuntime(ctx context.Context, opts runtimeOptions) (*runtime, error) {
	cfg := a.cfg

	engine, err := a.newEngine(cfg.ContainerEngine)
	if err != nil {
		return nil, newServiceError(err, issue.ContainerEngineNotFoundId)
	}
	a.logger.Debug("container engine selected", "engine", engine.Name())

	rt := &runtime{engine: engine}

	shutdown, err := telemetry.SetupTracing(ctx, cfg.Telemetry.OTLPEndpoint, Version)
	if err != nil {
		a.logger.Warn("tracing disabled", "error", err)
	} else {
		rt.closer = append(rt.closer, shutdown)
	}

	cacheDir, err := cfg.ResolvedCacheDir()
	if err != nil {
		return nil, err
	}
	stageCfg := stage.DefaultConfig()
	stageCfg.Apply(
		stage.WithNoCache(opts.noCache),
		stage.WithContextRoot(filepath.Join(cacheDir, "contexts")),
		stage.WithOutput(io.Discard),
	)
	if cfg.UI.Verbose {
		stageCfg.Apply(stage.WithOutput(a.stderr))
	}
	stages := stage.NewBuilder(engine, stageCfg, a.logger)

	bootOpts := []bootstrap.Option{
		bootstrap.WithStdio(a.stdin, a.stdout, a.stderr),
		bootstrap.WithStopTimeout(cfg.Run.StopTimeout),
		bootstrap.WithKeepContainer(cfg.Run.KeepContainer),
		bootstrap.WithRunEnv(opts.runEnv),
		bootstrap.WithInteractive(opts.interactive),
		bootstrap.WithTTY(opts.interactive),
	}
	if cfg.Ledger.Enabled {
		if l, err := a.openLedger(); err != nil {
			a.logger.Warn("ledger unavailable", "error", err)
		} else {
			bootOpts = append(bootOpts, bootstrap.WithLedger(l))
			rt.closer = append(rt.closer, func(context.Context) error { return l.Close() })
		}
	}

	rt.boot = bootstrap.New(engine, stages, a.logger, bootOpts...)
	return rt, nil
}

func (a *App) openLedger() (*ledger.Ledger, error) {
	p, err := a.cfg.LedgerPath()
	if err != nil {
		return nil, err
	}
	return ledger.Open(p)
}

// close releases the ledger and flushes spans. It runs after the command's
// context may have been cancelled.
func (rt *runtime) close(ctx context.Context, logger *log.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	for i := len(rt.closer) - 1; i >= 0; i-- {
		if err := rt.closer[i](ctx); err != nil {
			logger.Warn("shutdown", "error", err)
		}
	}
}

// parseEnvFlags turns repeated KEY=VALUE flags into a map.
func parseEnvFlags(values []string) (map[string]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	env := make(map[string]string, len(values))
	for _, kv := range values {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" || strings.ContainsAny(k, " \t\n") {
			return nil, fmt.Errorf("invalid environment variable %q: expected KEY=VALUE", kv)
		}
		env[k] = v
	}
	return env, nil
}
