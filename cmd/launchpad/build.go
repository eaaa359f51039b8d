// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"launchpad-cli/internal/bootstrap"
)

type (
	buildFlags struct {
		file    string
		noCache bool
	}

	runFlags struct {
		buildFlags
		env         []string
		interactive bool
	}
)

func (f *buildFlags) register(cmd *cobra.Command, withNoCache bool) {
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "recipe file (default: launchpad.cue or launchpad.toml in the current directory)")
	if withNoCache {
		cmd.Flags().BoolVar(&f.noCache, "no-cache", false, "rebuild every stage")
	}
}

func (f *runFlags) register(cmd *cobra.Command, withNoCache bool) {
	f.buildFlags.register(cmd, withNoCache)
	cmd.Flags().StringArrayVarP(&f.env, "env", "e", nil, "set an entrypoint environment variable (KEY=VALUE, repeatable)")
	cmd.Flags().BoolVarP(&f.interactive, "interactive", "i", false, "attach stdin and a TTY to the entrypoint")
}

func newBuildCommand(app *App) *cobra.Command {
	var flags buildFlags
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the environment image",
		Long: `Build the environment image: select the base image, install the
dependency manifest and copy the source tree. Stages whose inputs did not
change are reused.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.build(cmd.Context(), flags)
		},
	}
	flags.register(cmd, true)
	return cmd
}

func newRunCommand(app *App) *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the entrypoint, building first if needed",
		Long: `Run the entrypoint in a new container and exit with its exit code.
Stages that are already built are reused, so run only builds what is
missing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.up(cmd.Context(), flags)
		},
	}
	flags.register(cmd, false)
	return cmd
}

func newUpCommand(app *App) *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "up",
		Short: "Build the environment and run the entrypoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.up(cmd.Context(), flags)
		},
	}
	flags.register(cmd, true)
	return cmd
}

func (a *App) build(ctx context.Context, flags buildFlags) error {
	r, err := a.loadRecipe(flags.file)
	if err != nil {
		return failed(err)
	}
	rt, err := a.newRuntime(ctx, runtimeOptions{noCache: flags.noCache})
	if err != nil {
		return failed(err)
	}
	defer rt.close(ctx, a.logger)

	env := rt.boot.NewEnvironment(ctx, r)
	if err := rt.boot.Build(ctx, env); err != nil {
		return failed(classify(err))
	}
	a.printBuilt(env)
	return nil
}

func (a *App) up(ctx context.Context, flags runFlags) error {
	runEnv, err := parseEnvFlags(flags.env)
	if err != nil {
		return failed(err)
	}
	r, err := a.loadRecipe(flags.file)
	if err != nil {
		return failed(err)
	}
	rt, err := a.newRuntime(ctx, runtimeOptions{
		noCache:     flags.noCache,
		runEnv:      runEnv,
		interactive: flags.interactive,
	})
	if err != nil {
		return failed(err)
	}
	defer rt.close(ctx, a.logger)

	env := rt.boot.NewEnvironment(ctx, r)
	if err := rt.boot.Build(ctx, env); err != nil {
		return failed(classify(err))
	}
	a.printBuilt(env)

	code, err := rt.boot.Run(ctx, env)
	if err != nil {
		return failed(classify(err))
	}
	a.logger.Debug("entrypoint exited", "environment", env.ID, "exit_code", code)
	if !code.IsSuccess() {
		return entrypointExited(code)
	}
	return nil
}

func (a *App) printBuilt(env *bootstrap.Environment) {
	status := "built"
	if env.DepsCached && env.AppCached {
		status = "up to date"
	}
	fmt.Fprintf(a.stderr, "%s %s %s\n", SuccessStyle.Render("✓"), CmdStyle.Render(env.AppImage.String()), SubtitleStyle.Render(status))
}
