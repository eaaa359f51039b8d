// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"launchpad-cli/internal/issue"
	"launchpad-cli/pkg/types"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"
)

// newRootCommand builds the command tree around app.
func newRootCommand(app *App) *cobra.Command {
	root := &cobra.Command{
		Use:   "launchpad",
		Short: "Build and run a Python bot in a container",
		Long: TitleStyle.Render("launchpad") + SubtitleStyle.Render(" - a runtime bootstrapper for Python bots") + `

launchpad turns a project directory into a running container: it selects a
pinned base image, sets the working directory, enables unbuffered output,
installs the dependency manifest, copies the source tree and starts the
entrypoint (by default ` + "`python bot.py`" + `), passing its exit code through.

A project needs no recipe; launchpad.cue or launchpad.toml override the
defaults.

` + SubtitleStyle.Render("Examples:") + `
  launchpad up                 Build and run the project in this directory
  launchpad build --no-cache   Rebuild every stage
  launchpad render             Print the generated Dockerfile
  launchpad history            Show recent environments`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.loadConfig(cmd.Context())
		},
	}

	root.PersistentFlags().BoolVarP(&app.verbose, "verbose", "v", false, "enable verbose output")
	root.PersistentFlags().StringVar(&app.cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/launchpad/config.cue)")
	root.PersistentFlags().StringVar(&app.engine, "engine", "", "container engine to prefer (docker or podman)")

	root.AddCommand(
		newBuildCommand(app),
		newRunCommand(app),
		newUpCommand(app),
		newRenderCommand(app),
		newValidateCommand(app),
		newInitCommand(app),
		newHistoryCommand(app),
		newConfigCommand(app),
		newVersionCommand(app),
	)
	return root
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute runs the CLI and exits with the resulting code. This is called by
// main.main().
func Execute() {
	app := NewApp(Dependencies{})
	err := fang.Execute(
		context.Background(),
		newRootCommand(app),
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt, syscall.SIGTERM),
		fang.WithErrorHandler(func(w io.Writer, _ fang.Styles, err error) {
			printError(w, err, app.verbose || (app.cfg != nil && app.cfg.UI.Verbose))
		}),
	)
	os.Exit(int(exitCode(err)))
}

// exitCode maps a command error to the process exit status.
func exitCode(err error) types.ExitCode {
	if err == nil {
		return types.ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return types.ExitFailure
}

// printError writes err for the user. Entrypoint exit codes print nothing;
// in verbose mode the matching issue catalogue entry follows the error.
func printError(w io.Writer, err error, verbose bool) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Err == nil {
		return
	}
	fmt.Fprintln(w, ErrorStyle.Render("Error: ")+formatErrorForDisplay(err, verbose))
	if verbose {
		var svcErr *ServiceError
		if errors.As(err, &svcErr) {
			renderServiceError(w, svcErr)
		}
	}
}

// formatErrorForDisplay formats an error for user display.
// If the error is an ActionableError, it uses the Format method.
// In verbose mode, shows the full error chain.
func formatErrorForDisplay(err error, verboseMode bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verboseMode)
	}
	return err.Error()
}

func newVersionCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the launchpad version",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			fmt.Fprintf(app.stdout, "launchpad %s\n", getVersionString())
			return nil
		},
	}
}
