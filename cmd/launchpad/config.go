// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"launchpad-cli/internal/config"
)

// newConfigCommand creates the `launchpad config` command tree.
func newConfigCommand(app *App) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage launchpad configuration",
		Long: `Manage launchpad configuration.

Configuration is stored in:
  - Linux: ~/.config/launchpad/config.cue
  - macOS: ~/Library/Application Support/launchpad/config.cue
  - Windows: %APPDATA%\launchpad\config.cue

LAUNCHPAD_ENGINE, LAUNCHPAD_CACHE_DIR, LAUNCHPAD_VERBOSE, LAUNCHPAD_LEDGER and
LAUNCHPAD_OTEL_ENDPOINT override the file; command-line flags override both.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			app.showConfig()
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "dump",
		Short: "Output the effective configuration as CUE",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			fmt.Fprint(app.stdout, config.GenerateCUE(app.cfg))
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create the default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			path, err := config.FilePath(app.configDir)
			if err != nil {
				return err
			}
			written, err := config.CreateDefaultConfig(path)
			if err != nil {
				return err
			}
			if !written {
				fmt.Fprintf(app.stdout, "Configuration file already exists: %s\n", path)
				return nil
			}
			fmt.Fprintf(app.stdout, "%s Created %s\n", SuccessStyle.Render("✓"), path)
			return nil
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show the configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if app.cfgPath != "" {
				fmt.Fprintln(app.stdout, app.cfgPath)
				return nil
			}
			path, err := config.FilePath(app.configDir)
			if err != nil {
				return err
			}
			fmt.Fprintln(app.stdout, path)
			return nil
		},
	})

	return cfgCmd
}

func (a *App) showConfig() {
	cfg := a.cfg
	keyStyle := CmdStyle
	valueStyle := SuccessStyle
	out := a.stdout

	fmt.Fprintln(out, TitleStyle.Render("Current Configuration"))
	fmt.Fprintln(out)
	if a.cfgPath != "" {
		fmt.Fprintf(out, "%s: %s\n", keyStyle.Render("Config file"), a.cfgPath)
	} else {
		fmt.Fprintf(out, "%s: %s\n", keyStyle.Render("Config file"), SubtitleStyle.Render("(using defaults)"))
	}
	fmt.Fprintln(out)

	value := func(s string) string {
		if s == "" {
			return SubtitleStyle.Render("(default)")
		}
		return valueStyle.Render(s)
	}

	fmt.Fprintf(out, "%s: %s\n", keyStyle.Render("container_engine"), value(cfg.ContainerEngine.String()))
	fmt.Fprintf(out, "%s: %s\n", keyStyle.Render("cache_dir"), value(cfg.CacheDir.String()))

	ledgerPath, err := cfg.LedgerPath()
	if err != nil {
		ledgerPath = ""
	}
	fmt.Fprintln(out)
	fmt.Fprintf(out, "%s:\n", keyStyle.Render("ledger"))
	fmt.Fprintf(out, "  enabled: %s\n", value(strconv.FormatBool(cfg.Ledger.Enabled)))
	fmt.Fprintf(out, "  path: %s\n", value(ledgerPath))

	fmt.Fprintln(out)
	fmt.Fprintf(out, "%s:\n", keyStyle.Render("run"))
	fmt.Fprintf(out, "  stop_timeout: %s\n", value(cfg.Run.StopTimeout.String()))
	fmt.Fprintf(out, "  keep_container: %s\n", value(strconv.FormatBool(cfg.Run.KeepContainer)))

	fmt.Fprintln(out)
	fmt.Fprintf(out, "%s:\n", keyStyle.Render("ui"))
	fmt.Fprintf(out, "  verbose: %s\n", value(strconv.FormatBool(cfg.UI.Verbose)))

	fmt.Fprintln(out)
	fmt.Fprintf(out, "%s:\n", keyStyle.Render("telemetry"))
	fmt.Fprintf(out, "  otlp_endpoint: %s\n", value(cfg.Telemetry.OTLPEndpoint))
}
