// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"launchpad-cli/internal/manifest"
	"launchpad-cli/internal/recipe"
)

func newInitCommand(app *App) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Write a default launchpad.cue",
		Long: `Write a launchpad.cue holding the default recipe: python:3.11-slim,
workdir /app, unbuffered output, requirements.txt and ` + "`python bot.py`" + `.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			dir := app.workDir
			if len(args) > 0 {
				dir = app.resolve(args[0])
			}
			return app.writeRecipe(dir, force)
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing launchpad.cue")
	return cmd
}

func (a *App) writeRecipe(dir string, force bool) error {
	if dir == "" {
		dir = "."
	}
	filename := filepath.Join(dir, recipe.FileNameCUE)

	if _, err := os.Stat(filename); err == nil && !force {
		return fmt.Errorf("file '%s' already exists. Use --force to overwrite", filename)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(filename, []byte(recipe.GenerateCUE(recipe.Default())), 0o644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	absPath, _ := filepath.Abs(filename)
	fmt.Fprintf(a.stdout, "%s Created %s\n", SuccessStyle.Render("✓"), absPath)
	fmt.Fprintln(a.stdout)
	fmt.Fprintln(a.stdout, SubtitleStyle.Render("Next steps:"))
	fmt.Fprintf(a.stdout, "  1. List your dependencies in %s\n", manifest.DefaultFileName)
	fmt.Fprintln(a.stdout, "  2. Run 'launchpad validate' to check the recipe")
	fmt.Fprintln(a.stdout, "  3. Run 'launchpad up' to build and start bot.py")
	return nil
}
