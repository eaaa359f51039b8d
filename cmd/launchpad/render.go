// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"launchpad-cli/internal/bootstrap"
	"launchpad-cli/internal/issue"
	"launchpad-cli/internal/manifest"
	"launchpad-cli/internal/recipe"
)

func newRenderCommand(app *App) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Print the Dockerfile generated for the recipe",
		Long: `Print the single-file Dockerfile equivalent of the recipe. The output
is deterministic: the same recipe and manifest always render the same text.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			r, m, err := app.loadRecipeAndManifest(file)
			if err != nil {
				return err
			}
			fmt.Fprint(app.stdout, recipe.Render(r, m))
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "recipe file")
	return cmd
}

func newValidateCommand(app *App) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the recipe, manifest and source without an engine",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			r, m, err := app.loadRecipeAndManifest(file)
			if err != nil {
				return failed(err)
			}
			if info, statErr := os.Stat(r.SourceDir()); statErr != nil || !info.IsDir() {
				err := fmt.Errorf("%w: %s", bootstrap.ErrSourceMissing, r.SourceDir())
				return failed(newServiceError(err, issue.SourceMissingId))
			}

			name := r.Path
			if name == "" {
				name = "default recipe"
			}
			fmt.Fprintf(app.stdout, "%s %s is valid\n", SuccessStyle.Render("✓"), CmdStyle.Render(name))
			fmt.Fprintf(app.stdout, "  %s %s\n", SubtitleStyle.Render("base image:  "), r.BaseImage)
			fmt.Fprintf(app.stdout, "  %s %s\n", SubtitleStyle.Render("entrypoint:  "), r.Entrypoint)
			fmt.Fprintf(app.stdout, "  %s %d from %s\n", SubtitleStyle.Render("requirements:"), len(m.Requirements), r.Manifest)
			if m.Empty() {
				fmt.Fprintf(app.stdout, "  %s\n", WarningStyle.Render("no packages declared; only the base image's Python will be available"))
			} else {
				fmt.Fprintf(app.stdout, "  %s %s\n", SubtitleStyle.Render("packages:    "), strings.Join(m.Names(), ", "))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "recipe file")
	return cmd
}

func (a *App) loadRecipeAndManifest(file string) (*recipe.Recipe, *manifest.Manifest, error) {
	r, err := a.loadRecipe(file)
	if err != nil {
		return nil, nil, err
	}
	m, err := manifest.Load(r.ManifestPath())
	if err != nil {
		return nil, nil, classify(err)
	}
	return r, m, nil
}
