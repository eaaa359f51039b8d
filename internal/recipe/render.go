// SPDX-License-Identifier: MPL-2.0

package recipe

import (
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"strings"

	"launchpad-cli/internal/manifest"
)

var plainEnvValue = regexp.MustCompile(`^[A-Za-z0-9_./:,+@%=-]+$`)

// Render returns the single-file Dockerfile equivalent to the staged build,
// with the source tree as build context. The output is deterministic.
func Render(r *Recipe, m *manifest.Manifest) string {
	var sb strings.Builder
	sb.WriteString("# syntax=docker/dockerfile:1\n")
	fmt.Fprintf(&sb, "# Generated by launchpad from %s. Do not edit.\n", displayPath(r))
	writeDependencies(&sb, r, r.BaseImage, m)
	sb.WriteString("\n")
	writeApplication(&sb, r, "")
	return sb.String()
}

// RenderDependencies returns the Dockerfile of the dependencies stage. Its
// build context holds the manifest files at their paths relative to the
// source tree.
func RenderDependencies(r *Recipe, from string, m *manifest.Manifest) string {
	var sb strings.Builder
	writeDependencies(&sb, r, from, m)
	return sb.String()
}

// RenderApplication returns the Dockerfile of the application stage built
// FROM the dependencies stage image.
func RenderApplication(r *Recipe, from string) string {
	var sb strings.Builder
	writeApplication(&sb, r, from)
	return sb.String()
}

func writeDependencies(sb *strings.Builder, r *Recipe, from string, m *manifest.Manifest) {
	fmt.Fprintf(sb, "FROM %s\n", from)
	fmt.Fprintf(sb, "WORKDIR %s\n", r.WorkDir)
	for _, kv := range r.ImageEnv() {
		fmt.Fprintf(sb, "ENV %s=%s\n", kv[0], quoteEnvValue(kv[1]))
	}

	if m == nil {
		return
	}
	manifestDir := r.ManifestDir()
	for _, f := range m.Files() {
		rel := path.Join(manifestDir, f.Path)
		sb.WriteString(copyInstruction(rel, "./"+rel))
	}
	if !r.Installer.SkipUpgrade {
		fmt.Fprintf(sb, "RUN %s\n", r.Installer.Upgrade.JSON())
	}
	if args := m.InstallArgs(manifestDir); len(args) > 0 {
		fmt.Fprintf(sb, "RUN %s\n", r.Installer.Install.With(args...).JSON())
	}
}

func writeApplication(sb *strings.Builder, r *Recipe, from string) {
	if from != "" {
		fmt.Fprintf(sb, "FROM %s\n", from)
	}
	sb.WriteString("COPY . .\n")
	fmt.Fprintf(sb, "CMD %s\n", r.Entrypoint.JSON())
}

func copyInstruction(src, dst string) string {
	if !strings.ContainsAny(src+dst, " \t\"'\\") {
		return fmt.Sprintf("COPY %s %s\n", src, dst)
	}
	data, _ := json.Marshal([]string{src, dst})
	return fmt.Sprintf("COPY %s\n", strings.Replace(string(data), `","`, `", "`, 1))
}

// quoteEnvValue double-quotes v unless it is a plain word, so the Dockerfile
// parser neither splits it nor substitutes variables in it.
func quoteEnvValue(v string) string {
	if plainEnvValue.MatchString(v) {
		return v
	}
	var sb strings.Builder
	sb.WriteByte('"')
	for _, c := range v {
		switch c {
		case '"', '\\', '$':
			sb.WriteByte('\\')
		}
		sb.WriteRune(c)
	}
	sb.WriteByte('"')
	return sb.String()
}

func displayPath(r *Recipe) string {
	if r.Path == "" {
		return "the default recipe"
	}
	return path.Base(strings.ReplaceAll(r.Path, `\`, "/"))
}
