// SPDX-License-Identifier: MPL-2.0

package recipe

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// GenerateCUE renders r as a launchpad.cue document.
func GenerateCUE(r *Recipe) string {
	var sb strings.Builder

	sb.WriteString("// Launchpad recipe.\n")
	sb.WriteString("// Build with 'launchpad build', start with 'launchpad run'.\n\n")

	fmt.Fprintf(&sb, "name:       %q\n", r.Name)
	fmt.Fprintf(&sb, "base_image: %q\n", r.BaseImage)
	fmt.Fprintf(&sb, "workdir:    %q\n", r.WorkDir)
	fmt.Fprintf(&sb, "unbuffered: %v\n", r.Unbuffered)
	fmt.Fprintf(&sb, "manifest:   %q\n", r.Manifest)
	fmt.Fprintf(&sb, "source:     %q\n", r.Source)
	fmt.Fprintf(&sb, "entrypoint: %s\n", cueList(r.Entrypoint))

	if len(r.Env) > 0 {
		sb.WriteString("\nenv: {\n")
		writeCUEMap(&sb, r.Env)
		sb.WriteString("}\n")
	}

	if len(r.Ignore) > 0 {
		fmt.Fprintf(&sb, "\nignore: %s\n", cueList(r.Ignore))
	}

	def := Default().Installer
	if !slices.Equal(r.Installer.Upgrade, def.Upgrade) || !slices.Equal(r.Installer.Install, def.Install) || r.Installer.SkipUpgrade {
		sb.WriteString("\ninstaller: {\n")
		fmt.Fprintf(&sb, "\tupgrade:      %s\n", cueList(r.Installer.Upgrade))
		fmt.Fprintf(&sb, "\tinstall:      %s\n", cueList(r.Installer.Install))
		fmt.Fprintf(&sb, "\tskip_upgrade: %v\n", r.Installer.SkipUpgrade)
		sb.WriteString("}\n")
	}

	sb.WriteString("\n// Variables passed to the process when it starts.\n")
	if len(r.RunEnv) == 0 {
		sb.WriteString("run_env: {}\n")
	} else {
		sb.WriteString("run_env: {\n")
		writeCUEMap(&sb, r.RunEnv)
		sb.WriteString("}\n")
	}

	return sb.String()
}

func cueList[S ~[]string](items S) string {
	quoted := make([]string, 0, len(items))
	for _, s := range items {
		quoted = append(quoted, strconv.Quote(s))
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

func writeCUEMap(sb *strings.Builder, m map[string]string) {
	for _, k := range slices.Sorted(maps.Keys(m)) {
		fmt.Fprintf(sb, "\t%q: %q\n", k, m[k])
	}
}
