// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"fmt"

	"github.com/pelletier/go-toml/v2"
)

type pyprojectDoc struct {
	Project struct {
		Name         string   `toml:"name"`
		Dependencies []string `toml:"dependencies"`
	} `toml:"project"`
}

// parsePyProject reads [project].dependencies. The requirements are installed
// inline, so installing never needs the project sources.
func parsePyProject(name string, data []byte) (*Manifest, error) {
	var doc pyprojectDoc
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}

	m := &Manifest{
		Source: name,
		Format: FormatPyProject,
	}
	seen := make(map[string]Requirement)
	for i, raw := range doc.Project.Dependencies {
		req, err := ParseRequirement(name, 0, raw)
		if err != nil {
			return nil, fmt.Errorf("dependency %d: %w", i+1, err)
		}
		key := req.Key()
		if prev, ok := seen[key]; ok && key != "" && prev.Marker == "" && req.Marker == "" &&
			(prev.Specifier != req.Specifier || prev.URL != req.URL) {
			return nil, fmt.Errorf("%s: %s (%q vs %q): %w", name, req.Name, prev.Raw, req.Raw, ErrDuplicateRequirement)
		}
		seen[key] = req
		m.Requirements = append(m.Requirements, req)
	}

	return m, nil
}
