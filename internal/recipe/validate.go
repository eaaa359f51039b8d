// SPDX-License-Identifier: MPL-2.0

package recipe

import (
	"errors"
	"fmt"
	"maps"
	"path"
	"regexp"
	"slices"
	"strings"

	"github.com/distribution/reference"
	"github.com/moby/patternmatcher"
)

var (
	// ErrInvalidRecipe is the sentinel wrapped by every recipe validation failure.
	ErrInvalidRecipe = errors.New("invalid recipe")
	// ErrInvalidName is returned for names that cannot form an image repository.
	ErrInvalidName = errors.New("invalid recipe name")
	// ErrInvalidBaseImage is returned for unparsable base image references.
	ErrInvalidBaseImage = errors.New("invalid base image reference")
	// ErrUnpinnedBaseImage is returned when the base image has no explicit
	// tag or digest, or uses the floating "latest" tag.
	ErrUnpinnedBaseImage = errors.New("base image is not pinned")
	// ErrRelativeWorkDir is returned when workdir is not absolute.
	ErrRelativeWorkDir = errors.New("workdir must be an absolute path")
	// ErrInvalidEnv is returned for bad environment keys or values.
	ErrInvalidEnv = errors.New("invalid environment variable")
	// ErrInvalidManifestPath is returned when the manifest path leaves the source tree.
	ErrInvalidManifestPath = errors.New("invalid manifest path")
	// ErrInvalidSource is returned for an empty source path.
	ErrInvalidSource = errors.New("invalid source path")
	// ErrInvalidIgnorePattern is returned for malformed ignore patterns.
	ErrInvalidIgnorePattern = errors.New("invalid ignore pattern")

	namePattern   = regexp.MustCompile(`^[a-z0-9]+([._-][a-z0-9]+)*$`)
	envKeyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

type (
	// FieldError is a validation failure of one recipe field.
	FieldError struct {
		Field string
		Value string
		Err   error
	}

	// InvalidRecipeError aggregates every field failure of a recipe.
	InvalidRecipeError struct {
		Path   string
		Fields []*FieldError
	}
)

func (e *FieldError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("%s %q: %v", e.Field, e.Value, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

func (e *InvalidRecipeError) Error() string {
	var sb strings.Builder
	sb.WriteString("invalid recipe")
	if e.Path != "" {
		sb.WriteString(" ")
		sb.WriteString(e.Path)
	}
	for _, f := range e.Fields {
		sb.WriteString("\n  - ")
		sb.WriteString(f.Error())
	}
	return sb.String()
}

// Unwrap exposes ErrInvalidRecipe and every field error to errors.Is/As.
func (e *InvalidRecipeError) Unwrap() []error {
	out := make([]error, 0, len(e.Fields)+1)
	out = append(out, ErrInvalidRecipe)
	for _, f := range e.Fields {
		out = append(out, f)
	}
	return out
}

// Validate checks the recipe. All problems are reported together as an
// *InvalidRecipeError.
func (r *Recipe) Validate() error {
	var fields []*FieldError
	add := func(field, value string, err error) {
		fields = append(fields, &FieldError{Field: field, Value: value, Err: err})
	}

	if !namePattern.MatchString(r.Name) {
		add("name", r.Name, ErrInvalidName)
	}
	if err := ValidateBaseImage(r.BaseImage); err != nil {
		add("base_image", r.BaseImage, err)
	}
	if !path.IsAbs(r.WorkDir) {
		add("workdir", r.WorkDir, ErrRelativeWorkDir)
	}
	validateEnv("env", r.Env, add)
	validateEnv("run_env", r.RunEnv, add)

	if err := validateManifestPath(r.Manifest); err != nil {
		add("manifest", r.Manifest, err)
	}
	if strings.TrimSpace(r.Source) == "" {
		add("source", r.Source, ErrInvalidSource)
	}
	if _, err := patternmatcher.New(r.Ignore); err != nil {
		add("ignore", strings.Join(r.Ignore, ","), fmt.Errorf("%w: %v", ErrInvalidIgnorePattern, err))
	}

	if !r.Installer.SkipUpgrade {
		if err := r.Installer.Upgrade.Validate(); err != nil {
			add("installer.upgrade", "", err)
		}
	}
	if err := r.Installer.Install.Validate(); err != nil {
		add("installer.install", "", err)
	}
	if err := r.Entrypoint.Validate(); err != nil {
		add("entrypoint", "", err)
	}

	if len(fields) == 0 {
		return nil
	}
	return &InvalidRecipeError{Path: r.Path, Fields: fields}
}

// ValidateBaseImage checks that ref parses as an image reference and is
// pinned to a tag other than "latest" or to a digest.
func ValidateBaseImage(ref string) error {
	named, err := reference.ParseNormalizedNamed(ref)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBaseImage, err)
	}
	if _, ok := named.(reference.Digested); ok {
		return nil
	}
	tagged, ok := named.(reference.Tagged)
	if !ok {
		return fmt.Errorf("%w: add an explicit tag such as %s:3.11-slim", ErrUnpinnedBaseImage, reference.FamiliarName(named))
	}
	if tagged.Tag() == "latest" {
		return fmt.Errorf("%w: the latest tag moves; use a version tag or digest", ErrUnpinnedBaseImage)
	}
	return nil
}

func validateEnv(field string, env map[string]string, add func(field, value string, err error)) {
	for _, k := range slices.Sorted(maps.Keys(env)) {
		v := env[k]
		switch {
		case !envKeyPattern.MatchString(k):
			add(field, k, fmt.Errorf("%w: key must match %s", ErrInvalidEnv, envKeyPattern))
		case strings.ContainsAny(v, "\n\r\x00"):
			add(field+"."+k, "", fmt.Errorf("%w: value must be a single line", ErrInvalidEnv))
		}
	}
}

func validateManifestPath(p string) error {
	if strings.TrimSpace(p) == "" {
		return fmt.Errorf("%w: must not be empty", ErrInvalidManifestPath)
	}
	if path.IsAbs(p) || strings.Contains(p, `\`) {
		return fmt.Errorf("%w: must be a slash-separated path relative to source", ErrInvalidManifestPath)
	}
	clean := path.Clean(p)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("%w: must stay inside the source tree", ErrInvalidManifestPath)
	}
	return nil
}
