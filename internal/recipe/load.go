// SPDX-License-Identifier: MPL-2.0

package recipe

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"github.com/pelletier/go-toml/v2"

	"launchpad-cli/internal/cueutil"
)

//go:embed recipe_schema.cue
var recipeSchema string

// ErrRecipeNotFound is returned when no recipe file exists where one was expected.
var ErrRecipeNotFound = errors.New("recipe not found")

// rawRecipe is the decoded document before commands are normalized.
type rawRecipe struct {
	Name       string            `json:"name"`
	BaseImage  string            `json:"base_image"`
	WorkDir    string            `json:"workdir"`
	Unbuffered bool              `json:"unbuffered"`
	Env        map[string]string `json:"env"`
	Manifest   string            `json:"manifest"`
	Installer  struct {
		Upgrade     any  `json:"upgrade"`
		Install     any  `json:"install"`
		SkipUpgrade bool `json:"skip_upgrade"`
	} `json:"installer"`
	Source     string            `json:"source"`
	Ignore     []string          `json:"ignore"`
	Entrypoint any               `json:"entrypoint"`
	RunEnv     map[string]string `json:"run_env"`
}

// Schema returns the embedded CUE schema.
func Schema() string { return recipeSchema }

// Find returns the recipe file in dir. launchpad.cue wins over launchpad.toml.
func Find(dir string) (string, error) {
	for _, name := range []string{FileNameCUE, FileNameTOML} {
		p := filepath.Join(dir, name)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: no %s or %s in %s", ErrRecipeNotFound, FileNameCUE, FileNameTOML, dir)
}

// Load reads, decodes and validates the recipe file at p.
func Load(p string) (*Recipe, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrRecipeNotFound, p)
		}
		return nil, fmt.Errorf("read recipe: %w", err)
	}

	r, err := Parse(p, data)
	if err != nil {
		return nil, err
	}
	r.Path = p
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// Parse decodes recipe bytes against the schema. The extension of name picks
// the syntax (.toml is TOML, anything else CUE). The result is not validated
// beyond the schema; call Validate.
func Parse(name string, data []byte) (*Recipe, error) {
	var (
		res *cueutil.Result[rawRecipe]
		err error
	)
	if strings.EqualFold(filepath.Ext(name), ".toml") {
		res, err = parseTOML(name, data)
	} else {
		res, err = cueutil.ParseAndDecodeString[rawRecipe](recipeSchema, data, "#Recipe", cueutil.WithFilename(name))
	}
	if err != nil {
		return nil, err
	}
	return fromRaw(name, &res.Value)
}

func parseTOML(name string, data []byte) (*cueutil.Result[rawRecipe], error) {
	if err := cueutil.CheckFileSize(data, cueutil.DefaultMaxFileSize, name); err != nil {
		return nil, err
	}
	doc := map[string]any{}
	if err := toml.Unmarshal(data, &doc); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return nil, fmt.Errorf("%s:%d:%d: %w", name, row, col, err)
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return cueutil.DecodeValue[rawRecipe](recipeSchema, func(ctx *cue.Context) cue.Value {
		return ctx.Encode(doc)
	}, "#Recipe", cueutil.WithFilename(name))
}

func fromRaw(name string, raw *rawRecipe) (*Recipe, error) {
	var fields []*FieldError
	command := func(field string, v any) Command {
		c, err := CommandFrom(v)
		if err != nil {
			fields = append(fields, &FieldError{Field: field, Err: err})
		}
		return c
	}

	r := &Recipe{
		Name:       raw.Name,
		BaseImage:  raw.BaseImage,
		WorkDir:    raw.WorkDir,
		Unbuffered: raw.Unbuffered,
		Env:        nonNilMap(raw.Env),
		Manifest:   raw.Manifest,
		Installer: Installer{
			Upgrade:     command("installer.upgrade", raw.Installer.Upgrade),
			Install:     command("installer.install", raw.Installer.Install),
			SkipUpgrade: raw.Installer.SkipUpgrade,
		},
		Source:     raw.Source,
		Ignore:     raw.Ignore,
		Entrypoint: command("entrypoint", raw.Entrypoint),
		RunEnv:     nonNilMap(raw.RunEnv),
	}
	if r.Ignore == nil {
		r.Ignore = []string{}
	}
	if len(fields) > 0 {
		return nil, &InvalidRecipeError{Path: name, Fields: fields}
	}
	return r, nil
}

func nonNilMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
