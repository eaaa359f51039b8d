// SPDX-License-Identifier: MPL-2.0

package recipe

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"path"
	"path/filepath"
	"slices"

	"launchpad-cli/internal/manifest"
	"launchpad-cli/pkg/types"
)

const (
	// FileNameCUE is the preferred recipe file name.
	FileNameCUE = "launchpad.cue"
	// FileNameTOML is the alternative recipe file name.
	FileNameTOML = "launchpad.toml"

	// ImageRepositoryPrefix prefixes every image launchpad tags.
	ImageRepositoryPrefix = "launchpad/"

	// UnbufferedEnvVar is set to "1" in the image when Recipe.Unbuffered is true.
	UnbufferedEnvVar = "PYTHONUNBUFFERED"
)

type (
	// Installer holds the commands that install the manifest. Install receives
	// the manifest's install arguments appended.
	Installer struct {
		Upgrade     Command `json:"upgrade"`
		Install     Command `json:"install"`
		SkipUpgrade bool    `json:"skip_upgrade"`
	}

	// Recipe describes one environment. Manifest is slash-separated and
	// relative to Source; Source is relative to the recipe file.
	Recipe struct {
		Name       string            `json:"name"`
		BaseImage  string            `json:"base_image"`
		WorkDir    string            `json:"workdir"`
		Unbuffered bool              `json:"unbuffered"`
		Env        map[string]string `json:"env"`
		Manifest   string            `json:"manifest"`
		Installer  Installer         `json:"installer"`
		Source     string            `json:"source"`
		Ignore     []string          `json:"ignore"`
		Entrypoint Command           `json:"entrypoint"`
		RunEnv     map[string]string `json:"run_env"`

		// Path is the file the recipe was read from. Empty for Default().
		Path string `json:"-"`
	}
)

// Default returns the built-in recipe: python:3.11-slim, /app, unbuffered
// output, requirements.txt and "python bot.py".
func Default() *Recipe {
	return &Recipe{
		Name:       "app",
		BaseImage:  "python:3.11-slim",
		WorkDir:    "/app",
		Unbuffered: true,
		Env:        map[string]string{},
		Manifest:   manifest.DefaultFileName,
		Installer: Installer{
			Upgrade: Command{"python", "-m", "pip", "install", "--no-cache-dir", "--upgrade", "pip"},
			Install: Command{"python", "-m", "pip", "install", "--no-cache-dir"},
		},
		Source:     ".",
		Ignore:     []string{},
		Entrypoint: Command{"python", "bot.py"},
		RunEnv:     map[string]string{},
	}
}

// Dir is the directory relative paths in the recipe resolve against.
func (r *Recipe) Dir() string {
	if r.Path == "" {
		return "."
	}
	return filepath.Dir(r.Path)
}

// SourceDir is the host directory holding the application file set.
func (r *Recipe) SourceDir() string {
	return string(types.FilesystemPath(filepath.FromSlash(r.Source)).Join(types.FilesystemPath(r.Dir())))
}

// ManifestPath is the host path of the dependency manifest.
func (r *Recipe) ManifestPath() string {
	return filepath.Join(r.SourceDir(), filepath.FromSlash(r.Manifest))
}

// ManifestDir is the manifest's directory relative to the working directory
// inside the image ("." for a manifest at the source root).
func (r *Recipe) ManifestDir() string {
	return path.Dir(path.Clean(r.Manifest))
}

// ImageRepository is the repository the recipe's stage images are tagged in.
func (r *Recipe) ImageRepository() string {
	return ImageRepositoryPrefix + r.Name
}

// ImageEnv returns the build-time environment in render order: the
// unbuffered variable first, then Env sorted by key.
func (r *Recipe) ImageEnv() [][2]string {
	out := make([][2]string, 0, len(r.Env)+1)
	if r.Unbuffered {
		out = append(out, [2]string{UnbufferedEnvVar, "1"})
	}
	keys := make([]string, 0, len(r.Env))
	for k := range r.Env {
		if r.Unbuffered && k == UnbufferedEnvVar {
			continue
		}
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		out = append(out, [2]string{k, r.Env[k]})
	}
	return out
}

// Digest is a SHA-256 over the recipe's fields. Path does not participate.
func (r *Recipe) Digest() string {
	// Maps marshal with sorted keys, so the encoding is stable.
	data, err := json.Marshal(r)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Fingerprint identifies the entrypoint. Two builds of the same recipe start
// the same command and so share a fingerprint.
func (r *Recipe) Fingerprint() string {
	sum := sha256.Sum256([]byte(r.Entrypoint.JSON()))
	return hex.EncodeToString(sum[:])[:16]
}
