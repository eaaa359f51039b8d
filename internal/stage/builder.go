// SPDX-License-Identifier: MPL-2.0

package stage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"maps"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/log"

	"launchpad-cli/internal/container"
	"launchpad-cli/internal/manifest"
	"launchpad-cli/internal/recipe"
)

const (
	// KindDependencies names the dependencies stage.
	KindDependencies Kind = "deps"
	// KindApplication names the application stage.
	KindApplication Kind = "app"

	// LabelRecipe carries the recipe name on stage images.
	LabelRecipe = "org.launchpad.recipe"
	// LabelStage carries the stage kind on stage images.
	LabelStage = "org.launchpad.stage"

	dockerfileName = "Dockerfile"
	hashLength     = 12
)

type (
	// Kind identifies a stage.
	Kind string

	// Builder builds stage images with a container engine.
	Builder struct {
		engine container.Engine
		config *Config
		logger *log.Logger
	}

	// Result describes a built or reused stage image.
	Result struct {
		Kind Kind
		Tag  container.ImageTag
		// Cached is true when the tag already existed and no build ran.
		Cached bool
		// Dockerfile is the stage Dockerfile that produced (or would produce) Tag.
		Dockerfile string
	}
)

// NewBuilder creates a Builder. A nil cfg uses DefaultConfig and a nil
// logger discards log output.
func NewBuilder(engine container.Engine, cfg *Config, logger *log.Logger) *Builder {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Builder{engine: engine, config: cfg, logger: logger}
}

// Config returns the builder's configuration.
func (b *Builder) Config() *Config {
	return b.config
}

// DependenciesTag returns the tag of the dependencies stage for r and m.
// The hash covers the base image, the rendered stage (workdir, environment,
// installer) and the manifest files. baseID is the engine's ID for the base
// image; when empty the image reference stands in for it, so a re-pulled
// base only invalidates the stage when its ID is known.
func (b *Builder) DependenciesTag(r *recipe.Recipe, baseID string, m *manifest.Manifest) container.ImageTag {
	base := baseID
	if base == "" {
		base = r.BaseImage
	}
	return b.tag(r, KindDependencies, base, recipe.RenderDependencies(r, r.BaseImage, m), m.Digest())
}

// ApplicationTag returns the tag of the application stage built on deps.
func (b *Builder) ApplicationTag(r *recipe.Recipe, deps container.ImageTag, src *Source) container.ImageTag {
	return b.tag(r, KindApplication, string(deps), recipe.RenderApplication(r, string(deps)), src.Digest())
}

// Dependencies builds the dependencies stage unless its tag already exists.
// baseID is passed through to DependenciesTag.
func (b *Builder) Dependencies(ctx context.Context, r *recipe.Recipe, baseID string, m *manifest.Manifest) (*Result, error) {
	res := &Result{
		Kind:       KindDependencies,
		Tag:        b.DependenciesTag(r, baseID, m),
		Dockerfile: recipe.RenderDependencies(r, r.BaseImage, m),
	}
	if b.reuse(ctx, res) {
		return res, nil
	}

	manifestDir := r.ManifestDir()
	err := b.build(ctx, r, res, func(dir string) error {
		for _, f := range m.Files() {
			dst := filepath.Join(dir, filepath.FromSlash(path.Join(manifestDir, f.Path)))
			if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
				return fmt.Errorf("failed to create manifest directory: %w", err)
			}
			if err := os.WriteFile(dst, f.Data, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", f.Path, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Application builds the application stage FROM deps unless its tag already
// exists. src is copied verbatim into the build context.
func (b *Builder) Application(ctx context.Context, r *recipe.Recipe, deps container.ImageTag, src *Source) (*Result, error) {
	res := &Result{
		Kind:       KindApplication,
		Tag:        b.ApplicationTag(r, deps, src),
		Dockerfile: recipe.RenderApplication(r, string(deps)),
	}
	if b.reuse(ctx, res) {
		return res, nil
	}

	if err := b.build(ctx, r, res, src.Materialize); err != nil {
		return nil, err
	}
	return res, nil
}

// reuse reports whether res.Tag exists and may be used as is.
func (b *Builder) reuse(ctx context.Context, res *Result) bool {
	if b.config.NoCache {
		return false
	}
	exists, err := b.engine.ImageExists(ctx, res.Tag)
	if err != nil {
		b.logger.Debug("image lookup failed, building", "tag", res.Tag, "error", err)
		return false
	}
	if exists {
		b.logger.Info("stage is up to date", "stage", res.Kind, "tag", res.Tag)
		res.Cached = true
	}
	return exists
}

// build prepares a private build context, fills it and runs the engine build.
func (b *Builder) build(ctx context.Context, r *recipe.Recipe, res *Result, fill func(dir string) error) error {
	ws, err := newWorkspace(b.config.ContextRoot)
	if err != nil {
		return err
	}
	defer ws.cleanup()

	if err := fill(ws.contextDir); err != nil {
		return fmt.Errorf("failed to prepare %s build context: %w", res.Kind, err)
	}
	if err := os.WriteFile(ws.dockerfile, []byte(res.Dockerfile), 0o644); err != nil {
		return fmt.Errorf("failed to write Dockerfile: %w", err)
	}

	labels := maps.Clone(b.config.Labels)
	if labels == nil {
		labels = make(map[string]string)
	}
	labels[LabelRecipe] = r.Name
	labels[LabelStage] = string(res.Kind)

	out := b.config.Output
	if out == nil {
		out = io.Discard
	}

	b.logger.Info("building stage", "stage", res.Kind, "tag", res.Tag)
	return b.engine.Build(ctx, container.BuildOptions{
		ContextDir: ws.contextDir,
		Dockerfile: ws.dockerfile,
		Tag:        res.Tag,
		Labels:     labels,
		NoCache:    b.config.NoCache,
		Stdout:     out,
		Stderr:     out,
	})
}

func (b *Builder) tag(r *recipe.Recipe, kind Kind, parts ...string) container.ImageTag {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00", kind)
	for _, p := range parts {
		fmt.Fprintf(h, "%d\x00%s", len(p), p)
	}
	sum := hex.EncodeToString(h.Sum(nil))[:hashLength]

	tag := fmt.Sprintf("%s:%s-%s", r.ImageRepository(), kind, sum)
	if b.config.TagSuffix != "" {
		tag += "-" + b.config.TagSuffix
	}
	return container.ImageTag(tag)
}
