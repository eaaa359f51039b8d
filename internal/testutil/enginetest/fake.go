// SPDX-License-Identifier: MPL-2.0

package enginetest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"launchpad-cli/internal/container"
	"launchpad-cli/pkg/types"
)

// Operation names recorded in Call.Op.
const (
	OpImageExists = "image-exists"
	OpPull        = "pull"
	OpBuild       = "build"
	OpRun         = "run"
	OpInspect     = "inspect"
	OpRemove      = "remove"
)

var _ container.Engine = (*Fake)(nil)

type (
	// Call is one recorded engine operation.
	Call struct {
		Op    string
		Image container.ImageTag
		// Dockerfile is the Dockerfile content of a build.
		Dockerfile string
		// ContextFiles are the slash-separated regular files in a build context.
		ContextFiles []string
		// ContextData maps ContextFiles to their contents.
		ContextData map[string]string
		Build       container.BuildOptions
		Run         container.RunOptions
	}

	// Fake is a container.Engine that keeps images in memory. A successful
	// Build or Pull adds the image; Run reports ExitCode.
	Fake struct {
		mu     sync.Mutex
		calls  []Call
		images map[container.ImageTag]bool
		ids    map[container.ImageTag]string

		// EngineName is returned by Name. Defaults to "fake".
		EngineName string
		// Unavailable makes Available report false.
		Unavailable bool
		// PullErr fails every Pull.
		PullErr error
		// BuildErr, when set, decides whether a build fails.
		BuildErr func(opts container.BuildOptions) error
		// ExitCode is the exit status of every Run.
		ExitCode types.ExitCode
		// RunErr is reported as RunResult.Error.
		RunErr error
		// WhileRunning is called after Started and before Run returns.
		WhileRunning func(ctx context.Context, opts container.RunOptions)
	}
)

// New returns a Fake holding the given images.
func New(images ...container.ImageTag) *Fake {
	f := &Fake{
		images: make(map[container.ImageTag]bool),
		ids:    make(map[container.ImageTag]string),
	}
	for _, img := range images {
		f.images[img] = true
	}
	return f
}

// Calls returns a copy of the recorded calls.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// Ops returns the recorded operation names in order.
func (f *Fake) Ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ops := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		ops = append(ops, c.Op)
	}
	return ops
}

// Builds returns the recorded build calls in order.
func (f *Fake) Builds() []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Op == OpBuild {
			out = append(out, c)
		}
	}
	return out
}

// HasImage reports whether image is present.
func (f *Fake) HasImage(image container.ImageTag) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.images[image]
}

func (f *Fake) record(c Call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

// Name returns EngineName or "fake".
func (f *Fake) Name() string {
	if f.EngineName == "" {
		return "fake"
	}
	return f.EngineName
}

// Available reports !Unavailable.
func (f *Fake) Available() bool { return !f.Unavailable }

// Version returns a fixed version.
func (f *Fake) Version(context.Context) (string, error) { return "0.0.0-fake", nil }

// ImageExists reports whether image was added.
func (f *Fake) ImageExists(ctx context.Context, image container.ImageTag) (bool, error) {
	f.record(Call{Op: OpImageExists, Image: image})
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return f.HasImage(image), nil
}

// Pull adds the image unless PullErr is set.
func (f *Fake) Pull(ctx context.Context, opts container.PullOptions) error {
	f.record(Call{Op: OpPull, Image: opts.Image})
	if err := ctx.Err(); err != nil {
		return err
	}
	if f.PullErr != nil {
		return f.PullErr
	}
	f.mu.Lock()
	f.images[opts.Image] = true
	f.mu.Unlock()
	return nil
}

// Build snapshots the Dockerfile and context, then tags opts.Tag unless BuildErr fails it.
func (f *Fake) Build(ctx context.Context, opts container.BuildOptions) error {
	call := Call{Op: OpBuild, Image: opts.Tag, Build: opts}
	dockerfile := opts.Dockerfile
	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}
	if !filepath.IsAbs(dockerfile) {
		dockerfile = filepath.Join(opts.ContextDir, dockerfile)
	}
	if data, err := os.ReadFile(dockerfile); err == nil {
		call.Dockerfile = string(data)
	}
	if opts.ContextDir != "" {
		files, data, err := readContext(opts.ContextDir)
		if err != nil {
			f.record(call)
			return fmt.Errorf("read build context: %w", err)
		}
		call.ContextFiles = files
		call.ContextData = data
	}
	f.record(call)

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := opts.Validate(); err != nil {
		return err
	}
	if f.BuildErr != nil {
		if err := f.BuildErr(opts); err != nil {
			return err
		}
	}
	if opts.Tag != "" {
		f.mu.Lock()
		f.images[opts.Tag] = true
		f.mu.Unlock()
	}
	return nil
}

// Run reports ExitCode for a present image.
func (f *Fake) Run(ctx context.Context, opts container.RunOptions) (*container.RunResult, error) {
	f.record(Call{Op: OpRun, Image: opts.Image, Run: opts})
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if !f.HasImage(opts.Image) {
		return &container.RunResult{
			ExitCode: types.ExitEngineError,
			Error:    fmt.Errorf("unable to find image %q locally", opts.Image),
		}, nil
	}
	if opts.Started != nil {
		opts.Started()
	}
	if f.WhileRunning != nil {
		f.WhileRunning(ctx, opts)
	}
	return &container.RunResult{ExitCode: f.ExitCode, Error: f.RunErr}, nil
}

// SetImageID makes InspectImage report id for image, as after a re-pull.
func (f *Fake) SetImageID(image container.ImageTag, id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids[image] = id
}

// InspectImage returns the ID set with SetImageID, or a fake ID derived
// from the tag.
func (f *Fake) InspectImage(_ context.Context, image container.ImageTag) (string, error) {
	f.record(Call{Op: OpInspect, Image: image})
	if !f.HasImage(image) {
		return "", errors.New("no such image: " + string(image))
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.ids[image]; ok {
		return id, nil
	}
	return "sha256:fake-" + string(image), nil
}

// RemoveImage forgets image.
func (f *Fake) RemoveImage(_ context.Context, image container.ImageTag, _ bool) error {
	f.record(Call{Op: OpRemove, Image: image})
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.images[image] {
		return errors.New("no such image: " + string(image))
	}
	delete(f.images, image)
	return nil
}

func readContext(dir string) ([]string, map[string]string, error) {
	var files []string
	data := make(map[string]string)
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || !d.Type().IsRegular() {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		files = append(files, rel)
		data[rel] = string(content)
		return nil
	})
	return files, data, err
}
