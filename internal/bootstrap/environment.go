// SPDX-License-Identifier: MPL-2.0

package bootstrap

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"launchpad-cli/internal/container"
	"launchpad-cli/internal/lifecycle"
	"launchpad-cli/internal/manifest"
	"launchpad-cli/internal/recipe"
	"launchpad-cli/internal/stage"
	"launchpad-cli/pkg/types"
)

// LabelEnvironment carries the environment ID on the running container.
const LabelEnvironment = "org.launchpad.environment"

var containerNameInvalid = regexp.MustCompile(`[^a-zA-Z0-9_.-]+`)

// Environment is one recipe being built and run. Fields are filled in by the
// steps that produce them.
type Environment struct {
	// ID is unique per environment.
	ID      string
	Recipe  *recipe.Recipe
	Machine *lifecycle.Machine

	// BaseImageID is the engine's ID of the selected base image.
	BaseImageID string
	// WorkDir is the absolute working directory inside the image.
	WorkDir string
	// ImageEnv is the build-time environment in render order.
	ImageEnv [][2]string

	Manifest   *manifest.Manifest
	Source     *stage.Source
	DepsImage  container.ImageTag
	DepsCached bool
	AppImage   container.ImageTag
	AppCached  bool

	// ExitCode is the entrypoint's exit status once the environment stopped.
	ExitCode types.ExitCode

	ledgerID  int64
	ledgerCtx context.Context
}

// State returns the current lifecycle state.
func (e *Environment) State() lifecycle.State {
	return e.Machine.State()
}

// ContainerName is the name given to the running container.
func (e *Environment) ContainerName() string {
	name := containerNameInvalid.ReplaceAllString(e.Recipe.Name, "-")
	name = strings.Trim(name, "-.")
	if name == "" {
		name = "app"
	}
	id := strings.ReplaceAll(e.ID, "-", "")
	if len(id) > 8 {
		id = id[:8]
	}
	return fmt.Sprintf("launchpad-%s-%s", name, id)
}

// expect returns ErrOutOfOrder unless the environment is in state want.
func (e *Environment) expect(step string, want lifecycle.State) error {
	if cur := e.State(); cur != want {
		return fmt.Errorf("%w: %s requires state %s, environment is %s", ErrOutOfOrder, step, want, cur)
	}
	return nil
}
