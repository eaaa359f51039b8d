// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"cmp"
	"maps"
	"slices"

	"github.com/charmbracelet/glamour"
)

type Id int

const (
	ContainerEngineNotFoundId Id = iota + 1
	RecipeNotFoundId
	RecipeParseErrorId
	ManifestInvalidId
	BaseImageUnavailableId
	DependencyInstallFailedId
	SourceMissingId
	EntrypointStartFailedId
	ConfigLoadFailedId
	LedgerUnavailableId
	PermissionDeniedId
)

type MarkdownMsg string

type HttpLink string

type Renderer interface {
	Render(in string, stylePath string) (string, error)
}

type Issue struct {
	id       Id          // ID used to lookup the issue
	mdMsg    MarkdownMsg // Markdown text that will be rendered
	docLinks []HttpLink
	extLinks []HttpLink // external links that might be useful for the user
}

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) DocLinks() []HttpLink {
	return slices.Clone(i.docLinks)
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

func (i *Issue) Render(stylePath string) (string, error) {
	extraMd := ""
	if len(i.docLinks) > 0 || len(i.extLinks) > 0 {
		extraMd += "\n\n## See also\n"
		for _, link := range i.docLinks {
			extraMd += "- <" + string(link) + ">\n"
		}
		for _, link := range i.extLinks {
			extraMd += "- <" + string(link) + ">\n"
		}
	}
	return render(string(i.mdMsg)+extraMd, stylePath)
}

var (
	render = glamour.Render

	containerEngineNotFoundIssue = &Issue{
		id: ContainerEngineNotFoundId,
		mdMsg: `
# Container engine not found!

launchpad builds and runs environments with Docker or Podman, and neither
answered on this machine.

## Things you can try:
- Install Docker or Podman and make sure the daemon (or socket) is running:
~~~
$ docker info
$ podman info
~~~

- Pick the engine explicitly:
~~~
$ launchpad --engine podman up
~~~

- Or set it once in your configuration:
~~~cue
container_engine: "podman"
~~~`,
		extLinks: []HttpLink{"https://docs.docker.com/get-docker/", "https://podman.io/docs/installation"},
	}

	recipeNotFoundIssue = &Issue{
		id: RecipeNotFoundId,
		mdMsg: `
# Recipe not found!

The recipe file you asked for does not exist.

## Things you can try:
- Run without a recipe to use the default one (python:3.11-slim, /app,
  requirements.txt, ` + "`python bot.py`" + `):
~~~
$ launchpad up
~~~

- Write a recipe in the current directory:
~~~
$ launchpad init
~~~`,
	}

	recipeParseErrorIssue = &Issue{
		id: RecipeParseErrorId,
		mdMsg: `
# Failed to parse recipe!

Your recipe contains syntax errors or values the schema does not accept.

## Common issues:
- Invalid CUE syntax (missing quotes, braces, etc.)
- Unknown field names
- A relative ` + "`workdir`" + ` (it must be absolute, e.g. "/app")
- An empty ` + "`entrypoint`" + ` list

## Things you can try:
- Check the recipe without building anything:
~~~
$ launchpad validate
~~~

- Compare with a freshly generated recipe:
~~~
$ launchpad init --force
~~~`,
		extLinks: []HttpLink{"https://cuelang.org/docs/"},
	}

	manifestInvalidIssue = &Issue{
		id: ManifestInvalidId,
		mdMsg: `
# Dependency manifest is invalid!

The dependency manifest could not be read or contains a line pip would reject.

## Common issues:
- A single ` + "`=`" + ` instead of ` + "`==`" + ` (` + "`aiohttp=3.9`" + `)
- The same package listed twice
- ` + "`-r`" + ` includes that point outside the project directory
- A missing requirements.txt next to your code

## Things you can try:
- Render the generated Dockerfile to see which files are copied:
~~~
$ launchpad render
~~~`,
		extLinks: []HttpLink{"https://pip.pypa.io/en/stable/reference/requirements-file-format/"},
	}

	baseImageUnavailableIssue = &Issue{
		id: BaseImageUnavailableId,
		mdMsg: `
# Base image unavailable!

The base image is not present locally and could not be pulled.

## Things you can try:
- Check the image name and tag in your recipe.
- Make sure you can reach the registry:
~~~
$ docker pull python:3.11-slim
~~~

- Log in if the registry is private:
~~~
$ docker login
~~~`,
	}

	dependencyInstallFailedIssue = &Issue{
		id: DependencyInstallFailedId,
		mdMsg: `
# Dependency installation failed!

The package installer exited with an error while building the dependency
stage. No image was tagged.

## Things you can try:
- Re-run with verbose output to see the installer log:
~~~
$ launchpad --verbose build
~~~

- Check that every package exists for the base image's Python version.
- Rebuild from scratch in case a cached layer is stale:
~~~
$ launchpad build --no-cache
~~~`,
	}

	sourceMissingIssue = &Issue{
		id: SourceMissingId,
		mdMsg: `
# Application source missing!

The directory that should be copied into the image does not exist or is not
a directory.

## Things you can try:
- Run launchpad from your project directory.
- Point ` + "`source`" + ` in your recipe at the directory holding bot.py.`,
	}

	entrypointStartFailedIssue = &Issue{
		id: EntrypointStartFailedId,
		mdMsg: `
# Failed to start the entrypoint!

The engine could not start a container from the application image.

## Things you can try:
- Check that the engine is still running.
- Rebuild the image and try again:
~~~
$ launchpad up
~~~`,
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration!

The configuration file or a LAUNCHPAD_* environment variable holds a value
launchpad cannot use.

## Things you can try:
- Show the configuration launchpad would use:
~~~
$ launchpad config show
~~~

- Check LAUNCHPAD_ENGINE, LAUNCHPAD_VERBOSE and LAUNCHPAD_LEDGER.
- Move the config file aside to fall back to the defaults.`,
	}

	ledgerUnavailableIssue = &Issue{
		id: LedgerUnavailableId,
		mdMsg: `
# Ledger unavailable!

The environment ledger database could not be opened.

## Things you can try:
- Check that the cache directory is writable.
- Disable the ledger for this run:
~~~
$ LAUNCHPAD_LEDGER=false launchpad history
~~~`,
	}

	permissionDeniedIssue = &Issue{
		id: PermissionDeniedId,
		mdMsg: `
# Permission denied!

launchpad could not access a file, directory or the engine socket.

## Things you can try:
- Check the permissions of your project directory.
- On Linux, make sure your user may talk to the engine:
~~~
$ sudo usermod -aG docker $USER
~~~

- Or use rootless Podman:
~~~
$ launchpad --engine podman up
~~~`,
	}

	issues = map[Id]*Issue{
		containerEngineNotFoundIssue.Id(): containerEngineNotFoundIssue,
		recipeNotFoundIssue.Id():          recipeNotFoundIssue,
		recipeParseErrorIssue.Id():        recipeParseErrorIssue,
		manifestInvalidIssue.Id():         manifestInvalidIssue,
		baseImageUnavailableIssue.Id():    baseImageUnavailableIssue,
		dependencyInstallFailedIssue.Id(): dependencyInstallFailedIssue,
		sourceMissingIssue.Id():           sourceMissingIssue,
		entrypointStartFailedIssue.Id():   entrypointStartFailedIssue,
		configLoadFailedIssue.Id():        configLoadFailedIssue,
		ledgerUnavailableIssue.Id():       ledgerUnavailableIssue,
		permissionDeniedIssue.Id():        permissionDeniedIssue,
	}
)

// Values returns every catalogued issue ordered by Id.
func Values() []*Issue {
	return slices.SortedFunc(maps.Values(issues), func(a, b *Issue) int {
		return cmp.Compare(a.id, b.id)
	})
}

func Get(id Id) *Issue {
	return issues[id]
}
