// SPDX-License-Identifier: MPL-2.0

// Package container drives Docker or Podman through their command-line clients.
//
// The Engine interface covers what launchpad needs from an engine: probing and
// pulling images, building tagged images from a generated Dockerfile, and
// running one foreground container whose exit status is passed through.
// DockerEngine and PodmanEngine embed BaseCLIEngine, which builds the argument
// lists and owns process handling.
//
// NewEngine selects the preferred engine and falls back to the other one when
// its CLI is missing. When launchpad runs inside a Flatpak sandbox, engine
// commands are spawned on the host.
package container
