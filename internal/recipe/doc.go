// SPDX-License-Identifier: MPL-2.0

// Package recipe models a bootstrap recipe: the declarative description of
// one environment (base image, working directory, unbuffered output flag,
// dependency manifest, application source and entrypoint).
//
// Recipes are written in CUE (launchpad.cue) or TOML (launchpad.toml) and are
// validated against the embedded #Recipe schema either way. Render turns a
// recipe into the equivalent single-file Dockerfile.
package recipe
