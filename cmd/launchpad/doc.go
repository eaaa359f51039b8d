// SPDX-License-Identifier: MPL-2.0

// Package cmd contains the launchpad CLI commands.
//
// The App type is the composition root: it loads configuration once per
// invocation, then wires the container engine, stage builder, ledger and
// tracer into a bootstrap.Bootstrapper for the build, run and up commands.
package cmd
