// SPDX-License-Identifier: MPL-2.0

// Package enginetest provides an in-memory container.Engine for tests of code
// that drives an engine without needing Docker or Podman.
package enginetest
