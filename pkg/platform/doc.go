// SPDX-License-Identifier: MPL-2.0

// Package platform holds host-environment helpers: OS name constants and
// detection of Flatpak or Snap sandboxes, from which container engine
// commands must be spawned on the host.
package platform
