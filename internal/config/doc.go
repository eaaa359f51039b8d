// SPDX-License-Identifier: MPL-2.0

// Package config loads the launchpad tool configuration.
//
// Values come from, in increasing precedence: built-in defaults, the CUE
// file config.cue in the platform config directory (validated against the
// embedded #Config schema), and LAUNCHPAD_* environment variables read once
// at process start. Command-line flags are applied by the caller on top.
package config
