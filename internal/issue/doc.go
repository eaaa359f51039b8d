// SPDX-License-Identifier: MPL-2.0

// Package issue holds user-facing error handling for launchpad.
//
// ActionableError carries the failed operation, the resource involved and
// remediation suggestions; the bootstrapper, the engine layer and the
// config loader return it. The issue catalogue maps well-known failures
// (missing engine, unpinned or unavailable base image, invalid manifest)
// to Markdown guidance that the CLI renders in verbose mode.
package issue
