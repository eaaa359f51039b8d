// SPDX-License-Identifier: MPL-2.0

// Package types provides small value types shared across packages: the
// container process exit code passed through to the caller, and
// filesystem paths validated at recipe load time.
//
// Each type follows the same shape: a named type with Validate() error
// and String() string, plus a sentinel error and a typed error that
// unwraps to it.
package types
