// SPDX-License-Identifier: MPL-2.0

// Package manifest reads the dependency manifest installed into the
// dependencies stage of an environment.
//
// Two formats are understood: pip requirements files (requirements.txt,
// including nested -r/-c includes, which are flattened) and the
// [project].dependencies array of a pyproject.toml. Either way the result is
// an ordered list of Requirement values plus the installer options that
// accompanied them.
//
// Parsing is a pre-flight check, not a resolver: it rejects specifiers that
// pip would refuse to parse and references that would make dependency
// installation depend on application files (editable installs, local paths).
// Whether a well-formed requirement can actually be satisfied is only known
// once the installer runs inside the build.
package manifest
