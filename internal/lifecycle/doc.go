// SPDX-License-Identifier: MPL-2.0

// Package lifecycle models the environment lifecycle driven by the bootstrapper:
//
//	UNBUILT → BASE_SELECTED → DEPENDENCIES_INSTALLED → FILES_MATERIALIZED → RUNNING → STOPPED
//
// Transitions are strictly sequential and one-directional. Any state other than
// STOPPED may instead move to FAILED; STOPPED and FAILED are terminal and a
// Machine is single-use.
//
// State reads are lock-free (atomic). Transitions are serialized by a mutex so
// that observers see them in order.
package lifecycle
