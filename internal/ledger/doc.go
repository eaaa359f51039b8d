// SPDX-License-Identifier: MPL-2.0

// Package ledger records environments and their lifecycle transitions in a
// SQLite database, for "launchpad history".
//
// The ledger is a journal, not a source of truth: the bootstrapper logs
// ledger write failures and carries on.
package ledger
