// SPDX-License-Identifier: MPL-2.0

// Package migrations embeds the ledger schema migrations.
package migrations

import "embed"

// FS holds the *.sql migrations, applied in file name order.
//
//go:embed *.sql
var FS embed.FS
