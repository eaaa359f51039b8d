// SPDX-License-Identifier: MPL-2.0

package telemetry

import (
	"io"

	"github.com/charmbracelet/log"
)

// LoggerPrefix prefixes every log line.
const LoggerPrefix = "launchpad"

// NewLogger returns the process logger writing to w. Verbose enables debug
// output and timestamps.
func NewLogger(w io.Writer, verbose bool) *log.Logger {
	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}
	return log.NewWithOptions(w, log.Options{
		Prefix:          LoggerPrefix,
		Level:           level,
		ReportTimestamp: verbose,
	})
}
