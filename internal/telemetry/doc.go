// SPDX-License-Identifier: MPL-2.0

// Package telemetry builds the process logger and, when an OTLP endpoint is
// configured, the OpenTelemetry tracer provider.
package telemetry
