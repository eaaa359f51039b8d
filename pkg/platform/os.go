// SPDX-License-Identifier: MPL-2.0

package platform

// runtime.GOOS values with host-specific handling: config directory
// location and engine binary lookup.
const (
	Windows = "windows"
	Darwin  = "darwin"
)
