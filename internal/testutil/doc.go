// SPDX-License-Identifier: MPL-2.0

// Package testutil provides helpers shared by tests: resource cleanup
// (MustClose, DeferClose), a controllable clock (FakeClock) and a
// semaphore bounding concurrent container tests (ContainerSemaphore).
package testutil
