// SPDX-License-Identifier: MPL-2.0

package platform

import (
	"os"
	"sync"
)

const (
	SandboxNone    SandboxType = ""
	SandboxFlatpak SandboxType = "flatpak"
	SandboxSnap    SandboxType = "snap"

	// flatpakInfoPath exists in every Flatpak sandbox.
	flatpakInfoPath = "/.flatpak-info"
	// snapNameEnv is set for every snap.
	snapNameEnv = "SNAP_NAME"
)

// SandboxType names the application sandbox launchpad runs in, if any.
type SandboxType string

// detectOnce must not panic: sync.OnceValue re-panics on every later call.
var detectOnce = sync.OnceValue(func() SandboxType {
	return detectSandboxFrom(os.Getenv, func(p string) error {
		_, err := os.Stat(p)
		return err
	})
})

// DetectSandbox returns the sandbox of the current process. The result is
// computed once.
func DetectSandbox() SandboxType {
	return detectOnce()
}

// SpawnPrefix returns the argv prefix that runs a program on the host from
// inside st. Container engine CLIs are not reachable from inside a Flatpak.
// Snap confinement has no host escape, so it yields nil like SandboxNone.
func SpawnPrefix(st SandboxType) []string {
	if st == SandboxFlatpak {
		return []string{"flatpak-spawn", "--host"}
	}
	return nil
}

// detectSandboxFrom takes its lookups as parameters so tests do not touch
// process state. Flatpak wins when both markers are present.
func detectSandboxFrom(getenv func(string) string, stat func(string) error) SandboxType {
	switch {
	case stat(flatpakInfoPath) == nil:
		return SandboxFlatpak
	case getenv(snapNameEnv) != "":
		return SandboxSnap
	default:
		return SandboxNone
	}
}
