// SPDX-License-Identifier: MPL-2.0

package platform

import (
	"errors"
	"io/fs"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDetectSandboxFrom(t *testing.T) {
	t.Parallel()

	exists := func(string) error { return nil }
	missing := func(string) error { return fs.ErrNotExist }
	env := func(vars map[string]string) func(string) string {
		return func(k string) string { return vars[k] }
	}

	tests := []struct {
		name string
		env  map[string]string
		stat func(string) error
		want SandboxType
	}{
		{name: "no sandbox", stat: missing, want: SandboxNone},
		{name: "flatpak info file", stat: exists, want: SandboxFlatpak},
		{name: "snap env", env: map[string]string{"SNAP_NAME": "launchpad"}, stat: missing, want: SandboxSnap},
		{name: "flatpak wins over snap", env: map[string]string{"SNAP_NAME": "launchpad"}, stat: exists, want: SandboxFlatpak},
		{name: "stat error other than missing", stat: func(string) error { return errors.New("permission denied") }, want: SandboxNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := detectSandboxFrom(env(tt.env), tt.stat); got != tt.want {
				t.Errorf("detectSandboxFrom() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSpawnPrefix(t *testing.T) {
	t.Parallel()

	tests := []struct {
		st   SandboxType
		want []string
	}{
		{SandboxNone, nil},
		{SandboxFlatpak, []string{"flatpak-spawn", "--host"}},
		{SandboxSnap, nil},
		{SandboxType("unknown"), nil},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, SpawnPrefix(tt.st)); diff != "" {
			t.Errorf("SpawnPrefix(%q) mismatch (-want +got):\n%s", tt.st, diff)
		}
	}
}

func TestDetectSandbox_IsStable(t *testing.T) {
	t.Parallel()

	first := DetectSandbox()
	for range 5 {
		if got := DetectSandbox(); got != first {
			t.Fatalf("DetectSandbox() changed from %q to %q", first, got)
		}
	}
}
