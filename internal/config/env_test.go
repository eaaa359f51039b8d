// SPDX-License-Identifier: MPL-2.0

package config

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"launchpad-cli/internal/container"
)

func TestParseEnv(t *testing.T) {
	t.Parallel()

	yes, no := true, false
	tests := []struct {
		name    string
		environ map[string]string
		want    *EnvOverrides
		wantErr bool
	}{
		{name: "nothing set", environ: map[string]string{}, want: &EnvOverrides{}},
		{
			name: "all set",
			environ: map[string]string{
				"LAUNCHPAD_ENGINE":        "podman",
				"LAUNCHPAD_CACHE_DIR":     "/cache",
				"LAUNCHPAD_VERBOSE":       "1",
				"LAUNCHPAD_LEDGER":        "false",
				"LAUNCHPAD_OTEL_ENDPOINT": "http://localhost:4318",
			},
			want: &EnvOverrides{
				Engine:       "podman",
				CacheDir:     "/cache",
				Verbose:      &yes,
				Ledger:       &no,
				OTLPEndpoint: "http://localhost:4318",
			},
		},
		{name: "unrelated variables ignored", environ: map[string]string{"ENGINE": "podman"}, want: &EnvOverrides{}},
		{name: "bad bool", environ: map[string]string{"LAUNCHPAD_LEDGER": "sometimes"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseEnv(tt.environ)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseEnv() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseEnv() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEnvOverrides_ApplyLeavesUnsetFields(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.ContainerEngine = container.EngineTypePodman
	cfg.UI.Verbose = true

	no := false
	(&EnvOverrides{Ledger: &no}).Apply(cfg)

	if cfg.ContainerEngine != container.EngineTypePodman || !cfg.UI.Verbose {
		t.Errorf("unset overrides changed config: %+v", cfg)
	}
	if cfg.Ledger.Enabled {
		t.Error("LAUNCHPAD_LEDGER=false not applied")
	}
}
