// SPDX-License-Identifier: MPL-2.0

package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"

	"launchpad-cli/internal/container"
)

// EnvOverrides are the LAUNCHPAD_* environment variables. Unset variables
// leave the file and default values alone.
type EnvOverrides struct {
	Engine       string `env:"LAUNCHPAD_ENGINE"`
	CacheDir     string `env:"LAUNCHPAD_CACHE_DIR"`
	Verbose      *bool  `env:"LAUNCHPAD_VERBOSE"`
	Ledger       *bool  `env:"LAUNCHPAD_LEDGER"`
	OTLPEndpoint string `env:"LAUNCHPAD_OTEL_ENDPOINT"`
}

// ParseEnv reads the overrides from environ, or from the process
// environment when environ is nil.
func ParseEnv(environ map[string]string) (*EnvOverrides, error) {
	var o EnvOverrides
	var err error
	if environ == nil {
		err = env.Parse(&o)
	} else {
		err = env.ParseWithOptions(&o, env.Options{Environment: environ})
	}
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &o, nil
}

// Apply overlays the set overrides onto cfg.
func (o *EnvOverrides) Apply(cfg *Config) {
	if o.Engine != "" {
		cfg.ContainerEngine = container.EngineType(o.Engine)
	}
	if o.CacheDir != "" {
		cfg.CacheDir = CacheDirPath(o.CacheDir)
	}
	if o.Verbose != nil {
		cfg.UI.Verbose = *o.Verbose
	}
	if o.Ledger != nil {
		cfg.Ledger.Enabled = *o.Ledger
	}
	if o.OTLPEndpoint != "" {
		cfg.Telemetry.OTLPEndpoint = o.OTLPEndpoint
	}
}
