// SPDX-License-Identifier: MPL-2.0

package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"launchpad-cli/internal/container"
)

// DefaultStopTimeout bounds how long a stopping entrypoint may take after
// the interrupt before it is killed.
const DefaultStopTimeout = 10 * time.Second

var (
	// ErrInvalidCacheDirPath is returned when a CacheDirPath value is whitespace-only.
	ErrInvalidCacheDirPath = errors.New("invalid cache dir path")
	// ErrInvalidStopTimeout is returned for a negative stop timeout.
	ErrInvalidStopTimeout = errors.New("invalid stop timeout")
	// ErrInvalidConfig is the sentinel error wrapped by InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid config")
)

type (
	// CacheDirPath is a filesystem path to the launchpad cache directory.
	// The zero value means the platform default.
	CacheDirPath string

	// InvalidCacheDirPathError is returned when a CacheDirPath value is
	// non-empty but whitespace-only.
	InvalidCacheDirPathError struct {
		Value CacheDirPath
	}

	// InvalidStopTimeoutError is returned for a negative stop timeout.
	InvalidStopTimeoutError struct {
		Value time.Duration
	}

	// InvalidConfigError collects field-level validation errors.
	InvalidConfigError struct {
		FieldErrors []error
	}

	// Config holds the tool configuration.
	Config struct {
		// ContainerEngine is the preferred engine; the other one is used
		// when it is not installed.
		ContainerEngine container.EngineType `json:"container_engine" mapstructure:"container_engine"`
		// CacheDir holds the ledger and build contexts.
		CacheDir  CacheDirPath    `json:"cache_dir" mapstructure:"cache_dir"`
		Ledger    LedgerConfig    `json:"ledger" mapstructure:"ledger"`
		Run       RunConfig       `json:"run" mapstructure:"run"`
		UI        UIConfig        `json:"ui" mapstructure:"ui"`
		Telemetry TelemetryConfig `json:"telemetry" mapstructure:"telemetry"`
	}

	// LedgerConfig configures the environment ledger.
	LedgerConfig struct {
		Enabled bool `json:"enabled" mapstructure:"enabled"`
		// Path defaults to <cache_dir>/ledger.db.
		Path string `json:"path" mapstructure:"path"`
	}

	// RunConfig configures how the entrypoint is run.
	RunConfig struct {
		StopTimeout time.Duration `json:"stop_timeout" mapstructure:"stop_timeout"`
		// KeepContainer leaves stopped containers in place.
		KeepContainer bool `json:"keep_container" mapstructure:"keep_container"`
	}

	// UIConfig configures terminal output.
	UIConfig struct {
		Verbose bool `json:"verbose" mapstructure:"verbose"`
	}

	// TelemetryConfig configures tracing.
	TelemetryConfig struct {
		// OTLPEndpoint is an OTLP/HTTP URL. Empty disables tracing.
		OTLPEndpoint string `json:"otlp_endpoint" mapstructure:"otlp_endpoint"`
	}
)

// String returns the string representation of the CacheDirPath.
func (p CacheDirPath) String() string { return string(p) }

// Validate returns an error for a non-empty, whitespace-only path.
func (p CacheDirPath) Validate() error {
	if p != "" && strings.TrimSpace(string(p)) == "" {
		return &InvalidCacheDirPathError{Value: p}
	}
	return nil
}

// Error implements the error interface.
func (e *InvalidCacheDirPathError) Error() string {
	return fmt.Sprintf("invalid cache dir path %q: non-empty value must not be whitespace-only", e.Value)
}

// Unwrap returns ErrInvalidCacheDirPath.
func (e *InvalidCacheDirPathError) Unwrap() error { return ErrInvalidCacheDirPath }

// Error implements the error interface.
func (e *InvalidStopTimeoutError) Error() string {
	return fmt.Sprintf("invalid stop timeout %s: must not be negative", e.Value)
}

// Unwrap returns ErrInvalidStopTimeout.
func (e *InvalidStopTimeoutError) Unwrap() error { return ErrInvalidStopTimeout }

// Error implements the error interface.
func (e *InvalidConfigError) Error() string {
	msgs := make([]string, 0, len(e.FieldErrors))
	for _, err := range e.FieldErrors {
		msgs = append(msgs, err.Error())
	}
	return "invalid config: " + strings.Join(msgs, "; ")
}

// Unwrap returns ErrInvalidConfig and the field errors.
func (e *InvalidConfigError) Unwrap() []error {
	return append([]error{ErrInvalidConfig}, e.FieldErrors...)
}

// Validate checks the fields the CUE schema cannot.
func (c *Config) Validate() error {
	var errs []error
	if err := c.ContainerEngine.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.CacheDir.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Run.StopTimeout < 0 {
		errs = append(errs, &InvalidStopTimeoutError{Value: c.Run.StopTimeout})
	}
	if len(errs) > 0 {
		return &InvalidConfigError{FieldErrors: errs}
	}
	return nil
}

// LedgerPath returns the ledger database path.
func (c *Config) LedgerPath() (string, error) {
	if c.Ledger.Path != "" {
		return c.Ledger.Path, nil
	}
	dir, err := c.ResolvedCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ledgerFileName), nil
}

// ResolvedCacheDir returns CacheDir, or the platform cache directory when unset.
func (c *Config) ResolvedCacheDir() (string, error) {
	if c.CacheDir != "" {
		return string(c.CacheDir), nil
	}
	return CacheDir()
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		ContainerEngine: container.EngineTypeDocker,
		Ledger:          LedgerConfig{Enabled: true},
		Run:             RunConfig{StopTimeout: DefaultStopTimeout},
	}
}
