// SPDX-License-Identifier: MPL-2.0

package stage

import (
	"io"
	"os"
	"path/filepath"
)

type (
	// Config holds the stage builder settings.
	Config struct {
		// NoCache rebuilds stages even when their tag already exists, and
		// passes --no-cache to the engine.
		NoCache bool

		// ContextRoot is the parent directory of temporary build contexts.
		ContextRoot string

		// TagSuffix is appended to stage tags ("deps-<hash>-<suffix>") so
		// parallel integration tests do not share images.
		TagSuffix string

		// Output receives engine build output. Nil discards it.
		Output io.Writer

		// Labels are added to every stage image.
		Labels map[string]string
	}

	// Option is a functional option for configuring a Config.
	Option func(*Config)
)

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		ContextRoot: defaultContextRoot(),
		Output:      os.Stderr,
	}
}

// defaultContextRoot picks a directory the engine can read. Docker installed
// as a Snap cannot see /tmp or hidden directories in $HOME, so a visible
// directory in $HOME is preferred.
func defaultContextRoot() string {
	if home, err := os.UserHomeDir(); err == nil {
		if _, statErr := os.Stat(home); statErr == nil {
			return filepath.Join(home, "launchpad-build")
		}
	}
	return filepath.Join(os.TempDir(), "launchpad-build")
}

// WithNoCache returns an Option that sets NoCache on the config.
func WithNoCache(noCache bool) Option {
	return func(c *Config) {
		c.NoCache = noCache
	}
}

// WithContextRoot returns an Option that sets ContextRoot on the config.
func WithContextRoot(dir string) Option {
	return func(c *Config) {
		c.ContextRoot = dir
	}
}

// WithTagSuffix returns an Option that sets TagSuffix on the config.
func WithTagSuffix(suffix string) Option {
	return func(c *Config) {
		c.TagSuffix = suffix
	}
}

// WithOutput returns an Option that sets Output on the config.
func WithOutput(w io.Writer) Option {
	return func(c *Config) {
		c.Output = w
	}
}

// WithLabel returns an Option that adds an image label.
func WithLabel(key, value string) Option {
	return func(c *Config) {
		if c.Labels == nil {
			c.Labels = make(map[string]string)
		}
		c.Labels[key] = value
	}
}

// Apply applies the given options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}
