// SPDX-License-Identifier: MPL-2.0

package cueutil

// DefaultMaxFileSize bounds recipe and config input. Both are a few hundred
// bytes in practice.
const DefaultMaxFileSize int64 = 1 << 20

type (
	parseOptions struct {
		maxFileSize int64
		filename    string
	}

	// Option configures ParseAndDecode and DecodeValue.
	Option func(*parseOptions)
)

func newOptions(opts []Option) parseOptions {
	o := parseOptions{maxFileSize: DefaultMaxFileSize}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithMaxFileSize overrides DefaultMaxFileSize.
func WithMaxFileSize(size int64) Option {
	return func(o *parseOptions) { o.maxFileSize = size }
}

// WithFilename names the input in positions and error messages.
func WithFilename(name string) Option {
	return func(o *parseOptions) { o.filename = name }
}
