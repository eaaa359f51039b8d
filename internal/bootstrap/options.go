// SPDX-License-Identifier: MPL-2.0

package bootstrap

import (
	"io"
	"maps"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Option configures a Bootstrapper.
type Option func(*Bootstrapper)

// WithLedger records environments and transitions in l.
func WithLedger(l Ledger) Option {
	return func(b *Bootstrapper) {
		b.ledger = l
	}
}

// WithTracer overrides the tracer used for step spans.
func WithTracer(t trace.Tracer) Option {
	return func(b *Bootstrapper) {
		b.tracer = t
	}
}

// WithStdio attaches the entrypoint's standard streams.
func WithStdio(stdin io.Reader, stdout, stderr io.Writer) Option {
	return func(b *Bootstrapper) {
		b.stdin = stdin
		b.stdout = stdout
		b.stderr = stderr
	}
}

// WithProgress sets where image pull output goes.
func WithProgress(w io.Writer) Option {
	return func(b *Bootstrapper) {
		b.progress = w
	}
}

// WithStopTimeout bounds how long a cancelled run may take to stop.
func WithStopTimeout(d time.Duration) Option {
	return func(b *Bootstrapper) {
		b.stopTimeout = d
	}
}

// WithRunEnv adds variables passed to the entrypoint at start. They take
// precedence over the recipe's run_env.
func WithRunEnv(env map[string]string) Option {
	return func(b *Bootstrapper) {
		if b.runEnv == nil {
			b.runEnv = make(map[string]string, len(env))
		}
		maps.Copy(b.runEnv, env)
	}
}

// WithClock overrides the time source for lifecycle transitions.
func WithClock(now func() time.Time) Option {
	return func(b *Bootstrapper) {
		b.now = now
	}
}

// WithInteractive keeps stdin open for the entrypoint.
func WithInteractive(interactive bool) Option {
	return func(b *Bootstrapper) {
		b.interactive = interactive
	}
}

// WithTTY allocates a pseudo-terminal for the entrypoint.
func WithTTY(tty bool) Option {
	return func(b *Bootstrapper) {
		b.tty = tty
	}
}

// WithKeepContainer leaves the stopped container in place instead of
// removing it.
func WithKeepContainer(keep bool) Option {
	return func(b *Bootstrapper) {
		b.keep = keep
	}
}

// WithIDGenerator overrides how environment IDs are generated.
func WithIDGenerator(gen func() string) Option {
	return func(b *Bootstrapper) {
		b.newID = gen
	}
}
