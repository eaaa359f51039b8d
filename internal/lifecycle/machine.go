// SPDX-License-Identifier: MPL-2.0

package lifecycle

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// ErrInvalidTransition is the sentinel wrapped by InvalidTransitionError.
var ErrInvalidTransition = errors.New("invalid lifecycle transition")

type (
	// Transition describes one state change observed on a Machine.
	Transition struct {
		From State
		To   State
		At   time.Time
		// Err is set when To is StateFailed.
		Err error
	}

	// Observer is notified of every transition, in order, while the
	// machine's transition lock is held. Observers must not call back
	// into the Machine.
	Observer func(Transition)

	// InvalidTransitionError is returned when a transition skips a step,
	// moves backwards, or leaves a terminal state.
	InvalidTransitionError struct {
		From State
		To   State
	}

	// Machine tracks the lifecycle of a single environment.
	Machine struct {
		state atomic.Int32

		mu        sync.Mutex
		observers []Observer
		history   []Transition
		lastErr   error
		now       func() time.Time
	}

	// Option configures a Machine.
	Option func(*Machine)
)

// Error implements the error interface.
func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition from %s to %s", e.From, e.To)
}

// Unwrap returns ErrInvalidTransition for errors.Is() compatibility.
func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// WithObserver registers an observer at construction time.
func WithObserver(obs Observer) Option {
	return func(m *Machine) {
		m.observers = append(m.observers, obs)
	}
}

// WithClock overrides the time source used to stamp transitions.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		m.now = now
	}
}

// NewMachine creates a Machine in StateUnbuilt.
func NewMachine(opts ...Option) *Machine {
	m := &Machine{now: time.Now}
	m.state.Store(int32(StateUnbuilt))
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current state (atomic, lock-free read).
func (m *Machine) State() State {
	return State(m.state.Load())
}

// IsRunning reports whether the entrypoint process is currently alive.
func (m *Machine) IsRunning() bool {
	return m.State() == StateRunning
}

// Observe registers an additional observer.
func (m *Machine) Observe(obs Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, obs)
}

// Advance moves the machine to its immediate successor state. to must be
// exactly that successor; anything else returns *InvalidTransitionError and
// leaves the state unchanged.
func (m *Machine) Advance(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.State()
	next, ok := from.Next()
	if !ok || next != to || to == StateFailed {
		return &InvalidTransitionError{From: from, To: to}
	}
	m.record(from, to, nil)
	return nil
}

// Fail moves any non-terminal state to StateFailed and records err.
// It returns an error if the machine is already terminal.
func (m *Machine) Fail(err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.State()
	if from.IsTerminal() {
		return &InvalidTransitionError{From: from, To: StateFailed}
	}
	m.lastErr = err
	m.record(from, StateFailed, err)
	return nil
}

// LastError returns the error that caused StateFailed, or nil.
func (m *Machine) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// History returns a copy of all transitions so far.
func (m *Machine) History() []Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Transition, len(m.history))
	copy(out, m.history)
	return out
}

// record must be called with mu held.
func (m *Machine) record(from, to State, err error) {
	m.state.Store(int32(to))
	tr := Transition{From: from, To: to, At: m.now(), Err: err}
	m.history = append(m.history, tr)
	for _, obs := range m.observers {
		obs(tr)
	}
}
