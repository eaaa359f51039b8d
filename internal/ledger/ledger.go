// SPDX-License-Identifier: MPL-2.0

package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	// SQLite driver registered as "sqlite".
	_ "modernc.org/sqlite"

	"launchpad-cli/internal/ledger/migrations"
	"launchpad-cli/internal/lifecycle"
	"launchpad-cli/pkg/types"
)

// FileName is the ledger database file name inside the cache directory.
const FileName = "ledger.db"

// ErrUnknownEnvironment is returned when an environment row does not exist.
var ErrUnknownEnvironment = errors.New("unknown ledger environment")

type (
	// Ledger is a SQLite-backed journal of environments.
	Ledger struct {
		db  *sql.DB
		now func() time.Time
	}

	// Option configures a Ledger.
	Option func(*Ledger)

	// Environment is the row written when an environment starts building.
	Environment struct {
		UUID         string
		RecipeName   string
		RecipePath   string
		RecipeDigest string
		Entrypoint   string
		// EntrypointFingerprint is equal across builds that start the same command.
		EntrypointFingerprint string
		Engine                string
	}

	// Outcome is written when an environment reaches a terminal state.
	Outcome struct {
		State    lifecycle.State
		ImageTag string
		// ExitCode is recorded only for environments that ran.
		ExitCode *types.ExitCode
		Err      error
	}

	// Entry is an environment as read back from the ledger.
	Entry struct {
		ID           int64
		UUID         string
		RecipeName   string
		RecipePath   string
		RecipeDigest string
		Entrypoint   string
		// EntrypointFingerprint is empty for environments recorded before it was journaled.
		EntrypointFingerprint string
		Engine                string
		ImageTag              string
		State                 lifecycle.State
		ExitCode              *types.ExitCode
		Error                 string
		StartedAt             time.Time
		// FinishedAt is zero while the environment has no outcome.
		FinishedAt time.Time
	}

	// TransitionEntry is a recorded lifecycle transition.
	TransitionEntry struct {
		From  lifecycle.State
		To    lifecycle.State
		Error string
		At    time.Time
	}
)

// WithClock overrides the time source for recorded timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// Open opens (creating if needed) the ledger at path and applies migrations.
func Open(path string, opts ...Option) (*Ledger, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("ledger path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}

	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	// One writer; avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping ledger: %w", err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate ledger: %w", err)
	}

	l := &Ledger{db: db, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Begin records a new environment in state UNBUILT and returns its row ID.
func (l *Ledger) Begin(ctx context.Context, env Environment) (int64, error) {
	res, err := l.db.ExecContext(ctx, `
INSERT INTO environments (uuid, recipe_name, recipe_path, recipe_digest, entrypoint, entrypoint_fingerprint, engine, state, started_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		env.UUID, env.RecipeName, env.RecipePath, env.RecipeDigest, env.Entrypoint, env.EntrypointFingerprint, env.Engine,
		lifecycle.StateUnbuilt.String(), toMillis(l.now()),
	)
	if err != nil {
		return 0, fmt.Errorf("insert environment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("environment id: %w", err)
	}
	return id, nil
}

// RecordTransition appends tr to the environment's history and updates its
// current state.
func (l *Ledger) RecordTransition(ctx context.Context, id int64, tr lifecycle.Transition) error {
	at := tr.At
	if at.IsZero() {
		at = l.now()
	}
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transition: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `UPDATE environments SET state = ? WHERE id = ?`, tr.To.String(), id)
	if err != nil {
		return fmt.Errorf("update state: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %d", ErrUnknownEnvironment, id)
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO transitions (environment_id, from_state, to_state, error, at)
VALUES (?, ?, ?, ?, ?)`,
		id, tr.From.String(), tr.To.String(), errorText(tr.Err), toMillis(at),
	); err != nil {
		return fmt.Errorf("insert transition: %w", err)
	}
	return tx.Commit()
}

// Finish stores the environment's outcome.
func (l *Ledger) Finish(ctx context.Context, id int64, out Outcome) error {
	var exit sql.NullInt64
	if out.ExitCode != nil {
		if err := out.ExitCode.Validate(); err != nil {
			return fmt.Errorf("finish environment: %w", err)
		}
		exit = sql.NullInt64{Int64: int64(*out.ExitCode), Valid: true}
	}
	res, err := l.db.ExecContext(ctx, `
UPDATE environments SET state = ?, image_tag = ?, exit_code = ?, error = ?, finished_at = ?
WHERE id = ?`,
		out.State.String(), out.ImageTag, exit, errorText(out.Err), toMillis(l.now()), id,
	)
	if err != nil {
		return fmt.Errorf("finish environment: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %d", ErrUnknownEnvironment, id)
	}
	return nil
}

// Recent returns up to limit environments, newest first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := l.db.QueryContext(ctx, `
SELECT id, uuid, recipe_name, recipe_path, recipe_digest, entrypoint, entrypoint_fingerprint, engine, image_tag,
       state, exit_code, error, started_at, finished_at
FROM environments
ORDER BY started_at DESC, id DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query environments: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate environments: %w", err)
	}
	return entries, nil
}

// Transitions returns the environment's recorded transitions in order.
func (l *Ledger) Transitions(ctx context.Context, id int64) ([]TransitionEntry, error) {
	rows, err := l.db.QueryContext(ctx, `
SELECT from_state, to_state, error, at FROM transitions
WHERE environment_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	var out []TransitionEntry
	for rows.Next() {
		var (
			from, to, errText string
			at                int64
		)
		if err := rows.Scan(&from, &to, &errText, &at); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		fromState, err := lifecycle.ParseState(from)
		if err != nil {
			return nil, err
		}
		toState, err := lifecycle.ParseState(to)
		if err != nil {
			return nil, err
		}
		out = append(out, TransitionEntry{From: fromState, To: toState, Error: errText, At: fromMillis(at)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transitions: %w", err)
	}
	return out, nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e        Entry
		state    string
		exit     sql.NullInt64
		started  int64
		finished sql.NullInt64
	)
	if err := rows.Scan(&e.ID, &e.UUID, &e.RecipeName, &e.RecipePath, &e.RecipeDigest, &e.Entrypoint,
		&e.EntrypointFingerprint, &e.Engine, &e.ImageTag, &state, &exit, &e.Error, &started, &finished); err != nil {
		return Entry{}, fmt.Errorf("scan environment: %w", err)
	}
	st, err := lifecycle.ParseState(state)
	if err != nil {
		return Entry{}, err
	}
	e.State = st
	if exit.Valid {
		code := types.ExitCode(exit.Int64)
		e.ExitCode = &code
	}
	e.StartedAt = fromMillis(started)
	if finished.Valid {
		e.FinishedAt = fromMillis(finished.Int64)
	}
	return e, nil
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }
