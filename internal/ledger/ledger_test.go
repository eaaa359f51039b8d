// SPDX-License-Identifier: MPL-2.0

package ledger

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"launchpad-cli/internal/lifecycle"
	"launchpad-cli/internal/testutil"
	"launchpad-cli/pkg/types"
)

func openTestLedger(t *testing.T, clock *testutil.FakeClock) *Ledger {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "state", FileName), WithClock(clock.Now))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(testutil.DeferClose(t, l))
	return l
}

func testEnvironment(uuid string) Environment {
	return Environment{
		UUID:                  uuid,
		RecipeName:            "app",
		RecipePath:            "/srv/bot/launchpad.cue",
		RecipeDigest:          "abc123",
		Entrypoint:            "python bot.py",
		EntrypointFingerprint: "5d0f3c8e2a91b7c4",
		Engine:                "docker",
	}
}

func TestLedger_RecordsLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := testutil.NewFakeClock(time.Time{})
	l := openTestLedger(t, clock)

	id, err := l.Begin(ctx, testEnvironment("env-1"))
	if err != nil {
		t.Fatalf("Begin() error: %v", err)
	}

	steps := []lifecycle.State{
		lifecycle.StateBaseSelected,
		lifecycle.StateDependenciesInstalled,
		lifecycle.StateFilesMaterialized,
		lifecycle.StateRunning,
		lifecycle.StateStopped,
	}
	from := lifecycle.StateUnbuilt
	for _, to := range steps {
		clock.Advance(time.Second)
		if err := l.RecordTransition(ctx, id, lifecycle.Transition{From: from, To: to, At: clock.Now()}); err != nil {
			t.Fatalf("RecordTransition(%s) error: %v", to, err)
		}
		from = to
	}

	code := types.ExitCode(3)
	clock.Advance(time.Second)
	if err := l.Finish(ctx, id, Outcome{State: lifecycle.StateStopped, ImageTag: "launchpad/app:app-0123456789ab", ExitCode: &code}); err != nil {
		t.Fatalf("Finish() error: %v", err)
	}

	entries, err := l.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Recent() returned %d entries, want 1", len(entries))
	}
	got := entries[0]
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	want := Entry{
		ID:                    id,
		UUID:                  "env-1",
		RecipeName:            "app",
		RecipePath:            "/srv/bot/launchpad.cue",
		RecipeDigest:          "abc123",
		Entrypoint:            "python bot.py",
		EntrypointFingerprint: "5d0f3c8e2a91b7c4",
		Engine:                "docker",
		ImageTag:              "launchpad/app:app-0123456789ab",
		State:                 lifecycle.StateStopped,
		ExitCode:              &code,
		StartedAt:             start,
		FinishedAt:            start.Add(6 * time.Second),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Recent() mismatch (-want +got):\n%s", diff)
	}

	trs, err := l.Transitions(ctx, id)
	if err != nil {
		t.Fatalf("Transitions() error: %v", err)
	}
	if len(trs) != len(steps) {
		t.Fatalf("Transitions() returned %d rows, want %d", len(trs), len(steps))
	}
	for i, tr := range trs {
		if tr.To != steps[i] {
			t.Errorf("transition %d to = %s, want %s", i, tr.To, steps[i])
		}
		if wantAt := start.Add(time.Duration(i+1) * time.Second); !tr.At.Equal(wantAt) {
			t.Errorf("transition %d at = %v, want %v", i, tr.At, wantAt)
		}
	}
}

func TestLedger_FailedEnvironment(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := openTestLedger(t, testutil.NewFakeClock(time.Time{}))

	id, err := l.Begin(ctx, testEnvironment("env-failed"))
	if err != nil {
		t.Fatalf("Begin() error: %v", err)
	}
	cause := errors.New("pip install exited with 1")
	if err := l.RecordTransition(ctx, id, lifecycle.Transition{From: lifecycle.StateUnbuilt, To: lifecycle.StateFailed, Err: cause}); err != nil {
		t.Fatalf("RecordTransition() error: %v", err)
	}
	if err := l.Finish(ctx, id, Outcome{State: lifecycle.StateFailed, Err: cause}); err != nil {
		t.Fatalf("Finish() error: %v", err)
	}

	entries, err := l.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("Recent() error: %v", err)
	}
	if got := entries[0]; got.State != lifecycle.StateFailed || got.ExitCode != nil || got.Error != cause.Error() {
		t.Errorf("Recent()[0] = %+v, want FAILED without exit code", got)
	}

	trs, err := l.Transitions(ctx, id)
	if err != nil {
		t.Fatalf("Transitions() error: %v", err)
	}
	if len(trs) != 1 || trs[0].Error != cause.Error() {
		t.Errorf("Transitions() = %+v", trs)
	}
}

func TestLedger_RecentOrderAndLimit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clock := testutil.NewFakeClock(time.Time{})
	l := openTestLedger(t, clock)

	for i := range 5 {
		if _, err := l.Begin(ctx, testEnvironment(fmt.Sprintf("env-%d", i))); err != nil {
			t.Fatalf("Begin() error: %v", err)
		}
		clock.Advance(time.Minute)
	}

	entries, err := l.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("Recent() error: %v", err)
	}
	var got []string
	for _, e := range entries {
		got = append(got, e.UUID)
		if !e.FinishedAt.IsZero() {
			t.Errorf("unfinished environment %s has FinishedAt %v", e.UUID, e.FinishedAt)
		}
	}
	if diff := cmp.Diff([]string{"env-4", "env-3", "env-2"}, got); diff != "" {
		t.Errorf("Recent() order mismatch (-want +got):\n%s", diff)
	}

	if entries, err := l.Recent(ctx, 0); err != nil || entries != nil {
		t.Errorf("Recent(0) = %v, %v; want nil, nil", entries, err)
	}
}

func TestLedger_UnknownEnvironment(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := openTestLedger(t, testutil.NewFakeClock(time.Time{}))

	err := l.RecordTransition(ctx, 42, lifecycle.Transition{From: lifecycle.StateUnbuilt, To: lifecycle.StateBaseSelected})
	if err == nil {
		t.Fatal("RecordTransition() on unknown id succeeded")
	}
	if err := l.Finish(ctx, 42, Outcome{State: lifecycle.StateStopped}); !errors.Is(err, ErrUnknownEnvironment) {
		t.Errorf("Finish() error = %v, want ErrUnknownEnvironment", err)
	}
}

func TestLedger_FinishRejectsOutOfRangeExitCode(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	l := openTestLedger(t, testutil.NewFakeClock(time.Time{}))
	id, err := l.Begin(ctx, testEnvironment("env-bad-exit"))
	if err != nil {
		t.Fatalf("Begin() error: %v", err)
	}

	code := types.ExitCode(-1)
	if err := l.Finish(ctx, id, Outcome{State: lifecycle.StateStopped, ExitCode: &code}); !errors.Is(err, types.ErrInvalidExitCode) {
		t.Errorf("Finish() error = %v, want ErrInvalidExitCode", err)
	}
}

func TestLedger_ReopenKeepsRows(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), FileName)

	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if _, err := l.Begin(ctx, testEnvironment("persisted")); err != nil {
		t.Fatalf("Begin() error: %v", err)
	}
	testutil.MustClose(t, l)

	l, err = Open(path)
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer testutil.DeferClose(t, l)()

	entries, err := l.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent() error: %v", err)
	}
	if len(entries) != 1 || entries[0].UUID != "persisted" {
		t.Errorf("Recent() after reopen = %+v", entries)
	}
}

func TestOpen_EmptyPath(t *testing.T) {
	t.Parallel()

	if _, err := Open("  "); err == nil {
		t.Error("Open(\"  \") succeeded")
	}
}

func TestUpSection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"no markers", "CREATE TABLE a (x);", "CREATE TABLE a (x);"},
		{"up only", "-- +migrate Up\nCREATE TABLE a (x);", "\nCREATE TABLE a (x);"},
		{"up and down", "-- +migrate Up\nCREATE TABLE a (x);\n-- +migrate Down\nDROP TABLE a;", "\nCREATE TABLE a (x);\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := upSection(tt.content); got != tt.want {
				t.Errorf("upSection() = %q, want %q", got, tt.want)
			}
		})
	}
}
