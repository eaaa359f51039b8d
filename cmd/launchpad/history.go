// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"launchpad-cli/internal/issue"
	"launchpad-cli/internal/ledger"
	"launchpad-cli/internal/lifecycle"
)

const historyTimeFormat = "2006-01-02 15:04:05"

func newHistoryCommand(app *App) *cobra.Command {
	var (
		limit       int
		transitions bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent environments from the ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.history(cmd.Context(), limit, transitions)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of environments to show")
	cmd.Flags().BoolVar(&transitions, "transitions", false, "list each environment's lifecycle transitions")
	return cmd
}

func (a *App) history(ctx context.Context, limit int, transitions bool) error {
	if !a.cfg.Ledger.Enabled {
		fmt.Fprintln(a.stdout, SubtitleStyle.Render("The ledger is disabled (ledger.enabled or LAUNCHPAD_LEDGER)."))
		return nil
	}
	l, err := a.openLedger()
	if err != nil {
		return newServiceError(err, issue.LedgerUnavailableId)
	}
	defer func() { _ = l.Close() }()

	entries, err := l.Recent(ctx, limit)
	if err != nil {
		return newServiceError(err, issue.LedgerUnavailableId)
	}
	if len(entries) == 0 {
		fmt.Fprintln(a.stdout, SubtitleStyle.Render("No environments recorded yet."))
		return nil
	}

	fmt.Fprintln(a.stdout, historyTable(entries))

	if !transitions {
		return nil
	}
	for _, e := range entries {
		trs, err := l.Transitions(ctx, e.ID)
		if err != nil {
			return newServiceError(err, issue.LedgerUnavailableId)
		}
		header := e.RecipeName
		if e.EntrypointFingerprint != "" {
			header += "  entrypoint " + e.EntrypointFingerprint
		}
		fmt.Fprintf(a.stdout, "\n%s %s\n", TitleStyle.Render(shortID(e.UUID)), SubtitleStyle.Render(header))
		for _, tr := range trs {
			line := fmt.Sprintf("  %s  %s -> %s", tr.At.Local().Format(historyTimeFormat), tr.From, tr.To)
			if tr.Error != "" {
				line += "  " + ErrorStyle.Render(tr.Error)
			}
			fmt.Fprintln(a.stdout, line)
		}
	}
	return nil
}

func historyTable(entries []ledger.Entry) string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		exit := "-"
		if e.ExitCode != nil {
			exit = e.ExitCode.String()
		}
		rows = append(rows, []string{
			shortID(e.UUID),
			e.StartedAt.Local().Format(historyTimeFormat),
			duration(e.StartedAt, e.FinishedAt),
			e.RecipeName,
			e.Engine,
			e.State.String(),
			exit,
			e.ImageTag,
		})
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(SubtitleStyle).
		Headers("ID", "STARTED", "TOOK", "RECIPE", "ENGINE", "STATE", "EXIT", "IMAGE").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return historyHeaderStyle
			}
			e := entries[row]
			switch {
			case col == historyStateColumn:
				return historyCellStyle.Inherit(stateStyle(e.State))
			case col == historyExitColumn && e.ExitCode != nil && e.ExitCode.IsEngineReserved():
				return historyCellStyle.Inherit(WarningStyle)
			default:
				return historyCellStyle
			}
		}).
		String()
}

const (
	historyStateColumn = 5
	historyExitColumn  = 6
)

func stateStyle(s lifecycle.State) lipgloss.Style {
	switch s {
	case lifecycle.StateStopped:
		return SuccessStyle
	case lifecycle.StateFailed:
		return ErrorStyle
	case lifecycle.StateRunning:
		return CmdStyle
	default:
		return SubtitleStyle
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func duration(start, end time.Time) string {
	if end.IsZero() {
		return "-"
	}
	return end.Sub(start).Round(time.Millisecond).String()
}
