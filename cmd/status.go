package cmd

import (
	"context"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"authflow/internal/session"
)

// statusRow is the session summary of one client registration.
type statusRow struct {
	Client  string
	Account string
	Session session.Session
	Err     error
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the session of every client registration",
		Long: `Show the stored session of every configured client registration, or of
the one selected with --client.

Only local state is inspected; no request is sent to the providers.

Examples:
  authflow status                      # All clients
  authflow status --client work        # A single client`,
		RunE: runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	names := rt.cfg.ClientNames()
	if clientName != "" {
		names = []string{clientName}
	}
	if len(names) == 0 {
		printf(cmd.OutOrStdout(), "%s\n", text.FgYellow.Sprint("No clients configured."))
		return nil
	}

	rows := make([]statusRow, 0, len(names))
	for _, name := range names {
		rows = append(rows, collectStatus(ctx, rt, name))
	}

	renderStatus(cmd.OutOrStdout(), rows, time.Now())
	return nil
}

func collectStatus(ctx context.Context, rt *runtime, name string) statusRow {
	row := statusRow{Client: name}

	c, err := rt.client(name)
	if err != nil {
		row.Err = err
		return row
	}
	row.Account = c.config.Account()
	row.Session, row.Err = c.ctrl.Session(ctx)
	return row
}

// renderStatus writes the status table to w.
func renderStatus(w io.Writer, rows []statusRow, now time.Time) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{
		text.FgHiCyan.Sprint("CLIENT"),
		text.FgHiCyan.Sprint("ACCOUNT"),
		text.FgHiCyan.Sprint("STATUS"),
		text.FgHiCyan.Sprint("EXPIRES"),
		text.FgHiCyan.Sprint("REFRESH"),
	})

	for _, row := range rows {
		t.AppendRow(table.Row{
			row.Client,
			row.Account,
			sessionStatus(row, now),
			expiresColumn(row, now),
			refreshColumn(row, now),
		})
	}

	t.Render()
}

func sessionStatus(row statusRow, now time.Time) string {
	switch {
	case row.Err != nil:
		return text.FgRed.Sprint(truncate("Error: "+row.Err.Error(), maxCellWidth))
	case row.Session.IsAuthorized(now):
		return text.FgGreen.Sprint("Authenticated")
	case row.Session.CanRefresh(now):
		return text.FgYellow.Sprint("Expired (refreshable)")
	default:
		return text.FgYellow.Sprint("Not authenticated")
	}
}

func expiresColumn(row statusRow, now time.Time) string {
	if row.Err != nil || !row.Session.HasAccessToken() {
		return "-"
	}
	return formatExpiry(row.Session.AccessTokenExpiration, now)
}

func refreshColumn(row statusRow, now time.Time) string {
	switch {
	case row.Err != nil || !row.Session.HasRefreshToken():
		return text.FgHiBlack.Sprint("none")
	case row.Session.CanRefresh(now):
		return text.FgGreen.Sprint("available")
	default:
		return text.FgYellow.Sprint("expired")
	}
}
