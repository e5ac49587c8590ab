package ui

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/sync"
	"github.com/nhle/mailsync/internal/theme"
)

const timeLayout = "2006-01-02 15:04:05"

// RenderResult renders the summary printed after a sync attempt.
func RenderResult(title string, result *sync.SyncResult, err error) string {
	var b strings.Builder
	b.WriteString(theme.HeaderStyle.Render(title))
	b.WriteString("\n")

	if result == nil {
		result = &sync.SyncResult{}
	}

	status := model.SyncStatusCompleted
	if err != nil || !result.Success {
		status = model.SyncStatusError
	}

	rows := []string{
		row("Status", theme.SyncStatusStyle(status).Render(string(status))),
		row("Processed", strconv.Itoa(result.EmailsProcessed)),
		row("Added", strconv.Itoa(result.EmailsAdded)),
		row("Updated", strconv.Itoa(result.EmailsUpdated)),
		row("Flags updated", strconv.Itoa(result.FlagsUpdated)),
		row("Failed", strconv.Itoa(result.EmailsFailed)),
		row("Folders", strconv.Itoa(result.FoldersSynced)),
	}
	if !result.StartedAt.IsZero() && !result.CompletedAt.IsZero() {
		rows = append(rows, row("Took", result.CompletedAt.Sub(result.StartedAt).Round(time.Millisecond).String()))
	}

	folders := make([]string, 0, len(result.Folders))
	for name := range result.Folders {
		folders = append(folders, name)
	}
	slices.Sort(folders)
	for _, name := range folders {
		stats := result.Folders[name]
		line := fmt.Sprintf("+%d ~%d flags %d failed %d", stats.Added, stats.Updated, stats.FlagsUpdated, stats.Failed)
		if stats.MailboxReset {
			line += " (reset)"
		}
		rows = append(rows, row("  "+name, line))
	}

	if err != nil {
		rows = append(rows, theme.ErrorStyle.Render(err.Error()))
	}

	b.WriteString(theme.PanelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...)))
	return b.String()
}

// RenderAccounts renders one line per account.
func RenderAccounts(accounts []model.EmailAccount) string {
	if len(accounts) == 0 {
		return theme.HelpStyle.Render("No accounts configured. Add one with `mailsync account add`.")
	}

	lines := make([]string, 0, len(accounts))
	for _, a := range accounts {
		last := "never"
		if a.LastSyncAt != nil {
			last = a.LastSyncAt.Local().Format(timeLayout)
		}
		line := fmt.Sprintf("%s  %-32s %s  last sync %s",
			a.ID,
			a.Email,
			theme.SyncStatusStyle(a.SyncStatus).Render(fmt.Sprintf("%-9s", a.SyncStatus)),
			last,
		)
		if !a.Active {
			line += theme.HelpStyle.Render(" (inactive)")
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// RenderAccountStatus renders an account with its folder cursors and the
// most recent sync attempts.
func RenderAccountStatus(
	account *model.EmailAccount,
	states []model.FolderSyncState,
	history []model.SyncHistoryRecord,
) string {
	var b strings.Builder
	b.WriteString(theme.HeaderStyle.Render(account.Email))
	b.WriteString("\n")

	rows := []string{
		row("Status", theme.SyncStatusStyle(account.SyncStatus).Render(string(account.SyncStatus))),
		row("Server", fmt.Sprintf("%s:%d", account.Host, account.Port)),
		row("Folders", strings.Join(account.SyncFolders, ", ")),
		row("Window", fmt.Sprintf("%d days", account.SyncWindowDays)),
		row("CONDSTORE", strconv.FormatBool(account.SupportsCondstore)),
		row("Total synced", strconv.FormatInt(account.TotalEmailsSynced, 10)),
	}
	if account.LastError != "" {
		rows = append(rows, row("Last error", theme.ErrorStyle.Render(account.LastError)))
	}
	b.WriteString(theme.PanelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...)))

	if len(states) > 0 {
		b.WriteString("\n")
		b.WriteString(theme.HeaderStyle.Render("Folders"))
		b.WriteString("\n")
		for _, s := range states {
			b.WriteString(fmt.Sprintf("%-24s validity %-12s last uid %-8s emails %d\n",
				s.FolderPath, optional(s.UIDValidity), optional(s.LastSyncedUID), s.EmailCount))
		}
	}

	if len(history) > 0 {
		b.WriteString("\n")
		b.WriteString(theme.HeaderStyle.Render("Recent syncs"))
		b.WriteString("\n")
		for _, h := range history {
			line := fmt.Sprintf("%s  %s  +%d ~%d",
				h.StartedAt.Local().Format(timeLayout),
				theme.HistoryStatusStyle(h.Status).Render(fmt.Sprintf("%-9s", h.Status)),
				h.EmailsAdded,
				h.EmailsUpdated,
			)
			if h.ErrorMessage != "" {
				line += "  " + theme.ErrorStyle.Render(h.ErrorMessage)
			}
			b.WriteString(line + "\n")
		}
	}

	return b.String()
}

func row(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, theme.LabelStyle.Render(label), value)
}

func optional[T uint32 | uint64](v *T) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprint(*v)
}
