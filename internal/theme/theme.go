package theme

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailsync/internal/model"
)

// Adaptive color pairs (dark terminal value, light terminal value).
var (
	ColorBlue   = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	ColorGreen  = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	ColorYellow = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	ColorRed    = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	ColorGray   = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	ColorWhite  = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
	ColorBorder = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#E2E8F0"}
)

// HeaderStyle is used for section headers and the account title.
var HeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(ColorWhite).
	Background(ColorBlue).
	Padding(0, 1)

// PanelStyle wraps a summary block.
var PanelStyle = lipgloss.NewStyle().
	Padding(0, 1).
	Border(lipgloss.RoundedBorder()).
	BorderForeground(ColorBorder)

// LabelStyle is used for the left column of key/value rows.
var LabelStyle = lipgloss.NewStyle().
	Foreground(ColorGray).
	Width(18)

// HelpStyle is used for hints and secondary text.
var HelpStyle = lipgloss.NewStyle().
	Foreground(ColorGray).
	Italic(true)

// ErrorStyle highlights error messages.
var ErrorStyle = lipgloss.NewStyle().
	Foreground(ColorRed)

// SyncStatusStyle returns a color-coded style for an account sync status.
func SyncStatusStyle(status model.SyncStatus) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)

	switch status {
	case model.SyncStatusRunning:
		return base.Foreground(ColorYellow)
	case model.SyncStatusCompleted:
		return base.Foreground(ColorGreen)
	case model.SyncStatusError:
		return base.Foreground(ColorRed)
	default:
		return base.Foreground(ColorGray)
	}
}

// HistoryStatusStyle returns a color-coded style for a sync attempt outcome.
func HistoryStatusStyle(status model.HistoryStatus) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)

	switch status {
	case model.HistoryRunning:
		return base.Foreground(ColorYellow)
	case model.HistoryCompleted:
		return base.Foreground(ColorGreen)
	case model.HistoryFailed:
		return base.Foreground(ColorRed)
	default:
		return base.Foreground(ColorGray)
	}
}
