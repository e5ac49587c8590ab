package syncview

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/mailsync/internal/keys"
	"github.com/nhle/mailsync/internal/sync"
	"github.com/nhle/mailsync/internal/theme"
	"github.com/nhle/mailsync/internal/ui"
)

// RunFunc performs the sync shown by the view.
type RunFunc func(ctx context.Context) (*sync.SyncResult, error)

// syncDoneMsg carries the outcome of the sync command.
type syncDoneMsg struct {
	result *sync.SyncResult
	err    error
}

// Model is the Bubble Tea model showing a spinner while one account syncs.
type Model struct {
	title   string
	run     RunFunc
	ctx     context.Context
	cancel  context.CancelFunc
	spinner spinner.Model
	keys    *keys.KeyMap

	done       bool
	cancelling bool
	result     *sync.SyncResult
	err        error
}

// New creates a sync view. Interrupting the view cancels ctx passed to run;
// the view stays up until run has returned.
func New(ctx context.Context, title string, run RunFunc) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.ColorBlue)

	ctx, cancel := context.WithCancel(ctx)
	return Model{
		title:   title,
		run:     run,
		ctx:     ctx,
		cancel:  cancel,
		spinner: sp,
		keys:    keys.DefaultKeyMap(),
	}
}

// Init starts the spinner and the sync.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.runSync())
}

func (m Model) runSync() tea.Cmd {
	return func() tea.Msg {
		result, err := m.run(m.ctx)
		return syncDoneMsg{result: result, err: err}
	}
}

// Update handles messages for the sync view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case syncDoneMsg:
		m.done = true
		m.result = msg.result
		m.err = msg.err
		m.cancel()
		return m, tea.Quit

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Cancel) {
			m.cancelling = true
			m.cancel()
		}
		return m, nil
	}

	return m, nil
}

// View renders the spinner or, once finished, the result summary.
func (m Model) View() string {
	if m.done {
		return ui.RenderResult(m.title, m.result, m.err) + "\n"
	}

	status := fmt.Sprintf("%s Syncing %s...", m.spinner.View(), m.title)
	if m.cancelling {
		status += theme.HelpStyle.Render(" cancelling, saving progress")
	} else {
		status += theme.HelpStyle.Render(" (" + m.keys.ShortHelp() + ")")
	}
	return status + "\n"
}

// Result returns the outcome once the program has exited.
func (m Model) Result() (*sync.SyncResult, error) {
	return m.result, m.err
}
