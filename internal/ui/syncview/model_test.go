package syncview

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailsync/internal/sync"
)

func TestRunSyncReportsResult(t *testing.T) {
	m := New(context.Background(), "alice@example.com", func(ctx context.Context) (*sync.SyncResult, error) {
		return &sync.SyncResult{Success: true, EmailsAdded: 3}, nil
	})

	msg := m.runSync()()
	updated, cmd := m.Update(msg)
	require.NotNil(t, cmd)

	view := updated.(Model)
	result, err := view.Result()
	require.NoError(t, err)
	assert.Equal(t, 3, result.EmailsAdded)
	assert.Contains(t, view.View(), "completed")
}

func TestInterruptCancelsSync(t *testing.T) {
	var seen context.Context
	m := New(context.Background(), "alice@example.com", func(ctx context.Context) (*sync.SyncResult, error) {
		seen = ctx
		<-ctx.Done()
		return &sync.SyncResult{}, ctx.Err()
	})

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	m = updated.(Model)
	assert.Contains(t, m.View(), "cancelling")

	updated, _ = m.Update(m.runSync()())
	m = updated.(Model)

	require.NotNil(t, seen)
	assert.ErrorIs(t, seen.Err(), context.Canceled)
	_, err := m.Result()
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Contains(t, m.View(), "error")
}
