package sync

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/source"
)

func TestDefaultSyncFolders(t *testing.T) {
	folders := []model.FolderInfo{
		{Name: "[Gmail]", Attributes: []string{`\Noselect`}, Selectable: false},
		{Name: "INBOX", Selectable: true},
		{Name: "[Gmail]/All Mail", Attributes: []string{`\All`, `\Archive`}, Selectable: true},
		{Name: "[Gmail]/Sent Mail", Attributes: []string{`\sent`}, Selectable: true},
		{Name: "Junk", Attributes: []string{`\Junk`}, Selectable: true},
	}

	assert.Equal(t,
		[]string{"INBOX", "[Gmail]/Sent Mail", "[Gmail]/All Mail"},
		defaultSyncFolders(folders))
	assert.Equal(t, []string{"INBOX"}, defaultSyncFolders(nil))
}

func TestNegotiateDiscoversFoldersOnce(t *testing.T) {
	h := newHarness(t)
	h.account.SyncFolders = nil
	h.conn.caps = source.Capabilities{CondStore: true, QResync: true}

	negotiator := NewCapabilityNegotiator(h.store, zerolog.Nop())
	require.NoError(t, negotiator.Negotiate(context.Background(), h.conn, h.account))

	assert.True(t, h.account.FoldersDiscovered)
	assert.True(t, h.account.SupportsQResync)
	assert.Equal(t, []string{"INBOX", "Sent"}, h.account.SyncFolders)

	// Later negotiations keep the configured folders even if the server
	// listing changes.
	h.conn.list = nil
	h.conn.caps = source.Capabilities{}
	require.NoError(t, negotiator.Negotiate(context.Background(), h.conn, h.account))

	stored, err := h.store.GetAccount(context.Background(), h.account.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"INBOX", "Sent"}, stored.SyncFolders)
	assert.False(t, stored.SupportsCondstore)

	folders, err := h.store.GetAccountFolders(context.Background(), h.account.ID)
	require.NoError(t, err)
	assert.Len(t, folders, 2)
}
