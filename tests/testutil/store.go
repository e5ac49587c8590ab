package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/store"
)

// NewTestStore creates an in-memory SQLStore with all migrations applied.
// It automatically closes the store when the test completes.
func NewTestStore(t *testing.T) *store.SQLStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}

	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("closing test store: %v", err)
		}
	})

	return s
}

// NewTestAccount inserts an active idle account syncing INBOX with a
// 30-day window created at createdAt.
func NewTestAccount(t *testing.T, s store.Store, createdAt time.Time) *model.EmailAccount {
	t.Helper()

	account := &model.EmailAccount{
		UserID:         "user-1",
		Email:          "alice@example.com",
		Provider:       model.ProviderIMAP,
		Host:           "imap.example.com",
		Port:           993,
		Username:       "alice",
		UseTLS:         true,
		SyncWindowDays: 30,
		SyncFolders:    []string{"INBOX"},
		SyncStatus:     model.SyncStatusIdle,
		Active:         true,
		CreatedAt:      createdAt,
	}
	require.NoError(t, s.CreateAccount(context.Background(), account))
	return account
}
