package store

import (
	"context"
	"errors"
	"time"

	"github.com/nhle/mailsync/internal/model"
)

var (
	// ErrNotFound is returned when a looked-up row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateEmail is returned by Session.InsertEmail when another
	// row already holds the account's message_id. The failed insert has
	// been rolled back; the session remains usable.
	ErrDuplicateEmail = errors.New("duplicate email message_id")
)

// Store defines the persistence interface for accounts, sync bookkeeping
// and synced emails.
type Store interface {
	// === Accounts ===

	CreateAccount(ctx context.Context, account *model.EmailAccount) error
	GetAccount(ctx context.Context, id string) (*model.EmailAccount, error)
	ListAccounts(ctx context.Context, activeOnly bool) ([]model.EmailAccount, error)

	// UpdateAccount persists the mutable sync fields of an account.
	UpdateAccount(ctx context.Context, account *model.EmailAccount) error

	// ClaimAccountSync moves the account to running only if its status and
	// generation are still the expected ones. It reports whether the claim
	// won; a won claim increments the generation.
	ClaimAccountSync(ctx context.Context, id string, expected model.SyncStatus, generation int64, at time.Time) (bool, error)

	SaveAccountFolders(ctx context.Context, accountID string, folders []model.FolderInfo) error
	GetAccountFolders(ctx context.Context, accountID string) ([]model.FolderInfo, error)

	// === Sync history ===

	CreateSyncHistory(ctx context.Context, rec *model.SyncHistoryRecord) error
	UpdateSyncHistory(ctx context.Context, rec *model.SyncHistoryRecord) error
	TouchSyncHistory(ctx context.Context, id string, at time.Time) error

	// GetRecentSyncHistory returns up to limit records, newest first.
	GetRecentSyncHistory(ctx context.Context, accountID string, limit int) ([]model.SyncHistoryRecord, error)

	// GetRunningSyncHistory returns the newest running record, or nil.
	GetRunningSyncHistory(ctx context.Context, accountID string) (*model.SyncHistoryRecord, error)

	// === Read-side views ===

	GetFolderStates(ctx context.Context, accountID string) ([]model.FolderSyncState, error)
	GetEmailByMessageID(ctx context.Context, accountID, messageID string) (*model.Email, error)
	CountEmails(ctx context.Context, accountID, folder string) (int64, error)

	// === Downstream ===

	// EnqueueEmbeddingJob records (or refreshes) a pending embedding job
	// for the user.
	EnqueueEmbeddingJob(ctx context.Context, userID string, at time.Time) error

	// NewSession returns a unit of work used sequentially by one sync
	// attempt.
	NewSession() Session

	Close() error
}

// Session is the single database session of a sync attempt. Writes
// accumulate in a transaction that is opened lazily on first use and
// made durable by Commit. Between a Commit and the next call no
// transaction is held.
type Session interface {
	// GetFolderState returns nil, nil when the folder was never synced.
	GetFolderState(ctx context.Context, accountID, folder string) (*model.FolderSyncState, error)
	SaveFolderState(ctx context.Context, state *model.FolderSyncState) error

	// ClearFolderUIDs drops imap_uid/uid_validity of every email in the
	// folder and returns how many rows were cleared.
	ClearFolderUIDs(ctx context.Context, accountID, folder string) (int64, error)

	// FindEmailByMessageID returns nil, nil when no row matches.
	FindEmailByMessageID(ctx context.Context, accountID, messageID string) (*model.Email, error)
	InsertEmail(ctx context.Context, email *model.Email) error
	UpdateEmailLocation(ctx context.Context, email *model.Email) error

	// GetEmailsByUIDs loads rows of the folder whose UID was observed
	// under uidValidity. Rows tagged with another epoch are never returned.
	GetEmailsByUIDs(ctx context.Context, accountID, folder string, uidValidity uint32, uids []uint32) ([]model.Email, error)
	UpdateEmailFlags(ctx context.Context, emailID string, flags model.Flags, at time.Time) error

	ListFolderRetries(ctx context.Context, accountID, folder string) ([]model.FolderRetry, error)

	// RecordFolderRetry upserts a retry entry, incrementing attempts.
	RecordFolderRetry(ctx context.Context, retry model.FolderRetry) error
	DeleteFolderRetry(ctx context.Context, accountID, folder string, uid uint32) error
	ClearFolderRetries(ctx context.Context, accountID, folder string) error

	Commit() error

	// Close rolls back anything not yet committed.
	Close() error
}
