package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/mailsync/internal/model"
)

const accountColumns = `
	id, user_id, email, provider,
	imap_host, imap_port, imap_username, imap_password, imap_tls,
	sync_window_days, sync_folders,
	supports_condstore, supports_qresync, folders_discovered,
	sync_status, last_sync_at, last_error, total_emails_synced, active,
	created_at, updated_at, sync_generation`

// accountRow carries the JSON-encoded folder list alongside the account.
type accountRow struct {
	model.EmailAccount
	SyncFoldersJSON string `db:"sync_folders"`
}

func (r *accountRow) toModel() (*model.EmailAccount, error) {
	account := r.EmailAccount
	if r.SyncFoldersJSON != "" {
		if err := json.Unmarshal([]byte(r.SyncFoldersJSON), &account.SyncFolders); err != nil {
			return nil, fmt.Errorf("unmarshaling sync_folders of %s: %w", account.ID, err)
		}
	}
	return &account, nil
}

func (s *SQLStore) q(query string) string {
	return s.db.Rebind(query)
}

// CreateAccount inserts a new account. Generates a UUID if ID is empty;
// CreatedAt defaults to now.
func (s *SQLStore) CreateAccount(ctx context.Context, account *model.EmailAccount) error {
	if account.Email == "" {
		return fmt.Errorf("account email must not be empty")
	}
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now
	if account.SyncStatus == "" {
		account.SyncStatus = model.SyncStatusIdle
	}
	if account.Provider == "" {
		account.Provider = model.ProviderIMAP
	}

	folders, err := json.Marshal(nonNil(account.SyncFolders))
	if err != nil {
		return fmt.Errorf("marshaling sync_folders: %w", err)
	}

	_, err = s.db.ExecContext(ctx, s.q(`
		INSERT INTO email_accounts (`+accountColumns+`
		) VALUES (
			?, ?, ?, ?,
			?, ?, ?, ?, ?,
			?, ?,
			?, ?, ?,
			?, ?, ?, ?, ?,
			?, ?, ?
		)`),
		account.ID, account.UserID, account.Email, string(account.Provider),
		account.Host, account.Port, account.Username, account.Password, account.UseTLS,
		account.SyncWindowDays, string(folders),
		account.SupportsCondstore, account.SupportsQResync, account.FoldersDiscovered,
		string(account.SyncStatus), utcPtr(account.LastSyncAt), account.LastError,
		account.TotalEmailsSynced, account.Active,
		account.CreatedAt.UTC(), account.UpdatedAt, account.SyncGeneration,
	)
	if err != nil {
		return fmt.Errorf("creating account %s: %w", account.Email, err)
	}
	return nil
}

// GetAccount retrieves a single account by ID.
func (s *SQLStore) GetAccount(ctx context.Context, id string) (*model.EmailAccount, error) {
	var row accountRow
	err := s.db.GetContext(ctx, &row,
		s.q("SELECT "+accountColumns+" FROM email_accounts WHERE id = ?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting account %s: %w", id, err)
	}
	return row.toModel()
}

// ListAccounts returns accounts ordered by creation time.
func (s *SQLStore) ListAccounts(ctx context.Context, activeOnly bool) ([]model.EmailAccount, error) {
	query := "SELECT " + accountColumns + " FROM email_accounts"
	var args []any
	if activeOnly {
		query += " WHERE active = ?"
		args = append(args, true)
	}
	query += " ORDER BY created_at, id"

	var rows []accountRow
	if err := s.db.SelectContext(ctx, &rows, s.q(query), args...); err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}

	accounts := make([]model.EmailAccount, 0, len(rows))
	for i := range rows {
		account, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *account)
	}
	return accounts, nil
}

// UpdateAccount writes back capability flags, folder configuration and
// sync outcome fields.
func (s *SQLStore) UpdateAccount(ctx context.Context, account *model.EmailAccount) error {
	folders, err := json.Marshal(nonNil(account.SyncFolders))
	if err != nil {
		return fmt.Errorf("marshaling sync_folders: %w", err)
	}
	account.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, s.q(`
		UPDATE email_accounts SET
			sync_folders = ?, supports_condstore = ?, supports_qresync = ?,
			folders_discovered = ?, sync_status = ?, last_sync_at = ?,
			last_error = ?, total_emails_synced = ?, active = ?, updated_at = ?
		WHERE id = ?`),
		string(folders), account.SupportsCondstore, account.SupportsQResync,
		account.FoldersDiscovered, string(account.SyncStatus), utcPtr(account.LastSyncAt),
		account.LastError, account.TotalEmailsSynced, account.Active, account.UpdatedAt,
		account.ID,
	)
	if err != nil {
		return fmt.Errorf("updating account %s: %w", account.ID, err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("account %s: %w", account.ID, ErrNotFound)
	}
	return nil
}

// ClaimAccountSync is a compare-and-set on sync_status and
// sync_generation. A winning claim bumps the generation, so a second
// claimant holding the same snapshot loses even when the status it
// expects is already running.
func (s *SQLStore) ClaimAccountSync(
	ctx context.Context,
	id string,
	expected model.SyncStatus,
	generation int64,
	at time.Time,
) (bool, error) {
	result, err := s.db.ExecContext(ctx, s.q(`
		UPDATE email_accounts
		SET sync_status = ?, sync_generation = sync_generation + 1, updated_at = ?
		WHERE id = ? AND sync_status = ? AND sync_generation = ?`),
		string(model.SyncStatusRunning), at.UTC(), id, string(expected), generation,
	)
	if err != nil {
		return false, fmt.Errorf("claiming sync for account %s: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claiming sync for account %s: %w", id, err)
	}
	return rows == 1, nil
}

// SaveAccountFolders replaces the discovered folder list of an account.
func (s *SQLStore) SaveAccountFolders(
	ctx context.Context,
	accountID string,
	folders []model.FolderInfo,
) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		tx.Rebind("DELETE FROM account_folders WHERE account_id = ?"), accountID,
	); err != nil {
		return fmt.Errorf("clearing folders of %s: %w", accountID, err)
	}

	stmt, err := tx.PreparexContext(ctx, tx.Rebind(`
		INSERT INTO account_folders (account_id, name, delimiter, attributes, selectable)
		VALUES (?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("preparing folder insert: %w", err)
	}
	defer stmt.Close()

	for _, f := range folders {
		attrs, err := json.Marshal(nonNil(f.Attributes))
		if err != nil {
			return fmt.Errorf("marshaling attributes of %s: %w", f.Name, err)
		}
		if _, err := stmt.ExecContext(ctx,
			accountID, f.Name, f.Delimiter, string(attrs), f.Selectable,
		); err != nil {
			return fmt.Errorf("saving folder %s: %w", f.Name, err)
		}
	}

	return tx.Commit()
}

// GetAccountFolders returns the folders discovered for an account.
func (s *SQLStore) GetAccountFolders(ctx context.Context, accountID string) ([]model.FolderInfo, error) {
	type folderRow struct {
		model.FolderInfo
		AttributesJSON string `db:"attributes"`
	}

	var rows []folderRow
	err := s.db.SelectContext(ctx, &rows, s.q(`
		SELECT name, delimiter, attributes, selectable
		FROM account_folders WHERE account_id = ? ORDER BY name`), accountID)
	if err != nil {
		return nil, fmt.Errorf("querying folders of %s: %w", accountID, err)
	}

	folders := make([]model.FolderInfo, 0, len(rows))
	for _, r := range rows {
		f := r.FolderInfo
		if r.AttributesJSON != "" {
			if err := json.Unmarshal([]byte(r.AttributesJSON), &f.Attributes); err != nil {
				return nil, fmt.Errorf("unmarshaling attributes of %s: %w", f.Name, err)
			}
		}
		folders = append(folders, f)
	}
	return folders, nil
}

// EnqueueEmbeddingJob upserts a pending embedding job for the user.
func (s *SQLStore) EnqueueEmbeddingJob(ctx context.Context, userID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO embedding_jobs (user_id, status, requested_at, updated_at)
		VALUES (?, 'pending', ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			status = 'pending', requested_at = excluded.requested_at,
			updated_at = excluded.updated_at`),
		userID, at.UTC(), at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("enqueueing embedding job for user %s: %w", userID, err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
