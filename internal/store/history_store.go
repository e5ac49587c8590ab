package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/mailsync/internal/model"
)

const historyColumns = `
	id, account_id, status, force_full_sync,
	emails_processed, emails_added, emails_updated, flags_updated, folders_synced,
	error_message, started_at, completed_at, last_updated`

// CreateSyncHistory inserts a new history record. Generates a UUID if ID
// is empty.
func (s *SQLStore) CreateSyncHistory(ctx context.Context, rec *model.SyncHistoryRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now().UTC()
	}
	if rec.LastUpdated.IsZero() {
		rec.LastUpdated = rec.StartedAt
	}

	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO sync_history (`+historyColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		rec.ID, rec.AccountID, string(rec.Status), rec.ForceFullSync,
		rec.EmailsProcessed, rec.EmailsAdded, rec.EmailsUpdated, rec.FlagsUpdated, rec.FoldersSynced,
		rec.ErrorMessage, rec.StartedAt.UTC(), utcPtr(rec.CompletedAt), rec.LastUpdated.UTC(),
	)
	if err != nil {
		return fmt.Errorf("creating sync history for %s: %w", rec.AccountID, err)
	}
	return nil
}

// UpdateSyncHistory writes the counters and outcome of a record.
func (s *SQLStore) UpdateSyncHistory(ctx context.Context, rec *model.SyncHistoryRecord) error {
	result, err := s.db.ExecContext(ctx, s.q(`
		UPDATE sync_history SET
			status = ?, emails_processed = ?, emails_added = ?, emails_updated = ?,
			flags_updated = ?, folders_synced = ?, error_message = ?,
			completed_at = ?, last_updated = ?
		WHERE id = ?`),
		string(rec.Status), rec.EmailsProcessed, rec.EmailsAdded, rec.EmailsUpdated,
		rec.FlagsUpdated, rec.FoldersSynced, rec.ErrorMessage,
		utcPtr(rec.CompletedAt), rec.LastUpdated.UTC(),
		rec.ID,
	)
	if err != nil {
		return fmt.Errorf("updating sync history %s: %w", rec.ID, err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("sync history %s: %w", rec.ID, ErrNotFound)
	}
	return nil
}

// TouchSyncHistory bumps last_updated of a running record.
func (s *SQLStore) TouchSyncHistory(ctx context.Context, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		s.q("UPDATE sync_history SET last_updated = ? WHERE id = ? AND status = ?"),
		at.UTC(), id, string(model.HistoryRunning),
	)
	if err != nil {
		return fmt.Errorf("touching sync history %s: %w", id, err)
	}
	return nil
}

func (s *SQLStore) GetRecentSyncHistory(
	ctx context.Context,
	accountID string,
	limit int,
) ([]model.SyncHistoryRecord, error) {
	var records []model.SyncHistoryRecord
	err := s.db.SelectContext(ctx, &records, s.q(`
		SELECT `+historyColumns+` FROM sync_history
		WHERE account_id = ?
		ORDER BY started_at DESC, id DESC
		LIMIT ?`), accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying sync history of %s: %w", accountID, err)
	}
	return records, nil
}

func (s *SQLStore) GetRunningSyncHistory(
	ctx context.Context,
	accountID string,
) (*model.SyncHistoryRecord, error) {
	var rec model.SyncHistoryRecord
	err := s.db.GetContext(ctx, &rec, s.q(`
		SELECT `+historyColumns+` FROM sync_history
		WHERE account_id = ? AND status = ?
		ORDER BY started_at DESC, id DESC
		LIMIT 1`), accountID, string(model.HistoryRunning))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying running sync of %s: %w", accountID, err)
	}
	return &rec, nil
}

// GetFolderStates returns the cursors of every folder of an account.
func (s *SQLStore) GetFolderStates(ctx context.Context, accountID string) ([]model.FolderSyncState, error) {
	var states []model.FolderSyncState
	err := s.db.SelectContext(ctx, &states, s.q(`
		SELECT `+folderStateColumns+` FROM folder_sync_states
		WHERE account_id = ? ORDER BY folder_path`), accountID)
	if err != nil {
		return nil, fmt.Errorf("querying folder states of %s: %w", accountID, err)
	}
	return states, nil
}

// GetEmailByMessageID looks up a stored email outside of a sync session.
func (s *SQLStore) GetEmailByMessageID(ctx context.Context, accountID, messageID string) (*model.Email, error) {
	var email model.Email
	err := s.db.GetContext(ctx, &email, s.q(`
		SELECT `+emailColumns+` FROM emails
		WHERE account_id = ? AND message_id = ?`), accountID, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("email %s: %w", messageID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting email %s: %w", messageID, err)
	}
	return &email, nil
}

// CountEmails counts stored emails of an account, optionally restricted
// to one folder.
func (s *SQLStore) CountEmails(ctx context.Context, accountID, folder string) (int64, error) {
	query := "SELECT COUNT(*) FROM emails WHERE account_id = ?"
	args := []any{accountID}
	if folder != "" {
		query += " AND folder_path = ?"
		args = append(args, folder)
	}

	var n int64
	if err := s.db.GetContext(ctx, &n, s.q(query), args...); err != nil {
		return 0, fmt.Errorf("counting emails of %s: %w", accountID, err)
	}
	return n, nil
}
