package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nhle/mailsync/internal/model"
)

const folderStateColumns = `
	account_id, folder_path, uid_validity, last_synced_uid,
	highest_mod_seq, last_sync_at, email_count`

const emailColumns = `
	id, account_id, message_id, folder_path, imap_uid, uid_validity,
	is_read, is_flagged, is_answered, is_deleted, is_draft,
	subject, from_addr, from_name, to_addrs, cc_addrs, in_reply_to,
	sent_at, internal_date, body_text, body_html, snippet, size,
	has_attachments, created_at, updated_at`

// sqlSession holds at most one open transaction. It is opened by the
// first call after construction or after a Commit.
type sqlSession struct {
	db *sqlx.DB
	tx *sqlx.Tx
}

// NewSession returns a session bound to this store.
func (s *SQLStore) NewSession() Session {
	return &sqlSession{db: s.db}
}

func (s *sqlSession) begin(ctx context.Context) (*sqlx.Tx, error) {
	if s.tx != nil {
		return s.tx, nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	s.tx = tx
	return tx, nil
}

// Commit makes pending writes durable. A session with nothing pending
// commits trivially.
func (s *sqlSession) Commit() error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *sqlSession) Close() error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rolling back transaction: %w", err)
	}
	return nil
}

func (s *sqlSession) GetFolderState(
	ctx context.Context,
	accountID, folder string,
) (*model.FolderSyncState, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}

	var state model.FolderSyncState
	err = tx.GetContext(ctx, &state, tx.Rebind(`
		SELECT `+folderStateColumns+` FROM folder_sync_states
		WHERE account_id = ? AND folder_path = ?`), accountID, folder)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting folder state %s: %w", folder, err)
	}
	return &state, nil
}

// SaveFolderState upserts the cursor row.
func (s *sqlSession) SaveFolderState(ctx context.Context, state *model.FolderSyncState) error {
	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO folder_sync_states (`+folderStateColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (account_id, folder_path) DO UPDATE SET
			uid_validity = excluded.uid_validity,
			last_synced_uid = excluded.last_synced_uid,
			highest_mod_seq = excluded.highest_mod_seq,
			last_sync_at = excluded.last_sync_at,
			email_count = excluded.email_count`),
		state.AccountID, state.FolderPath,
		nullUID(state.UIDValidity), nullUID(state.LastSyncedUID), nullModSeq(state.HighestModSeq),
		utcPtr(state.LastSyncAt), state.EmailCount,
	)
	if err != nil {
		return fmt.Errorf("saving folder state %s: %w", state.FolderPath, err)
	}
	return nil
}

func (s *sqlSession) ClearFolderUIDs(ctx context.Context, accountID, folder string) (int64, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return 0, err
	}

	result, err := tx.ExecContext(ctx, tx.Rebind(`
		UPDATE emails SET imap_uid = NULL, uid_validity = NULL, updated_at = ?
		WHERE account_id = ? AND folder_path = ?
			AND (imap_uid IS NOT NULL OR uid_validity IS NOT NULL)`),
		time.Now().UTC(), accountID, folder,
	)
	if err != nil {
		return 0, fmt.Errorf("clearing UIDs of %s: %w", folder, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clearing UIDs of %s: %w", folder, err)
	}
	return n, nil
}

func (s *sqlSession) FindEmailByMessageID(
	ctx context.Context,
	accountID, messageID string,
) (*model.Email, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}

	var email model.Email
	err = tx.GetContext(ctx, &email, tx.Rebind(`
		SELECT `+emailColumns+` FROM emails
		WHERE account_id = ? AND message_id = ?`), accountID, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding email %s: %w", messageID, err)
	}
	return &email, nil
}

// InsertEmail inserts inside a savepoint so that a lost dedup race only
// undoes this row. Generates a UUID if ID is empty.
func (s *sqlSession) InsertEmail(ctx context.Context, email *model.Email) error {
	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}

	if email.ID == "" {
		email.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if email.CreatedAt.IsZero() {
		email.CreatedAt = now
	}
	email.UpdatedAt = now

	if _, err := tx.ExecContext(ctx, "SAVEPOINT insert_email"); err != nil {
		return fmt.Errorf("creating savepoint: %w", err)
	}

	_, err = tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO emails (`+emailColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		email.ID, email.AccountID, email.MessageID, email.FolderPath,
		nullUID(email.IMAPUID), nullUID(email.UIDValidity),
		email.IsRead, email.IsFlagged, email.IsAnswered, email.IsDeleted, email.IsDraft,
		email.Subject, email.FromAddr, email.FromName, email.ToAddrs, email.CcAddrs, email.InReplyTo,
		email.SentAt.UTC(), email.InternalDate.UTC(),
		email.BodyText, email.BodyHTML, email.Snippet, email.Size,
		email.HasAttachments, email.CreatedAt.UTC(), email.UpdatedAt,
	)
	if err != nil {
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT insert_email"); rbErr != nil {
			return fmt.Errorf("rolling back insert of %s: %w", email.MessageID, rbErr)
		}
		if isUniqueViolation(err) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("inserting email %s: %w", email.MessageID, err)
	}

	if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT insert_email"); err != nil {
		return fmt.Errorf("releasing savepoint: %w", err)
	}
	return nil
}

// UpdateEmailLocation moves an existing row to its current folder, UID
// and flags.
func (s *sqlSession) UpdateEmailLocation(ctx context.Context, email *model.Email) error {
	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}

	email.UpdatedAt = time.Now().UTC()
	_, err = tx.ExecContext(ctx, tx.Rebind(`
		UPDATE emails SET
			folder_path = ?, imap_uid = ?, uid_validity = ?,
			is_read = ?, is_flagged = ?, is_answered = ?, is_deleted = ?, is_draft = ?,
			updated_at = ?
		WHERE id = ?`),
		email.FolderPath, nullUID(email.IMAPUID), nullUID(email.UIDValidity),
		email.IsRead, email.IsFlagged, email.IsAnswered, email.IsDeleted, email.IsDraft,
		email.UpdatedAt, email.ID,
	)
	if err != nil {
		return fmt.Errorf("updating location of email %s: %w", email.ID, err)
	}
	return nil
}

func (s *sqlSession) GetEmailsByUIDs(
	ctx context.Context,
	accountID, folder string,
	uidValidity uint32,
	uids []uint32,
) ([]model.Email, error) {
	if len(uids) == 0 {
		return nil, nil
	}
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}

	bound := make([]int64, len(uids))
	for i, uid := range uids {
		bound[i] = int64(uid)
	}

	query, args, err := sqlx.In(`
		SELECT `+emailColumns+` FROM emails
		WHERE account_id = ? AND folder_path = ? AND uid_validity = ?
			AND imap_uid IN (?)
		ORDER BY imap_uid`, accountID, folder, int64(uidValidity), bound)
	if err != nil {
		return nil, fmt.Errorf("building UID query: %w", err)
	}

	var emails []model.Email
	if err := tx.SelectContext(ctx, &emails, tx.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("loading emails of %s by UID: %w", folder, err)
	}
	return emails, nil
}

func (s *sqlSession) UpdateEmailFlags(
	ctx context.Context,
	emailID string,
	flags model.Flags,
	at time.Time,
) error {
	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, tx.Rebind(`
		UPDATE emails SET
			is_read = ?, is_flagged = ?, is_answered = ?, is_deleted = ?, is_draft = ?,
			updated_at = ?
		WHERE id = ?`),
		flags.IsRead, flags.IsFlagged, flags.IsAnswered, flags.IsDeleted, flags.IsDraft,
		at.UTC(), emailID,
	)
	if err != nil {
		return fmt.Errorf("updating flags of email %s: %w", emailID, err)
	}
	return nil
}

func (s *sqlSession) ListFolderRetries(
	ctx context.Context,
	accountID, folder string,
) ([]model.FolderRetry, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}

	var retries []model.FolderRetry
	err = tx.SelectContext(ctx, &retries, tx.Rebind(`
		SELECT account_id, folder_path, uid, uid_validity, attempts, last_error, updated_at
		FROM folder_retry_uids
		WHERE account_id = ? AND folder_path = ?
		ORDER BY uid`), accountID, folder)
	if err != nil {
		return nil, fmt.Errorf("listing retries of %s: %w", folder, err)
	}
	return retries, nil
}

func (s *sqlSession) RecordFolderRetry(ctx context.Context, retry model.FolderRetry) error {
	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}

	if retry.UpdatedAt.IsZero() {
		retry.UpdatedAt = time.Now()
	}
	_, err = tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO folder_retry_uids
			(account_id, folder_path, uid, uid_validity, attempts, last_error, updated_at)
		VALUES (?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT (account_id, folder_path, uid) DO UPDATE SET
			uid_validity = excluded.uid_validity,
			attempts = folder_retry_uids.attempts + 1,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at`),
		retry.AccountID, retry.FolderPath, int64(retry.UID), int64(retry.UIDValidity),
		retry.LastError, retry.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording retry of %s/%d: %w", retry.FolderPath, retry.UID, err)
	}
	return nil
}

func (s *sqlSession) DeleteFolderRetry(ctx context.Context, accountID, folder string, uid uint32) error {
	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, tx.Rebind(`
		DELETE FROM folder_retry_uids
		WHERE account_id = ? AND folder_path = ? AND uid = ?`),
		accountID, folder, int64(uid),
	)
	if err != nil {
		return fmt.Errorf("deleting retry of %s/%d: %w", folder, uid, err)
	}
	return nil
}

func (s *sqlSession) ClearFolderRetries(ctx context.Context, accountID, folder string) error {
	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, tx.Rebind(
		"DELETE FROM folder_retry_uids WHERE account_id = ? AND folder_path = ?"),
		accountID, folder,
	)
	if err != nil {
		return fmt.Errorf("clearing retries of %s: %w", folder, err)
	}
	return nil
}
