package sync

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/nhle/mailsync/internal/logging"
	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/source"
	"github.com/nhle/mailsync/internal/store"
)

const snippetLength = 200

// FolderStats are the counters of one folder sync.
type FolderStats struct {
	Processed    int  `json:"emails_processed"`
	Added        int  `json:"emails_added"`
	Updated      int  `json:"emails_updated"`
	FlagsUpdated int  `json:"flags_updated"`
	Failed       int  `json:"emails_failed"`
	Retried      int  `json:"emails_retried"`
	MailboxReset bool `json:"mailbox_reset"`
}

type upsertOutcome int

const (
	outcomeVanished upsertOutcome = iota
	outcomeAdded
	outcomeUpdated
	outcomeUnchanged
)

// FolderSyncEngine runs the UID algorithm for the folders of one account
// over one connection and one store session.
type FolderSyncEngine struct {
	conn    source.Connector
	sess    store.Session
	account *model.EmailAccount
	cfg     model.SyncConfig
	flags   *FlagReconciler
	commit  func(ctx context.Context) error
	now     func() time.Time
	logger  zerolog.Logger

	// stats of the folder in progress; committed is the part of them made
	// durable by the last checkpoint.
	stats     FolderStats
	committed FolderStats
}

// Sync brings one folder up to date. On error the returned stats count
// only work that was committed; everything after the last commit is
// rolled back with the session.
func (e *FolderSyncEngine) Sync(ctx context.Context, folder string, forceFull bool) (FolderStats, error) {
	e.stats, e.committed = FolderStats{}, FolderStats{}
	if err := e.syncFolder(ctx, folder, forceFull); err != nil {
		return e.committed, err
	}
	return e.stats, nil
}

func (e *FolderSyncEngine) syncFolder(ctx context.Context, folder string, forceFull bool) error {
	stats := &e.stats
	logger := logging.WithFolder(e.logger, folder)

	status, err := e.conn.GetFolderStatus(ctx, folder)
	if err != nil {
		return fmt.Errorf("status of %s: %w", folder, err)
	}

	state, err := e.sess.GetFolderState(ctx, e.account.ID, folder)
	if err != nil {
		return err
	}
	if state == nil {
		state = &model.FolderSyncState{AccountID: e.account.ID, FolderPath: folder}
	}
	previousModSeq := state.HighestModSeq

	full := forceFull
	switch {
	case state.UIDValidity == nil:
		validity := status.UIDValidity
		state.UIDValidity = &validity
	case *state.UIDValidity != status.UIDValidity:
		cleared, err := e.sess.ClearFolderUIDs(ctx, e.account.ID, folder)
		if err != nil {
			return err
		}
		if err := e.sess.ClearFolderRetries(ctx, e.account.ID, folder); err != nil {
			return err
		}
		logger.Warn().
			Uint32("old_uidvalidity", *state.UIDValidity).
			Uint32("new_uidvalidity", status.UIDValidity).
			Int64("cleared", cleared).
			Msg("mailbox reset, resyncing folder")
		state.Reset(status.UIDValidity)
		previousModSeq = nil
		stats.MailboxReset = true
		full = true
	}
	if state.LastSyncedUID == nil {
		full = true
	}
	validity := *state.UIDValidity

	if !stats.MailboxReset {
		if err := e.retryQueued(ctx, logger, folder, validity); err != nil {
			return err
		}
	}

	uids, err := e.uidsToFetch(ctx, logger, folder, state, status, full)
	if err != nil {
		return err
	}
	if len(uids) > 0 {
		logger.Info().Int("count", len(uids)).Bool("full", full).Msg("fetching messages")
	}

	batchSize := max(e.cfg.BatchSize, 1)
	commitEvery := max(e.cfg.CommitEvery, 1)
	for start := 0; start < len(uids); start += batchSize {
		batch := uids[start:min(start+batchSize, len(uids))]
		pending := 0

		for _, uid := range batch {
			if err := ctx.Err(); err != nil {
				return err
			}

			outcome, err := e.syncMessage(ctx, folder, uid, validity)
			switch Decide(err) {
			case ActionContinue:
				stats.record(outcome)
				if outcome != outcomeVanished {
					pending++
				}
			case ActionSkip:
				stats.Failed++
				logger.Warn().Err(err).Uint32("uid", uid).Msg("skipping message")
				retry := model.FolderRetry{
					AccountID:   e.account.ID,
					FolderPath:  folder,
					UID:         uid,
					UIDValidity: validity,
					LastError:   err.Error(),
					UpdatedAt:   e.now(),
				}
				if err := e.sess.RecordFolderRetry(ctx, retry); err != nil {
					return err
				}
			default:
				return err
			}

			if pending >= commitEvery {
				state.AdvanceCursor(uid)
				if err := e.saveAndCommit(ctx, state); err != nil {
					return err
				}
				pending = 0
			}
		}

		state.AdvanceCursor(batch[len(batch)-1])
		if err := e.saveAndCommit(ctx, state); err != nil {
			return err
		}
	}

	if e.account.SupportsCondstore && previousModSeq != nil && status.HighestModSeq != nil {
		updated, err := e.flags.Reconcile(ctx, folder, validity, *previousModSeq, *status.HighestModSeq)
		// Reconcile counts only rows of batches it committed.
		stats.FlagsUpdated += updated
		e.committed.FlagsUpdated += updated
		if err != nil {
			return err
		}
	}

	now := e.now()
	if status.HighestModSeq != nil {
		modSeq := *status.HighestModSeq
		state.HighestModSeq = &modSeq
	} else {
		state.HighestModSeq = nil
	}
	state.EmailCount = int64(status.Exists)
	state.LastSyncAt = &now
	if err := e.saveAndCommit(ctx, state); err != nil {
		return err
	}

	logger.Debug().
		Int("processed", stats.Processed).
		Int("added", stats.Added).
		Int("updated", stats.Updated).
		Int("flags_updated", stats.FlagsUpdated).
		Int("failed", stats.Failed).
		Msg("folder synced")
	return nil
}

// uidsToFetch returns the ascending UIDs of this run: everything inside
// the sync window on a full sync, otherwise everything above the cursor.
func (e *FolderSyncEngine) uidsToFetch(
	ctx context.Context,
	logger zerolog.Logger,
	folder string,
	state *model.FolderSyncState,
	status source.FolderStatus,
	full bool,
) ([]uint32, error) {
	var uids []uint32
	if full {
		since := windowStart(e.account, e.cfg.WindowAnchor, e.now())
		logger.Info().
			Time("since", since).
			Str("anchor", e.cfg.WindowAnchor).
			Msg("full sync window")

		found, err := e.conn.FetchUIDsSinceDate(ctx, folder, since)
		if err != nil {
			return nil, fmt.Errorf("searching %s: %w", folder, err)
		}
		uids = found
	} else {
		last := *state.LastSyncedUID
		if status.UIDNext != 0 && status.UIDNext <= last+1 {
			return nil, nil
		}

		found, err := e.conn.FetchUIDsInRange(ctx, folder, last+1, source.Unbounded)
		if err != nil {
			return nil, fmt.Errorf("searching %s: %w", folder, err)
		}
		// "n:*" always matches the highest UID, even when it is below n.
		for _, uid := range found {
			if uid > last {
				uids = append(uids, uid)
			}
		}
	}

	slices.Sort(uids)
	return slices.Compact(uids), nil
}

// retryQueued refetches UIDs that failed on earlier runs of this epoch.
func (e *FolderSyncEngine) retryQueued(
	ctx context.Context,
	logger zerolog.Logger,
	folder string,
	validity uint32,
) error {
	stats := &e.stats
	retries, err := e.sess.ListFolderRetries(ctx, e.account.ID, folder)
	if err != nil {
		return err
	}
	if len(retries) == 0 {
		return nil
	}

	for _, r := range retries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.UIDValidity != validity {
			if err := e.sess.DeleteFolderRetry(ctx, e.account.ID, folder, r.UID); err != nil {
				return err
			}
			continue
		}

		outcome, err := e.syncMessage(ctx, folder, r.UID, validity)
		switch Decide(err) {
		case ActionContinue:
			stats.record(outcome)
			if outcome != outcomeVanished {
				stats.Retried++
			}
			if err := e.sess.DeleteFolderRetry(ctx, e.account.ID, folder, r.UID); err != nil {
				return err
			}
		case ActionSkip:
			stats.Failed++
			if r.Attempts+1 >= e.cfg.MaxUIDRetries {
				logger.Warn().Err(err).Uint32("uid", r.UID).Int("attempts", r.Attempts+1).
					Msg("giving up on message")
				if err := e.sess.DeleteFolderRetry(ctx, e.account.ID, folder, r.UID); err != nil {
					return err
				}
				continue
			}
			r.LastError = err.Error()
			r.UpdatedAt = e.now()
			if err := e.sess.RecordFolderRetry(ctx, r); err != nil {
				return err
			}
		default:
			return err
		}
	}

	return e.checkpoint(ctx)
}

// syncMessage fetches one UID and upserts it by Message-ID.
func (e *FolderSyncEngine) syncMessage(
	ctx context.Context,
	folder string,
	uid, validity uint32,
) (upsertOutcome, error) {
	msg, err := e.conn.FetchEmailByUID(ctx, folder, uid)
	if err != nil {
		return outcomeVanished, err
	}
	if msg == nil {
		return outcomeVanished, nil
	}

	existing, err := e.sess.FindEmailByMessageID(ctx, e.account.ID, msg.MessageID)
	if err != nil {
		return outcomeVanished, err
	}
	if existing != nil {
		return e.moveEmail(ctx, existing, folder, uid, validity, msg.Flags)
	}

	email := newEmail(e.account.ID, folder, uid, validity, msg)
	err = e.sess.InsertEmail(ctx, email)
	if Decide(err) == ActionUpdate {
		existing, err = e.sess.FindEmailByMessageID(ctx, e.account.ID, msg.MessageID)
		if err != nil {
			return outcomeVanished, err
		}
		if existing == nil {
			return outcomeVanished, fmt.Errorf("email %s vanished after duplicate insert", msg.MessageID)
		}
		return e.moveEmail(ctx, existing, folder, uid, validity, msg.Flags)
	}
	if err != nil {
		return outcomeVanished, err
	}
	return outcomeAdded, nil
}

func (e *FolderSyncEngine) moveEmail(
	ctx context.Context,
	email *model.Email,
	folder string,
	uid, validity uint32,
	flags model.Flags,
) (upsertOutcome, error) {
	if email.SameLocation(folder, uid, validity, flags) {
		return outcomeUnchanged, nil
	}
	email.FolderPath = folder
	email.IMAPUID = &uid
	email.UIDValidity = &validity
	email.Flags = flags
	if err := e.sess.UpdateEmailLocation(ctx, email); err != nil {
		return outcomeVanished, err
	}
	return outcomeUpdated, nil
}

func (e *FolderSyncEngine) saveAndCommit(ctx context.Context, state *model.FolderSyncState) error {
	if err := e.sess.SaveFolderState(ctx, state); err != nil {
		return err
	}
	return e.checkpoint(ctx)
}

// checkpoint commits the session and marks the current stats durable.
func (e *FolderSyncEngine) checkpoint(ctx context.Context) error {
	if err := e.commit(ctx); err != nil {
		return err
	}
	e.committed = e.stats
	return nil
}

func (s *FolderStats) record(outcome upsertOutcome) {
	switch outcome {
	case outcomeAdded:
		s.Processed++
		s.Added++
	case outcomeUpdated:
		s.Processed++
		s.Updated++
	case outcomeUnchanged:
		s.Processed++
	}
}

func (s *FolderStats) add(other FolderStats) {
	s.Processed += other.Processed
	s.Added += other.Added
	s.Updated += other.Updated
	s.FlagsUpdated += other.FlagsUpdated
	s.Failed += other.Failed
	s.Retried += other.Retried
	s.MailboxReset = s.MailboxReset || other.MailboxReset
}

func newEmail(accountID, folder string, uid, validity uint32, msg *source.Message) *model.Email {
	sentAt := msg.SentAt
	if sentAt.IsZero() {
		sentAt = msg.InternalDate
	}
	return &model.Email{
		AccountID:      accountID,
		MessageID:      msg.MessageID,
		FolderPath:     folder,
		IMAPUID:        &uid,
		UIDValidity:    &validity,
		Flags:          msg.Flags,
		Subject:        msg.Subject,
		FromAddr:       msg.FromAddr,
		FromName:       msg.FromName,
		ToAddrs:        strings.Join(msg.To, ", "),
		CcAddrs:        strings.Join(msg.Cc, ", "),
		InReplyTo:      msg.InReplyTo,
		SentAt:         sentAt,
		InternalDate:   msg.InternalDate,
		BodyText:       msg.TextBody,
		BodyHTML:       msg.HTMLBody,
		Snippet:        snippet(msg.TextBody),
		Size:           msg.Size,
		HasAttachments: len(msg.Attachments) > 0,
	}
}

// snippet collapses whitespace and cuts the body to snippetLength runes.
func snippet(body string) string {
	s := strings.Join(strings.Fields(body), " ")
	if utf8.RuneCountInString(s) <= snippetLength {
		return s
	}
	return string([]rune(s)[:snippetLength])
}
