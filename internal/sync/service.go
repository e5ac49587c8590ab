package sync

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	gosync "sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/mailsync/internal/embedding"
	"github.com/nhle/mailsync/internal/logging"
	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/source"
	"github.com/nhle/mailsync/internal/store"
)

// finalizeTimeout bounds the bookkeeping writes that close an attempt,
// which run even when the caller's context is already cancelled.
const finalizeTimeout = 30 * time.Second

// SyncResult summarizes one SyncAccount call. Its counters cover committed
// work only, so a failed attempt never reports rows it rolled back.
type SyncResult struct {
	Success         bool                   `json:"success"`
	HistoryID       string                 `json:"history_id,omitempty"`
	EmailsProcessed int                    `json:"emails_processed"`
	EmailsAdded     int                    `json:"emails_added"`
	EmailsUpdated   int                    `json:"emails_updated"`
	FlagsUpdated    int                    `json:"flags_updated"`
	EmailsFailed    int                    `json:"emails_failed"`
	FoldersSynced   int                    `json:"folders_synced"`
	Folders         map[string]FolderStats `json:"folders,omitempty"`
	ErrorMessage    string                 `json:"error_message,omitempty"`
	StartedAt       time.Time              `json:"started_at"`
	CompletedAt     time.Time              `json:"completed_at"`
}

// Service synchronizes accounts against their mail servers. One Service
// is shared by all callers of a process; each SyncAccount call owns its
// own connection and store session.
type Service struct {
	store   store.Store
	factory source.Factory
	trigger embedding.Trigger
	cfg     model.SyncConfig
	logger  zerolog.Logger
	now     func() time.Time

	mu     gosync.Mutex
	active map[string]struct{}

	background gosync.WaitGroup
}

// NewService creates a sync service. A nil trigger disables the
// downstream embedding hook.
func NewService(
	st store.Store,
	factory source.Factory,
	trigger embedding.Trigger,
	cfg model.SyncConfig,
	logger zerolog.Logger,
) *Service {
	if trigger == nil {
		trigger = embedding.Noop{}
	}
	return &Service{
		store:   st,
		factory: factory,
		trigger: trigger,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		active:  make(map[string]struct{}),
	}
}

// Wait blocks until background embedding triggers have finished.
func (s *Service) Wait() {
	s.background.Wait()
}

// SyncAccount runs one sync attempt. The result is always non-nil; the
// error is non-nil exactly when Success is false. Guard refusals return
// ErrCircuitOpen, ErrLockHeld or ErrAccountNotFound without connecting
// and without creating a history record.
func (s *Service) SyncAccount(ctx context.Context, accountID string, forceFull bool) (*SyncResult, error) {
	result := &SyncResult{StartedAt: s.now()}

	unlock, ok := s.tryLock(accountID)
	if !ok {
		return s.refuse(result, accountID, ErrLockHeld)
	}
	defer unlock()

	account, err := s.store.GetAccount(ctx, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return s.refuse(result, accountID, fmt.Errorf("%w: %s", ErrAccountNotFound, accountID))
	}
	if err != nil {
		return s.refuse(result, accountID, err)
	}

	if err := s.checkCircuit(ctx, account); err != nil {
		return s.refuse(result, accountID, err)
	}
	if err := s.checkLock(ctx, account); err != nil {
		return s.refuse(result, accountID, err)
	}

	won, err := s.store.ClaimAccountSync(ctx, account.ID, account.SyncStatus, account.SyncGeneration, result.StartedAt)
	if err != nil {
		return s.refuse(result, accountID, err)
	}
	if !won {
		return s.refuse(result, accountID, ErrLockHeld)
	}
	account.SyncStatus = model.SyncStatusRunning
	account.SyncGeneration++

	history := &model.SyncHistoryRecord{
		AccountID:     account.ID,
		Status:        model.HistoryRunning,
		ForceFullSync: forceFull,
		StartedAt:     result.StartedAt,
		LastUpdated:   result.StartedAt,
	}
	var runErr error
	if err := s.store.CreateSyncHistory(ctx, history); err != nil {
		history = nil
		runErr = err
	} else {
		result.HistoryID = history.ID
		runErr = s.run(ctx, account, history, forceFull, result)
	}

	runErr = s.finish(ctx, account, history, result, runErr)
	if runErr != nil {
		return result, runErr
	}

	s.fireTrigger(account)
	return result, nil
}

// run is the connected part of an attempt. The connection is closed on
// every path, including panics, which are turned into errors.
func (s *Service) run(
	ctx context.Context,
	account *model.EmailAccount,
	history *model.SyncHistoryRecord,
	forceFull bool,
	result *SyncResult,
) (err error) {
	logger := logging.WithAccount(s.logger, account.ID).With().
		Str("history_id", history.ID).
		Logger()

	conn, err := s.factory.New(account)
	if err != nil {
		return fmt.Errorf("creating connector: %w", err)
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("sync panicked")
			err = fmt.Errorf("sync panicked: %v", r)
		}
		if dErr := conn.Disconnect(); dErr != nil {
			logger.Warn().Err(dErr).Msg("disconnect failed")
		}
	}()

	if err := conn.Connect(ctx); err != nil {
		if !source.IsConnectionError(err) {
			err = &source.ConnectionError{Addr: account.Host, Err: err}
		}
		return err
	}
	logger.Info().Bool("force_full", forceFull).Msg("connected")

	negotiator := NewCapabilityNegotiator(s.store, logger)
	if err := negotiator.Negotiate(ctx, conn, account); err != nil {
		return err
	}

	sess := s.store.NewSession()
	defer sess.Close()

	commit := func(ctx context.Context) error {
		if err := sess.Commit(); err != nil {
			return err
		}
		if err := s.store.TouchSyncHistory(ctx, history.ID, s.now()); err != nil {
			logger.Warn().Err(err).Msg("sync heartbeat failed")
		}
		return nil
	}

	engine := &FolderSyncEngine{
		conn:    conn,
		sess:    sess,
		account: account,
		cfg:     s.cfg,
		commit:  commit,
		now:     s.now,
		logger:  logger,
		flags: &FlagReconciler{
			conn:      conn,
			sess:      sess,
			accountID: account.ID,
			batchSize: s.cfg.FlagBatchSize,
			commit:    commit,
			now:       s.now,
			logger:    logger,
		},
	}

	folders := account.SyncFolders
	if len(folders) == 0 {
		folders = []string{inboxFolder}
	}

	result.Folders = make(map[string]FolderStats, len(folders))
	var total FolderStats
	for _, folder := range folders {
		if err := ctx.Err(); err != nil {
			return err
		}

		stats, err := engine.Sync(ctx, folder, forceFull)
		total.add(stats)
		result.Folders[folder] = stats
		result.applyStats(total)
		if err != nil {
			return fmt.Errorf("syncing %s: %w", folder, err)
		}
		result.FoldersSynced++
	}
	return nil
}

// finish records the outcome on the account and the history record. It
// returns the error the caller should see.
func (s *Service) finish(
	ctx context.Context,
	account *model.EmailAccount,
	history *model.SyncHistoryRecord,
	result *SyncResult,
	runErr error,
) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	logger := logging.WithAccount(s.logger, account.ID)
	completed := s.now()
	result.CompletedAt = completed

	account.TotalEmailsSynced += int64(result.EmailsAdded)
	if runErr == nil {
		account.SyncStatus = model.SyncStatusCompleted
		account.LastSyncAt = &completed
		account.LastError = ""
	} else {
		account.SyncStatus = model.SyncStatusError
		account.LastError = runErr.Error()
	}

	if history != nil {
		history.EmailsProcessed = result.EmailsProcessed
		history.EmailsAdded = result.EmailsAdded
		history.EmailsUpdated = result.EmailsUpdated
		history.FlagsUpdated = result.FlagsUpdated
		history.FoldersSynced = result.FoldersSynced
		history.CompletedAt = &completed
		history.LastUpdated = completed
		if runErr == nil {
			history.Status = model.HistoryCompleted
		} else {
			history.Status = model.HistoryFailed
			history.ErrorMessage = runErr.Error()
		}
		if err := s.store.UpdateSyncHistory(ctx, history); err != nil {
			logger.Error().Err(err).Msg("finalizing sync history failed")
			runErr = errors.Join(runErr, err)
		}
	}

	if err := s.store.UpdateAccount(ctx, account); err != nil {
		logger.Error().Err(err).Msg("saving account after sync failed")
		runErr = errors.Join(runErr, err)
	}

	result.Success = runErr == nil
	if runErr != nil {
		result.ErrorMessage = runErr.Error()
		logger.Error().Err(runErr).
			Int("processed", result.EmailsProcessed).
			Int("added", result.EmailsAdded).
			Msg("sync failed")
		return runErr
	}

	logger.Info().
		Int("processed", result.EmailsProcessed).
		Int("added", result.EmailsAdded).
		Int("updated", result.EmailsUpdated).
		Int("flags_updated", result.FlagsUpdated).
		Int("folders", result.FoldersSynced).
		Dur("took", completed.Sub(result.StartedAt)).
		Msg("sync completed")
	return nil
}

func (s *Service) refuse(result *SyncResult, accountID string, err error) (*SyncResult, error) {
	result.CompletedAt = s.now()
	result.ErrorMessage = err.Error()
	s.logger.Info().Str("account_id", accountID).Err(err).Msg("sync refused")
	return result, err
}

// fireTrigger notifies the embedding subsystem without waiting for it.
// Its failures are logged only.
func (s *Service) fireTrigger(account *model.EmailAccount) {
	logger := logging.WithAccount(s.logger, account.ID)
	userID := account.UserID

	s.background.Add(1)
	go func() {
		defer s.background.Done()
		defer func() {
			if r := recover(); r != nil {
				logger.Error().Interface("panic", r).Msg("embedding trigger panicked")
			}
		}()

		if err := s.trigger.Trigger(context.Background(), userID); err != nil {
			logger.Warn().Err(err).Msg("embedding trigger failed")
		}
	}()
}

func (r *SyncResult) applyStats(total FolderStats) {
	r.EmailsProcessed = total.Processed
	r.EmailsAdded = total.Added
	r.EmailsUpdated = total.Updated
	r.FlagsUpdated = total.FlagsUpdated
	r.EmailsFailed = total.Failed
}
