package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/nhle/mailsync/internal/model"
)

const staleSyncMessage = "stale sync terminated"

// checkCircuit refuses when the most recent attempts all failed and the
// latest of them started inside the breaker window.
func (s *Service) checkCircuit(ctx context.Context, account *model.EmailAccount) error {
	limit := s.cfg.CircuitBreaker.Failures
	if limit <= 0 {
		return nil
	}

	recent, err := s.store.GetRecentSyncHistory(ctx, account.ID, limit)
	if err != nil {
		return fmt.Errorf("checking circuit breaker: %w", err)
	}
	if len(recent) < limit {
		return nil
	}
	for _, rec := range recent {
		if rec.Status != model.HistoryFailed {
			return nil
		}
	}

	if s.now().Sub(recent[0].StartedAt) < s.cfg.CircuitBreaker.Window {
		return ErrCircuitOpen
	}
	return nil
}

// checkLock refuses while another attempt is running. A running status
// without a running history record heals itself; a running record idle
// for longer than the stale timeout is failed and the lock taken over.
func (s *Service) checkLock(ctx context.Context, account *model.EmailAccount) error {
	if account.SyncStatus != model.SyncStatusRunning {
		return nil
	}

	logger := s.logger.With().Str("account_id", account.ID).Logger()

	running, err := s.store.GetRunningSyncHistory(ctx, account.ID)
	if err != nil {
		return fmt.Errorf("checking sync lock: %w", err)
	}
	if running == nil {
		logger.Warn().Msg("account marked running without a running sync, recovering")
		return nil
	}

	now := s.now()
	idle := now.Sub(running.LastUpdated)
	if idle <= s.cfg.StaleLockTimeout {
		return ErrLockHeld
	}

	running.Status = model.HistoryFailed
	running.ErrorMessage = staleSyncMessage
	running.CompletedAt = &now
	running.LastUpdated = now
	if err := s.store.UpdateSyncHistory(ctx, running); err != nil {
		return fmt.Errorf("terminating stale sync %s: %w", running.ID, err)
	}

	logger.Warn().
		Str("history_id", running.ID).
		Dur("idle", idle).
		Msg("terminated stale sync")
	return nil
}

// tryLock takes the in-process lock of an account.
func (s *Service) tryLock(accountID string) (unlock func(), ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, busy := s.active[accountID]; busy {
		return nil, false
	}
	s.active[accountID] = struct{}{}
	return func() {
		s.mu.Lock()
		delete(s.active, accountID)
		s.mu.Unlock()
	}, true
}

// windowStart is the oldest internal date included by a full sync.
func windowStart(account *model.EmailAccount, anchor string, now time.Time) time.Time {
	base := account.CreatedAt
	if anchor == model.AnchorNow {
		base = now
	}
	days := account.SyncWindowDays
	if days < 0 {
		days = 0
	}
	return base.AddDate(0, 0, -days)
}
