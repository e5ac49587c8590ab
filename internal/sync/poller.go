package sync

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	gosync "sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/source"
)

// SyncState represents the poller's view of an account.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncRunning
	SyncError
)

func (s SyncState) String() string {
	switch s {
	case SyncRunning:
		return "running"
	case SyncError:
		return "error"
	default:
		return "idle"
	}
}

// AccountStatus holds the poll state of a single account.
type AccountStatus struct {
	AccountID  string
	State      SyncState
	LastSync   time.Time
	LastResult *SyncResult
	Error      error

	// AuthFailed is set when the last error was a credential rejection,
	// which will not heal without user action.
	AuthFailed bool
}

// AccountSyncer runs a single account sync.
type AccountSyncer interface {
	SyncAccount(ctx context.Context, accountID string, forceFull bool) (*SyncResult, error)
}

// AccountLister lists the accounts to poll.
type AccountLister interface {
	ListAccounts(ctx context.Context, activeOnly bool) ([]model.EmailAccount, error)
}

type syncRequest struct {
	accountID string
	forceFull bool
}

// Poller syncs every active account on an interval. Accounts run in
// parallel up to a limit; each account sync is sequential inside.
type Poller struct {
	syncer   AccountSyncer
	accounts AccountLister
	interval time.Duration
	parallel int
	logger   zerolog.Logger

	triggerCh chan syncRequest

	mu       gosync.Mutex
	statuses map[string]*AccountStatus
	// forceFull makes scheduled polls rescan the sync window.
	forceFull bool
}

// NewPoller creates a poller. A non-positive interval defaults to five
// minutes and a non-positive parallelism to one.
func NewPoller(
	syncer AccountSyncer,
	accounts AccountLister,
	cfg model.SyncConfig,
	logger zerolog.Logger,
) *Poller {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Poller{
		syncer:    syncer,
		accounts:  accounts,
		interval:  interval,
		parallel:  max(cfg.MaxParallelAccounts, 1),
		logger:    logger,
		triggerCh: make(chan syncRequest, 16),
		statuses:  make(map[string]*AccountStatus),
	}
}

// Run polls immediately and then on every tick until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	if err := p.PollOnce(ctx); err != nil {
		p.logger.Error().Err(err).Msg("poll failed")
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := p.PollOnce(ctx); err != nil {
				p.logger.Error().Err(err).Msg("poll failed")
			}
		case req := <-p.triggerCh:
			p.syncOne(ctx, req.accountID, req.forceFull)
		}
	}
}

// SetForceFull makes every scheduled poll a full sync. Triggered syncs
// keep their own setting.
func (p *Poller) SetForceFull(full bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.forceFull = full
}

// PollOnce syncs every active account once. A failing account never
// stops the others; only listing accounts can fail the poll.
func (p *Poller) PollOnce(ctx context.Context) error {
	accounts, err := p.accounts.ListAccounts(ctx, true)
	if err != nil {
		return fmt.Errorf("listing accounts: %w", err)
	}

	p.mu.Lock()
	full := p.forceFull
	p.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.parallel)
	for _, account := range accounts {
		id := account.ID
		g.Go(func() error {
			p.syncOne(gctx, id, full)
			return nil
		})
	}
	return g.Wait()
}

// TriggerAccount requests an immediate sync of one account. It reports
// false when the request queue is full.
func (p *Poller) TriggerAccount(accountID string, forceFull bool) bool {
	select {
	case p.triggerCh <- syncRequest{accountID: accountID, forceFull: forceFull}:
		return true
	default:
		return false
	}
}

// Statuses returns the poll state of every account seen so far, ordered
// by account ID.
func (p *Poller) Statuses() []AccountStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	statuses := make([]AccountStatus, 0, len(p.statuses))
	for _, s := range p.statuses {
		statuses = append(statuses, *s)
	}
	slices.SortFunc(statuses, func(a, b AccountStatus) int {
		return cmp.Compare(a.AccountID, b.AccountID)
	})
	return statuses
}

func (p *Poller) syncOne(ctx context.Context, accountID string, forceFull bool) {
	p.setStatus(accountID, SyncRunning, nil, nil)

	result, err := p.syncer.SyncAccount(ctx, accountID, forceFull)
	if err != nil {
		p.setStatus(accountID, SyncError, result, err)
		return
	}
	p.setStatus(accountID, SyncIdle, result, nil)
}

func (p *Poller) setStatus(accountID string, state SyncState, result *SyncResult, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	status, ok := p.statuses[accountID]
	if !ok {
		status = &AccountStatus{AccountID: accountID}
		p.statuses[accountID] = status
	}

	status.State = state
	status.Error = err
	status.AuthFailed = source.IsAuthError(err)
	if result != nil {
		status.LastResult = result
	}
	if state == SyncIdle && err == nil {
		status.LastSync = time.Now()
	}
}
