package sync

import (
	"context"
	"errors"
	gosync "sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/source"
)

type fakeSyncer struct {
	mu    gosync.Mutex
	calls []string
	fulls []bool
	fail  map[string]error
}

func (f *fakeSyncer) SyncAccount(ctx context.Context, accountID string, forceFull bool) (*SyncResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, accountID)
	f.fulls = append(f.fulls, forceFull)
	if err := f.fail[accountID]; err != nil {
		return &SyncResult{ErrorMessage: err.Error()}, err
	}
	return &SyncResult{Success: true, EmailsAdded: 1}, nil
}

type fakeLister struct {
	accounts []model.EmailAccount
	err      error
}

func (f fakeLister) ListAccounts(ctx context.Context, activeOnly bool) ([]model.EmailAccount, error) {
	return f.accounts, f.err
}

func TestPollOnceSyncsEveryAccount(t *testing.T) {
	syncer := &fakeSyncer{fail: map[string]error{
		"b": &source.AuthError{Provider: model.ProviderIMAP, Message: "denied"},
	}}
	lister := fakeLister{accounts: []model.EmailAccount{{ID: "a"}, {ID: "b"}, {ID: "c"}}}
	cfg := model.DefaultAppConfig().Sync
	cfg.MaxParallelAccounts = 2

	poller := NewPoller(syncer, lister, cfg, zerolog.Nop())
	require.NoError(t, poller.PollOnce(context.Background()))

	assert.ElementsMatch(t, []string{"a", "b", "c"}, syncer.calls)

	statuses := poller.Statuses()
	require.Len(t, statuses, 3)
	assert.Equal(t, "a", statuses[0].AccountID)
	assert.Equal(t, SyncIdle, statuses[0].State)
	assert.False(t, statuses[0].LastSync.IsZero())
	assert.Equal(t, SyncError, statuses[1].State)
	assert.True(t, statuses[1].AuthFailed)
	require.NotNil(t, statuses[2].LastResult)
	assert.Equal(t, 1, statuses[2].LastResult.EmailsAdded)
}

func TestPollOnceListFailure(t *testing.T) {
	poller := NewPoller(&fakeSyncer{}, fakeLister{err: errors.New("db down")},
		model.DefaultAppConfig().Sync, zerolog.Nop())
	assert.Error(t, poller.PollOnce(context.Background()))
}

func TestPollOnceForceFull(t *testing.T) {
	syncer := &fakeSyncer{}
	lister := fakeLister{accounts: []model.EmailAccount{{ID: "a"}}}

	poller := NewPoller(syncer, lister, model.DefaultAppConfig().Sync, zerolog.Nop())
	require.NoError(t, poller.PollOnce(context.Background()))
	poller.SetForceFull(true)
	require.NoError(t, poller.PollOnce(context.Background()))

	assert.Equal(t, []bool{false, true}, syncer.fulls)
}

func TestSetForceFullDuringPoll(t *testing.T) {
	syncer := &fakeSyncer{}
	accounts := []model.EmailAccount{{ID: "a"}, {ID: "b"}, {ID: "c"}, {ID: "d"}}
	cfg := model.DefaultAppConfig().Sync
	cfg.MaxParallelAccounts = 4
	poller := NewPoller(syncer, fakeLister{accounts: accounts}, cfg, zerolog.Nop())

	var wg gosync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			poller.SetForceFull(i%2 == 0)
		}
	}()
	for i := 0; i < 5; i++ {
		require.NoError(t, poller.PollOnce(context.Background()))
	}
	wg.Wait()

	assert.Len(t, syncer.calls, 5*len(accounts))
	// Every account of one poll sees the same setting.
	for i := 0; i < len(syncer.fulls); i += len(accounts) {
		poll := syncer.fulls[i : i+len(accounts)]
		for _, full := range poll {
			assert.Equal(t, poll[0], full)
		}
	}
}

func TestTriggerAccountQueueFull(t *testing.T) {
	poller := NewPoller(&fakeSyncer{}, fakeLister{}, model.SyncConfig{}, zerolog.Nop())
	for i := 0; i < cap(poller.triggerCh); i++ {
		require.True(t, poller.TriggerAccount("a", false))
	}
	assert.False(t, poller.TriggerAccount("a", false))
}

func TestRunStopsOnCancel(t *testing.T) {
	syncer := &fakeSyncer{}
	poller := NewPoller(syncer, fakeLister{accounts: []model.EmailAccount{{ID: "a"}}},
		model.SyncConfig{}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, poller.Run(ctx))
	assert.Equal(t, []string{"a"}, syncer.calls)
}
