package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/store"
	"github.com/nhle/mailsync/tests/testutil"
)

func (h *harness) addHistory(t *testing.T, status model.HistoryStatus, started, lastUpdated time.Time) *model.SyncHistoryRecord {
	t.Helper()

	rec := &model.SyncHistoryRecord{
		AccountID:   h.account.ID,
		Status:      status,
		StartedAt:   started,
		LastUpdated: lastUpdated,
	}
	if status != model.HistoryRunning {
		rec.CompletedAt = &lastUpdated
	}
	require.NoError(t, h.store.CreateSyncHistory(context.Background(), rec))
	return rec
}

func (h *harness) markRunning(t *testing.T) {
	t.Helper()

	won, err := h.store.ClaimAccountSync(context.Background(), h.account.ID, model.SyncStatusIdle, 0, testNow)
	require.NoError(t, err)
	require.True(t, won)
}

func TestCircuitBreaker(t *testing.T) {
	tests := []struct {
		name     string
		statuses []model.HistoryStatus
		latest   time.Duration
		wantOpen bool
	}{
		{
			name:     "five recent failures open the circuit",
			statuses: repeat(model.HistoryFailed, 5),
			latest:   10 * time.Minute,
			wantOpen: true,
		},
		{
			name:     "fewer than five records allow",
			statuses: repeat(model.HistoryFailed, 4),
			latest:   time.Minute,
		},
		{
			name:     "one success among the last five allows",
			statuses: append(repeat(model.HistoryFailed, 4), model.HistoryCompleted),
			latest:   time.Minute,
		},
		{
			name:     "failures older than the window allow",
			statuses: repeat(model.HistoryFailed, 5),
			latest:   31 * time.Minute,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.conn.folder("INBOX", 100)

			// statuses[0] is the most recent attempt.
			for i := len(tt.statuses) - 1; i >= 0; i-- {
				started := testNow.Add(-tt.latest - time.Duration(i)*time.Minute)
				h.addHistory(t, tt.statuses[i], started, started)
			}

			result, err := h.svc.SyncAccount(context.Background(), h.account.ID, false)
			if tt.wantOpen {
				assert.ErrorIs(t, err, ErrCircuitOpen)
				assert.False(t, result.Success)
				assert.Zero(t, h.conn.connects)

				history, err := h.store.GetRecentSyncHistory(context.Background(), h.account.ID, 10)
				require.NoError(t, err)
				assert.Len(t, history, len(tt.statuses), "a refusal creates no history record")
				return
			}
			require.NoError(t, err)
			assert.True(t, result.Success)
			assert.Equal(t, 1, h.conn.connects)
		})
	}
}

func TestLockHeldByRecentSync(t *testing.T) {
	h := newHarness(t)
	h.conn.folder("INBOX", 100)
	h.markRunning(t)
	h.addHistory(t, model.HistoryRunning, testNow.Add(-20*time.Minute), testNow.Add(-10*time.Minute))

	result, err := h.svc.SyncAccount(context.Background(), h.account.ID, false)
	assert.ErrorIs(t, err, ErrLockHeld)
	assert.False(t, result.Success)
	assert.Zero(t, h.conn.connects)
}

func TestStaleLockIsTakenOver(t *testing.T) {
	h := newHarness(t)
	h.conn.folder("INBOX", 100).put(1, "a@x", inWindow(1))
	h.markRunning(t)
	stale := h.addHistory(t, model.HistoryRunning, testNow.Add(-90*time.Minute), testNow.Add(-61*time.Minute))

	result := h.sync(t, false)
	assert.Equal(t, 1, result.EmailsAdded)

	history, err := h.store.GetRecentSyncHistory(context.Background(), h.account.ID, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, model.HistoryCompleted, history[0].Status)
	assert.Equal(t, stale.ID, history[1].ID)
	assert.Equal(t, model.HistoryFailed, history[1].Status)
	assert.Equal(t, staleSyncMessage, history[1].ErrorMessage)
}

func TestRunningStatusWithoutHistorySelfHeals(t *testing.T) {
	h := newHarness(t)
	h.conn.folder("INBOX", 100)
	h.markRunning(t)

	result := h.sync(t, false)
	assert.True(t, result.Success)

	account, err := h.store.GetAccount(context.Background(), h.account.ID)
	require.NoError(t, err)
	assert.Equal(t, model.SyncStatusCompleted, account.SyncStatus)
}

// preemptingStore lets another process claim the account with the same
// snapshot right before the service does.
type preemptingStore struct {
	*store.SQLStore
}

func (s preemptingStore) ClaimAccountSync(
	ctx context.Context,
	id string,
	expected model.SyncStatus,
	generation int64,
	at time.Time,
) (bool, error) {
	if _, err := s.SQLStore.ClaimAccountSync(ctx, id, expected, generation, at); err != nil {
		return false, err
	}
	return s.SQLStore.ClaimAccountSync(ctx, id, expected, generation, at)
}

func TestRecoveredLockIsClaimedOnce(t *testing.T) {
	tests := []struct {
		name  string
		stale bool
	}{
		{name: "running status without history"},
		{name: "stale running history", stale: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := testutil.NewTestStore(t)
			h := newHarnessWithStore(t, st, preemptingStore{SQLStore: st})
			h.conn.folder("INBOX", 100)
			h.markRunning(t)
			if tt.stale {
				h.addHistory(t, model.HistoryRunning, testNow.Add(-90*time.Minute), testNow.Add(-61*time.Minute))
			}

			result, err := h.svc.SyncAccount(context.Background(), h.account.ID, false)
			assert.ErrorIs(t, err, ErrLockHeld)
			assert.False(t, result.Success)
			assert.Zero(t, h.conn.connects)
		})
	}
}

func TestWindowStart(t *testing.T) {
	account := &model.EmailAccount{CreatedAt: testCreated, SyncWindowDays: 30}

	assert.True(t, windowStart(account, model.AnchorAccountCreated, testNow).
		Equal(testCreated.AddDate(0, 0, -30)))
	assert.True(t, windowStart(account, model.AnchorNow, testNow).
		Equal(testNow.AddDate(0, 0, -30)))

	account.SyncWindowDays = -5
	assert.True(t, windowStart(account, model.AnchorAccountCreated, testNow).Equal(testCreated))
}

func repeat(status model.HistoryStatus, n int) []model.HistoryStatus {
	out := make([]model.HistoryStatus, n)
	for i := range out {
		out[i] = status
	}
	return out
}
