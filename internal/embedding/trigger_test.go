package embedding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQueue struct {
	users []string
	err   error
}

func (q *fakeQueue) EnqueueEmbeddingJob(ctx context.Context, userID string, at time.Time) error {
	if q.err != nil {
		return q.err
	}
	q.users = append(q.users, userID)
	return nil
}

func TestQueueTriggerEnqueues(t *testing.T) {
	q := &fakeQueue{}
	trigger := NewQueueTrigger(q, time.Second)

	require.NoError(t, trigger.Trigger(context.Background(), "user-1"))
	assert.Equal(t, []string{"user-1"}, q.users)
}

func TestQueueTriggerRejectsEmptyUser(t *testing.T) {
	q := &fakeQueue{}
	assert.Error(t, NewQueueTrigger(q, 0).Trigger(context.Background(), ""))
	assert.Empty(t, q.users)
}

func TestQueueTriggerWrapsQueueError(t *testing.T) {
	boom := errors.New("db down")
	err := NewQueueTrigger(&fakeQueue{err: boom}, 0).Trigger(context.Background(), "user-1")
	assert.ErrorIs(t, err, boom)
}

func TestNoop(t *testing.T) {
	assert.NoError(t, Noop{}.Trigger(context.Background(), "user-1"))
}
