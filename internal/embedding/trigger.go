package embedding

import (
	"context"
	"fmt"
	"time"
)

// Trigger schedules embedding generation for a user's newly synced mail.
type Trigger interface {
	Trigger(ctx context.Context, userID string) error
}

// JobQueue is the persistence the queue trigger writes to.
type JobQueue interface {
	EnqueueEmbeddingJob(ctx context.Context, userID string, at time.Time) error
}

// QueueTrigger records a pending job that the embedding subsystem picks up.
// Repeated triggers for the same user collapse into one pending job.
type QueueTrigger struct {
	queue   JobQueue
	timeout time.Duration
	now     func() time.Time
}

// NewQueueTrigger creates a trigger backed by queue. A non-positive timeout
// leaves the caller's deadline in charge.
func NewQueueTrigger(queue JobQueue, timeout time.Duration) *QueueTrigger {
	return &QueueTrigger{queue: queue, timeout: timeout, now: time.Now}
}

func (t *QueueTrigger) Trigger(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("embedding trigger: empty user id")
	}
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	if err := t.queue.EnqueueEmbeddingJob(ctx, userID, t.now()); err != nil {
		return fmt.Errorf("embedding trigger for %s: %w", userID, err)
	}
	return nil
}

// Noop is used when embedding is disabled.
type Noop struct{}

func (Noop) Trigger(context.Context, string) error { return nil }
