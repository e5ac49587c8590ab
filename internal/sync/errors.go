package sync

import (
	"context"
	"errors"
	"fmt"

	"github.com/nhle/mailsync/internal/source"
	"github.com/nhle/mailsync/internal/store"
)

var (
	// ErrCircuitOpen refuses a sync after repeated recent failures.
	ErrCircuitOpen = errors.New("circuit open: too many consecutive sync failures")

	// ErrLockHeld refuses a sync while another attempt is in flight.
	ErrLockHeld = errors.New("sync already in progress")

	// ErrAccountNotFound matches store.ErrNotFound as well.
	ErrAccountNotFound = fmt.Errorf("sync account: %w", store.ErrNotFound)
)

// Action is what the engine does after an error of a given kind.
type Action int

const (
	// ActionContinue means no error occurred.
	ActionContinue Action = iota

	// ActionSkip skips the message and queues its UID for retry.
	ActionSkip

	// ActionUpdate turns a lost insert race into an update of the winner.
	ActionUpdate

	// ActionRefuse returns a guard refusal without connecting.
	ActionRefuse

	// ActionAbort ends the folder and the whole account attempt.
	ActionAbort
)

func (a Action) String() string {
	switch a {
	case ActionContinue:
		return "continue"
	case ActionSkip:
		return "skip"
	case ActionUpdate:
		return "update"
	case ActionRefuse:
		return "refuse"
	default:
		return "abort"
	}
}

// Decide maps an error to the engine's reaction. Cancellation and
// connection failures always abort, even when wrapped in a message error.
func Decide(err error) Action {
	switch {
	case err == nil:
		return ActionContinue
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ActionAbort
	case source.IsConnectionError(err):
		return ActionAbort
	case errors.Is(err, ErrCircuitOpen), errors.Is(err, ErrLockHeld), errors.Is(err, ErrAccountNotFound):
		return ActionRefuse
	case errors.Is(err, store.ErrDuplicateEmail):
		return ActionUpdate
	case source.IsMessageError(err):
		return ActionSkip
	default:
		return ActionAbort
	}
}
