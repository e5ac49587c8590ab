package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/nhle/mailsync/internal/source"
	"github.com/nhle/mailsync/internal/store"
)

// FlagReconciler brings local flags in line with the server without
// refetching bodies. It only runs when HIGHESTMODSEQ moved.
type FlagReconciler struct {
	conn      source.Connector
	sess      store.Session
	accountID string
	batchSize int
	commit    func(ctx context.Context) error
	now       func() time.Time
	logger    zerolog.Logger
}

// Reconcile compares server flags with the stored rows of folder, batch
// by batch, and writes only rows whose flags differ. It returns the
// number of rows updated, including those of batches committed before
// an error.
func (r *FlagReconciler) Reconcile(
	ctx context.Context,
	folder string,
	uidValidity uint32,
	localModSeq, serverModSeq uint64,
) (int, error) {
	if serverModSeq <= localModSeq {
		return 0, nil
	}

	uids, err := r.conn.FetchUIDsInRange(ctx, folder, 1, source.Unbounded)
	if err != nil {
		return 0, fmt.Errorf("listing UIDs of %s: %w", folder, err)
	}

	batchSize := max(r.batchSize, 1)
	updated := 0
	for start := 0; start < len(uids); start += batchSize {
		if err := ctx.Err(); err != nil {
			return updated, err
		}
		batch := uids[start:min(start+batchSize, len(uids))]

		remote, err := r.conn.FetchFlagsByUIDs(ctx, folder, batch)
		if err != nil {
			return updated, fmt.Errorf("fetching flags of %s: %w", folder, err)
		}
		local, err := r.sess.GetEmailsByUIDs(ctx, r.accountID, folder, uidValidity, batch)
		if err != nil {
			return updated, err
		}

		changed := 0
		at := r.now()
		for _, email := range local {
			flags, ok := remote[*email.IMAPUID]
			if !ok || flags == email.Flags {
				continue
			}
			if err := r.sess.UpdateEmailFlags(ctx, email.ID, flags, at); err != nil {
				return updated, err
			}
			changed++
		}

		if changed > 0 {
			if err := r.commit(ctx); err != nil {
				return updated, err
			}
			updated += changed
		}
	}

	r.logger.Debug().
		Str("folder", folder).
		Uint64("from_modseq", localModSeq).
		Uint64("to_modseq", serverModSeq).
		Int("updated", updated).
		Msg("flags reconciled")
	return updated, nil
}
