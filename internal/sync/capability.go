package sync

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/source"
	"github.com/nhle/mailsync/internal/store"
)

const inboxFolder = "INBOX"

// CapabilityNegotiator records server capabilities on every sync and
// discovers folders once per account.
type CapabilityNegotiator struct {
	store  store.Store
	logger zerolog.Logger
}

func NewCapabilityNegotiator(st store.Store, logger zerolog.Logger) *CapabilityNegotiator {
	return &CapabilityNegotiator{store: st, logger: logger}
}

// Negotiate updates account in place and persists it. A failed folder
// listing is logged and retried on the next sync.
func (n *CapabilityNegotiator) Negotiate(
	ctx context.Context,
	conn source.Connector,
	account *model.EmailAccount,
) error {
	caps, err := conn.CheckCapabilities(ctx)
	if err != nil {
		return fmt.Errorf("checking capabilities: %w", err)
	}
	account.SupportsCondstore = caps.CondStore
	account.SupportsQResync = caps.QResync

	if !account.FoldersDiscovered {
		if err := n.discoverFolders(ctx, conn, account); err != nil {
			if ctx.Err() != nil {
				return err
			}
			n.logger.Warn().Err(err).Msg("folder discovery failed")
		}
	}

	if err := n.store.UpdateAccount(ctx, account); err != nil {
		return fmt.Errorf("saving capabilities: %w", err)
	}

	n.logger.Debug().
		Bool("condstore", caps.CondStore).
		Bool("qresync", caps.QResync).
		Strs("folders", account.SyncFolders).
		Msg("capabilities negotiated")
	return nil
}

func (n *CapabilityNegotiator) discoverFolders(
	ctx context.Context,
	conn source.Connector,
	account *model.EmailAccount,
) error {
	folders, err := conn.ListFolders(ctx)
	if err != nil {
		return fmt.Errorf("listing folders: %w", err)
	}
	if err := n.store.SaveAccountFolders(ctx, account.ID, folders); err != nil {
		return err
	}

	if len(account.SyncFolders) == 0 {
		account.SyncFolders = defaultSyncFolders(folders)
	}
	account.FoldersDiscovered = true

	n.logger.Info().Int("count", len(folders)).Msg("discovered folders")
	return nil
}

// defaultSyncFolders picks INBOX plus the special-use sent and archive
// folders, in that order.
func defaultSyncFolders(folders []model.FolderInfo) []string {
	result := []string{inboxFolder}
	for _, attr := range []string{`\Sent`, `\Archive`} {
		for _, f := range folders {
			if !f.Selectable || strings.EqualFold(f.Name, inboxFolder) {
				continue
			}
			if f.HasAttribute(attr) {
				result = append(result, f.Name)
				break
			}
		}
	}
	return result
}
