package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nhle/mailsync/internal/model"
	"github.com/nhle/mailsync/internal/store"
	"github.com/nhle/mailsync/internal/sync"
	"github.com/nhle/mailsync/internal/ui"
)

func statusCmd() *cobra.Command {
	var (
		asJSON bool
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "status <account-id>",
		Short: "Show an account's folder cursors and recent syncs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			account, err := a.store.GetAccount(ctx, args[0])
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("%w: %s", sync.ErrAccountNotFound, args[0])
			}
			if err != nil {
				return err
			}
			states, err := a.store.GetFolderStates(ctx, account.ID)
			if err != nil {
				return err
			}
			history, err := a.store.GetRecentSyncHistory(ctx, account.ID, limit)
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					Account *model.EmailAccount       `json:"account"`
					Folders []model.FolderSyncState   `json:"folders"`
					History []model.SyncHistoryRecord `json:"history"`
				}{account, states, history})
			}

			fmt.Print(ui.RenderAccountStatus(account, states, history))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	cmd.Flags().IntVar(&limit, "history", 5, "number of recent syncs to show")

	return cmd
}
