package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/nhle/mailsync/internal/store"
	"github.com/nhle/mailsync/internal/sync"
	"github.com/nhle/mailsync/internal/ui"
	"github.com/nhle/mailsync/internal/ui/syncview"
)

func syncCmd() *cobra.Command {
	var (
		full  bool
		all   bool
		plain bool
	)

	cmd := &cobra.Command{
		Use:   "sync [account-id]",
		Short: "Sync one account, or every active account with --all",
		Args: func(cmd *cobra.Command, args []string) error {
			if all {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if all {
				return runSyncAll(ctx, a, full)
			}
			interactive := !plain && isatty.IsTerminal(os.Stdout.Fd())
			return runSyncOne(ctx, a, args[0], full, interactive)
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "ignore the stored cursor and rescan the sync window")
	cmd.Flags().BoolVar(&all, "all", false, "sync every active account once")
	cmd.Flags().BoolVar(&plain, "plain", false, "print the summary without the progress view")

	return cmd
}

func runSyncOne(ctx context.Context, a *app, accountID string, full, interactive bool) error {
	account, err := a.store.GetAccount(ctx, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", sync.ErrAccountNotFound, accountID)
	}
	if err != nil {
		return err
	}

	if interactive && logsToTerminal(a.cfg.Logging.Output) {
		// Console log lines would tear the progress view.
		a.logger = a.logger.Level(zerolog.Disabled)
	}

	svc := a.service()
	defer svc.Wait()

	run := func(ctx context.Context) (*sync.SyncResult, error) {
		return svc.SyncAccount(ctx, accountID, full)
	}

	if !interactive {
		result, err := run(ctx)
		fmt.Println(ui.RenderResult(account.Email, result, err))
		return err
	}

	final, err := tea.NewProgram(syncview.New(ctx, account.Email, run)).Run()
	if err != nil {
		return fmt.Errorf("running progress view: %w", err)
	}
	_, syncErr := final.(syncview.Model).Result()
	return syncErr
}

func runSyncAll(ctx context.Context, a *app, full bool) error {
	svc := a.service()
	defer svc.Wait()

	poller := sync.NewPoller(svc, a.store, a.cfg.Sync, a.logger)
	poller.SetForceFull(full)
	if err := poller.PollOnce(ctx); err != nil {
		return err
	}

	var failed int
	for _, status := range poller.Statuses() {
		title := status.AccountID
		if account, err := a.store.GetAccount(ctx, status.AccountID); err == nil {
			title = account.Email
		}
		fmt.Println(ui.RenderResult(title, status.LastResult, status.Error))
		if status.Error != nil {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d account(s) failed to sync", failed)
	}
	return nil
}

func logsToTerminal(output string) bool {
	switch output {
	case "", "stdout", "stderr":
		return true
	default:
		return false
	}
}
