package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nhle/mailsync/internal/sync"
)

func daemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Sync every active account on the configured interval",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc := a.service()
			poller := sync.NewPoller(svc, a.store, a.cfg.Sync, a.logger)

			a.logger.Info().
				Dur("interval", a.cfg.Sync.PollInterval).
				Int("parallel", a.cfg.Sync.MaxParallelAccounts).
				Msg("starting sync daemon")

			err = poller.Run(ctx)
			svc.Wait()

			a.logger.Info().Msg("sync daemon stopped")
			return err
		},
	}
}
