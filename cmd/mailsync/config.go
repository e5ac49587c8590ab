package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nhle/mailsync/internal/model"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(configFile); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", configFile)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}

			if err := model.SaveConfig(configFile, model.DefaultAppConfig()); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", configFile)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	cmd.AddCommand(initCmd)
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := model.LoadConfig(configFile)
			if err != nil {
				return err
			}
			fmt.Printf("%+v\n", *cfg)
			return nil
		},
	})

	return cmd
}
