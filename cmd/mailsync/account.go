package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nhle/mailsync/internal/credential"
	"github.com/nhle/mailsync/internal/ui"
	"github.com/nhle/mailsync/internal/ui/accountform"
)

func accountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage synced accounts",
	}

	cmd.AddCommand(accountAddCmd())
	cmd.AddCommand(accountListCmd())
	cmd.AddCommand(accountPasswordCmd())

	return cmd
}

func accountAddCmd() *cobra.Command {
	var (
		userID        string
		passwordStdin bool
		port          int
		days          int
		folders       []string
	)
	values := accountform.DefaultValues()

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an account (interactive when --email is omitted)",
		RunE: func(cmd *cobra.Command, args []string) error {
			values.Port = strconv.Itoa(port)
			values.WindowDays = strconv.Itoa(days)
			values.Folders = strings.Join(folders, ",")

			if passwordStdin {
				line, err := bufio.NewReader(os.Stdin).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("reading password from stdin: %w", err)
				}
				values.Password = strings.TrimRight(line, "\r\n")
			}

			if values.Email == "" {
				form := accountform.New(values)
				if err := form.Run(); err != nil {
					return err
				}
				values = form.Values()
			}

			account, password, err := values.Account(userID)
			if err != nil {
				return err
			}

			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.store.CreateAccount(cmd.Context(), account); err != nil {
				return err
			}
			if password != "" {
				if err := credential.Set(credential.AccountKey(account.ID), password); err != nil {
					return fmt.Errorf("account %s created but storing its password failed: %w", account.ID, err)
				}
			}

			fmt.Printf("Added %s (%s)\n", account.Email, account.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "local", "owner of the account's mail")
	cmd.Flags().StringVar(&values.Email, "email", "", "mailbox address")
	cmd.Flags().StringVar(&values.Provider, "provider", values.Provider, "imap, gmail or outlook")
	cmd.Flags().StringVar(&values.Host, "host", "", "IMAP host")
	cmd.Flags().IntVar(&port, "port", 993, "IMAP port")
	cmd.Flags().StringVar(&values.Username, "username", "", "login name (defaults to the email)")
	cmd.Flags().BoolVar(&values.UseTLS, "tls", true, "connect with implicit TLS")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")
	cmd.Flags().IntVar(&days, "window-days", 30, "how far back a full sync looks")
	cmd.Flags().StringSliceVar(&folders, "folder", nil, "folder to sync (repeatable; default discovers)")

	return cmd
}

func accountListCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			accounts, err := a.store.ListAccounts(cmd.Context(), !all)
			if err != nil {
				return err
			}
			fmt.Println(ui.RenderAccounts(accounts))
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "include inactive accounts")

	return cmd
}

func accountPasswordCmd() *cobra.Command {
	var remove bool

	cmd := &cobra.Command{
		Use:   "password <account-id>",
		Short: "Replace (from stdin) or clear an account's stored password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			account, err := a.store.GetAccount(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			key := credential.AccountKey(account.ID)

			if remove {
				if err := credential.Delete(key); err != nil {
					return err
				}
				fmt.Printf("Cleared password of %s\n", account.Email)
				return nil
			}

			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("reading password from stdin: %w", err)
			}
			if err := credential.Set(key, strings.TrimRight(line, "\r\n")); err != nil {
				return err
			}
			fmt.Printf("Updated password of %s\n", account.Email)
			return nil
		},
	}

	cmd.Flags().BoolVar(&remove, "clear", false, "remove the stored password")

	return cmd
}
