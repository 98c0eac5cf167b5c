package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"librarydesk/internal/database"
	"librarydesk/internal/models"
	"librarydesk/internal/services"
)

func newMigrateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(*cobra.Command, []string) error {
			db, err := a.openDatabase()
			if err != nil {
				return err
			}
			defer closeDatabase(db)

			if err := database.Migrate(db); err != nil {
				return err
			}
			a.log.Info("schema migrated", zap.String("driver", a.cfg.DatabaseDriver))
			return nil
		},
	}
}

func newRecomputeOverdueCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "recompute-overdue",
		Short: "Recompute and store the fine of every overdue loan",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := a.openDatabase()
			if err != nil {
				return err
			}
			defer closeDatabase(db)

			overdue, err := a.wire(db).Issues.SweepOverdue(commandContext(cmd))
			if err != nil {
				return err
			}
			for _, issue := range overdue {
				username, title := "?", "?"
				if issue.User != nil {
					username = issue.User.Username
				}
				if issue.Book != nil {
					title = issue.Book.Title
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%-20s\t%-30s\tfine=%d\n", issue.ID, username, title, issue.Fine)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d overdue loan(s)\n", len(overdue))
			return nil
		},
	}
}

func newCreateAdminCommand(a *app) *cobra.Command {
	var username, email string
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create the single ADMIN account",
		Long: "Create the single ADMIN account. The password is prompted for on a terminal " +
			"or read from the first line of stdin otherwise.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := readPassword(cmd, "Password: ")
			if err != nil {
				return err
			}

			db, err := a.openDatabase()
			if err != nil {
				return err
			}
			defer closeDatabase(db)

			user, err := a.wire(db).Accounts.Register(commandContext(cmd), services.Registration{
				Username: username,
				Email:    email,
				Password: password,
				Role:     models.UserRoleAdmin,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "admin %s created (%s)\n", user.Username, user.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "admin", "admin username")
	cmd.Flags().StringVar(&email, "email", "", "admin email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

// readPassword masks input on a terminal and falls back to a plain line read
// so the command can be scripted.
func readPassword(cmd *cobra.Command, prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(cmd.ErrOrStderr(), prompt)
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return strings.TrimSpace(string(raw)), nil
	}

	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", errors.New("no password on stdin")
	}
	return strings.TrimSpace(line), nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
