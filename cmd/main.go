package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"librarydesk/internal/auth"
	"librarydesk/internal/config"
	"librarydesk/internal/database"
	"librarydesk/internal/handlers"
	"librarydesk/internal/logging"
	"librarydesk/internal/repositories"
	"librarydesk/internal/services"
)

// app carries what every subcommand shares once the root has parsed flags.
type app struct {
	cfg *config.Config
	log *zap.Logger
}

func main() {
	if err := newRootCommand(&app{}).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "librarydesk",
		Short:         "Library issue desk: catalogue, borrowing approvals and overdue fines",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}

	// Defaults live in config; these only override when set.
	flags := root.PersistentFlags()
	flags.String("database-driver", "", "postgres or sqlite (env DATABASE_DRIVER)")
	flags.String("database-url", "", "connection string (env DATABASE_URL)")
	flags.String("addr", "", "HTTP listen address (env SERVER_ADDR)")
	flags.String("log-level", "", "debug, info, warn or error (env LOG_LEVEL)")
	flags.String("log-format", "", "json or console (env LOG_FORMAT)")

	root.AddCommand(
		newServeCommand(a),
		newMigrateCommand(a),
		newRecomputeOverdueCommand(a),
		newCreateAdminCommand(a),
	)
	return root
}

// setup loads the config, with explicitly set flags winning over the
// environment, and builds the logger.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = logger
	return nil
}

func (a *app) openDatabase() (*gorm.DB, error) {
	if err := a.cfg.ValidateDatabase(); err != nil {
		return nil, err
	}
	return database.Open(database.Options{
		Driver:          a.cfg.DatabaseDriver,
		DSN:             a.cfg.DatabaseURL,
		MaxOpenConns:    a.cfg.MaxOpenConns,
		MaxIdleConns:    a.cfg.MaxIdleConns,
		ConnMaxLifetime: a.cfg.ConnMaxLifetime,
		Logger:          a.log,
	})
}

// wire builds the repositories and services over db.
func (a *app) wire(db *gorm.DB) handlers.Services {
	userRepo := repositories.NewUserRepository(db)
	bookRepo := repositories.NewBookRepository(db)
	categoryRepo := repositories.NewCategoryRepository(db)
	issueRepo := repositories.NewIssueRepository(db)

	ttl := a.cfg.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	tokens := auth.NewTokenManager(a.cfg.JWTSecret, ttl)

	return handlers.Services{
		Accounts:  services.NewAccountService(db, userRepo, tokens, a.log),
		Library:   services.NewLibraryService(db, bookRepo, categoryRepo, a.log),
		Issues:    services.NewIssueService(db, bookRepo, issueRepo, a.cfg.Fines, nil, a.log),
		Dashboard: services.NewDashboardService(db, userRepo, bookRepo, issueRepo, a.cfg.Fines, nil, a.log),
	}
}

func closeDatabase(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}
