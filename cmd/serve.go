package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"librarydesk/internal/database"
	"librarydesk/internal/handlers"
	"librarydesk/internal/logging"
	"librarydesk/internal/scheduler"
)

func newServeCommand(a *app) *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.cfg.ValidateServer(); err != nil {
				return err
			}
			return a.serve(commandContext(cmd), migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply schema migrations before serving")
	return cmd
}

func (a *app) serve(parent context.Context, migrate bool) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := a.openDatabase()
	if err != nil {
		return err
	}
	defer closeDatabase(db)

	if migrate {
		if err := database.Migrate(db); err != nil {
			return err
		}
		a.log.Info("schema migrated")
	}

	svc := a.wire(db)
	svc.Ping = func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}

	if a.cfg.OverdueSweepEvery > 0 {
		workerCtx, cancelWorker := context.WithCancel(ctx)
		worker := scheduler.NewOverdueWorker(svc.Issues, a.cfg.OverdueSweepEvery, a.log)
		worker.Start(workerCtx)
		defer func() {
			cancelWorker()
			worker.Wait()
		}()
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), logging.GinLogger(a.log))
	handlers.RegisterRoutes(router, svc, a.log)

	srv := &http.Server{
		Addr:         a.cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("starting server", zap.String("addr", a.cfg.ServerAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	a.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
