// Package scheduler runs periodic background jobs.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"librarydesk/internal/models"
)

// Sweeper recomputes overdue fines. IssueService satisfies it.
type Sweeper interface {
	SweepOverdue(ctx context.Context) ([]models.Issue, error)
}

// OverdueWorker re-derives overdue fines on a fixed interval so stored fines
// stay current without an admin hitting the overdue endpoint.
type OverdueWorker struct {
	sweeper  Sweeper
	interval time.Duration
	log      *zap.Logger

	wg sync.WaitGroup
}

func NewOverdueWorker(sweeper Sweeper, interval time.Duration, logger *zap.Logger) *OverdueWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OverdueWorker{
		sweeper:  sweeper,
		interval: interval,
		log:      logger.Named("overdue-worker"),
	}
}

// Start sweeps once immediately, then every interval until ctx is cancelled.
func (w *OverdueWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ticker.Stop()

		w.log.Info("overdue worker started", zap.Duration("interval", w.interval))
		w.Check(ctx)
		for {
			select {
			case <-ctx.Done():
				w.log.Info("overdue worker stopped")
				return
			case <-ticker.C:
				w.Check(ctx)
			}
		}
	}()
}

// Wait blocks until the worker goroutine has exited.
func (w *OverdueWorker) Wait() {
	w.wg.Wait()
}

// Check runs one sweep. Failures are logged and retried on the next tick.
func (w *OverdueWorker) Check(ctx context.Context) {
	overdue, err := w.sweeper.SweepOverdue(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		w.log.Error("overdue sweep failed", zap.Error(err))
		return
	}
	w.log.Debug("overdue sweep done", zap.Int("overdue", len(overdue)))
}
