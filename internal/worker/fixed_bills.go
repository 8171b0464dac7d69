package worker

import (
	"context"
	"time"

	applog "fincontrol/internal/log"
	"fincontrol/internal/services"
)

// MonthRunner posts every user's fixed bills for one month.
type MonthRunner interface {
	RunAllForMonth(ctx context.Context, year int, month time.Month) (services.RunResult, error)
}

// SessionPurger drops expired sessions. Optional.
type SessionPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// FixedBillsWorker runs the monthly fixed-bill posting on a ticker. Each
// tick targets the current month, so restarts and overlapping ticks are
// harmless: the runner skips bills already posted.
type FixedBillsWorker struct {
	runner   MonthRunner
	purger   SessionPurger
	clock    services.Clock
	interval time.Duration
	logger   *applog.Logger
}

func NewFixedBillsWorker(runner MonthRunner, purger SessionPurger, clock services.Clock, interval time.Duration, logger *applog.Logger) *FixedBillsWorker {
	return &FixedBillsWorker{
		runner:   runner,
		purger:   purger,
		clock:    clock,
		interval: interval,
		logger:   logger.WithComponent(applog.ComponentWorker),
	}
}

// RunOnce posts the current month and purges expired sessions.
func (w *FixedBillsWorker) RunOnce(ctx context.Context) (services.RunResult, error) {
	month := w.clock.ThisMonth()
	res, err := w.runner.RunAllForMonth(ctx, month.Year, month.Month)
	if err != nil {
		w.logger.ErrorContext(ctx, "Fixed bills run failed",
			applog.FieldMonth, month.String(),
			applog.FieldError, err)
		return res, err
	}
	w.logger.InfoContext(ctx, "Fixed bills run complete",
		applog.FieldMonth, month.String(),
		"created", res.Created,
		"skipped", res.Skipped,
		"failed", res.Failed)

	if w.purger != nil {
		if n, err := w.purger.PurgeExpired(ctx); err != nil {
			w.logger.WarnContext(ctx, "Session purge failed", applog.FieldError, err)
		} else if n > 0 {
			w.logger.InfoContext(ctx, "Expired sessions purged", "count", n)
		}
	}
	return res, nil
}

// Run executes RunOnce at start and then every interval until ctx ends.
func (w *FixedBillsWorker) Run(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Fixed bills worker started", "interval", w.interval.String())
	_, _ = w.RunOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_, _ = w.RunOnce(ctx)
		}
	}
}
