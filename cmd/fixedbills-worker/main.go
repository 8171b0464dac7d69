package main

import (
	"context"
	"time"

	"fincontrol/internal/auth"
	"fincontrol/internal/cli"
	applog "fincontrol/internal/log"
	"fincontrol/internal/services"
	"fincontrol/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentWorker)
	logger.Info("Starting fixedbills-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	var publisher services.EventPublisher
	if client := cli.InitAMQP(logger, cfg); client != nil {
		defer client.Close()
		publisher = client
	}

	w := worker.NewFixedBillsWorker(
		services.NewFixedBillRunner(repo, publisher, logger),
		auth.NewService(repo, cfg.SessionTTL, logger),
		services.NewClock(cfg.Location()),
		cfg.FixedBillsInterval,
		logger,
	)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {})
	if err := w.Run(ctx); err != nil {
		logger.Error("Fixed bills worker stopped", applog.FieldError, err)
	}
	cli.WaitForShutdown(ctx, done)
}
