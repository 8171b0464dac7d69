package main

import (
	"context"
	"flag"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"fincontrol/internal/amqp"
	"fincontrol/internal/cache"
	"fincontrol/internal/cli"
	applog "fincontrol/internal/log"
	ports "fincontrol/internal/sheets"
	gsheet "fincontrol/internal/sheets/google"
	"fincontrol/internal/sheets/memory"
	"fincontrol/internal/worker"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "consume events but keep rows in memory instead of Google Sheets")
	flag.Parse()

	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentWorker)
	logger.Info("Starting export-worker", "dry_run", *dryRun)

	cfg := cli.LoadAndValidateConfig(logger)

	var rows ports.RowWriter
	if *dryRun {
		if cfg.AMQPURL == "" {
			logger.Error("AMQP_URL is required for the export worker")
			os.Exit(1)
		}
		rows = memory.New()
	} else {
		if err := cfg.ValidateExport(); err != nil {
			logger.Error("Export configuration invalid", applog.FieldError, err)
			os.Exit(1)
		}
		client, err := gsheet.New(context.Background(), gsheet.Config{
			SpreadsheetID:   cfg.GoogleSpreadsheetID,
			SalesSheet:      cfg.GoogleSalesSheetName,
			FixedBillsSheet: cfg.GoogleFixedBillsSheetName,
			CredentialsJSON: cfg.GoogleServiceAccountJSON,
			CredentialsFile: cfg.GoogleServiceAccountFile,
			Location:        cfg.Location(),
		}, logger)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", applog.FieldError, err)
			os.Exit(1)
		}
		rows = client
		logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	}

	consumer, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", applog.FieldError, err)
		os.Exit(1)
	}
	defer consumer.Close()

	w := worker.NewExportWorker(rows, logger)
	caches := cache.NewManager()
	caches.Register(w.Cleaner())
	caches.StartCleanup(time.Hour)
	defer caches.Stop()

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.Run(gctx, consumer) })
	if err := g.Wait(); err != nil {
		logger.Error("Export worker stopped", applog.FieldError, err)
	}
	cli.WaitForShutdown(ctx, done)
	logger.Info("Export worker stopped")
}
