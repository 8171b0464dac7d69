package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"fincontrol/internal/auth"
	"fincontrol/internal/cli"
	apphttp "fincontrol/internal/http"
	applog "fincontrol/internal/log"
	"fincontrol/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(applog.ComponentApp)
	logger.Info("Starting fincontrol")

	cfg := cli.LoadAndValidateConfig(logger)
	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	var publisher services.EventPublisher
	if client := cli.InitAMQP(logger, cfg); client != nil {
		defer client.Close()
		publisher = client
	}

	clock := services.NewClock(cfg.Location())
	if cfg.KiwifySkipSignature && !cfg.DevToolsEnabled {
		logger.Warn("KIWIFY_SKIP_SIGNATURE ignored without DEV_TOOLS_ENABLED")
	}
	webhook := services.NewWebhookService(repo, publisher, services.WebhookConfig{
		Secret:        cfg.KiwifyWebhookSecret,
		UserID:        cfg.DefaultWebhookUserID,
		SkipSignature: cfg.DevToolsEnabled && cfg.KiwifySkipSignature,
		Location:      cfg.Location(),
	}, logger)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Options{
		DevTools:           cfg.DevToolsEnabled,
		SecureCookies:      !cfg.DevToolsEnabled,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	}, apphttp.Deps{
		Repo:        repo,
		Auth:        auth.NewService(repo, cfg.SessionTTL, logger),
		Finance:     services.NewFinanceService(repo, logger),
		FixedBills:  services.NewFixedBillService(repo, logger),
		Runner:      services.NewFixedBillRunner(repo, publisher, logger),
		Invoices:    services.NewInvoiceService(repo, clock, logger),
		Digital:     services.NewDigitalService(repo, publisher, clock, logger),
		DigitalDash: services.NewDigitalDashboard(repo, clock, logger),
		FinanceDash: services.NewFinanceDashboard(repo, clock, logger),
		Activity:    services.NewRecentActivity(repo, clock, logger),
		Webhook:     webhook,
		Clock:       clock,
		Logger:      logger,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
		}
	})

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Listening", "port", cfg.Port, "dev_tools", cfg.DevToolsEnabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
