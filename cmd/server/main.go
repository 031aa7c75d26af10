package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/JonMunkholm/invoicedesk/internal/billing"
	"github.com/JonMunkholm/invoicedesk/internal/campaigns"
	"github.com/JonMunkholm/invoicedesk/internal/config"
	"github.com/JonMunkholm/invoicedesk/internal/ingest"
	"github.com/JonMunkholm/invoicedesk/internal/logging"
	"github.com/JonMunkholm/invoicedesk/internal/numbering"
	"github.com/JonMunkholm/invoicedesk/internal/repository/postgres"
	"github.com/JonMunkholm/invoicedesk/internal/staging"
	"github.com/JonMunkholm/invoicedesk/internal/tabular"
	"github.com/JonMunkholm/invoicedesk/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"staging", cfg.Staging.Backend,
		"numbering", cfg.Numbering.Backend,
		"upload_max_concurrent", cfg.Upload.MaxConcurrent,
		"sweep_interval", cfg.Billing.SweepInterval,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	if err := run(cfg); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx := context.Background()

	if cfg.Database.AutoMigrate {
		if err := postgres.Migrate(cfg.Database.URL); err != nil {
			return err
		}
	}

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	stager, err := newStager(ctx, cfg)
	if err != nil {
		return err
	}

	invoiceRepo := postgres.NewInvoiceRepository(db.SQL)
	seq, closeSeq, err := newSequencer(ctx, cfg, db, invoiceRepo)
	if err != nil {
		return err
	}
	defer closeSeq()

	decode := tabular.Options{StrictQuotes: cfg.Upload.StrictQuotes}

	campaignService := campaigns.NewService(
		postgres.NewCampaignRepository(db.SQL),
		stager,
		campaigns.WithDecodeOptions(decode),
	)
	engine := billing.NewEngine(
		invoiceRepo,
		numbering.NewAllocator(seq),
		stager,
		billing.WithDecodeOptions(decode),
		billing.WithNumberAttempts(cfg.Billing.NumberRetries),
		billing.WithPaymentTerm(cfg.Billing.PaymentTerm()),
	)

	uploads := ingest.NewLimiter(cfg.Upload.MaxConcurrent, cfg.Upload.MaxWaitTime)
	health := func(ctx context.Context) error {
		return postgres.HealthCheck(ctx, db.Pool, 0)
	}
	server := web.NewServer(cfg, campaignService, engine, uploads, health)

	// Background jobs stop before the HTTP server drains.
	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()

	if sweeper := billing.NewSweeper(engine, cfg.Billing.SweepInterval); sweeper.Enabled() {
		go sweeper.Run(jobCtx)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutting down...", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}

	cancelJobs()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Running imports finish first so their staged files are released.
	if status := uploads.Status(); status.Active > 0 {
		slog.Info("waiting for uploads to complete", "active", status.Active)
		if err := uploads.WaitForDrain(shutdownCtx); err != nil {
			slog.Warn("uploads did not complete in time", "error", err)
		} else {
			slog.Info("all uploads completed")
		}
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	slog.Info("server stopped")
	return nil
}

func newStager(ctx context.Context, cfg *config.Config) (staging.Stager, error) {
	if cfg.Staging.Backend == "s3" {
		return staging.NewS3(ctx, staging.S3Config{
			Bucket:   cfg.Staging.Bucket,
			Prefix:   cfg.Staging.Prefix,
			Region:   cfg.Staging.Region,
			Profile:  cfg.Staging.Profile,
			MaxBytes: cfg.Upload.MaxFileSize,
		})
	}

	local, err := staging.NewLocal(cfg.Staging.Dir, cfg.Upload.MaxFileSize)
	if err != nil {
		return nil, err
	}
	slog.Info("staging: using local directory", "dir", local.Dir())
	return local, nil
}

// newSequencer returns the invoice number sequence. A fresh Redis counter is
// seeded from the highest stored invoice number so numbering continues.
func newSequencer(ctx context.Context, cfg *config.Config, db *postgres.DB, invoices *postgres.InvoiceRepository) (numbering.Sequencer, func(), error) {
	if cfg.Numbering.Backend != "redis" {
		return numbering.NewPostgresSequencer(db.SQL, cfg.Numbering.Key), func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.Numbering.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	closeClient := func() {
		if err := client.Close(); err != nil {
			slog.Warn("failed to close redis client", "error", err)
		}
	}

	if err := client.Ping(ctx).Err(); err != nil {
		closeClient()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}

	seq := numbering.NewRedisSequencer(client, cfg.Numbering.Key)

	maxNumber, err := invoices.MaxInvoiceNumber(ctx)
	if err != nil {
		closeClient()
		return nil, nil, err
	}
	floor, _ := numbering.Parse(numbering.DefaultPrefix, maxNumber)
	seeded, err := seq.Seed(ctx, floor)
	if err != nil {
		closeClient()
		return nil, nil, err
	}
	slog.Info("numbering: using redis", "key", cfg.Numbering.Key, "seeded", seeded, "floor", floor)
	return seq, closeClient, nil
}
