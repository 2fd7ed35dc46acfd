package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/Pratyush576/expense-tracker-ui/internal/amqp"
	"github.com/Pratyush576/expense-tracker-ui/internal/config"
	applog "github.com/Pratyush576/expense-tracker-ui/internal/log"
	"github.com/Pratyush576/expense-tracker-ui/internal/sheets"
	"github.com/Pratyush576/expense-tracker-ui/internal/storage"
	"github.com/Pratyush576/expense-tracker-ui/internal/worker"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.Config{
		Level:     slog.LevelInfo,
		Component: applog.ComponentWorker,
	})
	applog.SetDefault(logger)

	logger.Info("Starting tracker-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Google Sheets export is optional
	var exporter worker.Exporter
	if cfg.GoogleSpreadsheetID != "" {
		sheetsExporter, err := sheets.NewExporter(ctx, cfg.GoogleCredentialsFile, cfg.GoogleSpreadsheetID, cfg.GoogleSheetName)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets exporter", "error", err)
			os.Exit(1)
		}
		exporter = sheetsExporter
		logger.Info("Google Sheets exporter initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Google Sheets export disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	reclassifier := worker.NewReclassifier(repo, exporter)

	// Refresh labels once at startup so the worker recovers from missed
	// messages and downtime.
	if err := reclassifier.RunOnce(ctx); err != nil {
		logger.Error("Startup reclassification failed", "error", err)
		// Don't exit - continue with normal operation
	}

	g, ctx := errgroup.WithContext(ctx)

	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer amqpClient.Close()

		g.Go(func() error {
			return amqpClient.ConsumeReclassify(ctx, func(msg *amqp.ReclassifyMessage) error {
				return reclassifier.HandleMessage(ctx, msg)
			})
		})
	} else {
		logger.Info("AMQP disabled - relying on periodic resync only")
	}

	// Periodic resync catches rule changes that never produced a message.
	g.Go(func() error {
		ticker := time.NewTicker(cfg.ResyncInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if err := reclassifier.RunOnce(ctx); err != nil {
					logger.Error("Periodic reclassification failed", "error", err)
				}
			}
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}
