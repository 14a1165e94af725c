package main

import (
	"context"
	"log"

	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/funcgen/api/internal/archive"
	"github.com/funcgen/api/internal/config"
	"github.com/funcgen/api/internal/database"
	"github.com/funcgen/api/internal/orchestration"
)

// Worker executes ArchiveGenerationWorkflow and writes records to Postgres
func main() {
	ctx := context.Background()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	cfg := config.Load()

	if cfg.RunMigrations {
		if err := database.RunMigrations(cfg.DatabaseURL, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	db, err := database.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	c, err := orchestration.InitTemporalClient(cfg.TemporalAddress, logger)
	if err != nil {
		logger.Fatal("failed to connect to temporal", zap.Error(err))
	}
	defer c.Close()

	w := worker.New(c, cfg.TemporalTaskQueue, worker.Options{})
	w.RegisterWorkflow(orchestration.ArchiveGenerationWorkflow)
	w.RegisterActivity(&orchestration.Activities{Store: archive.NewPostgresStore(db.Pool())})

	logger.Info("starting archive worker", zap.String("task_queue", cfg.TemporalTaskQueue))
	if err := w.Run(worker.InterruptCh()); err != nil {
		logger.Fatal("worker stopped", zap.Error(err))
	}
}
