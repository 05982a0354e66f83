// Package app wires the application components together with explicit
// handles and teardown.
package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/temrb/context-crawler/internal/common"
	"github.com/temrb/context-crawler/internal/handlers"
	"github.com/temrb/context-crawler/internal/interfaces"
	"github.com/temrb/context-crawler/internal/models"
	"github.com/temrb/context-crawler/internal/services/aggregator"
	"github.com/temrb/context-crawler/internal/services/output"
	"github.com/temrb/context-crawler/internal/services/registry"
	"github.com/temrb/context-crawler/internal/services/runner"
	"github.com/temrb/context-crawler/internal/services/scheduler"
	"github.com/temrb/context-crawler/internal/services/submit"
	badgerstorage "github.com/temrb/context-crawler/internal/storage/badger"
	"github.com/temrb/context-crawler/internal/worker"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager
	Registry       *registry.Registry
	Runner         *runner.Runner
	Aggregator     *aggregator.Aggregator
	SubmitService  *submit.Service
	WorkerPool     *worker.Pool
	Maintenance    *scheduler.Maintenance

	// HTTP handlers
	CrawlHandler  *handlers.CrawlHandler
	ConfigHandler *handlers.ConfigHandler
}

// New builds the application graph. Everything that can fail does so here,
// before the server or the worker pool starts.
func New(config *common.Config, logger arbor.ILogger) (*App, error) {
	global, err := parseGlobalLimits(config)
	if err != nil {
		return nil, err
	}

	storageManager, err := badgerstorage.NewManager(logger, &config.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	reg, err := registry.Load(config.Jobs.DefinitionsDir, logger)
	if err != nil {
		storageManager.Close()
		return nil, fmt.Errorf("failed to load job registry: %w", err)
	}

	counter := output.NewTokenCounter(logger)
	taskRunner := runner.New(config.Crawler, global, config.Storage.CrawlRoot, config.Output.Dir, counter, logger)

	queue := storageManager.QueueStorage()
	jobs := storageManager.JobStorage()

	submitService := submit.New(reg, queue, jobs, config.Queue.MaxAttempts, logger)

	app := &App{
		Config:         config,
		Logger:         logger,
		StorageManager: storageManager,
		Registry:       reg,
		Runner:         taskRunner,
		Aggregator:     aggregator.New(taskRunner, config.Output.Dir, logger),
		SubmitService:  submitService,
		WorkerPool:     worker.New(queue, jobs, taskRunner, config.Queue, logger),
		Maintenance:    scheduler.New(queue, config.Queue, logger),
		CrawlHandler:   handlers.NewCrawlHandler(submitService, jobs, queue, logger),
		ConfigHandler:  handlers.NewConfigHandler(reg, logger),
	}

	return app, nil
}

// Start launches the worker pool and the maintenance schedule
func (a *App) Start(ctx context.Context) error {
	if err := a.WorkerPool.Start(ctx); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}
	if err := a.Maintenance.Start(); err != nil {
		return fmt.Errorf("failed to start maintenance schedule: %w", err)
	}
	return nil
}

// Shutdown drains the worker pool and closes storage. Idempotent by way of
// the pool's own stop guard.
func (a *App) Shutdown() {
	a.Logger.Info().Msg("Shutting down")

	a.Maintenance.Stop()
	a.WorkerPool.Stop()

	if err := a.StorageManager.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to close storage cleanly")
	}

	a.Logger.Info().Msg("Shutdown complete")
}

func parseGlobalLimits(config *common.Config) (models.GlobalConfig, error) {
	maxPages, err := models.ParseLimit(config.Output.MaxPagesToCrawl)
	if err != nil {
		return models.GlobalConfig{}, fmt.Errorf("invalid max_pages_to_crawl: %w", err)
	}
	maxTokens, err := models.ParseLimit(config.Output.MaxTokens)
	if err != nil {
		return models.GlobalConfig{}, fmt.Errorf("invalid max_tokens: %w", err)
	}
	return models.GlobalConfig{MaxPagesToCrawl: maxPages, MaxTokens: maxTokens}, nil
}
