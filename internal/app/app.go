package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/pricewatch/internal/common"
	"github.com/ternarybob/pricewatch/internal/handlers"
	"github.com/ternarybob/pricewatch/internal/interfaces"
	"github.com/ternarybob/pricewatch/internal/serpapi"
	"github.com/ternarybob/pricewatch/internal/services/events"
	"github.com/ternarybob/pricewatch/internal/services/inventory"
	"github.com/ternarybob/pricewatch/internal/services/market"
	"github.com/ternarybob/pricewatch/internal/services/pipeline"
	"github.com/ternarybob/pricewatch/internal/services/report"
	"github.com/ternarybob/pricewatch/internal/services/runner"
	"github.com/ternarybob/pricewatch/internal/services/scheduler"
	"github.com/ternarybob/pricewatch/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config    *common.Config
	Logger    arbor.ILogger
	ctx       context.Context
	cancelCtx context.CancelFunc

	// Storage
	DB         *badger.BadgerDB
	RunStorage interfaces.RunStorage

	// Event-driven services
	EventService     interfaces.EventService
	SchedulerService interfaces.SchedulerService

	// Reconciliation pipeline
	SearchClient *serpapi.Client
	Fetcher      *market.Fetcher
	Loader       *inventory.Loader
	Writer       *report.Writer
	Pipeline     *pipeline.Controller
	Runner       *runner.Service

	// HTTP handlers
	APIHandler       *handlers.APIHandler
	RunHandler       *handlers.RunHandler
	SchedulerHandler *handlers.SchedulerHandler
	WSHandler        *handlers.WebSocketHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initServices(); err != nil {
		app.DB.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	if err := app.initHandlers(); err != nil {
		app.DB.Close()
		return nil, fmt.Errorf("failed to initialize handlers: %w", err)
	}

	if err := app.initScheduler(); err != nil {
		app.DB.Close()
		return nil, fmt.Errorf("failed to initialize scheduler: %w", err)
	}

	logger.Info().
		Str("inventory", cfg.Inventory.Path).
		Str("report_dir", cfg.Report.Dir).
		Int("fetch_concurrency", cfg.Pipeline.FetchConcurrency).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase opens Badger and the run archive
func (a *App) initDatabase() error {
	db, err := badger.NewBadgerDB(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return err
	}
	a.DB = db
	a.RunStorage = badger.NewRunStorage(db, a.Logger)

	a.Logger.Info().Str("path", a.Config.Storage.Badger.Path).Msg("Run archive initialized")
	return nil
}

// initServices builds the pipeline bottom-up and the run supervisor on top of it
func (a *App) initServices() error {
	a.EventService = events.NewService(a.Logger)
	if err := events.SubscribeLoggerToAllEvents(a.EventService, a.Logger); err != nil {
		return fmt.Errorf("failed to subscribe event logger: %w", err)
	}

	provider := a.Config.Provider
	if provider.APIKey == "" {
		a.Logger.Warn().Msg("No provider API key configured; every fetch will fail and products will be Indeterminate")
	}
	a.SearchClient = serpapi.NewClient(provider.APIKey,
		serpapi.WithBaseURL(provider.BaseURL),
		serpapi.WithEngine(provider.Engine),
		serpapi.WithMinInterval(common.MustDuration(provider.MinInterval, serpapi.DefaultMinInterval)),
		serpapi.WithLogger(a.Logger),
	)

	a.Fetcher = market.NewFetcher(a.SearchClient, a.Config, a.Logger)
	a.Loader = inventory.NewLoader(inventory.OptionsFromConfig(a.Config.Inventory), a.Logger)
	a.Writer = report.NewWriter(a.Config.Report, a.Logger)
	a.Pipeline = pipeline.NewController(a.Loader, a.Fetcher, a.Writer, a.Config, a.Logger)
	a.Runner = runner.NewService(a.Pipeline, a.RunStorage, a.EventService, a.Logger)

	return nil
}

// initHandlers creates the HTTP and WebSocket handlers and starts output streaming
func (a *App) initHandlers() error {
	a.ctx, a.cancelCtx = context.WithCancel(context.Background())

	a.WSHandler = handlers.NewWebSocketHandler(a.Runner, a.EventService, a.Logger, &a.Config.WebSocket)
	a.Runner.AddDrainer(a.WSHandler)
	a.WSHandler.StartDrainLoop(a.ctx)

	a.APIHandler = handlers.NewAPIHandler(a.Runner, a.WSHandler, a.Config.Provider.APIKey != "", a.Logger)
	a.RunHandler = handlers.NewRunHandler(a.Runner, a.Logger)

	return nil
}

// initScheduler registers the recurring reconciliation when a schedule is configured
func (a *App) initScheduler() error {
	sched := scheduler.NewService(a.Logger)
	a.SchedulerService = sched
	a.SchedulerHandler = handlers.NewSchedulerHandler(sched)

	if a.Config.Scheduler.Schedule == "" {
		a.Logger.Debug().Msg("No reconciliation schedule configured")
		return nil
	}

	job := scheduler.NewReconcileJob(a.Runner, a.Logger)
	if err := sched.RegisterJob(scheduler.ReconcileJobName, a.Config.Scheduler.Schedule, job); err != nil {
		return err
	}
	return sched.Start()
}

// Shutdown cancels any active run and waits for it to settle
func (a *App) Shutdown(ctx context.Context) error {
	if a.SchedulerService != nil {
		if err := a.SchedulerService.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop scheduler service")
		}
	}

	if a.Runner != nil {
		if err := a.Runner.Shutdown(ctx); err != nil {
			return fmt.Errorf("runs did not settle: %w", err)
		}
	}
	return nil
}

// Close closes all application resources
func (a *App) Close() error {
	if a.cancelCtx != nil {
		a.cancelCtx()
	}

	if a.WSHandler != nil {
		a.WSHandler.Stop()
	}

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			return fmt.Errorf("failed to close database: %w", err)
		}
		a.Logger.Info().Msg("Database closed")
	}

	return nil
}
