package app

import (
	"context"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/concilio/internal/common"
	"github.com/ternarybob/concilio/internal/handlers"
	"github.com/ternarybob/concilio/internal/insight"
	"github.com/ternarybob/concilio/internal/interfaces"
	"github.com/ternarybob/concilio/internal/services/calls"
	"github.com/ternarybob/concilio/internal/services/events"
	jobsvc "github.com/ternarybob/concilio/internal/services/jobs"
	"github.com/ternarybob/concilio/internal/services/poller"
	"github.com/ternarybob/concilio/internal/services/reconcile"
	"github.com/ternarybob/concilio/internal/services/scheduler"
	"github.com/ternarybob/concilio/internal/services/webhook"
	badgerstorage "github.com/ternarybob/concilio/internal/storage/badger"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	// Core services
	EventService   interfaces.EventService
	InsightClient  interfaces.JobClient
	Engine         *reconcile.Engine
	JobService     *jobsvc.Service
	Poller         *poller.Poller
	Scheduler      *scheduler.Service

	// Handlers
	APIHandler     *handlers.APIHandler
	JobHandler     *handlers.JobHandler
	CallHandler    *handlers.CallHandler
	WebhookHandler *handlers.WebhookHandler
	WSHandler      *handlers.WebSocketHandler

	cancel context.CancelFunc
}

// New wires the application from config.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	a := &App{
		Config: cfg,
		Logger: logger,
	}

	storageManager, err := badgerstorage.NewManager(logger, &cfg.Storage.Badger)
	if err != nil {
		return nil, err
	}
	a.StorageManager = storageManager

	a.EventService = events.NewService(logger)

	a.InsightClient = insight.NewClient(cfg.Insight.APIKey,
		insight.WithBaseURL(cfg.Insight.BaseURL),
		insight.WithLogger(logger),
		insight.WithHTTPClient(&http.Client{Timeout: cfg.Insight.RequestTimeout}),
		insight.WithRateLimit(cfg.Insight.RateLimit),
		insight.WithBreakerConfig(insight.BreakerConfig{
			FailureThreshold: cfg.Insight.BreakerThreshold,
			Cooldown:         cfg.Insight.BreakerCooldown,
		}),
	)

	processor := calls.NewProcessor(storageManager.CallStorage(), logger)
	a.Engine = reconcile.NewEngine(storageManager, processor, a.EventService, cfg.Reconcile.LockLease, logger)

	a.JobService = jobsvc.NewService(storageManager, a.InsightClient, a.EventService, logger)

	a.Poller = poller.New(storageManager, a.InsightClient, a.Engine, poller.Config{
		PollInterval: cfg.Poller.PollInterval,
		Concurrency:  cfg.Poller.Concurrency,
		MaxRetries:   cfg.Poller.MaxRetries,
		MaxJobAge:    cfg.Poller.MaxJobAge,
	}, logger)

	a.Scheduler = scheduler.NewService(storageManager, a.Engine, cfg.Poller.MaxJobAge, logger)

	verifier := webhook.NewVerifier(cfg.Webhook.SharedSecret, cfg.Webhook.MaxAge, logger)

	a.APIHandler = handlers.NewAPIHandler(storageManager, logger)
	a.JobHandler = handlers.NewJobHandler(a.JobService, logger)
	a.CallHandler = handlers.NewCallHandler(storageManager, logger)
	a.WebhookHandler = handlers.NewWebhookHandler(verifier, storageManager, a.Engine, cfg.Poller.MaxRetries, logger)
	a.WSHandler = handlers.NewWebSocketHandler(a.EventService, &cfg.WebSocket, logger)

	return a, nil
}

// Start launches the background services.
func (a *App) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)

	a.Poller.Start(ctx)

	if err := a.Scheduler.Start(a.Config.Poller.SweepSchedule); err != nil {
		return err
	}

	a.Logger.Info().Msg("Application services started")
	return nil
}

// Close shuts everything down in reverse dependency order.
func (a *App) Close() error {
	if a.cancel != nil {
		a.cancel()
	}

	a.Scheduler.Stop()
	a.Poller.Stop()
	a.WSHandler.Close()
	a.EventService.Close()

	if err := a.StorageManager.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Storage close failed")
		return err
	}

	a.Logger.Info().Msg("Application stopped")
	return nil
}
