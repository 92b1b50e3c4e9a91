// Package wire provides dependency injection for the casenotes service.
// It builds the application graph from configuration.
package wire

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/example/casenotes/internal/adapters/alerts"
	"github.com/example/casenotes/internal/adapters/events"
	"github.com/example/casenotes/internal/adapters/httpapi"
	"github.com/example/casenotes/internal/adapters/observability"
	"github.com/example/casenotes/internal/adapters/sqlite"
	"github.com/example/casenotes/internal/adapters/users"
	"github.com/example/casenotes/internal/app"
	"github.com/example/casenotes/internal/config"
	"github.com/example/casenotes/internal/db"
	"github.com/example/casenotes/internal/ports/secondary"
)

// App is the wired application: the database, the engines behind their
// primary ports, and the background event dispatcher.
type App struct {
	DB         *sql.DB
	Metrics    *observability.Metrics
	Services   httpapi.Services
	Dispatcher *events.Dispatcher
	Config     *config.Config
	Logger     *slog.Logger
}

// Build opens the database and wires every adapter and service. Each
// process builds one App; the caller closes it.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	database, err := db.Open(ctx, cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Secondary adapters
	tx := sqlite.NewTransactor(database)
	notes := sqlite.NewCaseNoteRepository(database)
	archive := sqlite.NewArchiveRepository(database)
	categories := sqlite.NewCategoryRepository(database)
	outbox := sqlite.NewOutboxRepository(database)
	metrics := observability.NewMetrics(logger)

	alertsClient := alerts.NewClient(cfg.Alerts.BaseURL, cfg.Alerts.Timeout, cfg.Alerts.MaxRetries)
	authors := users.NewClient(cfg.Users.BaseURL, cfg.Users.Timeout, cfg.Users.MaxRetries)

	sink, err := newSink(cfg.Events, logger)
	if err != nil {
		database.Close()
		return nil, err
	}

	// Primary services
	admin := app.NewAdminService(tx, notes, archive, categories, outbox, metrics, logger)
	services := httpapi.Services{
		Sync:      app.NewSyncService(tx, notes, categories, outbox, metrics, logger),
		Migration: app.NewMigrationService(tx, notes, categories, metrics, logger),
		Move:      app.NewMoveService(tx, notes, archive, outbox, metrics, logger),
		Admin:     admin,
		Reconciliation: app.NewReconciliationService(
			tx, notes, categories, outbox, alertsClient, authors, metrics, logger, cfg.Reconciliation.Timeout,
		),
		Query: admin,
	}

	return &App{
		DB:         database,
		Metrics:    metrics,
		Services:   services,
		Dispatcher: events.NewDispatcher(outbox, sink, metrics, logger, cfg.Events.PollInterval, cfg.Events.BatchSize, cfg.Events.MaxAttempts),
		Config:     cfg,
		Logger:     logger,
	}, nil
}

func newSink(cfg config.EventsConfig, logger *slog.Logger) (secondary.EventSink, error) {
	switch cfg.Sink {
	case "", config.SinkLog:
		return events.NewLogSink(logger), nil
	case config.SinkWebhook:
		if cfg.WebhookURL == "" {
			return nil, errors.New("events.webhook_url is required for the webhook sink")
		}
		return events.NewWebhookSink(cfg.WebhookURL, cfg.WebhookTimeout, cfg.WebhookMaxRetries), nil
	default:
		return nil, fmt.Errorf("unknown event sink %q", cfg.Sink)
	}
}

// Server returns the HTTP server over the wired services.
func (a *App) Server() *httpapi.Server {
	return httpapi.NewServer(a.Services, a.Metrics.Handler(), a.Logger)
}

// Close releases the database.
func (a *App) Close() error {
	return a.DB.Close()
}
