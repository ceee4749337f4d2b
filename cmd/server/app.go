package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/prospecthq/prospect-api/internal/api"
	"github.com/prospecthq/prospect-api/internal/config"
	"github.com/prospecthq/prospect-api/internal/platform/gemini"
	"github.com/prospecthq/prospect-api/internal/platform/logger"
	"github.com/prospecthq/prospect-api/internal/platform/parallel"
	"github.com/prospecthq/prospect-api/internal/platform/postgres"
	"github.com/prospecthq/prospect-api/internal/service"
	"github.com/prospecthq/prospect-api/internal/task"
	"github.com/prospecthq/prospect-api/internal/webhook"
)

// shutdownTimeout bounds graceful shutdown of in-flight requests.
const shutdownTimeout = 10 * time.Second

// application holds the wired components of the server. All dependencies are
// constructed here and passed down explicitly.
type application struct {
	config     *config.Config
	logger     *slog.Logger
	db         *sql.DB
	reconciler *task.Reconciler
	router     http.Handler
}

// newApplication loads configuration and wires every component: database,
// processor client, optional analyzer, service layer, reconciler and router.
func newApplication(ctx context.Context) (*application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	appLogger.Info("configuration loaded",
		slog.Int("port", cfg.Server.Port),
		slog.String("log_level", cfg.Server.LogLevel),
		slog.Bool("webhook_signature_required", cfg.Webhook.RequireSignature),
		slog.Bool("analyzer_enabled", cfg.Analyzer.GeminiAPIKey != ""))

	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := runMigrations(db); err != nil {
		return nil, err
	}

	companyStore := postgres.NewPostgresCompanyStore(db, appLogger)

	processor, err := parallel.NewClient(cfg.Processor, cfg.Webhook.PublicURL, appLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create processor client: %w", err)
	}

	// Enrichment is optional; without an API key completions simply carry no
	// fit analysis.
	var analyzer service.Analyzer
	if cfg.Analyzer.GeminiAPIKey != "" {
		fitAnalyzer, err := gemini.NewFitAnalyzer(ctx, cfg.Analyzer, appLogger)
		if err != nil {
			return nil, fmt.Errorf("failed to create fit analyzer: %w", err)
		}
		analyzer = fitAnalyzer
	} else {
		appLogger.Warn("no Gemini API key configured, fit analysis disabled")
	}

	researchService, err := service.NewResearchService(companyStore, processor, analyzer, appLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create research service: %w", err)
	}

	reconciler, err := task.NewReconciler(cfg.Reconciler, companyStore, processor, researchService, appLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create reconciler: %w", err)
	}

	verifier := webhook.NewVerifier(cfg.Webhook.Secret, cfg.Webhook.RequireSignature)
	if !verifier.Strict() {
		appLogger.Warn("webhook signature verification is permissive; do not use in production")
	}

	router := buildRouter(
		api.NewCompanyHandler(researchService, appLogger),
		api.NewWebhookHandler(verifier, researchService, appLogger),
		api.NewExportHandler(researchService, appLogger),
		db,
	)

	return &application{
		config:     cfg,
		logger:     appLogger,
		db:         db,
		reconciler: reconciler,
		router:     router,
	}, nil
}

// run starts the reconciler and the HTTP server, then blocks until the
// context is canceled and shutdown completes.
func (app *application) run(ctx context.Context) error {
	if err := app.reconciler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start reconciler: %w", err)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", app.config.Server.Port),
		Handler: app.router,
	}

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info("starting server", slog.Int("port", app.config.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		app.cleanup()
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		app.logger.Info("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		app.cleanup()
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	app.cleanup()
	app.logger.Info("server shutdown completed")
	return nil
}

// cleanup stops background work and releases resources.
func (app *application) cleanup() {
	app.reconciler.Stop()
	if err := app.db.Close(); err != nil {
		app.logger.Error("failed to close database", slog.String("error", err.Error()))
	}
}
