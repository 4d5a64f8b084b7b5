package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	gatewayhttp "github.com/stackguard/authgate/internal/gateway/http"
	"github.com/stackguard/authgate/internal/gateway/provider"
	"github.com/stackguard/authgate/internal/gateway/service"
	"github.com/stackguard/authgate/internal/gateway/session"
	"github.com/stackguard/authgate/internal/gateway/store"
	"github.com/stackguard/authgate/internal/gateway/store/drivers/sqlite"
	"github.com/stackguard/authgate/pkg/ratex"
	"github.com/stackguard/authgate/pkg/slogx"
)

// BuildVersion should be set at build time via ldflags.
const BuildVersion = "v0.1.0"

// Application encapsulates the gateway with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db       store.Store
	redis    *redis.Client
	provider *provider.Client
	sessions *session.Manager
	governor *ratex.Governor

	authService *service.AuthService
	mfaService  *service.MFAService

	server *http.Server
	router *gatewayhttp.Router
}

// New creates an Application with all dependencies initialized.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "authgate",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}
	app.initGovernor()
	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.logger.Info("auth gateway starting",
		"port", app.cfg.Port,
		"version", BuildVersion,
		"provider", app.cfg.ProviderURL)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down auth gateway...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Error("error closing redis client", "error", err)
		}
	}

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("auth gateway stopped")
	return nil
}

// initDatabase initializes the database and applies migrations.
func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initGovernor picks the counter backend: Redis when configured so limits
// hold across replicas, in-memory otherwise.
func (app *Application) initGovernor() {
	if app.cfg.RedisAddr == "" {
		app.governor = ratex.NewGovernor(ratex.NewMemoryStore())
		app.logger.Info("rate governor using in-memory counters")
		return
	}

	app.redis = redis.NewClient(&redis.Options{Addr: app.cfg.RedisAddr})
	app.governor = ratex.NewGovernor(ratex.NewRedisStore(app.redis))
	app.logger.Info("rate governor using redis counters", "addr", app.cfg.RedisAddr)
}

// initServices initializes the provider client and business logic services.
func (app *Application) initServices() {
	app.provider = provider.NewClient(app.cfg.ProviderURL, app.cfg.ProviderAnonKey)
	app.sessions = session.NewManager(app.provider)

	app.authService = &service.AuthService{
		Provider: app.provider,
		Sessions: app.sessions,
		Store:    app.db,
	}
	app.mfaService = &service.MFAService{
		Provider: app.provider,
		Sessions: app.sessions,
		Store:    app.db,
	}
}

// initHTTP initializes the HTTP router and server.
func (app *Application) initHTTP() {
	router := gatewayhttp.NewRouter(BuildVersion, app.db, app.governor, app.logger)
	router.AuthService = app.authService
	router.MFAService = app.mfaService
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
