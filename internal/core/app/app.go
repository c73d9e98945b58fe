// Package app wires the reference core: store, signing keys, services and
// the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/aussiebroadwan/tabsession/internal/core/http"
	"github.com/aussiebroadwan/tabsession/internal/core/service"
	"github.com/aussiebroadwan/tabsession/internal/core/store"
	"github.com/aussiebroadwan/tabsession/internal/core/store/drivers/postgres"
	"github.com/aussiebroadwan/tabsession/internal/core/store/drivers/sqlite"
	"github.com/aussiebroadwan/tabsession/pkg/cryptox"
	"github.com/aussiebroadwan/tabsession/pkg/jwtx"
	"github.com/aussiebroadwan/tabsession/pkg/slogx"
)

// BuildVersion is overridden at build time via -ldflags.
var BuildVersion = "v0.1.0"

// Application is the core service with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db         store.Store
	sealer     *cryptox.Sealer
	keyManager *jwtx.KeyManager

	sessionService           *service.SessionService
	emailVerificationService *service.EmailVerificationService
	rolesService             *service.RolesService
	totpService              *service.TOTPService
	keyRotationService       *service.KeyRotationService
	housekeepingService      *service.HousekeepingService

	server *http.Server
	router *httpapi.Router
}

// New builds an Application. The database is migrated before returning.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "tabsession-core",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	sealer, err := InitSealer(cfg, app.logger)
	if err != nil {
		return nil, err
	}
	app.sealer = sealer

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	keyManager, err := InitSigningKeys(context.Background(), cfg, app.db, app.sealer, app.logger)
	if err != nil {
		_ = app.db.Close()
		return nil, fmt.Errorf("failed to initialize signing keys: %w", err)
	}
	app.keyManager = keyManager

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Handler returns the routed HTTP handler, for serving in-process.
func (app *Application) Handler() http.Handler { return app.router }

// KeyManager exposes the signing keys, for tests that mint tokens directly.
func (app *Application) KeyManager() *jwtx.KeyManager { return app.keyManager }

// Store exposes the database.
func (app *Application) Store() store.Store { return app.db }

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("core starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
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

// Shutdown drains the HTTP server and releases the database.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down core...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("core stopped")
	return nil
}

// Close releases the database without touching the server. For
// applications served through Handler.
func (app *Application) Close() error {
	return app.db.Close()
}

func (app *Application) initDatabase() error {
	var (
		db  store.Store
		err error
	)
	switch app.cfg.DatabaseDriver {
	case "sqlite", "":
		db, err = sqlite.NewStore(sqlite.DSN(app.cfg.DatabaseFile))
	case "postgres":
		if app.cfg.DatabaseURL == "" {
			return fmt.Errorf("CORE_DATABASE_URL is required for the postgres driver")
		}
		db, err = postgres.NewStore(app.cfg.DatabaseURL)
	default:
		return fmt.Errorf("unknown database driver %q", app.cfg.DatabaseDriver)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied", "driver", app.cfg.DatabaseDriver)
	return nil
}

func (app *Application) initServices() {
	app.sessionService = &service.SessionService{
		Store:      app.db,
		KeyManager: app.keyManager,
		Sealer:     app.sealer,
		AccessTTL:  app.cfg.AccessTokenTTL,
		RefreshTTL: app.cfg.RefreshTokenTTL,
		Now:        app.cfg.Clock,
	}
	app.emailVerificationService = &service.EmailVerificationService{
		Store:    app.db,
		TokenTTL: app.cfg.EmailTokenTTL,
		Now:      app.cfg.Clock,
	}
	app.rolesService = &service.RolesService{Store: app.db}
	app.totpService = &service.TOTPService{
		Store:  app.db,
		Sealer: app.sealer,
		Issuer: app.cfg.TOTPIssuer,
		Now:    app.cfg.Clock,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
	)

	// Runtime rotation works in both modes; only persistent mode writes it down.
	app.keyRotationService = &service.KeyRotationService{
		KeyManager:  app.keyManager,
		Sealer:      app.sealer,
		Algorithm:   app.cfg.Algorithm,
		RSABits:     app.cfg.RSABits,
		GracePeriod: app.cfg.KeyGracePeriod,
	}
	if app.cfg.KeyStorageMode == "persistent" {
		app.keyRotationService.Store = app.db
	}
}

func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.keyManager.KeySet,
		app.cfg.APIKeys,
		BuildVersion,
		app.db,
		app.logger,
	)

	router.SessionService = app.sessionService
	router.EmailVerificationService = app.emailVerificationService
	router.RolesService = app.rolesService
	router.TOTPService = app.totpService
	router.KeyRotationService = app.keyRotationService
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
