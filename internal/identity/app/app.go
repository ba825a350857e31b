// Package app wires the identity subsystem together: config, storage,
// signing keys and the token/authz services. It has no transport of its
// own; embed the Application and expose its services however the host
// process sees fit.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/quokkaworks/identity/internal/identity/directory"
	"github.com/quokkaworks/identity/internal/identity/directory/drivers/sqlite"
	"github.com/quokkaworks/identity/internal/identity/revocation"
	redisrev "github.com/quokkaworks/identity/internal/identity/revocation/redis"
	"github.com/quokkaworks/identity/internal/identity/service"
	"github.com/quokkaworks/identity/pkg/jwtx"
	"github.com/quokkaworks/identity/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application holds the wired identity subsystem.
type Application struct {
	cfg    Config
	logger *slog.Logger

	db          directory.Store
	revocations revocation.Store
	keyManager  *jwtx.KeyManager

	tokenService        *service.TokenService
	authzService        *service.AuthzService
	housekeepingService *service.HousekeepingService
}

// New creates an Application with all dependencies initialized.
func New(ctx context.Context, cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "identity",
			Level:   cfg.LogLevel,
			Format:  slogx.Format(cfg.LogFormat),
		}),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	if err := app.initRevocations(ctx); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	keyManager, err := InitSigningKeys(ctx, cfg, app.db, app.logger)
	if err != nil {
		_ = app.revocations.Close()
		_ = app.db.Close()
		return nil, fmt.Errorf("failed to initialize signing keys: %w", err)
	}
	app.keyManager = keyManager

	app.initServices()

	return app, nil
}

// Tokens returns the token lifecycle service.
func (app *Application) Tokens() *service.TokenService { return app.tokenService }

// Authz returns the privileged-access service.
func (app *Application) Authz() *service.AuthzService { return app.authzService }

// Directory returns the underlying directory store for role management.
func (app *Application) Directory() directory.Store { return app.db }

// Logger returns the application logger.
func (app *Application) Logger() *slog.Logger { return app.logger }

// Run starts the background workers and blocks until a shutdown signal
// arrives.
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("identity service started",
		"version", BuildVersion,
		"issuer", app.cfg.Issuer,
		"env", app.cfg.Env,
	)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	sig := <-shutdown
	app.logger.Info("shutdown signal received", "signal", sig)

	return app.Shutdown()
}

// Shutdown stops the workers and closes the stores.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down identity service...")

	app.housekeepingService.Stop()

	if err := app.revocations.Close(); err != nil {
		app.logger.Error("error closing revocation store", "error", err)
	}

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("identity service stopped")
	return nil
}

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

func (app *Application) initRevocations(ctx context.Context) error {
	store, err := redisrev.New(ctx, redisrev.Options{
		Addr:     app.cfg.RedisAddr,
		Password: app.cfg.RedisPassword,
		DB:       app.cfg.RedisDB,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to revocation store: %w", err)
	}
	app.revocations = store

	app.logger.Info("revocation store connected", "addr", app.cfg.RedisAddr)
	return nil
}

func (app *Application) initServices() {
	roles := &service.DirectoryRoles{Store: app.db}

	var limiter *service.RotationLimiter
	if app.cfg.RotationLimit > 0 {
		limiter = service.NewRotationLimiter(app.cfg.RotationLimit, app.cfg.RotationWindow)
	}

	app.tokenService = &service.TokenService{
		KeyManager:  app.keyManager,
		Revocations: app.revocations,
		Directory:   roles,
		History:     app.db.LoginHistory(),
		Limiter:     limiter,
		Issuer:      app.cfg.Issuer,
		AccessTTL:   app.cfg.AccessTTL,
		RefreshTTL:  app.cfg.RefreshTTL,
	}

	app.authzService = &service.AuthzService{
		Directory:       roles,
		PrivilegedRoles: app.cfg.PrivilegedRoles,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
		app.cfg.HistoryRetention,
	)
}
