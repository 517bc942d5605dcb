package app

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/go-pkgz/lgr"

	"campushustle/internal/config"
	"campushustle/internal/db"
	"campushustle/internal/engine"
	"campushustle/internal/eventbus"
	"campushustle/internal/migrate"
	"campushustle/internal/notify"
	"campushustle/internal/payment"
	"campushustle/internal/storage"
)

// Options select the workspace and ambient services for Bootstrap.
type Options struct {
	Workspace string
	Logger    lgr.L
	// SkipMigrate opens the database without applying pending migrations.
	SkipMigrate bool
	// Env overrides the environment; nil means config.LoadEnv.
	Env *config.Env
}

// App is a fully wired marketplace: database, engine, event bus and the
// background consumers that hang off it.
type App struct {
	DB       *sql.DB
	Engine   engine.Engine
	Config   *config.Config
	Env      *config.Env
	Bus      *eventbus.Bus
	Notifier *notify.Notifier
	Logger   lgr.L
}

// Bootstrap opens the workspace database, loads hustle.yml and the HUSTLE_*
// environment, and wires storage, the payment gateway and the event bus into
// an engine.
func Bootstrap(ctx context.Context, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = lgr.NoOp
	}
	workspace := opts.Workspace
	if workspace == "" {
		workspace = "."
	}
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return nil, err
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		return nil, err
	}
	env := opts.Env
	if env == nil {
		if env, err = config.LoadEnv(); err != nil {
			return nil, err
		}
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if !opts.SkipMigrate {
		if err := migrate.Migrate(conn); err != nil {
			conn.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	store, err := openStorage(ctx, workspace, env)
	if err != nil {
		conn.Close()
		return nil, err
	}

	bus := eventbus.New(logger)
	e := engine.New(conn, cfg)
	e.Bus = bus
	e.Storage = store
	e.Gateway = newGateway(cfg, env, logger)
	e.Logger = logger

	a := &App{DB: conn, Engine: e, Config: cfg, Env: env, Bus: bus, Logger: logger}
	if cfg.Notifications.Email.Enabled {
		a.Notifier = &notify.Notifier{
			Repo:    e.Repo,
			Mailer:  notify.LogMailer{Logger: logger},
			From:    cfg.Notifications.Email.From,
			Subject: cfg.Notifications.Email.Subject,
			Logger:  logger,
		}
	}
	return a, nil
}

// Start subscribes the notifier to the bus and runs it in the background.
// The returned channel is closed once ctx is cancelled and in-flight emails
// are sent.
func (a *App) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	if a.Notifier == nil {
		close(done)
		return done
	}
	sub := a.Bus.Subscribe("notifier", 64)
	go func() {
		defer close(done)
		defer sub.Close()
		a.Notifier.Run(ctx, sub.Events)
	}()
	return done
}

// CheckCallbackSecret refuses a live gateway whose status callbacks could
// not be authenticated.
func (a *App) CheckCallbackSecret() error {
	if a.Config.Payments.Gateway.Mode == "http" && a.Env.CallbackSecret == "" {
		return fmt.Errorf("HUSTLE_CALLBACK_SECRET is required when payments.gateway.mode is http")
	}
	return nil
}

func (a *App) Close() error {
	return a.DB.Close()
}

func openStorage(ctx context.Context, workspace string, env *config.Env) (storage.Storage, error) {
	switch env.Type {
	case "s3":
		return storage.NewS3Storage(ctx, env.S3Bucket, env.S3Prefix, env.S3Region)
	default:
		base := env.BaseDir
		if !filepath.IsAbs(base) {
			base = filepath.Join(workspace, base)
		}
		return storage.NewLocalStorage(base, "/files")
	}
}

func newGateway(cfg *config.Config, env *config.Env, logger lgr.L) payment.Gateway {
	gw := cfg.Payments.Gateway
	if gw.Mode != "http" || gw.URL == "" {
		return payment.SimulatedGateway{Logger: logger}
	}
	return payment.HTTPGateway{
		URL:     gw.URL,
		Key:     env.Key,
		Secret:  env.Secret,
		Timeout: gw.Timeout(),
		Logger:  logger,
	}
}
