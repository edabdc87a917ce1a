// Package app wires the daemon together: configuration, store,
// provider connectors, engine, and scheduler.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/inboxsync/internal/credential"
	"github.com/nhle/inboxsync/internal/engine"
	"github.com/nhle/inboxsync/internal/model"
	"github.com/nhle/inboxsync/internal/source"
	"github.com/nhle/inboxsync/internal/source/imapmail"
	"github.com/nhle/inboxsync/internal/source/taskwire"
	"github.com/nhle/inboxsync/internal/store"
)

// App is the assembled daemon.
type App struct {
	Config    *model.AppConfig
	Store     *store.SQLiteStore
	Registry  *source.Registry
	Engine    *engine.Engine
	Scheduler *engine.Scheduler
	Logger    *slog.Logger
}

// New builds the daemon from a loaded configuration. Provider secrets
// come from the system keyring, never from the config file.
func New(ctx context.Context, cfg *model.AppConfig, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory %s: %w", dir, err)
		}
	}
	st, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, err
	}

	registry := source.NewRegistry()
	if err := registerProviders(registry, cfg.Providers); err != nil {
		st.Close()
		return nil, err
	}

	cache := engine.NewProviderCache(cfg.Cache.Size, time.Duration(cfg.Cache.TTLSeconds)*time.Second)
	eng := engine.New(st, registry, cache, logger, cfg.Sync)

	app := &App{
		Config:    cfg,
		Store:     st,
		Registry:  registry,
		Engine:    eng,
		Scheduler: engine.NewScheduler(eng),
		Logger:    logger,
	}

	if err := app.ensureConnections(ctx); err != nil {
		st.Close()
		return nil, err
	}
	return app, nil
}

// Run starts the scheduler and blocks until the context is cancelled
// or an interrupt arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.Scheduler.Start()
	a.Logger.Info("daemon started", "providers", len(a.Config.Providers), "workers", a.Config.Sync.Workers)

	<-ctx.Done()

	a.Logger.Info("shutting down")
	a.Scheduler.Stop()
	return a.Store.Close()
}

// registerProviders builds a connector for every enabled provider in
// the configuration.
func registerProviders(registry *source.Registry, providers []model.ProviderConfig) error {
	for _, pc := range providers {
		if !pc.Enabled {
			continue
		}
		connector, err := buildConnector(pc)
		if err != nil {
			return fmt.Errorf("provider %s (%s): %w", pc.Name, pc.Provider, err)
		}
		if err := registry.Register(connector); err != nil {
			return err
		}
	}
	return nil
}

func buildConnector(pc model.ProviderConfig) (source.Connector, error) {
	switch model.ProviderKind(pc.Provider) {
	case model.ProviderTaskManager:
		token, err := credential.Get(credential.TokenKey(model.ProviderTaskManager, "token"))
		if err != nil {
			return nil, fmt.Errorf("reading task manager token: %w", err)
		}
		return taskwire.NewAdapter(pc.BaseURL, token), nil

	case model.ProviderMail:
		password, err := credential.Get(credential.TokenKey(model.ProviderMail, "password"))
		if err != nil {
			return nil, fmt.Errorf("reading mail password: %w", err)
		}
		cfg := imapmail.Config{
			Host:     pc.Settings["host"],
			Port:     pc.Settings["port"],
			Username: pc.Settings["username"],
			Password: password,
			TLS:      pc.Settings["tls"] != "false",
			Mailbox:  pc.Settings["mailbox"],
		}
		if days := pc.Settings["window_days"]; days != "" {
			var n int
			if _, err := fmt.Sscanf(days, "%d", &n); err == nil && n > 0 {
				cfg.Window = time.Duration(n) * 24 * time.Hour
			}
		}
		if cfg.Host == "" || cfg.Username == "" {
			return nil, fmt.Errorf("mail provider needs host and username settings")
		}
		return imapmail.NewAdapter(cfg), nil

	default:
		return nil, fmt.Errorf("unknown provider kind %q", pc.Provider)
	}
}

// ensureConnections creates an integration connection row for every
// registered provider that does not have one yet, carrying the scopes
// from the configuration. Connections persist across restarts so
// their health history survives.
func (a *App) ensureConnections(ctx context.Context) error {
	conns, err := a.Store.ListConnections(ctx)
	if err != nil {
		return err
	}
	existing := make(map[model.ProviderKind]bool, len(conns))
	for i := range conns {
		existing[conns[i].Provider] = true
	}

	userID := a.localUserID()

	for _, pc := range a.Config.Providers {
		if !pc.Enabled {
			continue
		}
		kind := model.ProviderKind(pc.Provider)
		if existing[kind] {
			continue
		}
		conn := model.NewIntegrationConnection(userID, kind)
		conn.RegisteredScopes = pc.Scopes
		if err := a.Store.InsertConnection(ctx, conn); err != nil {
			return err
		}
		a.Logger.Info("registered connection", "provider", kind, "id", conn.ID)
	}
	return nil
}

// localUserID derives a stable user id for this single-user daemon.
func (a *App) localUserID() uuid.UUID {
	name := "local"
	if u := os.Getenv("USER"); u != "" {
		name = u
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("inboxsync/"+name))
}
