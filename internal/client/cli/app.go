package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	httpClient "github.com/iudanet/lexisync/internal/client/api"
	"github.com/iudanet/lexisync/internal/client/config"
	"github.com/iudanet/lexisync/internal/client/conflict"
	"github.com/iudanet/lexisync/internal/client/data"
	"github.com/iudanet/lexisync/internal/client/health"
	"github.com/iudanet/lexisync/internal/client/manager"
	"github.com/iudanet/lexisync/internal/client/netprobe"
	"github.com/iudanet/lexisync/internal/client/queue"
	"github.com/iudanet/lexisync/internal/client/storage/boltdb"
	clientsync "github.com/iudanet/lexisync/internal/client/sync"
	"github.com/iudanet/lexisync/internal/models"
)

// App is the wired sync stack of one client process
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Store    *boltdb.Storage
	API      *httpClient.Client
	Tables   *models.TableRegistry
	Queue    *queue.Service
	Resolver *conflict.Resolver
	Prober   *netprobe.Prober
	Orch     *clientsync.Orchestrator
	Monitor  *health.Monitor
	Manager  *manager.Manager
	Data     data.Service
	Registry *prometheus.Registry
}

// NewApp opens the local store and wires every component.
// The caller must Close the app.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	tables := models.NewTableRegistry(models.DefaultTables())
	if err := cfg.Validate(tables); err != nil {
		return nil, err
	}

	store, err := boltdb.New(ctx, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	app, err := wire(ctx, cfg, logger, tables, store)
	if err != nil {
		return nil, errors.Join(err, store.Close())
	}
	return app, nil
}

func wire(ctx context.Context, cfg *config.Config, logger *slog.Logger, tables *models.TableRegistry, store *boltdb.Storage) (*App, error) {
	apiClient := httpClient.NewClient(cfg.ServerURL)
	apiClient.SetToken(cfg.Token)

	settings := cfg.Settings()
	q := queue.NewService(store, store, store, tables, queue.Config{
		MaxRetries: settings.MaxRetries,
		MaxSize:    settings.OfflineQueueMaxSize,
	}, logger.With("component", "queue"))
	resolver := conflict.NewResolver(store, cfg.Strategies(tables), logger.With("component", "conflict"))
	prober := netprobe.New(apiClient, cfg.ProbeSettings(), logger.With("component", "netprobe"))

	orch, err := clientsync.New(clientsync.Dependencies{
		API:      apiClient,
		Signals:  prober,
		Records:  store,
		Metadata: store,
		Sessions: store,
		Reviews:  store,
		Queue:    q,
		Resolver: resolver,
		Tables:   tables,
		Logger:   logger.With("component", "sync"),
	}, settings)
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())

	monitor, err := health.New(ctx, health.Dependencies{
		Orchestrator: orch,
		Queue:        q,
		Sessions:     store,
		Records:      store,
		Alerts:       store,
		Tables:       tables,
		Registerer:   registry,
		Logger:       logger.With("component", "health"),
	}, cfg.MonitorConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create health monitor: %w", err)
	}

	return &App{
		Config:   cfg,
		Logger:   logger,
		Store:    store,
		API:      apiClient,
		Tables:   tables,
		Queue:    q,
		Resolver: resolver,
		Prober:   prober,
		Orch:     orch,
		Monitor:  monitor,
		Manager:  manager.New(orch, monitor, resolver, logger.With("component", "manager")),
		Data:     data.NewService(store, q, tables, logger.With("component", "data")),
		Registry: registry,
	}, nil
}

// ApplyConfig pushes a reloaded config into the running components.
// The database path and the diagnostics address need a restart.
func (a *App) ApplyConfig(cfg *config.Config) error {
	if cfg.DBPath != a.Config.DBPath {
		a.Logger.Warn("db_path change requires restart", "current", a.Config.DBPath, "new", cfg.DBPath)
	}
	if cfg.Diagnostics != a.Config.Diagnostics {
		a.Logger.Warn("diagnostics change requires restart")
	}

	if err := a.Orch.UpdateConfig(cfg.Settings()); err != nil {
		return fmt.Errorf("failed to apply sync settings: %w", err)
	}
	a.Monitor.SetQueueCeiling(cfg.Sync.OfflineQueueMaxSize)
	a.Resolver.SetStrategies(cfg.Strategies(a.Tables))
	a.API.SetBaseURL(cfg.ServerURL)
	a.API.SetToken(cfg.Token)
	a.Config = cfg
	a.Logger.Info("Configuration applied", "server", cfg.ServerURL, "auto_sync_interval", cfg.Sync.AutoSyncInterval)
	return nil
}

// Close releases the local store.
func (a *App) Close() error {
	return a.Store.Close()
}
