package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/iudanet/lexisync/internal/client/config"
	"github.com/iudanet/lexisync/internal/client/diagserver"
	clientsync "github.com/iudanet/lexisync/internal/client/sync"
)

// runDaemon runs the background agent until ctx is cancelled:
// connectivity probe, orchestrator trigger loop, health monitor,
// diagnostics server and config hot reload.
// SIGUSR1 is treated as a foreground transition, SIGUSR2 as background.
func (c *Cli) runDaemon(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger := c.app.Logger
	logger.Info("Starting sync daemon",
		"server", c.app.Config.ServerURL,
		"db", c.app.Config.DBPath,
		"auto_sync_interval", c.app.Config.Sync.AutoSyncInterval)

	// повторная сборка очереди по dirty записям после аварийного завершения
	if n, err := c.app.Queue.EnqueueMissing(ctx); err != nil {
		logger.Warn("Failed to restore queue from dirty records", "error", err)
	} else if n > 0 {
		logger.Info("Restored queue items from dirty records", "count", n)
	}

	sigCh := c.signals
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGUSR1, syscall.SIGUSR2)
		defer signal.Stop(sigCh)
	}
	lifecycle := make(chan clientsync.LifecycleState, 1)

	// стартовое состояние сети известно до запуска цикла событий,
	// а сам запуск считается переходом в foreground
	c.app.Prober.ProbeOnce(ctx)
	lifecycle <- clientsync.LifecycleForeground

	var watcher *config.Watcher
	if c.configPath != "" {
		w, err := config.NewWatcher(c.configPath, c.app.Tables, logger.With("component", "config"))
		if err != nil {
			return err
		}
		if err := w.Start(); err != nil {
			return err
		}
		watcher = w
		defer func() {
			if err := w.Stop(); err != nil {
				logger.Error("Failed to stop config watcher", "error", err)
			}
		}()
	}

	if err := c.app.Monitor.Start(ctx); err != nil {
		return err
	}
	defer c.app.Monitor.Stop()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	spawn := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Daemon component failed", "component", name, "error", err)
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				mu.Unlock()
				cancel()
			}
		}()
	}

	spawn("netprobe", c.app.Prober.Run)
	spawn("orchestrator", func(ctx context.Context) error {
		return c.app.Orch.Run(ctx, clientsync.Events{
			Connectivity: c.app.Prober.Events(),
			Lifecycle:    lifecycle,
		})
	})
	if c.app.Config.Diagnostics.Enabled {
		srv := diagserver.New(c.app.Config.Diagnostics.Address, c.app.Manager, c.app.Registry, logger.With("component", "diagserver"))
		spawn("diagserver", srv.Run)
	}

	var changes <-chan *config.Config
	if watcher != nil {
		changes = watcher.Changes()
	}

	c.io.Println("LexiSync daemon running. Press Ctrl+C to stop.")

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case sig := <-sigCh:
			state := clientsync.LifecycleForeground
			if sig == syscall.SIGUSR2 {
				state = clientsync.LifecycleBackground
			}
			logger.Debug("Lifecycle signal", "signal", sig, "state", state)
			select {
			case lifecycle <- state:
			case <-ctx.Done():
			}
		case cfg := <-changes:
			if err := c.app.ApplyConfig(cfg); err != nil {
				logger.Error("Failed to apply reloaded config", "error", err)
			}
		}
	}

	wg.Wait()
	logger.Info("Sync daemon stopped")
	return errors.Join(errs...)
}
