package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/iudanet/lexisync/internal/client/manager"
)

type statusView struct {
	manager.State
	QueueSize   int
	DeadLetters int
	Reviews     int
}

func (c *Cli) runStatus(ctx context.Context) error {
	c.app.Prober.ProbeOnce(ctx)

	// пересчет метрик без алертов и восстановления
	if _, err := c.app.Manager.RefreshDiagnostics(ctx); err != nil {
		return fmt.Errorf("failed to refresh health metrics: %w", err)
	}

	view := statusView{State: c.app.Manager.State()}

	size, err := c.app.Queue.Size(ctx)
	if err != nil {
		return fmt.Errorf("failed to get queue size: %w", err)
	}
	view.QueueSize = size

	dead, err := c.app.Queue.DeadLetters(ctx)
	if err != nil {
		// Не прерываем выполнение, просто логируем
		c.app.Logger.Warn("Failed to list dead letters", "error", err)
	}
	view.DeadLetters = len(dead)

	reviews, err := c.app.Store.ListManualReviews(ctx)
	if err != nil {
		c.app.Logger.Warn("Failed to list manual reviews", "error", err)
	}
	view.Reviews = len(reviews)

	return c.render("status", statusTemplate, view)
}

func (c *Cli) runDiagnostics(ctx context.Context) error {
	diag, err := c.app.Manager.RefreshDiagnostics(ctx)
	if err != nil {
		return fmt.Errorf("failed to collect diagnostics: %w", err)
	}
	return c.render("diagnostics", diagnosticsTemplate, diag)
}

// runExportLogs: export-logs [file]; без файла JSON печатается в stdout
func (c *Cli) runExportLogs(ctx context.Context, args []string) error {
	data, err := c.app.Manager.ExportSyncLogs(ctx)
	if err != nil {
		return err
	}

	if len(args) == 0 {
		if _, err := c.io.Write(append(data, '\n')); err != nil {
			return fmt.Errorf("failed to write sync logs: %w", err)
		}
		return nil
	}

	if err := os.WriteFile(args[0], data, 0o600); err != nil {
		return fmt.Errorf("failed to write sync logs: %w", err)
	}
	c.io.Printf("✓ Sync logs exported to %s\n", args[0])
	return nil
}
