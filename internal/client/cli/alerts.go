package cli

import (
	"context"
	"fmt"

	"github.com/iudanet/lexisync/internal/models"
)

func (c *Cli) runAlerts(ctx context.Context) error {
	return c.render("alerts", alertsTemplate, c.app.Monitor.ActiveAlerts())
}

// runResolveAlert: resolve-alert <id>
func (c *Cli) runResolveAlert(ctx context.Context, args []string) error {
	if err := requireArgs(args, 1, "resolve-alert <id>"); err != nil {
		return err
	}
	if err := c.app.Manager.ResolveAlert(ctx, args[0]); err != nil {
		return fmt.Errorf("failed to resolve alert: %w", err)
	}
	c.io.Printf("✓ Alert %s resolved\n", args[0])
	return nil
}

// runRecover: recover <action-id>; без аргумента печатает доступные действия
func (c *Cli) runRecover(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return c.render("actions", actionsTemplate, c.app.Monitor.RecoveryActions())
	}

	c.app.Prober.ProbeOnce(ctx)
	ok, err := c.app.Manager.ExecuteRecoveryAction(ctx, args[0])
	if err != nil {
		return fmt.Errorf("recovery action %s failed: %w", args[0], err)
	}
	if !ok {
		return fmt.Errorf("recovery action %s did not succeed", args[0])
	}
	c.io.Printf("✓ Recovery action %s completed\n", args[0])
	return nil
}

func (c *Cli) runReviews(ctx context.Context) error {
	reviews, err := c.app.Store.ListManualReviews(ctx)
	if err != nil {
		return fmt.Errorf("failed to list manual reviews: %w", err)
	}
	return c.render("reviews", reviewsTemplate, reviews)
}

// runResolveReview: resolve-review <table> <id> <strategy>
func (c *Cli) runResolveReview(ctx context.Context, args []string) error {
	if err := requireArgs(args, 3, "resolve-review <table> <id> <server_wins|client_wins|merge>"); err != nil {
		return err
	}
	strategy := models.ConflictStrategy(args[2])
	if !strategy.Valid() {
		return fmt.Errorf("%w: unknown strategy %q", ErrUsage, args[2])
	}

	if err := c.app.Manager.ResolveManualReview(ctx, args[0], args[1], strategy); err != nil {
		return fmt.Errorf("failed to resolve review: %w", err)
	}
	c.io.Printf("✓ Conflict on %s/%s resolved with %s\n", args[0], args[1], strategy)
	return nil
}

func (c *Cli) runReset(ctx context.Context) error {
	if err := c.app.Manager.ResetSyncState(ctx); err != nil {
		return fmt.Errorf("failed to reset sync state: %w", err)
	}
	c.io.Println("✓ Sync history and alerts cleared. Queued changes are kept.")
	return nil
}
