package cli

import (
	"context"
	"fmt"
)

func (c *Cli) runDeadLetters(ctx context.Context) error {
	items, err := c.app.Queue.DeadLetters(ctx)
	if err != nil {
		return fmt.Errorf("failed to list dead letters: %w", err)
	}
	return c.render("dead-letters", deadLettersTemplate, items)
}

// runRequeue: requeue <id>
func (c *Cli) runRequeue(ctx context.Context, args []string) error {
	if err := requireArgs(args, 1, "requeue <id>"); err != nil {
		return err
	}
	if err := c.app.Queue.Requeue(ctx, args[0]); err != nil {
		return fmt.Errorf("failed to requeue item: %w", err)
	}
	c.io.Printf("✓ Item %s moved back to the sync queue\n", args[0])
	return nil
}
