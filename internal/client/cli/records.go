package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/iudanet/lexisync/internal/client/storage"
)

// runPut: put <table> <id|-> <json>
// Поля со значением null очищаются (tombstone), "-" создает запись с новым id.
func (c *Cli) runPut(ctx context.Context, args []string) error {
	if err := requireArgs(args, 3, "put <table> <id|-> <json>"); err != nil {
		return err
	}
	table, localID := args[0], args[1]
	if localID == "-" {
		localID = ""
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(args[2]), &raw); err != nil {
		return fmt.Errorf("%w: fields must be a JSON object: %w", ErrUsage, err)
	}

	fields := make(map[string]any, len(raw))
	var cleared []string
	for k, v := range raw {
		if v == nil {
			cleared = append(cleared, k)
			continue
		}
		fields[k] = v
	}
	slices.Sort(cleared)

	rec, err := c.app.Data.Put(ctx, table, localID, fields, cleared)
	if err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}

	c.io.Printf("✓ Saved %s/%s\n", rec.Table, rec.LocalID)
	c.io.Println("Run 'lexisync sync' to upload the change.")
	return nil
}

// runGet: get <table> <id>
func (c *Cli) runGet(ctx context.Context, args []string) error {
	if err := requireArgs(args, 2, "get <table> <id>"); err != nil {
		return err
	}

	rec, err := c.app.Data.Get(ctx, args[0], args[1])
	if err != nil {
		if errors.Is(err, storage.ErrRecordNotFound) {
			return fmt.Errorf("record not found: %s/%s", args[0], args[1])
		}
		return fmt.Errorf("failed to get record: %w", err)
	}
	return c.render("record", recordTemplate, rec)
}

// runList: list <table>
func (c *Cli) runList(ctx context.Context, args []string) error {
	if err := requireArgs(args, 1, "list <table>"); err != nil {
		return err
	}

	records, err := c.app.Data.List(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to list records: %w", err)
	}
	return c.render("records", recordListTemplate, struct {
		Table   string
		Records any
	}{Table: args[0], Records: records})
}

// runDelete: delete <table> <id>
func (c *Cli) runDelete(ctx context.Context, args []string) error {
	if err := requireArgs(args, 2, "delete <table> <id>"); err != nil {
		return err
	}
	table, localID := args[0], args[1]

	rec, err := c.app.Data.Get(ctx, table, localID)
	if err != nil {
		if errors.Is(err, storage.ErrRecordNotFound) {
			return fmt.Errorf("record not found: %s/%s", table, localID)
		}
		return fmt.Errorf("failed to get record: %w", err)
	}

	// подтверждение спрашиваем только в терминале
	if c.io.IsInteractive() {
		c.io.Println("About to delete:")
		for _, k := range slices.Sorted(maps.Keys(rec.Fields)) {
			c.io.Printf("  %s: %v\n", k, rec.Fields[k])
		}
		confirm, err := c.io.ReadInput("Are you sure? (yes/no): ")
		if err != nil {
			return fmt.Errorf("failed to read confirmation: %w", err)
		}
		if confirm != "yes" && confirm != "y" {
			c.io.Println("Deletion cancelled.")
			return nil
		}
	}

	if err := c.app.Data.Delete(ctx, table, localID); err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}

	c.io.Printf("✓ Deleted %s/%s\n", table, localID)
	c.io.Println("Note: This is a soft delete. Run 'lexisync sync' to sync with server.")
	return nil
}
