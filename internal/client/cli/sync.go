package cli

import (
	"context"
	"fmt"

	"github.com/iudanet/lexisync/internal/models"
)

type resultView struct {
	Result *models.SyncResult
	Totals models.TableStats
	Title  string
	Mode   models.SyncMode
}

func (c *Cli) runSync(ctx context.Context, quick bool) error {
	view := resultView{Title: "Synchronization"}
	if quick {
		view.Title = "Quick Synchronization"
	}

	// одноразовый запуск: режим выбирается по результату одной проверки сервера
	sig := c.app.Prober.ProbeOnce(ctx)
	c.app.Logger.Debug("Probed server", "connected", sig.IsConnected, "connection_type", sig.ConnectionType)

	var (
		res *models.SyncResult
		err error
	)
	if quick {
		res, err = c.app.Manager.PerformQuickSync(ctx)
	} else {
		res, err = c.app.Manager.PerformFullSync(ctx)
	}
	if err != nil {
		return fmt.Errorf("synchronization failed: %w", err)
	}

	view.Result = res
	view.Totals = res.Totals()
	view.Mode = c.app.Orch.CurrentMode()
	if err := c.render("result", resultTemplate, view); err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("synchronization finished with %d error(s)", len(res.Errors))
	}
	return nil
}
