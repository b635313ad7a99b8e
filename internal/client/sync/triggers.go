package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/iudanet/lexisync/internal/client/mode"
	"github.com/iudanet/lexisync/internal/models"
)

// ConnectivityEvent is emitted when the network signal changes.
type ConnectivityEvent struct {
	At     time.Time
	Signal mode.Signal
}

// Connected reports whether the signal allows talking to the server.
func (e ConnectivityEvent) Connected() bool {
	if !e.Signal.IsConnected || e.Signal.Err != nil {
		return false
	}
	return e.Signal.IsInternetReachable == nil || *e.Signal.IsInternetReachable
}

// LifecycleState is the application lifecycle state.
type LifecycleState string

const (
	LifecycleForeground LifecycleState = "foreground"
	LifecycleBackground LifecycleState = "background"
)

// Events are the trigger sources of the event loop. Nil channels are ignored.
type Events struct {
	Connectivity <-chan ConnectivityEvent
	Lifecycle    <-chan LifecycleState
}

// Run is the trigger loop: auto-sync ticks, reconnects (after a settle delay
// that a disconnect cancels), foreground transitions and retry timers all
// funnel into PerformSync. It returns when ctx is done and every session it
// started has finished.
func (o *Orchestrator) Run(ctx context.Context, events Events) error {
	if err := o.startScheduler(); err != nil {
		return err
	}
	defer o.stopScheduler()

	var (
		reconnect    *time.Timer
		reconnectC   <-chan time.Time
		foreground   *time.Timer
		foregroundC  <-chan time.Time
		wasConnected = ConnectivityEvent{Signal: o.signals.Current()}.Connected()
	)
	stopTimer := func(t *time.Timer) {
		if t != nil {
			t.Stop()
		}
	}
	defer func() {
		stopTimer(reconnect)
		stopTimer(foreground)
		o.wg.Wait()
	}()

	o.logger.Info("Sync event loop started", "connected", wasConnected)

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("Sync event loop stopped")
			return nil

		case <-o.ticks:
			o.trigger(ctx, models.TriggerTimer)

		case <-o.retryCh:
			o.trigger(ctx, models.TriggerRetry)

		case ev, ok := <-events.Connectivity:
			if !ok {
				events.Connectivity = nil
				continue
			}
			connected := ev.Connected()
			switch {
			case connected && !wasConnected:
				stopTimer(reconnect)
				reconnect = time.NewTimer(o.Settings().ReconnectDelay)
				reconnectC = reconnect.C
				o.logger.Debug("Connectivity restored, sync scheduled", "delay", o.Settings().ReconnectDelay)
			case !connected && reconnectC != nil:
				// соединение пропало во время ожидания - синхронизация отменяется
				stopTimer(reconnect)
				reconnectC = nil
				o.logger.Debug("Connectivity lost, pending reconnect sync cancelled")
			}
			wasConnected = connected

		case <-reconnectC:
			reconnectC = nil
			o.trigger(ctx, models.TriggerReconnect)

		case st, ok := <-events.Lifecycle:
			if !ok {
				events.Lifecycle = nil
				continue
			}
			if st != LifecycleForeground {
				continue
			}
			stopTimer(foreground)
			foreground = time.NewTimer(o.Settings().ForegroundDelay)
			foregroundC = foreground.C

		case <-foregroundC:
			foregroundC = nil
			o.trigger(ctx, models.TriggerForeground)
		}
	}
}

// trigger starts a non-forced session in the background.
func (o *Orchestrator) trigger(ctx context.Context, t models.Trigger) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		_, err := o.PerformSync(ctx, Options{Trigger: t})
		if errors.Is(err, ErrSyncInProgress) {
			o.logger.Debug("Sync trigger skipped, session in progress", "trigger", t)
			return
		}
		if err != nil {
			o.logger.Error("Triggered sync failed", "trigger", t, "error", err)
		}
	}()
}

func (o *Orchestrator) startScheduler() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.scheduler = cron.New()
	if err := o.scheduleTicksLocked(); err != nil {
		o.scheduler = nil
		return err
	}
	o.scheduler.Start()
	return nil
}

func (o *Orchestrator) stopScheduler() {
	o.mu.Lock()
	c := o.scheduler
	o.scheduler = nil
	if o.retryTimer != nil {
		o.retryTimer.Stop()
	}
	o.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
}

// scheduleTicksLocked (пере)регистрирует задачу автосинхронизации; вызывать под mu
func (o *Orchestrator) scheduleTicksLocked() error {
	if o.cronEntry != 0 {
		o.scheduler.Remove(o.cronEntry)
		o.cronEntry = 0
	}
	if o.settings.AutoSyncInterval <= 0 {
		return nil
	}

	id, err := o.scheduler.AddFunc(fmt.Sprintf("@every %s", o.settings.AutoSyncInterval), func() {
		select {
		case o.ticks <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule auto sync: %w", err)
	}
	o.cronEntry = id
	return nil
}
