package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/lexisync/internal/client/mode"
	"github.com/iudanet/lexisync/internal/models"
)

func TestConnectivityEvent_Connected(t *testing.T) {
	tests := []struct {
		name string
		sig  mode.Signal
		want bool
	}{
		{name: "wifi", sig: mode.Signal{IsConnected: true, ConnectionType: "wifi"}, want: true},
		{name: "reachability unknown", sig: mode.Signal{IsConnected: true}, want: true},
		{name: "captive portal", sig: mode.Signal{IsConnected: true, IsInternetReachable: mode.Reachable(false)}, want: false},
		{name: "disconnected", sig: mode.Signal{}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ConnectivityEvent{Signal: tt.sig}.Connected())
		})
	}
}

func triggerSettings() Settings {
	s := DefaultSettings()
	s.AutoSyncInterval = 0
	s.ReconnectDelay = 20 * time.Millisecond
	s.ForegroundDelay = 20 * time.Millisecond
	return s
}

// runLoop запускает цикл событий и останавливает его по завершении теста
func runLoop(t *testing.T, f *fixture, events Events) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.orch.Run(ctx, events) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
}

func sessionTriggers(t *testing.T, f *fixture) []models.Trigger {
	t.Helper()
	sessions, err := f.store.ListSessionsSince(context.Background(), time.Time{})
	require.NoError(t, err)
	triggers := make([]models.Trigger, 0, len(sessions))
	for _, s := range sessions {
		triggers = append(triggers, s.Trigger)
	}
	return triggers
}

func TestRun_ReconnectTriggersSyncAfterSettleDelay(t *testing.T) {
	f := newFixture(t, &APIClientMock{}, noSignal, triggerSettings())
	conn := make(chan ConnectivityEvent, 1)
	runLoop(t, f, Events{Connectivity: conn})

	f.signal.set(wifi)
	conn <- ConnectivityEvent{Signal: wifi, At: time.Now()}

	require.Eventually(t, func() bool {
		return len(sessionTriggers(t, f)) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []models.Trigger{models.TriggerReconnect}, sessionTriggers(t, f))
}

func TestRun_DisconnectDuringSettleDelayCancelsSync(t *testing.T) {
	settings := triggerSettings()
	settings.ReconnectDelay = 200 * time.Millisecond
	f := newFixture(t, &APIClientMock{}, noSignal, settings)
	conn := make(chan ConnectivityEvent)
	runLoop(t, f, Events{Connectivity: conn})

	conn <- ConnectivityEvent{Signal: wifi}
	conn <- ConnectivityEvent{Signal: noSignal}

	time.Sleep(400 * time.Millisecond)
	assert.Empty(t, sessionTriggers(t, f))
}

func TestRun_ForegroundTriggersSync(t *testing.T) {
	f := newFixture(t, &APIClientMock{}, wifi, triggerSettings())
	lifecycle := make(chan LifecycleState, 2)
	runLoop(t, f, Events{Lifecycle: lifecycle})

	lifecycle <- LifecycleBackground
	lifecycle <- LifecycleForeground

	require.Eventually(t, func() bool {
		return len(sessionTriggers(t, f)) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []models.Trigger{models.TriggerForeground}, sessionTriggers(t, f))
}

func TestRun_RetryAfterTransientFailure(t *testing.T) {
	f := newFixture(t, &APIClientMock{}, wifi, triggerSettings())
	runLoop(t, f, Events{})

	f.orch.mu.Lock()
	f.orch.settings.RetryDelay = 10 * time.Millisecond
	f.orch.scheduleRetryLocked()
	f.orch.mu.Unlock()

	require.Eventually(t, func() bool {
		return len(sessionTriggers(t, f)) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []models.Trigger{models.TriggerRetry}, sessionTriggers(t, f))
}

func TestRun_AutoSyncTick(t *testing.T) {
	settings := triggerSettings()
	settings.AutoSyncInterval = time.Second
	f := newFixture(t, &APIClientMock{}, noSignal, settings)
	runLoop(t, f, Events{})

	require.Eventually(t, func() bool {
		return len(sessionTriggers(t, f)) >= 1
	}, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, models.TriggerTimer, sessionTriggers(t, f)[0])

	// смена интервала на лету перерегистрирует задачу cron
	settings.AutoSyncInterval = time.Hour
	require.NoError(t, f.orch.UpdateConfig(settings))
}
