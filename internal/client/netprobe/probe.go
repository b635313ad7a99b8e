// Package netprobe derives connectivity signals from periodic server health checks.
package netprobe

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/iudanet/lexisync/internal/client/mode"
	clientsync "github.com/iudanet/lexisync/internal/client/sync"
)

// AutoConnectionType derives the connection type from the measured round trip.
const AutoConnectionType = "auto"

// Пороги RTT для определения типа соединения в режиме auto
const (
	fastRTT = 300 * time.Millisecond
	slowRTT = time.Second
)

// Pinger checks that the sync server answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config holds probe settings.
type Config struct {
	Interval time.Duration
	Timeout  time.Duration
	// ConnectionType is reported as is, or derived from the RTT when "auto" or empty.
	ConnectionType string
}

// DefaultConfig returns the built-in probe settings.
func DefaultConfig() Config {
	return Config{
		Interval:       15 * time.Second,
		Timeout:        5 * time.Second,
		ConnectionType: AutoConnectionType,
	}
}

// Prober publishes connectivity changes and serves the latest signal.
type Prober struct {
	pinger  Pinger
	logger  *slog.Logger
	events  chan clientsync.ConnectivityEvent
	now     func() time.Time
	current mode.Signal
	cfg     Config
	probed  bool
	mu      sync.RWMutex
}

// New creates a prober. Until the first probe completes the signal is disconnected.
func New(pinger Pinger, cfg Config, logger *slog.Logger) *Prober {
	return &Prober{
		pinger: pinger,
		logger: logger,
		events: make(chan clientsync.ConnectivityEvent, 1),
		now:    func() time.Time { return time.Now().UTC() },
		cfg:    cfg,
	}
}

// Events returns the channel of connectivity changes.
func (p *Prober) Events() <-chan clientsync.ConnectivityEvent {
	return p.events
}

// Current returns the latest signal.
func (p *Prober) Current() mode.Signal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Run probes immediately and then on every interval until ctx is done.
func (p *Prober) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.ProbeOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.ProbeOnce(ctx)
		}
	}
}

// ProbeOnce pings the server, stores the signal and publishes it if it changed.
func (p *Prober) ProbeOnce(ctx context.Context) mode.Signal {
	pctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	start := time.Now()
	err := p.pinger.Ping(pctx)
	rtt := time.Since(start)
	cancel()

	var sig mode.Signal
	if err != nil {
		if ctx.Err() != nil {
			return p.Current()
		}
		// сеть есть, но сервер недоступен: mode.Select вернет offline
		sig = mode.Signal{IsConnected: true, IsInternetReachable: mode.Reachable(false)}
		p.logger.Debug("Server probe failed", "error", err)
	} else {
		sig = mode.Signal{
			IsConnected:         true,
			IsInternetReachable: mode.Reachable(true),
			ConnectionType:      p.connectionType(rtt),
		}
	}

	p.mu.Lock()
	prev := p.current
	changed := !p.probed || !sameSignal(prev, sig)
	p.current = sig
	p.probed = true
	p.mu.Unlock()

	if changed {
		p.logger.Info("Connectivity changed",
			"connected", clientsync.ConnectivityEvent{Signal: sig}.Connected(),
			"connection_type", sig.ConnectionType,
			"rtt", rtt)
		p.publish(ctx, clientsync.ConnectivityEvent{At: p.now(), Signal: sig})
	}
	return sig
}

// publish не блокирует: устаревшее непрочитанное событие заменяется новым
func (p *Prober) publish(ctx context.Context, ev clientsync.ConnectivityEvent) {
	for {
		select {
		case p.events <- ev:
			return
		case <-ctx.Done():
			return
		default:
		}
		select {
		case <-p.events:
		default:
		}
	}
}

func (p *Prober) connectionType(rtt time.Duration) string {
	t := strings.TrimSpace(p.cfg.ConnectionType)
	if t != "" && t != AutoConnectionType {
		return t
	}
	switch {
	case rtt < fastRTT:
		return "wifi"
	case rtt < slowRTT:
		return "4g"
	default:
		return "3g"
	}
}

func sameSignal(a, b mode.Signal) bool {
	reach := func(s mode.Signal) int {
		switch {
		case s.IsInternetReachable == nil:
			return -1
		case *s.IsInternetReachable:
			return 1
		}
		return 0
	}
	return a.IsConnected == b.IsConnected &&
		a.ConnectionType == b.ConnectionType &&
		reach(a) == reach(b)
}
