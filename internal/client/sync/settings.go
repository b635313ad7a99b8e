package sync

import (
	"fmt"
	"time"

	"github.com/iudanet/lexisync/internal/models"
)

// Settings are the runtime tunables of the orchestrator.
type Settings struct {
	// AutoSyncInterval между автоматическими запусками; 0 отключает таймер
	AutoSyncInterval time.Duration
	RetryDelay       time.Duration
	// ConflictResolutionTimeout ограничивает фазу разрешения конфликтов одной сессии
	ConflictResolutionTimeout time.Duration
	MaxDuration               time.Duration
	ReconnectDelay            time.Duration
	ForegroundDelay           time.Duration
	BatchSize                 int
	MaxRetries                int
	OfflineQueueMaxSize       int
	// ConflictMode применяется, когда вызов не задал стратегию явно
	ConflictMode models.ResolutionMode
}

// DefaultSettings returns the built-in tunables.
func DefaultSettings() Settings {
	return Settings{
		AutoSyncInterval:          30 * time.Minute,
		RetryDelay:                5 * time.Second,
		ConflictResolutionTimeout: 30 * time.Second,
		MaxDuration:               5 * time.Minute,
		ReconnectDelay:            3 * time.Second,
		ForegroundDelay:           time.Second,
		BatchSize:                 50,
		MaxRetries:                3,
		OfflineQueueMaxSize:       1000,
		ConflictMode:              models.ResolutionAutomatic,
	}
}

// Validate checks that the tunables are usable.
func (s Settings) Validate() error {
	switch {
	case s.AutoSyncInterval < 0:
		return fmt.Errorf("%w: auto sync interval must not be negative", ErrInvalidSettings)
	case s.RetryDelay <= 0:
		return fmt.Errorf("%w: retry delay must be positive", ErrInvalidSettings)
	case s.ConflictResolutionTimeout <= 0:
		return fmt.Errorf("%w: conflict resolution timeout must be positive", ErrInvalidSettings)
	case s.MaxDuration <= 0:
		return fmt.Errorf("%w: max duration must be positive", ErrInvalidSettings)
	case s.ReconnectDelay < 0 || s.ForegroundDelay < 0:
		return fmt.Errorf("%w: trigger delays must not be negative", ErrInvalidSettings)
	case s.BatchSize <= 0:
		return fmt.Errorf("%w: batch size must be positive", ErrInvalidSettings)
	case s.MaxRetries < 0:
		return fmt.Errorf("%w: max retries must not be negative", ErrInvalidSettings)
	case s.OfflineQueueMaxSize < 0:
		return fmt.Errorf("%w: offline queue max size must not be negative", ErrInvalidSettings)
	case s.ConflictMode != "" && s.ConflictMode != models.ResolutionAutomatic && s.ConflictMode != models.ResolutionManual:
		return fmt.Errorf("%w: unknown conflict mode %q", ErrInvalidSettings, s.ConflictMode)
	}
	return nil
}

// Options parameterize a single PerformSync call.
type Options struct {
	Trigger models.Trigger
	// ConflictStrategy: Manual отправляет каждый конфликт на ручной разбор
	ConflictStrategy models.ResolutionMode
	// Priority tables go first; in hybrid mode they are the only uploaded tables.
	Priority    []string
	MaxDuration time.Duration
	Forced      bool
}
