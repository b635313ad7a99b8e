package sync

import "errors"

var (
	// ErrSyncInProgress возвращается при запуске не-forced синхронизации во время активной сессии
	ErrSyncInProgress = errors.New("sync already in progress")

	// ErrInvalidSettings is returned by UpdateConfig for out-of-range tunables.
	ErrInvalidSettings = errors.New("invalid sync settings")
)
