package storage

import (
	"errors"
	"fmt"
	"time"
)

// Common storage errors
var (
	// ErrRecordNotFound indicates that the record does not exist for the user
	ErrRecordNotFound = errors.New("record not found")

	// ErrConflict indicates that the record changed after the client's base version
	ErrConflict = errors.New("record changed on server")
)

// ConflictError carries the current server version of a record that
// failed the base_updated_at check.
type ConflictError struct {
	Current *Record
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s/%s updated at %s",
		ErrConflict, e.Current.Table, e.Current.ServerID, e.Current.UpdatedAt.UTC().Format(time.RFC3339Nano))
}

// Is makes errors.Is(err, ErrConflict) match.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}
