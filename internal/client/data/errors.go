package data

import "errors"

var (
	// ErrRecordDeleted indicates a write to a record that was deleted locally
	ErrRecordDeleted = errors.New("record is deleted")

	// ErrInvalidRecord indicates a malformed table name, id or field set
	ErrInvalidRecord = errors.New("invalid record")
)
