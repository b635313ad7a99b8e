package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/lexisync/internal/server/storage"
)

const recordColumns = `user_id, table_name, server_id, client_ref, fields, cleared_fields,
	client_updated_at, updated_at, deleted`

// queryRower is satisfied by *sql.DB and *sql.Tx
type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ListSince returns records (including deleted) of a table changed after
// since, oldest first. A zero since returns everything.
func (s *Storage) ListSince(ctx context.Context, userID, table string, since time.Time, limit int) ([]*storage.Record, error) {
	query := `SELECT ` + recordColumns + `
		FROM records
		WHERE user_id = ? AND table_name = ? AND updated_at > ?
		ORDER BY updated_at ASC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, userID, table, timeToNano(since), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query records since watermark: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	records := make([]*storage.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return records, nil
}

// Get returns a record including a soft deleted one.
func (s *Storage) Get(ctx context.Context, userID, table, serverID string) (*storage.Record, error) {
	return getRecord(ctx, s.db, userID, table, serverID)
}

// Create stores a new record. A repeated call with the same ClientRef
// returns the existing record and created=false.
func (s *Storage) Create(ctx context.Context, rec *storage.Record) (*storage.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if rec.ClientRef != "" {
		existing, err := getRecordByClientRef(ctx, tx, rec.UserID, rec.Table, rec.ClientRef)
		if err == nil {
			// повтор после потерянного ответа
			return existing, false, nil
		}
		if !errors.Is(err, storage.ErrRecordNotFound) {
			return nil, false, err
		}
	}

	stored := copyRecord(rec)
	if stored.ServerID == "" {
		stored.ServerID = uuid.NewString()
	}
	stored.UpdatedAt = s.nextUpdatedAt()

	if err := insertRecord(ctx, tx, stored); err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("failed to commit record: %w", err)
	}
	s.commitUpdatedAt(stored.UpdatedAt)

	return stored, true, nil
}

// Upsert replaces the record if it was not changed after base.
// A missing record is created under the given ServerID.
// A deleted record always conflicts: the tombstone is the current version.
func (s *Storage) Upsert(ctx context.Context, rec *storage.Record, base time.Time) (*storage.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stored := copyRecord(rec)
	stored.UpdatedAt = s.nextUpdatedAt()

	existing, err := getRecord(ctx, tx, rec.UserID, rec.Table, rec.ServerID)
	switch {
	case errors.Is(err, storage.ErrRecordNotFound):
		if err := insertRecord(ctx, tx, stored); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	case existing.Deleted || existing.UpdatedAt.After(base):
		return nil, &storage.ConflictError{Current: existing}
	default:
		stored.ClientRef = existing.ClientRef
		if err := updateRecord(ctx, tx, stored); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit record: %w", err)
	}
	s.commitUpdatedAt(stored.UpdatedAt)

	return stored, nil
}

// Delete marks the record deleted if it was not changed after base.
// Fields are kept; the row stays downloadable as a tombstone.
func (s *Storage) Delete(ctx context.Context, userID, table, serverID string, base, clientUpdatedAt time.Time) (*storage.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	existing, err := getRecord(ctx, tx, userID, table, serverID)
	if err != nil {
		return nil, err
	}
	if existing.Deleted {
		return existing, nil
	}
	if existing.UpdatedAt.After(base) {
		return nil, &storage.ConflictError{Current: existing}
	}

	stored := copyRecord(existing)
	stored.Deleted = true
	stored.ClientUpdatedAt = clientUpdatedAt
	stored.UpdatedAt = s.nextUpdatedAt()

	if err := updateRecord(ctx, tx, stored); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit delete: %w", err)
	}
	s.commitUpdatedAt(stored.UpdatedAt)

	return stored, nil
}

func getRecord(ctx context.Context, q queryRower, userID, table, serverID string) (*storage.Record, error) {
	query := `SELECT ` + recordColumns + `
		FROM records
		WHERE user_id = ? AND table_name = ? AND server_id = ?`

	rec, err := scanRecord(q.QueryRowContext(ctx, query, userID, table, serverID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return rec, nil
}

func getRecordByClientRef(ctx context.Context, q queryRower, userID, table, clientRef string) (*storage.Record, error) {
	query := `SELECT ` + recordColumns + `
		FROM records
		WHERE user_id = ? AND table_name = ? AND client_ref = ?`

	rec, err := scanRecord(q.QueryRowContext(ctx, query, userID, table, clientRef))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get record by client_ref: %w", err)
	}
	return rec, nil
}

func insertRecord(ctx context.Context, tx *sql.Tx, rec *storage.Record) error {
	fields, cleared, err := encodeFields(rec)
	if err != nil {
		return err
	}

	query := `INSERT INTO records (` + recordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = tx.ExecContext(ctx, query,
		rec.UserID,
		rec.Table,
		rec.ServerID,
		rec.ClientRef,
		fields,
		cleared,
		timeToNano(rec.ClientUpdatedAt),
		timeToNano(rec.UpdatedAt),
		boolToInt(rec.Deleted),
	)
	if err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}
	return nil
}

func updateRecord(ctx context.Context, tx *sql.Tx, rec *storage.Record) error {
	fields, cleared, err := encodeFields(rec)
	if err != nil {
		return err
	}

	query := `UPDATE records
		SET client_ref = ?, fields = ?, cleared_fields = ?,
		    client_updated_at = ?, updated_at = ?, deleted = ?
		WHERE user_id = ? AND table_name = ? AND server_id = ?`

	_, err = tx.ExecContext(ctx, query,
		rec.ClientRef,
		fields,
		cleared,
		timeToNano(rec.ClientUpdatedAt),
		timeToNano(rec.UpdatedAt),
		boolToInt(rec.Deleted),
		rec.UserID,
		rec.Table,
		rec.ServerID,
	)
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}
	return nil
}

// scanRecord reads one row selected with recordColumns
func scanRecord(row interface{ Scan(dest ...any) error }) (*storage.Record, error) {
	var (
		rec                    storage.Record
		fields, cleared        string
		clientUpdated, updated int64
		deleted                int
	)

	err := row.Scan(
		&rec.UserID,
		&rec.Table,
		&rec.ServerID,
		&rec.ClientRef,
		&fields,
		&cleared,
		&clientUpdated,
		&updated,
		&deleted,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(fields), &rec.Fields); err != nil {
		return nil, fmt.Errorf("failed to decode record fields: %w", err)
	}
	if rec.Fields == nil {
		rec.Fields = map[string]any{}
	}
	if err := json.Unmarshal([]byte(cleared), &rec.ClearedFields); err != nil {
		return nil, fmt.Errorf("failed to decode cleared fields: %w", err)
	}

	rec.ClientUpdatedAt = nanoToTime(clientUpdated)
	rec.UpdatedAt = nanoToTime(updated)
	rec.Deleted = intToBool(deleted)

	return &rec, nil
}

func encodeFields(rec *storage.Record) (string, string, error) {
	fields := rec.Fields
	if fields == nil {
		fields = map[string]any{}
	}
	f, err := json.Marshal(fields)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode record fields: %w", err)
	}

	cleared := rec.ClearedFields
	if cleared == nil {
		cleared = []string{}
	}
	c, err := json.Marshal(cleared)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode cleared fields: %w", err)
	}

	return string(f), string(c), nil
}

func copyRecord(rec *storage.Record) *storage.Record {
	c := *rec
	c.Fields = make(map[string]any, len(rec.Fields))
	for k, v := range rec.Fields {
		c.Fields[k] = v
	}
	c.ClearedFields = append([]string(nil), rec.ClearedFields...)
	return &c
}

// Helper functions for bool/int conversion
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func intToBool(i int) bool {
	return i != 0
}

func timeToNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func nanoToTime(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
