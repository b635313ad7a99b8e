package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"
)

// RecordSchemaVersion is the current version of the persisted record envelope.
const RecordSchemaVersion = 1

// ErrUnsupportedSchema is returned when a stored record was written by a newer schema.
var ErrUnsupportedSchema = errors.New("unsupported record schema version")

// Record is a single syncable row of one of the application tables.
// LocalID is the on-device key; ServerID is assigned on the first confirmed upload.
type Record struct {
	UpdatedAt    time.Time      `json:"updated_at"`
	LastSyncedAt time.Time      `json:"last_synced_at"`
	Fields       map[string]any `json:"fields"`
	Table        string         `json:"table"`
	LocalID      string         `json:"local_id"`
	ServerID     string         `json:"server_id,omitempty"`
	// ClearedFields lists fields the writer cleared on purpose (per-field tombstones).
	ClearedFields []string `json:"cleared_fields,omitempty"`
	Deleted       bool     `json:"deleted"`
	Dirty         bool     `json:"dirty"`
}

// RecordEnvelope wraps a record with the schema version it was written with.
type RecordEnvelope struct {
	Record        *Record `json:"record"`
	SchemaVersion int     `json:"schema_version"`
}

// EncodeRecord serializes a record into the current versioned envelope.
func EncodeRecord(r *Record) ([]byte, error) {
	data, err := json.Marshal(RecordEnvelope{SchemaVersion: RecordSchemaVersion, Record: r})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record envelope: %w", err)
	}
	return data, nil
}

// DecodeRecord parses a record envelope.
// Payloads without a schema_version are treated as bare version 0 records.
func DecodeRecord(data []byte) (*Record, error) {
	var env RecordEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record envelope: %w", err)
	}

	switch {
	case env.SchemaVersion > RecordSchemaVersion:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedSchema, env.SchemaVersion)
	case env.SchemaVersion == 0 || env.Record == nil:
		var legacy Record
		if err := json.Unmarshal(data, &legacy); err != nil {
			return nil, fmt.Errorf("failed to unmarshal legacy record: %w", err)
		}
		if legacy.Fields == nil {
			legacy.Fields = map[string]any{}
		}
		return &legacy, nil
	}

	if env.Record.Fields == nil {
		env.Record.Fields = map[string]any{}
	}
	return env.Record, nil
}

// Clone returns a deep copy of the record fields map and tombstones.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Fields = make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		c.Fields[k] = v
	}
	c.ClearedFields = slices.Clone(r.ClearedFields)
	return &c
}

// IsCleared reports whether the field carries an explicit clear tombstone.
func (r *Record) IsCleared(field string) bool {
	return slices.Contains(r.ClearedFields, field)
}

// SetField sets a field value and drops a matching tombstone.
func (r *Record) SetField(field string, value any) {
	if r.Fields == nil {
		r.Fields = map[string]any{}
	}
	r.Fields[field] = value
	r.ClearedFields = slices.DeleteFunc(r.ClearedFields, func(f string) bool { return f == field })
}

// ClearField removes a field value and records a tombstone for it.
func (r *Record) ClearField(field string) {
	delete(r.Fields, field)
	if !r.IsCleared(field) {
		r.ClearedFields = append(r.ClearedFields, field)
	}
}
