package health

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cast"

	"github.com/iudanet/lexisync/internal/client/storage"
	"github.com/iudanet/lexisync/internal/models"
)

// CheckIntegrity scans live (not deleted) records for orphaned children and
// missing required fields. Issues are grouped per table and kind.
// Nothing is repaired here.
func CheckIntegrity(ctx context.Context, records storage.RecordStorage, tables *models.TableRegistry) ([]models.IntegrityIssue, error) {
	issues := make([]models.IntegrityIssue, 0)

	for _, spec := range tables.Specs() {
		recs, err := records.ListRecords(ctx, spec.Name)
		if err != nil {
			return issues, fmt.Errorf("failed to list %s: %w", spec.Name, err)
		}

		var orphaned, incomplete []string
		for _, rec := range recs {
			if rec.Deleted {
				continue
			}
			if missingRequired(rec, spec.RequiredFields) {
				incomplete = append(incomplete, rec.LocalID)
			}
			if spec.ParentField == "" {
				continue
			}
			ok, err := parentExists(ctx, records, spec, rec)
			if err != nil {
				return issues, err
			}
			if !ok {
				orphaned = append(orphaned, rec.LocalID)
			}
		}

		if len(orphaned) > 0 {
			sort.Strings(orphaned)
			issues = append(issues, models.IntegrityIssue{
				TableName: spec.Name,
				Kind:      models.IssueOrphanedRecord,
				Detail:    fmt.Sprintf("%d orphaned %s found", len(orphaned), spec.Name),
				RecordIDs: orphaned,
			})
		}
		if len(incomplete) > 0 {
			sort.Strings(incomplete)
			issues = append(issues, models.IntegrityIssue{
				TableName: spec.Name,
				Kind:      models.IssueMissingFields,
				Detail:    fmt.Sprintf("%d incomplete %s records found", len(incomplete), spec.Name),
				RecordIDs: incomplete,
			})
		}
	}

	return issues, nil
}

func missingRequired(rec *models.Record, required []string) bool {
	for _, field := range required {
		v, ok := rec.Fields[field]
		if !ok || v == nil {
			return true
		}
		if s, err := cast.ToStringE(v); err == nil && s == "" {
			return true
		}
	}
	return false
}

// parentExists ищет родителя по local_id, затем по server_id; удаленный родитель не считается
func parentExists(ctx context.Context, records storage.RecordStorage, spec models.TableSpec, rec *models.Record) (bool, error) {
	ref := cast.ToString(rec.Fields[spec.ParentField])
	if ref == "" {
		return false, nil
	}

	parent, err := records.GetRecord(ctx, spec.ParentTable, ref)
	if errors.Is(err, storage.ErrRecordNotFound) {
		parent, err = records.GetRecordByServerID(ctx, spec.ParentTable, ref)
	}
	if errors.Is(err, storage.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up parent %s/%s: %w", spec.ParentTable, ref, err)
	}
	return !parent.Deleted, nil
}
