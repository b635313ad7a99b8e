package queue

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/lexisync/internal/client/storage/boltdb"
	"github.com/iudanet/lexisync/internal/models"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestService(t *testing.T, cfg Config, logger *slog.Logger) (*Service, *boltdb.Storage) {
	t.Helper()

	store, err := boltdb.New(context.Background(), filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	tables := models.NewTableRegistry(models.DefaultTables())
	return NewService(store, store, store, tables, cfg, logger), store
}

func saveRecord(t *testing.T, store *boltdb.Storage, rec *models.Record) {
	t.Helper()
	require.NoError(t, store.SaveRecord(context.Background(), rec))
}

func TestActionFor(t *testing.T) {
	assert.Equal(t, models.ActionInsert, ActionFor(&models.Record{}))
	assert.Equal(t, models.ActionUpdate, ActionFor(&models.Record{ServerID: "s"}))
	assert.Equal(t, models.ActionDelete, ActionFor(&models.Record{ServerID: "s", Deleted: true}))
}

func TestEnqueue_UsesTablePriorityAndRetries(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, Config{MaxRetries: 3, MaxSize: 100}, setupTestLogger())

	item, err := svc.Enqueue(ctx, models.TableUserProgress, "p1", models.ActionInsert)
	require.NoError(t, err)
	assert.Equal(t, 4, item.Priority)
	assert.Equal(t, 3, item.MaxRetries)

	items, err := svc.Dequeue(ctx, models.TableUserProgress, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "p1", items[0].RecordID)
}

func TestEnqueue_CeilingIsReportedNotTruncated(t *testing.T) {
	ctx := context.Background()
	var logBuf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logBuf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	svc, _ := newTestService(t, Config{MaxRetries: 3, MaxSize: 2}, logger)

	for _, id := range []string{"a", "b", "c", "d"} {
		_, err := svc.Enqueue(ctx, models.TableCards, id, models.ActionInsert)
		require.NoError(t, err)
	}

	size, err := svc.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, size)
	assert.Contains(t, logBuf.String(), "Sync queue exceeds configured ceiling")
}

func TestEnqueueMissing(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, Config{MaxRetries: 3}, setupTestLogger())

	saveRecord(t, store, &models.Record{Table: models.TableCards, LocalID: "queued", Dirty: true})
	saveRecord(t, store, &models.Record{Table: models.TableCards, LocalID: "missing", ServerID: "s1", Dirty: true})
	saveRecord(t, store, &models.Record{Table: models.TableCards, LocalID: "clean", ServerID: "s2"})
	saveRecord(t, store, &models.Record{Table: models.TableCards, LocalID: "gone", Deleted: true, Dirty: true})

	_, err := svc.Enqueue(ctx, models.TableCards, "queued", models.ActionInsert)
	require.NoError(t, err)

	added, err := svc.EnqueueMissing(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	items, err := svc.Items(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)

	byRecord := map[string]models.QueueAction{}
	for _, it := range items {
		byRecord[it.RecordID] = it.Action
	}
	assert.Equal(t, models.ActionUpdate, byRecord["missing"])
}

func TestRebuild_PreservesUnsyncedWork(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, Config{MaxRetries: 3}, setupTestLogger())

	saveRecord(t, store, &models.Record{Table: models.TableVocabularies, LocalID: "v1", Dirty: true})
	saveRecord(t, store, &models.Record{Table: models.TableCards, LocalID: "c1", ServerID: "s1", Deleted: true, Dirty: true})
	saveRecord(t, store, &models.Record{Table: models.TableCards, LocalID: "review", ServerID: "s2", Dirty: true})
	require.NoError(t, store.SaveManualReview(ctx, &models.DataConflict{TableName: models.TableCards, RecordID: "review"}))

	// Раздутая очередь с дублями и мусором
	for i := 0; i < 20; i++ {
		_, err := svc.Enqueue(ctx, models.TableVocabularies, "v1", models.ActionUpdate)
		require.NoError(t, err)
	}

	added, err := svc.Rebuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	items, err := svc.Items(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	for _, it := range items {
		switch it.RecordID {
		case "v1":
			assert.Equal(t, models.ActionInsert, it.Action)
		case "c1":
			assert.Equal(t, models.ActionDelete, it.Action)
		default:
			t.Fatalf("unexpected item %s", it.RecordID)
		}
	}
}

func TestCompact(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, Config{MaxRetries: 3}, setupTestLogger())
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	saveRecord(t, store, &models.Record{Table: models.TableCards, LocalID: "dup", ServerID: "s1", Dirty: true})
	saveRecord(t, store, &models.Record{Table: models.TableCards, LocalID: "never-uploaded", Deleted: true, Dirty: true})
	saveRecord(t, store, &models.Record{Table: models.TableCards, LocalID: "single", Dirty: true})

	for i, it := range []*models.SyncQueueItem{
		{TableName: models.TableCards, RecordID: "dup", Action: models.ActionInsert, Priority: 1},
		{TableName: models.TableCards, RecordID: "dup", Action: models.ActionUpdate, Priority: 3, RetryCount: 2},
		{TableName: models.TableCards, RecordID: "never-uploaded", Action: models.ActionInsert},
		{TableName: models.TableCards, RecordID: "never-uploaded", Action: models.ActionDelete},
		{TableName: models.TableCards, RecordID: "single", Action: models.ActionInsert},
		{TableName: models.TableCards, RecordID: "orphan", Action: models.ActionUpdate},
	} {
		it.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		it.MaxRetries = 3
		require.NoError(t, store.Enqueue(ctx, it))
	}

	removed, err := svc.Compact(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, removed)

	items, err := svc.Items(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "dup", items[0].RecordID)
	assert.Equal(t, models.ActionUpdate, items[0].Action)
	assert.Equal(t, 3, items[0].Priority)
	assert.Equal(t, 2, items[0].RetryCount)
	assert.True(t, items[0].CreatedAt.Equal(base))
	assert.Equal(t, "single", items[1].RecordID)
}

func TestRemoveRecordAndDeadLetters(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t, Config{MaxRetries: 0}, setupTestLogger())

	a, err := svc.Enqueue(ctx, models.TableCards, "r1", models.ActionInsert)
	require.NoError(t, err)
	_, err = svc.Enqueue(ctx, models.TableCards, "r1", models.ActionUpdate)
	require.NoError(t, err)
	b, err := svc.Enqueue(ctx, models.TableCards, "r2", models.ActionInsert)
	require.NoError(t, err)

	// MaxRetries=0: первая же неудача переносит в dead letter
	dead, err := svc.IncrementRetry(ctx, b.ID, assert.AnError)
	require.NoError(t, err)
	assert.True(t, dead)

	require.NoError(t, svc.RemoveRecord(ctx, models.TableCards, "r1"))
	size, err := svc.Size(ctx)
	require.NoError(t, err)
	assert.Zero(t, size)

	letters, err := svc.DeadLetters(ctx)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, assert.AnError.Error(), letters[0].LastError)

	require.NoError(t, svc.Requeue(ctx, b.ID))
	assert.Error(t, svc.Requeue(ctx, a.ID))
}

// Запись из dead letters не возвращается в очередь при обходе грязных записей
func TestDeadLetteredRecordsStayParked(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t, Config{MaxRetries: 0}, setupTestLogger())

	saveRecord(t, store, &models.Record{Table: models.TableCards, LocalID: "rejected", Dirty: true})
	item, err := svc.Enqueue(ctx, models.TableCards, "rejected", models.ActionInsert)
	require.NoError(t, err)

	dead, err := svc.IncrementRetry(ctx, item.ID, assert.AnError)
	require.NoError(t, err)
	require.True(t, dead)

	tests := []struct {
		run  func() (int, error)
		name string
	}{
		{name: "enqueue missing", run: func() (int, error) { return svc.EnqueueMissing(ctx) }},
		{name: "rebuild", run: func() (int, error) { return svc.Rebuild(ctx) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			added, err := tt.run()
			require.NoError(t, err)
			assert.Zero(t, added)

			size, err := svc.Size(ctx)
			require.NoError(t, err)
			assert.Zero(t, size)

			letters, err := svc.DeadLetters(ctx)
			require.NoError(t, err)
			assert.Len(t, letters, 1)
		})
	}

	// только Requeue возвращает запись в работу
	require.NoError(t, svc.Requeue(ctx, item.ID))
	size, err := svc.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, size)

	added, err := svc.EnqueueMissing(ctx)
	require.NoError(t, err)
	assert.Zero(t, added, "requeued item already covers the record")
}
