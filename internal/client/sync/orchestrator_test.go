package sync

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	stdsync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpClient "github.com/iudanet/lexisync/internal/client/api"
	"github.com/iudanet/lexisync/internal/client/conflict"
	"github.com/iudanet/lexisync/internal/client/mode"
	"github.com/iudanet/lexisync/internal/client/queue"
	"github.com/iudanet/lexisync/internal/client/storage/boltdb"
	"github.com/iudanet/lexisync/internal/models"
	"github.com/iudanet/lexisync/pkg/api"
)

var (
	wifi     = mode.Signal{IsConnected: true, ConnectionType: "wifi"}
	slow     = mode.Signal{IsConnected: true, ConnectionType: "3g"}
	noSignal = mode.Signal{}
)

// signalStub - изменяемый источник сигнала для тестов цикла событий
type signalStub struct {
	sig mode.Signal
	mu  stdsync.Mutex
}

func (s *signalStub) Current() mode.Signal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sig
}

func (s *signalStub) set(sig mode.Signal) {
	s.mu.Lock()
	s.sig = sig
	s.mu.Unlock()
}

type fixture struct {
	orch   *Orchestrator
	store  *boltdb.Storage
	queue  *queue.Service
	api    *APIClientMock
	signal *signalStub
}

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

func emptyDownload(ctx context.Context, table string, req api.DownloadRequest) (*api.DownloadResponse, error) {
	return &api.DownloadResponse{Success: true, Records: []api.Record{}}, nil
}

func newFixture(t *testing.T, mock *APIClientMock, sig mode.Signal, settings Settings) *fixture {
	t.Helper()

	store, err := boltdb.New(context.Background(), filepath.Join(t.TempDir(), "sync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	if mock.DownloadFunc == nil {
		mock.DownloadFunc = emptyDownload
	}

	logger := setupTestLogger()
	tables := models.NewTableRegistry(models.DefaultTables())
	strategies := make(map[string]models.ConflictStrategy)
	for _, spec := range tables.Specs() {
		strategies[spec.Name] = spec.Strategy
	}

	q := queue.NewService(store, store, store, tables, queue.Config{MaxRetries: settings.MaxRetries}, logger)
	signal := &signalStub{sig: sig}

	orch, err := New(Dependencies{
		API:      mock,
		Signals:  signal,
		Records:  store,
		Metadata: store,
		Sessions: store,
		Reviews:  store,
		Queue:    q,
		Resolver: conflict.NewResolver(store, strategies, logger),
		Tables:   tables,
		Logger:   logger,
	}, settings)
	require.NoError(t, err)

	return &fixture{orch: orch, store: store, queue: q, api: mock, signal: signal}
}

// putDirty сохраняет локальную правку и ставит ее в очередь, как это делает data service
func (f *fixture) putDirty(t *testing.T, rec *models.Record) {
	t.Helper()
	ctx := context.Background()
	rec.Dirty = true
	require.NoError(t, f.store.SaveRecord(ctx, rec))
	_, err := f.queue.Enqueue(ctx, rec.Table, rec.LocalID, queue.ActionFor(rec))
	require.NoError(t, err)
}

func waitSyncing(t *testing.T, o *Orchestrator) {
	t.Helper()
	require.Eventually(t, o.IsSyncing, 2*time.Second, 5*time.Millisecond)
}

func TestNew_InvalidSettings(t *testing.T) {
	settings := DefaultSettings()
	settings.BatchSize = 0

	_, err := New(Dependencies{Signals: StaticSignal(wifi)}, settings)
	assert.ErrorIs(t, err, ErrInvalidSettings)
}

func TestPerformSync_Offline(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &APIClientMock{}, noSignal, DefaultSettings())

	// грязная запись без элемента очереди
	require.NoError(t, f.store.SaveRecord(ctx, &models.Record{
		Table:     models.TableVocabularies,
		LocalID:   "v1",
		Fields:    map[string]any{"lemma": "run", "definition": "move fast"},
		UpdatedAt: time.Now(),
		Dirty:     true,
	}))

	res, err := f.orch.PerformSync(ctx, Options{})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, models.ModeOffline, res.Mode)
	assert.Contains(t, res.Warnings, warnOfflineMode)
	assert.Empty(t, f.api.DownloadCalls())

	size, err := f.queue.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, size)

	sessions, err := f.store.ListSessionsSince(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.NotNil(t, sessions[0].CompletedAt)
	assert.Equal(t, models.TriggerManual, sessions[0].Trigger)
	assert.False(t, f.orch.IsSyncing())
}

func TestPerformSync_OnlineUploadsInsert(t *testing.T) {
	ctx := context.Background()
	serverTime := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	mock := &APIClientMock{
		CreateRecordFunc: func(ctx context.Context, table string, req api.CreateRecordRequest) (*api.Record, error) {
			return &api.Record{ServerID: "srv-1", ClientRef: req.ClientRef, Table: table, Fields: req.Fields, UpdatedAt: serverTime}, nil
		},
	}
	f := newFixture(t, mock, wifi, DefaultSettings())

	f.putDirty(t, &models.Record{
		Table:     models.TableVocabularies,
		LocalID:   "v1",
		Fields:    map[string]any{"lemma": "run", "definition": "move fast"},
		UpdatedAt: time.Now(),
	})

	res, err := f.orch.PerformSync(ctx, Options{})
	require.NoError(t, err)
	assert.True(t, res.Success, res.Errors)
	assert.Equal(t, 1, res.SyncedItems[models.TableVocabularies].Uploaded)

	calls := mock.CreateRecordCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "v1", calls[0].Req.ClientRef)

	rec, err := f.store.GetRecord(ctx, models.TableVocabularies, "v1")
	require.NoError(t, err)
	assert.False(t, rec.Dirty)
	assert.Equal(t, "srv-1", rec.ServerID)
	assert.True(t, rec.LastSyncedAt.Equal(serverTime))

	size, err := f.queue.Size(ctx)
	require.NoError(t, err)
	assert.Zero(t, size)

	// каждая таблица скачивается
	assert.Len(t, mock.DownloadCalls(), len(models.DefaultTables()))
}

func TestPerformSync_RejectsConcurrentNonForced(t *testing.T) {
	release := make(chan struct{})
	mock := &APIClientMock{
		DownloadFunc: func(ctx context.Context, table string, req api.DownloadRequest) (*api.DownloadResponse, error) {
			<-release
			return &api.DownloadResponse{Success: true}, nil
		},
	}
	f := newFixture(t, mock, wifi, DefaultSettings())

	done := make(chan *models.SyncResult)
	go func() {
		res, _ := f.orch.PerformSync(context.Background(), Options{})
		done <- res
	}()
	waitSyncing(t, f.orch)

	_, err := f.orch.PerformSync(context.Background(), Options{Trigger: models.TriggerTimer})
	assert.ErrorIs(t, err, ErrSyncInProgress)

	current := f.orch.CurrentSession()
	require.NotNil(t, current)
	assert.Nil(t, current.CompletedAt)

	close(release)
	res := <-done
	assert.True(t, res.Success)
	assert.False(t, f.orch.IsSyncing())
	assert.Nil(t, f.orch.CurrentSession())
	assert.Equal(t, res.SessionID, f.orch.LastResult().SessionID)
}

func TestCancelCurrentSync_AbortsInFlightRequest(t *testing.T) {
	mock := &APIClientMock{
		DownloadFunc: func(ctx context.Context, table string, req api.DownloadRequest) (*api.DownloadResponse, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	f := newFixture(t, mock, wifi, DefaultSettings())
	assert.False(t, f.orch.CancelCurrentSync())

	done := make(chan *models.SyncResult)
	go func() {
		res, _ := f.orch.PerformSync(context.Background(), Options{})
		done <- res
	}()
	waitSyncing(t, f.orch)

	assert.True(t, f.orch.CancelCurrentSync())

	select {
	case res := <-done:
		assert.True(t, res.Cancelled)
		assert.False(t, res.Success)
	case <-time.After(2 * time.Second):
		t.Fatal("session was not aborted")
	}

	// только первая таблица успела начать скачивание
	assert.Len(t, mock.DownloadCalls(), 1)

	sessions, err := f.store.ListSessionsSince(context.Background(), time.Time{})
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	for _, op := range sessions[0].Operations {
		assert.True(t, op.Status.IsTerminal(), "operation %s left in %s", op.ID, op.Status)
	}
}

func TestPerformSync_TransientFailureRetriesThenDeadLetters(t *testing.T) {
	ctx := context.Background()
	mock := &APIClientMock{
		UpsertRecordFunc: func(ctx context.Context, table, serverID string, req api.UpsertRecordRequest) (*api.Record, error) {
			return nil, &httpClient.StatusError{StatusCode: http.StatusServiceUnavailable, Message: "maintenance"}
		},
	}
	settings := DefaultSettings()
	settings.MaxRetries = 1
	f := newFixture(t, mock, wifi, settings)

	f.putDirty(t, &models.Record{
		Table:     models.TableCards,
		LocalID:   "c1",
		ServerID:  "srv-c1",
		Fields:    map[string]any{"front": "hola"},
		UpdatedAt: time.Now(),
	})

	res, err := f.orch.PerformSync(ctx, Options{})
	require.NoError(t, err)
	assert.False(t, res.Success)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "cards")

	items, err := f.queue.Items(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].RetryCount)

	res, err = f.orch.PerformSync(ctx, Options{})
	require.NoError(t, err)
	assert.False(t, res.Success)

	size, err := f.queue.Size(ctx)
	require.NoError(t, err)
	assert.Zero(t, size)

	dead, err := f.queue.DeadLetters(ctx)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Contains(t, dead[0].LastError, "maintenance")
	assert.Contains(t, res.Warnings[0], "dead letters")

	// запись не потеряна
	rec, err := f.store.GetRecord(ctx, models.TableCards, "c1")
	require.NoError(t, err)
	assert.True(t, rec.Dirty)

	// офлайн-сессия не возвращает отложенную запись в активную очередь
	f.signal.set(noSignal)
	_, err = f.orch.PerformSync(ctx, Options{})
	require.NoError(t, err)

	size, err = f.queue.Size(ctx)
	require.NoError(t, err)
	assert.Zero(t, size)

	upserts := len(mock.UpsertRecordCalls())
	f.signal.set(wifi)
	_, err = f.orch.PerformSync(ctx, Options{})
	require.NoError(t, err)
	assert.Len(t, mock.UpsertRecordCalls(), upserts, "dead letter must not be uploaded again")
}

func TestPerformSync_PermanentErrorDeadLettersImmediately(t *testing.T) {
	ctx := context.Background()
	mock := &APIClientMock{
		CreateRecordFunc: func(ctx context.Context, table string, req api.CreateRecordRequest) (*api.Record, error) {
			return nil, &httpClient.StatusError{StatusCode: http.StatusBadRequest, Message: "invalid fields"}
		},
	}
	f := newFixture(t, mock, wifi, DefaultSettings())
	f.putDirty(t, &models.Record{Table: models.TableStudySessions, LocalID: "s1", UpdatedAt: time.Now()})

	res, err := f.orch.PerformSync(ctx, Options{})
	require.NoError(t, err)
	assert.False(t, res.Success)

	dead, err := f.queue.DeadLetters(ctx)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, "s1", dead[0].RecordID)
}

func TestPerformSync_DownloadPagesAndAdvancesWatermark(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	pages := [][]api.Record{
		{
			{ServerID: "a", Table: models.TableCards, UpdatedAt: base.Add(time.Second), Fields: map[string]any{"front": "a"}},
			{ServerID: "b", Table: models.TableCards, UpdatedAt: base.Add(2 * time.Second), Fields: map[string]any{"front": "b"}},
		},
		{
			{ServerID: "c", Table: models.TableCards, UpdatedAt: base.Add(3 * time.Second), Fields: map[string]any{"front": "c"}},
		},
	}

	var mu stdsync.Mutex
	var sinceSeen []*time.Time
	page := 0
	mock := &APIClientMock{
		DownloadFunc: func(ctx context.Context, table string, req api.DownloadRequest) (*api.DownloadResponse, error) {
			if table != models.TableCards {
				return &api.DownloadResponse{Success: true}, nil
			}
			mu.Lock()
			defer mu.Unlock()
			sinceSeen = append(sinceSeen, req.Since)
			if page >= len(pages) {
				return &api.DownloadResponse{Success: true}, nil
			}
			recs := pages[page]
			page++
			return &api.DownloadResponse{Success: true, Records: recs}, nil
		},
	}
	settings := DefaultSettings()
	settings.BatchSize = 2
	f := newFixture(t, mock, wifi, settings)

	res, err := f.orch.PerformSync(ctx, Options{})
	require.NoError(t, err)
	assert.True(t, res.Success, res.Errors)
	assert.Equal(t, 3, res.SyncedItems[models.TableCards].Downloaded)

	require.Len(t, sinceSeen, 2)
	assert.Nil(t, sinceSeen[0])
	require.NotNil(t, sinceSeen[1])
	assert.True(t, sinceSeen[1].Equal(base.Add(2*time.Second)))

	wm, err := f.store.GetWatermark(ctx, models.TableCards)
	require.NoError(t, err)
	assert.True(t, wm.Equal(base.Add(3*time.Second)))

	rec, err := f.store.GetRecordByServerID(ctx, models.TableCards, "c")
	require.NoError(t, err)
	assert.False(t, rec.Dirty)
	assert.Equal(t, "c", rec.Fields["front"])
}

func TestPerformSync_DownloadKeepsNewerLocalEdit(t *testing.T) {
	ctx := context.Background()
	synced := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	mock := &APIClientMock{
		DownloadFunc: func(ctx context.Context, table string, req api.DownloadRequest) (*api.DownloadResponse, error) {
			if table != models.TableVocabularies {
				return &api.DownloadResponse{Success: true}, nil
			}
			// сервер вернул ту же версию, что клиент уже видел
			return &api.DownloadResponse{Success: true, Records: []api.Record{
				{ServerID: "srv-v1", Table: table, UpdatedAt: synced, Fields: map[string]any{"lemma": "old"}},
			}}, nil
		},
	}
	f := newFixture(t, mock, slow, DefaultSettings())

	// vocabularies не критичная таблица: в hybrid режиме не скачивается
	require.NoError(t, f.store.SaveRecord(ctx, &models.Record{
		Table:        models.TableVocabularies,
		LocalID:      "v1",
		ServerID:     "srv-v1",
		Fields:       map[string]any{"lemma": "new"},
		UpdatedAt:    synced.Add(time.Hour),
		LastSyncedAt: synced,
		Dirty:        true,
	}))

	res, err := f.orch.PerformSync(ctx, Options{Priority: []string{models.TableUserProgress}})
	require.NoError(t, err)
	assert.True(t, res.Success)

	for _, call := range mock.DownloadCalls() {
		assert.Equal(t, models.TableUserProgress, call.Table)
	}

	f.signal.set(wifi)
	res, err = f.orch.PerformSync(ctx, Options{})
	require.NoError(t, err)
	// пропущенная серверная версия не считается скачанной
	assert.Zero(t, res.Totals().Downloaded)

	rec, err := f.store.GetRecord(ctx, models.TableVocabularies, "v1")
	require.NoError(t, err)
	assert.Equal(t, "new", rec.Fields["lemma"])
	assert.True(t, rec.Dirty)
}

func TestPerformSync_ConflictResolvedClientWins(t *testing.T) {
	ctx := context.Background()
	synced := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	serverChanged := synced.Add(time.Minute)
	pushed := synced.Add(2 * time.Minute)

	var mu stdsync.Mutex
	upserts := 0
	mock := &APIClientMock{
		UpsertRecordFunc: func(ctx context.Context, table, serverID string, req api.UpsertRecordRequest) (*api.Record, error) {
			mu.Lock()
			defer mu.Unlock()
			upserts++
			if upserts == 1 {
				return nil, &httpClient.ConflictError{
					Message: "stale base",
					Current: api.Record{ServerID: serverID, Table: table, UpdatedAt: serverChanged, Fields: map[string]any{"score": 1}},
				}
			}
			return &api.Record{ServerID: serverID, Table: table, UpdatedAt: pushed, Fields: req.Fields}, nil
		},
	}
	f := newFixture(t, mock, wifi, DefaultSettings())

	f.putDirty(t, &models.Record{
		Table:        models.TableStudySessions,
		LocalID:      "s1",
		ServerID:     "srv-s1",
		Fields:       map[string]any{"score": 7},
		UpdatedAt:    synced.Add(30 * time.Second),
		LastSyncedAt: synced,
	})

	res, err := f.orch.PerformSync(ctx, Options{})
	require.NoError(t, err)
	assert.True(t, res.Success, res.Errors)
	assert.Equal(t, 1, res.SyncedItems[models.TableStudySessions].Conflicts)

	calls := mock.UpsertRecordCalls()
	require.Len(t, calls, 2)
	assert.True(t, calls[0].Req.BaseUpdatedAt.Equal(synced))
	assert.True(t, calls[1].Req.BaseUpdatedAt.Equal(serverChanged))
	assert.EqualValues(t, 7, calls[1].Req.Fields["score"])

	rec, err := f.store.GetRecord(ctx, models.TableStudySessions, "s1")
	require.NoError(t, err)
	assert.False(t, rec.Dirty)
	assert.True(t, rec.LastSyncedAt.Equal(pushed))

	size, err := f.queue.Size(ctx)
	require.NoError(t, err)
	assert.Zero(t, size)

	session, err := f.store.LastSuccessfulSession(ctx)
	require.NoError(t, err)
	var types []models.OperationType
	for _, op := range session.Operations {
		if op.TableName == models.TableStudySessions {
			types = append(types, op.Type)
		}
	}
	assert.Equal(t, []models.OperationType{models.OpUpload, models.OpDownload, models.OpConflictResolution}, types)
}

func TestPerformSync_ManualStrategyParksConflict(t *testing.T) {
	ctx := context.Background()
	synced := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	mock := &APIClientMock{
		UpsertRecordFunc: func(ctx context.Context, table, serverID string, req api.UpsertRecordRequest) (*api.Record, error) {
			return nil, &httpClient.ConflictError{
				Current: api.Record{ServerID: serverID, Table: table, UpdatedAt: synced.Add(time.Hour), Fields: map[string]any{"lemma": "server"}},
			}
		},
	}
	f := newFixture(t, mock, wifi, DefaultSettings())
	f.putDirty(t, &models.Record{
		Table:        models.TableVocabularies,
		LocalID:      "v1",
		ServerID:     "srv-v1",
		Fields:       map[string]any{"lemma": "local"},
		UpdatedAt:    synced.Add(time.Minute),
		LastSyncedAt: synced,
	})

	res, err := f.orch.PerformSync(ctx, Options{ConflictStrategy: models.ResolutionManual})
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "manual review")

	review, err := f.store.GetManualReview(ctx, models.TableVocabularies, "v1")
	require.NoError(t, err)
	assert.Equal(t, "server", review.ServerRecord.Fields["lemma"])

	size, err := f.queue.Size(ctx)
	require.NoError(t, err)
	assert.Zero(t, size)

	// пользователь выбирает серверную версию
	require.NoError(t, f.orch.ResolveManualReview(ctx, models.TableVocabularies, "v1", models.StrategyServerWins))

	rec, err := f.store.GetRecord(ctx, models.TableVocabularies, "v1")
	require.NoError(t, err)
	assert.False(t, rec.Dirty)
	assert.Equal(t, "server", rec.Fields["lemma"])

	_, err = f.store.GetManualReview(ctx, models.TableVocabularies, "v1")
	assert.Error(t, err)
}

func TestResolveManualReview_ClientWinsRequeues(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &APIClientMock{}, noSignal, DefaultSettings())

	local := &models.Record{Table: models.TableCards, LocalID: "c1", ServerID: "srv", Fields: map[string]any{"front": "mine"}, UpdatedAt: time.Now(), Dirty: true}
	server := &models.Record{Table: models.TableCards, LocalID: "c1", ServerID: "srv", Fields: map[string]any{"front": "theirs"}, UpdatedAt: time.Now()}
	require.NoError(t, f.store.SaveRecord(ctx, local))
	require.NoError(t, f.store.SaveManualReview(ctx, &models.DataConflict{
		TableName: models.TableCards, RecordID: "c1", ClientRecord: local, ServerRecord: server,
	}))

	require.NoError(t, f.orch.ResolveManualReview(ctx, models.TableCards, "c1", models.StrategyClientWins))

	items, err := f.queue.Items(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, models.ActionUpdate, items[0].Action)

	rec, err := f.store.GetRecord(ctx, models.TableCards, "c1")
	require.NoError(t, err)
	assert.Equal(t, "mine", rec.Fields["front"])
	assert.True(t, rec.LastSyncedAt.Equal(server.UpdatedAt))

	assert.Error(t, f.orch.ResolveManualReview(ctx, models.TableCards, "c1", "nonsense"))
}

func TestPerformSync_HybridUploadsOnlyHighPriority(t *testing.T) {
	ctx := context.Background()
	mock := &APIClientMock{
		CreateRecordFunc: func(ctx context.Context, table string, req api.CreateRecordRequest) (*api.Record, error) {
			return &api.Record{ServerID: "srv-" + req.ClientRef, UpdatedAt: time.Now()}, nil
		},
	}
	f := newFixture(t, mock, slow, DefaultSettings())

	f.putDirty(t, &models.Record{Table: models.TableUserProgress, LocalID: "p1", UpdatedAt: time.Now()})
	f.putDirty(t, &models.Record{Table: models.TableVocabularies, LocalID: "v1", UpdatedAt: time.Now()})

	res, err := f.orch.PerformSync(ctx, Options{})
	require.NoError(t, err)
	assert.True(t, res.Success, res.Errors)
	assert.Equal(t, models.ModeHybrid, res.Mode)
	assert.Contains(t, res.Warnings, warnHybridMode)

	calls := mock.CreateRecordCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, models.TableUserProgress, calls[0].Table)

	downloads := mock.DownloadCalls()
	require.Len(t, downloads, 1)
	assert.Equal(t, models.TableUserProgress, downloads[0].Table)

	items, err := f.queue.Items(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "v1", items[0].RecordID)

	session, err := f.store.LastSuccessfulSession(ctx)
	require.NoError(t, err)
	cancelled := 0
	for _, op := range session.Operations {
		if op.Status == models.StatusCancelled {
			cancelled++
			assert.Equal(t, reasonDeferred, op.Error)
		}
	}
	assert.Positive(t, cancelled)
}

func TestPerformSync_TableFailureIsContained(t *testing.T) {
	ctx := context.Background()
	mock := &APIClientMock{
		DownloadFunc: func(ctx context.Context, table string, req api.DownloadRequest) (*api.DownloadResponse, error) {
			switch table {
			case models.TableCards:
				return nil, errors.New("connection reset")
			case models.TableStudySessions:
				panic("unexpected payload")
			}
			return &api.DownloadResponse{Success: true}, nil
		},
	}
	f := newFixture(t, mock, wifi, DefaultSettings())

	res, err := f.orch.PerformSync(ctx, Options{})
	require.NoError(t, err)
	assert.False(t, res.Success)
	require.Len(t, res.Errors, 2)
	assert.Contains(t, res.Errors[0], "cards")
	assert.Contains(t, res.Errors[1], "study_sessions")

	// остальные таблицы обработаны
	assert.Len(t, mock.DownloadCalls(), len(models.DefaultTables()))
	assert.False(t, f.orch.IsSyncing())
}

// Повторная сессия после частичного сбоя не выгружает уже принятые записи
func TestPerformSync_PartialFailureRetryIsIdempotent(t *testing.T) {
	ctx := context.Background()
	mock := &APIClientMock{
		CreateRecordFunc: func(ctx context.Context, table string, req api.CreateRecordRequest) (*api.Record, error) {
			if table == models.TableCards {
				return nil, &httpClient.StatusError{StatusCode: http.StatusServiceUnavailable, Message: "maintenance"}
			}
			return &api.Record{ServerID: "srv-" + req.ClientRef, ClientRef: req.ClientRef, Table: table, Fields: req.Fields, UpdatedAt: time.Now()}, nil
		},
	}
	f := newFixture(t, mock, wifi, DefaultSettings())

	for _, id := range []string{"v1", "v2"} {
		f.putDirty(t, &models.Record{Table: models.TableVocabularies, LocalID: id, UpdatedAt: time.Now()})
	}
	f.putDirty(t, &models.Record{Table: models.TableCards, LocalID: "c1", UpdatedAt: time.Now()})

	createsFor := func(table string) int {
		n := 0
		for _, call := range mock.CreateRecordCalls() {
			if call.Table == table {
				n++
			}
		}
		return n
	}

	for session := 1; session <= 2; session++ {
		res, err := f.orch.PerformSync(ctx, Options{})
		require.NoError(t, err)
		assert.False(t, res.Success)

		assert.Equal(t, 2, createsFor(models.TableVocabularies), "session %d", session)
		assert.Equal(t, session, createsFor(models.TableCards), "session %d", session)

		items, err := f.queue.Items(ctx)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, models.TableCards, items[0].TableName)
		assert.Equal(t, "c1", items[0].RecordID)
		assert.Equal(t, session, items[0].RetryCount)
	}

	for _, id := range []string{"v1", "v2"} {
		rec, err := f.store.GetRecord(ctx, models.TableVocabularies, id)
		require.NoError(t, err)
		assert.False(t, rec.Dirty)
		assert.Equal(t, "srv-"+id, rec.ServerID)
	}
}

func TestPerformSync_TimeBudgetDefersWork(t *testing.T) {
	f := newFixture(t, &APIClientMock{}, wifi, DefaultSettings())

	// каждый вызов часов сдвигает время на миллисекунду
	clock := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	f.orch.now = func() time.Time {
		clock = clock.Add(time.Millisecond)
		return clock
	}

	res, err := f.orch.PerformSync(context.Background(), Options{MaxDuration: time.Microsecond})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Empty(t, f.api.DownloadCalls())
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[0], "budget")
}

func TestRebuildQueue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &APIClientMock{}, noSignal, DefaultSettings())

	require.NoError(t, f.store.SaveRecord(ctx, &models.Record{Table: models.TableCards, LocalID: "c1", UpdatedAt: time.Now(), Dirty: true}))

	n, err := f.orch.RebuildQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// после перестройки сессии снова запускаются
	_, err = f.orch.PerformSync(ctx, Options{})
	assert.NoError(t, err)
}

func TestRebuildQueue_BlocksSessions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &APIClientMock{}, noSignal, DefaultSettings())

	f.orch.mu.Lock()
	f.orch.rebuilding = true
	f.orch.mu.Unlock()

	tests := []struct {
		name string
		opts Options
	}{
		{name: "manual", opts: Options{}},
		{name: "forced", opts: Options{Forced: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.orch.PerformSync(ctx, tt.opts)
			assert.ErrorIs(t, err, ErrSyncInProgress)
		})
	}

	_, err := f.orch.RebuildQueue(ctx)
	assert.ErrorIs(t, err, ErrSyncInProgress)
	assert.Nil(t, f.orch.LastResult())
}

func TestRebuildQueue_RejectedDuringSession(t *testing.T) {
	release := make(chan struct{})
	mock := &APIClientMock{
		DownloadFunc: func(ctx context.Context, table string, req api.DownloadRequest) (*api.DownloadResponse, error) {
			<-release
			return &api.DownloadResponse{Success: true}, nil
		},
	}
	f := newFixture(t, mock, wifi, DefaultSettings())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = f.orch.PerformSync(context.Background(), Options{})
	}()
	waitSyncing(t, f.orch)

	_, err := f.orch.RebuildQueue(context.Background())
	assert.ErrorIs(t, err, ErrSyncInProgress)

	close(release)
	<-done
}

func TestUpdateConfig(t *testing.T) {
	f := newFixture(t, &APIClientMock{}, noSignal, DefaultSettings())

	bad := DefaultSettings()
	bad.RetryDelay = 0
	assert.ErrorIs(t, f.orch.UpdateConfig(bad), ErrInvalidSettings)

	bad = DefaultSettings()
	bad.ConflictMode = "ask_later"
	assert.ErrorIs(t, f.orch.UpdateConfig(bad), ErrInvalidSettings)

	good := DefaultSettings()
	good.BatchSize = 10
	good.ConflictMode = models.ResolutionManual
	require.NoError(t, f.orch.UpdateConfig(good))
	assert.Equal(t, 10, f.orch.Settings().BatchSize)
	assert.Equal(t, models.ResolutionManual, f.orch.Settings().ConflictMode)
}

func TestResetHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &APIClientMock{}, noSignal, DefaultSettings())

	_, err := f.orch.PerformSync(ctx, Options{})
	require.NoError(t, err)
	require.NotNil(t, f.orch.LastResult())

	require.NoError(t, f.orch.ResetHistory(ctx))
	assert.Nil(t, f.orch.LastResult())

	sessions, err := f.store.ListSessionsSince(ctx, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestCurrentMode(t *testing.T) {
	f := newFixture(t, &APIClientMock{}, slow, DefaultSettings())
	assert.Equal(t, models.ModeHybrid, f.orch.CurrentMode().Mode)

	f.signal.set(wifi)
	m := f.orch.CurrentMode()
	assert.Equal(t, models.ModeOnline, m.Mode)
	assert.True(t, m.Has(models.CapMediaDownloads))
}
