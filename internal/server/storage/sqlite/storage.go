package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // SQLite driver
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Storage represents SQLite storage implementation
type Storage struct {
	db  *sql.DB
	now func() time.Time

	// mu сериализует запись и выдачу updated_at
	mu          sync.Mutex
	lastUpdated int64 // последний выданный updated_at, UnixNano
}

// Option configures Storage.
type Option func(*Storage)

// WithClock overrides the wall clock used for updated_at (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Storage) {
		s.now = now
	}
}

// New creates a new SQLite storage instance
// dbPath is the path to the SQLite database file
// Use ":memory:" for in-memory database (useful for testing)
func New(ctx context.Context, dbPath string, opts ...Option) (*Storage, error) {
	// Открываем соединение с БД
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Проверяем соединение
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// SQLite с WAL mode может поддерживать несколько читателей, но только одного писателя.
	// Одно соединение также сохраняет ":memory:" базу между запросами.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA foreign_keys = ON;",
		"PRAGMA busy_timeout = 5000;",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	storage := &Storage{db: db, now: time.Now}
	for _, opt := range opts {
		opt(storage)
	}

	if err := storage.runMigrations(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	// часы updated_at продолжают с последнего сохраненного значения
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(updated_at), 0) FROM records`).Scan(&storage.lastUpdated); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load last updated_at: %w", err)
	}

	return storage, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable
func (s *Storage) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// runMigrations выполняет миграции из embedded FS
func (s *Storage) runMigrations(ctx context.Context) error {
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.UpContext(ctx, s.db, "migrations"); err != nil {
		return fmt.Errorf("goose up failed: %w", err)
	}

	return nil
}

// nextUpdatedAt returns a timestamp strictly greater than every one issued
// before. Caller must hold s.mu and call commitUpdatedAt after a successful write.
func (s *Storage) nextUpdatedAt() time.Time {
	next := s.now().UnixNano()
	if next <= s.lastUpdated {
		next = s.lastUpdated + 1
	}
	return time.Unix(0, next).UTC()
}

func (s *Storage) commitUpdatedAt(t time.Time) {
	s.lastUpdated = t.UnixNano()
}

// DB returns the underlying database connection for testing purposes
func (s *Storage) DB() *sql.DB {
	return s.db
}
