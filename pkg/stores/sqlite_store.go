package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLite datetime literal format, UTC.
const sqliteTimeFormat = "2006-01-02 15:04:05.000"

// SQLiteStore implements the KV interface using SQLite. Expired entries are
// filtered on read and reclaimed by PurgeExpired; a periodic sweep is the
// deployment's responsibility.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Config holds SQLite store configuration.
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance.
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	return &SQLiteStore{path: cfg.Path}, nil
}

// Init opens the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations from the embedded filesystem.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// SetNX atomically stores value under key only if the key is absent or its
// previous entry has expired. The expired case is folded into the INSERT's
// conflict clause so the check-and-set stays a single statement.
func (s *SQLiteStore) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	query := `
		INSERT INTO kv_entries (key, value, expires_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
		WHERE kv_entries.expires_at IS NOT NULL
		  AND datetime(kv_entries.expires_at) <= datetime('now')
	`

	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx, query,
		key,
		value,
		formatExpiry(now, ttl),
		now.Format(sqliteTimeFormat),
	)
	if err != nil {
		return false, fmt.Errorf("failed to set key %s: %w", key, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows > 0, nil
}

// Get returns the value under key, filtering out expired entries.
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	query := `
		SELECT value FROM kv_entries
		WHERE key = ?
		  AND (expires_at IS NULL OR datetime(expires_at) > datetime('now'))
	`

	var value []byte
	err := s.db.QueryRowContext(ctx, query, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key %s: %w", key, err)
	}

	return value, nil
}

// Set unconditionally stores value under key with the given TTL.
func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	query := `
		INSERT INTO kv_entries (key, value, expires_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at
	`

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, query,
		key,
		value,
		formatExpiry(now, ttl),
		now.Format(sqliteTimeFormat),
	)
	if err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}

	return nil
}

// UpsertRecency inserts or updates member's score within the named index set.
func (s *SQLiteStore) UpsertRecency(ctx context.Context, set, member string, score time.Time) error {
	query := `
		INSERT INTO recency_index (set_name, member, score)
		VALUES (?, ?, ?)
		ON CONFLICT(set_name, member) DO UPDATE SET
			score = excluded.score
	`

	_, err := s.db.ExecContext(ctx, query, set, member, score.UTC().Format(sqliteTimeFormat))
	if err != nil {
		return fmt.Errorf("failed to upsert recency for %s/%s: %w", set, member, err)
	}

	return nil
}

// RecentMembers returns up to limit members of the named index set, most
// recent score first.
func (s *SQLiteStore) RecentMembers(ctx context.Context, set string, limit int) ([]string, error) {
	query := `
		SELECT member FROM recency_index
		WHERE set_name = ?
		ORDER BY score DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, set, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent members: %w", err)
	}
	defer rows.Close()

	members := []string{}
	for rows.Next() {
		var member string
		if err := rows.Scan(&member); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, member)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating members: %w", err)
	}

	return members, nil
}

// PurgeExpired deletes all expired entries and returns the number removed.
func (s *SQLiteStore) PurgeExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM kv_entries WHERE expires_at IS NOT NULL AND datetime(expires_at) <= datetime('now')`

	result, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired entries: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows, nil
}

// HealthCheck verifies the database connection is healthy.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.db.PingContext(ctx)
}

func formatExpiry(now time.Time, ttl time.Duration) *string {
	exp := expiryFrom(now, ttl)
	if exp == nil {
		return nil
	}
	formatted := exp.UTC().Format(sqliteTimeFormat)
	return &formatted
}
