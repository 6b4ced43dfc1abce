// Package store provides the durable local database for offline use.
//
// The store is an embedded SQLite database (WAL mode for concurrent
// reads) holding one table per collection: cached quizzes, flashcard
// sets and cards, graded quiz attempts, the sync queue, the review
// progress log, settings, and document metadata with binaries kept in a
// separate blob table so listings never page through payloads.
//
// Schema changes are expressed as an ordered list of idempotent
// migration steps. The current version is recorded in a meta table and
// advanced transactionally, so reopening across process restarts and
// upgrades is safe, and a store left with missing tables by a partial
// migration heals itself by re-running the full pass.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// ErrNotFound is returned when a get misses. Readers treat a missing
// parent (e.g. a flashcard whose set was never downloaded) as unknown,
// not as corruption.
var ErrNotFound = errors.New("store: not found")

// maxOpenRetries bounds the self-healing migration loop so a genuinely
// broken store fails instead of spinning.
const maxOpenRetries = 5

// Store wraps the SQLite connection with collection-level operations.
type Store struct {
	conn   *sql.DB
	path   string
	logger *log.Logger
}

// Open opens or creates the store at path and migrates it to the target
// schema version. A target of 0 means the latest known version.
//
// Failures other than a schema mismatch (quota, locked file, I/O)
// propagate to the caller; the next Open call starts from a clean slate.
func Open(ctx context.Context, path string, target int) (*Store, error) {
	return OpenWithLogger(ctx, path, target, nil)
}

// OpenWithLogger opens the store with a custom logger. A nil logger
// defaults to stderr.
func OpenWithLogger(ctx context.Context, path string, target int, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[store] ", log.LstdFlags)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping store: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{conn: conn, path: path, logger: logger}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := s.conn.ExecContext(ctx, pragma); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", pragma, err)
		}
	}

	if err := s.migrate(ctx, target); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close checkpoints the WAL and closes the connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.logger.Printf("Warning: failed to checkpoint WAL: %v", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}

	s.conn = nil
	return nil
}

// migrate brings the store to the target schema version and verifies
// every required collection exists afterwards. If verification finds a
// collection missing (a prior run crashed mid-migration, or the file
// predates the version bookkeeping), the recorded version is reset to
// force a complete migration pass on the next loop iteration. The loop
// is bounded so it converges or fails.
func (s *Store) migrate(ctx context.Context, target int) error {
	if _, err := s.conn.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT NOT NULL)`); err != nil {
		return fmt.Errorf("failed to create meta table: %w", err)
	}

	if target <= 0 || target > latestVersion() {
		target = latestVersion()
	}

	for attempt := 0; attempt < maxOpenRetries; attempt++ {
		current, err := s.schemaVersion(ctx)
		if err != nil {
			return err
		}

		if current > target {
			// Store written by a newer client. Migrations are additive,
			// so the extra collections are harmless; adopt its version.
			s.logger.Printf("Store is at schema v%d, newer than requested v%d; keeping it", current, target)
			target = current
		}

		if err := s.applyMigrations(ctx, current, target); err != nil {
			return err
		}

		missing, err := s.missingTables(ctx)
		if err != nil {
			return err
		}
		if len(missing) == 0 {
			return nil
		}

		s.logger.Printf("Store is missing collections %v after migrating to v%d; forcing a full pass (attempt %d)",
			missing, target, attempt+1)
		if err := s.setSchemaVersion(ctx, 0); err != nil {
			return err
		}
	}

	return fmt.Errorf("store schema did not converge after %d attempts", maxOpenRetries)
}

// applyMigrations runs every step above current up to target, each in
// its own transaction together with the version bump.
func (s *Store) applyMigrations(ctx context.Context, current, target int) error {
	for _, m := range migrations {
		if m.version <= current || m.version > target {
			continue
		}

		tx, err := s.conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", m.version, err)
		}

		if err := m.apply(ctx, tx); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.name, err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO meta (key, value) VALUES ('schema_version', ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			strconv.Itoa(m.version)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to record schema version %d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.version, err)
		}

		s.logger.Printf("Applied migration %d: %s", m.version, m.name)
	}

	return nil
}

// schemaVersion reads the recorded schema version, 0 if none.
func (s *Store) schemaVersion(ctx context.Context) (int, error) {
	var value string
	err := s.conn.QueryRowContext(ctx,
		`SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}

	version, err := strconv.Atoi(value)
	if err != nil {
		// Corrupted version row; treat as unmigrated and let the full
		// pass rebuild bookkeeping.
		s.logger.Printf("Warning: unreadable schema version %q, assuming 0", value)
		return 0, nil
	}
	return version, nil
}

func (s *Store) setSchemaVersion(ctx context.Context, version int) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO meta (key, value) VALUES ('schema_version', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		strconv.Itoa(version))
	if err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}
	return nil
}

// missingTables returns required collections absent from the database.
func (s *Store) missingTables(ctx context.Context) ([]string, error) {
	var missing []string
	for _, table := range requiredTables {
		var count int
		err := s.conn.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`,
			table).Scan(&count)
		if err != nil {
			return nil, fmt.Errorf("failed to check table %s: %w", table, err)
		}
		if count == 0 {
			missing = append(missing, table)
		}
	}
	return missing, nil
}

// Manager deduplicates concurrent opens of the same store. All callers
// of Open share a single in-flight attempt and receive the same handle;
// the initialization path runs exactly once per successful open. After a
// failed attempt the next Open starts fresh.
type Manager struct {
	path    string
	target  int
	logger  *log.Logger
	mu      sync.Mutex
	pending chan struct{}
	store   *Store
	err     error

	// openFn is swappable in tests to count initializations.
	openFn func(ctx context.Context) (*Store, error)
}

// NewManager creates a manager for the store at path. A target of 0
// migrates to the latest schema version.
func NewManager(path string, target int, logger *log.Logger) *Manager {
	m := &Manager{path: path, target: target, logger: logger}
	m.openFn = func(ctx context.Context) (*Store, error) {
		return OpenWithLogger(ctx, m.path, m.target, m.logger)
	}
	return m
}

// Open returns the shared store handle, opening it on first use. If an
// open is already in flight, the call waits for that attempt instead of
// issuing its own.
func (m *Manager) Open(ctx context.Context) (*Store, error) {
	m.mu.Lock()
	if m.store != nil {
		s := m.store
		m.mu.Unlock()
		return s, nil
	}

	if m.pending != nil {
		ch := m.pending
		m.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		m.mu.Lock()
		s, err := m.store, m.err
		m.mu.Unlock()
		if s == nil && err == nil {
			err = fmt.Errorf("store open was abandoned")
		}
		return s, err
	}

	ch := make(chan struct{})
	m.pending = ch
	m.mu.Unlock()

	s, err := m.openFn(ctx)

	m.mu.Lock()
	if err == nil {
		m.store = s
	}
	m.err = err
	m.pending = nil
	close(ch)
	m.mu.Unlock()

	return s, err
}

// Close closes the shared handle if one is open.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.store == nil {
		return nil
	}
	err := m.store.Close()
	m.store = nil
	m.err = nil
	return err
}

// timeFormat is RFC3339 with a fixed-width fractional second. The
// fraction must not be trimmed: created_at columns are compared and
// ordered as strings, and a trimmed ".5Z" would sort after
// ".499999999Z".
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// timeToNullString converts a time to a nullable RFC3339 string,
// treating the zero time as NULL.
func timeToNullString(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeFormat), Valid: true}
}

// nullStringToTime parses a nullable RFC3339 string, returning the zero
// time for NULL or unparseable values.
func nullStringToTime(ns sql.NullString) time.Time {
	if !ns.Valid {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return time.Time{}
	}
	return t
}
