package store

import (
	"context"
	"database/sql"
)

// requiredTables is the set of collections an opened store must have.
// Verification against this list drives the self-healing pass in
// migrate.
var requiredTables = []string{
	"quizzes",
	"flashcard_sets",
	"flashcards",
	"quiz_attempts",
	"sync_queue",
	"user_progress",
	"settings",
	"documents",
	"document_content",
}

// migration is one schema upgrade step. Steps must be idempotent
// (CREATE ... IF NOT EXISTS, guarded ALTERs) so the self-healing full
// pass can replay them over a partially migrated store without harm,
// and additive: existing data is never dropped.
type migration struct {
	version int
	name    string
	apply   func(ctx context.Context, tx *sql.Tx) error
}

func latestVersion() int {
	return migrations[len(migrations)-1].version
}

var migrations = []migration{
	{
		version: 1,
		name:    "core collections",
		apply: func(ctx context.Context, tx *sql.Tx) error {
			return execAll(ctx, tx, `
			CREATE TABLE IF NOT EXISTS quizzes (
				id TEXT PRIMARY KEY,
				title TEXT NOT NULL,
				subject TEXT,
				difficulty TEXT,
				questions TEXT NOT NULL,  -- JSON array
				owner_id TEXT,
				saved_at TEXT NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_quizzes_owner ON quizzes(owner_id);
			CREATE INDEX IF NOT EXISTS idx_quizzes_saved ON quizzes(saved_at);

			CREATE TABLE IF NOT EXISTS flashcard_sets (
				id TEXT PRIMARY KEY,
				title TEXT NOT NULL,
				description TEXT,
				tags TEXT,  -- JSON array
				card_count INTEGER NOT NULL DEFAULT 0,
				owner_id TEXT,
				saved_at TEXT NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_sets_owner ON flashcard_sets(owner_id);
			CREATE INDEX IF NOT EXISTS idx_sets_saved ON flashcard_sets(saved_at);

			CREATE TABLE IF NOT EXISTS flashcards (
				id TEXT PRIMARY KEY,
				front TEXT NOT NULL,
				back TEXT,
				tags TEXT,  -- JSON array
				difficulty TEXT,
				set_id TEXT NOT NULL,
				owner_id TEXT
			);
			CREATE INDEX IF NOT EXISTS idx_cards_set ON flashcards(set_id);
			CREATE INDEX IF NOT EXISTS idx_cards_owner ON flashcards(owner_id);

			CREATE TABLE IF NOT EXISTS quiz_attempts (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				quiz_id TEXT NOT NULL,
				owner_id TEXT NOT NULL,
				answers TEXT NOT NULL,   -- JSON object
				score INTEGER NOT NULL,
				percentage REAL NOT NULL,
				correct_count INTEGER NOT NULL,
				total_count INTEGER NOT NULL,
				details TEXT,            -- JSON array
				time_taken INTEGER NOT NULL DEFAULT 0,
				xp_earned INTEGER NOT NULL DEFAULT 0,
				synced INTEGER NOT NULL DEFAULT 0,
				created_at TEXT NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_attempts_quiz ON quiz_attempts(quiz_id);
			CREATE INDEX IF NOT EXISTS idx_attempts_owner ON quiz_attempts(owner_id);
			CREATE INDEX IF NOT EXISTS idx_attempts_created ON quiz_attempts(created_at);
			CREATE INDEX IF NOT EXISTS idx_attempts_synced ON quiz_attempts(synced);

			CREATE TABLE IF NOT EXISTS sync_queue (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				action TEXT NOT NULL,
				payload TEXT NOT NULL,  -- JSON
				created_at TEXT NOT NULL,
				synced INTEGER NOT NULL DEFAULT 0,
				retries INTEGER NOT NULL DEFAULT 0
			);
			CREATE INDEX IF NOT EXISTS idx_queue_action ON sync_queue(action);
			CREATE INDEX IF NOT EXISTS idx_queue_created ON sync_queue(created_at);
			CREATE INDEX IF NOT EXISTS idx_queue_synced ON sync_queue(synced);

			CREATE TABLE IF NOT EXISTS user_progress (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				flashcard_id TEXT NOT NULL,
				owner_id TEXT NOT NULL,
				review_count INTEGER NOT NULL DEFAULT 0,
				correct_count INTEGER NOT NULL DEFAULT 0,
				last_review TEXT NOT NULL,
				difficulty TEXT
			);
			CREATE INDEX IF NOT EXISTS idx_progress_card ON user_progress(flashcard_id);
			CREATE INDEX IF NOT EXISTS idx_progress_owner ON user_progress(owner_id);
			CREATE INDEX IF NOT EXISTS idx_progress_review ON user_progress(last_review);

			CREATE TABLE IF NOT EXISTS settings (
				key TEXT PRIMARY KEY,
				value TEXT NOT NULL
			);
			`)
		},
	},
	{
		version: 2,
		name:    "document collections",
		apply: func(ctx context.Context, tx *sql.Tx) error {
			return execAll(ctx, tx, `
			CREATE TABLE IF NOT EXISTS documents (
				id TEXT PRIMARY KEY,
				title TEXT NOT NULL,
				filename TEXT,
				page_count INTEGER NOT NULL DEFAULT 0,
				indexed INTEGER NOT NULL DEFAULT 0,
				owner_id TEXT,
				created_at TEXT NOT NULL,
				saved_at TEXT NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_documents_owner ON documents(owner_id);
			CREATE INDEX IF NOT EXISTS idx_documents_created ON documents(created_at);

			-- Binary payloads live apart from metadata so listing
			-- documents never pages through blobs.
			CREATE TABLE IF NOT EXISTS document_content (
				id TEXT PRIMARY KEY,
				data BLOB NOT NULL
			);
			`)
		},
	},
	{
		version: 3,
		name:    "queue idempotency keys",
		apply: func(ctx context.Context, tx *sql.Tx) error {
			return addColumn(ctx, tx, "sync_queue", "idempotency_key", "TEXT NOT NULL DEFAULT ''")
		},
	},
}

// execAll runs a multi-statement migration script.
func execAll(ctx context.Context, tx *sql.Tx, script string) error {
	_, err := tx.ExecContext(ctx, script)
	return err
}

// addColumn adds a column only if it doesn't exist yet, keeping ALTER
// steps safe to replay during a self-healing pass.
func addColumn(ctx context.Context, tx *sql.Tx, table, column, definition string) error {
	var count int
	err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?", table, column).Scan(&count)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	_, err = tx.ExecContext(ctx, "ALTER TABLE "+table+" ADD COLUMN "+column+" "+definition)
	return err
}
