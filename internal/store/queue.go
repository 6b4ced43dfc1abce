package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/satchel-app/satchel/internal/schema"
)

// EnqueueAction appends a pending mutation to the sync queue and
// returns the assigned id. The entry gets a fresh idempotency key and a
// creation timestamp; this call only touches the local database and
// never the network, so it is safe on the submission path while
// offline.
func (s *Store) EnqueueAction(ctx context.Context, action schema.ActionType, payload json.RawMessage) (int64, error) {
	entry := &schema.QueueEntry{
		Action:         action,
		Payload:        payload,
		IdempotencyKey: uuid.NewString(),
		CreatedAt:      time.Now(),
	}
	if err := entry.Validate(); err != nil {
		return 0, fmt.Errorf("invalid queue entry: %w", err)
	}

	res, err := s.conn.ExecContext(ctx, `
	INSERT INTO sync_queue (action, payload, idempotency_key, created_at, synced, retries)
	VALUES (?, ?, ?, ?, 0, 0)`,
		string(entry.Action),
		string(entry.Payload),
		entry.IdempotencyKey,
		entry.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue %s: %w", action, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read queue entry id: %w", err)
	}
	return id, nil
}

// ListPendingActions returns queue entries awaiting replay, oldest
// first. The scan walks the timestamp index and filters the synced flag
// in code; since acceptance deletes entries outright, pending is in
// practice the whole queue.
func (s *Store) ListPendingActions(ctx context.Context) ([]*schema.QueueEntry, error) {
	rows, err := s.conn.QueryContext(ctx, `
	SELECT id, action, payload, idempotency_key, created_at, synced, retries
	FROM sync_queue ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync queue: %w", err)
	}
	defer rows.Close()

	var pending []*schema.QueueEntry
	for rows.Next() {
		entry, err := scanQueueEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan queue entry: %w", err)
		}
		if entry.Synced {
			continue
		}
		pending = append(pending, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync queue: %w", err)
	}
	return pending, nil
}

// GetQueueEntry retrieves one entry by id. Returns ErrNotFound if
// absent.
func (s *Store) GetQueueEntry(ctx context.Context, id int64) (*schema.QueueEntry, error) {
	row := s.conn.QueryRowContext(ctx, `
	SELECT id, action, payload, idempotency_key, created_at, synced, retries
	FROM sync_queue WHERE id = ?`, id)

	entry, err := scanQueueEntry(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("queue entry %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get queue entry %d: %w", id, err)
	}
	return entry, nil
}

// DeleteQueueEntry removes an entry. Deletion is the queue's terminal
// state: it happens only after confirmed remote acceptance, or as a
// manual purge by an operator. Deleting an absent entry is a no-op.
func (s *Store) DeleteQueueEntry(ctx context.Context, id int64) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete queue entry %d: %w", id, err)
	}
	return nil
}

// IncrementQueueRetry bumps an entry's retry counter after a failed
// replay. The count is bookkeeping for operators and backoff tuning; it
// never triggers deletion.
func (s *Store) IncrementQueueRetry(ctx context.Context, id int64) error {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE sync_queue SET retries = retries + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to increment retries for entry %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("queue entry %d: %w", id, ErrNotFound)
	}
	return nil
}

// CountQueueEntries returns the queue length.
func (s *Store) CountQueueEntries(ctx context.Context) (int, error) {
	var count int
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_queue`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count sync queue: %w", err)
	}
	return count, nil
}

func scanQueueEntry(row scanner) (*schema.QueueEntry, error) {
	var entry schema.QueueEntry
	var action, payload string
	var synced int
	var createdAt sql.NullString

	err := row.Scan(&entry.ID, &action, &payload, &entry.IdempotencyKey, &createdAt, &synced, &entry.Retries)
	if err != nil {
		return nil, err
	}

	entry.Action = schema.ActionType(action)
	entry.Payload = json.RawMessage(payload)
	entry.Synced = synced != 0
	entry.CreatedAt = nullStringToTime(createdAt)

	return &entry, nil
}
