package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/satchel-app/satchel/internal/schema"
)

// SaveAttempt inserts a graded quiz attempt and returns its assigned id.
// Attempts are an append-only history; after insertion the only field
// that ever changes is the synced flag, via MarkAttemptSynced.
func (s *Store) SaveAttempt(ctx context.Context, attempt *schema.QuizAttempt) (int64, error) {
	if err := attempt.Validate(); err != nil {
		return 0, fmt.Errorf("invalid attempt: %w", err)
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now()
	}

	answersJSON, err := json.Marshal(attempt.Answers)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal answers: %w", err)
	}
	detailsJSON, err := json.Marshal(attempt.Details)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal details: %w", err)
	}

	query := `
	INSERT INTO quiz_attempts (
		quiz_id, owner_id, answers, score, percentage,
		correct_count, total_count, details, time_taken, xp_earned,
		synced, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
	`

	res, err := s.conn.ExecContext(ctx, query,
		attempt.QuizID,
		attempt.OwnerID,
		string(answersJSON),
		attempt.Score,
		attempt.Percentage,
		attempt.CorrectCount,
		attempt.TotalCount,
		string(detailsJSON),
		attempt.TimeTaken,
		attempt.XPEarned,
		attempt.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to save attempt: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read attempt id: %w", err)
	}
	attempt.ID = id
	return id, nil
}

// GetAttempt retrieves an attempt by id. Returns ErrNotFound if absent.
func (s *Store) GetAttempt(ctx context.Context, id int64) (*schema.QuizAttempt, error) {
	row := s.conn.QueryRowContext(ctx, attemptColumns+` WHERE id = ?`, id)

	attempt, err := scanAttempt(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("attempt %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attempt %d: %w", id, err)
	}
	return attempt, nil
}

// ListAttemptsByQuiz returns the local attempt history for a quiz,
// newest first.
func (s *Store) ListAttemptsByQuiz(ctx context.Context, quizID string) ([]*schema.QuizAttempt, error) {
	return s.listAttempts(ctx, attemptColumns+` WHERE quiz_id = ? ORDER BY created_at DESC`, quizID)
}

// ListAttemptsByOwner returns a user's attempt history, newest first.
func (s *Store) ListAttemptsByOwner(ctx context.Context, ownerID string) ([]*schema.QuizAttempt, error) {
	return s.listAttempts(ctx, attemptColumns+` WHERE owner_id = ? ORDER BY created_at DESC`, ownerID)
}

// ListUnsyncedAttempts returns attempts not yet acknowledged by the
// remote API, oldest first so replay preserves submission order.
//
// The synced column is filtered here rather than through its index; the
// index exists for the mark-synced write path, and a full scan is the
// portable answer to boolean-valued lookups.
func (s *Store) ListUnsyncedAttempts(ctx context.Context) ([]*schema.QuizAttempt, error) {
	attempts, err := s.listAttempts(ctx, attemptColumns+` ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}

	pending := attempts[:0]
	for _, a := range attempts {
		if !a.Synced {
			pending = append(pending, a)
		}
	}
	return pending, nil
}

func (s *Store) listAttempts(ctx context.Context, query string, args ...any) ([]*schema.QuizAttempt, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*schema.QuizAttempt
	for rows.Next() {
		attempt, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		attempts = append(attempts, attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attempts: %w", err)
	}
	return attempts, nil
}

// MarkAttemptSynced flips the synced flag to true. The attempt row
// itself stays in place so local history remains visible.
func (s *Store) MarkAttemptSynced(ctx context.Context, id int64) error {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE quiz_attempts SET synced = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark attempt %d synced: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("attempt %d: %w", id, ErrNotFound)
	}
	return nil
}

// CountAttempts returns the number of stored attempts.
func (s *Store) CountAttempts(ctx context.Context) (int, error) {
	var count int
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM quiz_attempts`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count attempts: %w", err)
	}
	return count, nil
}

const attemptColumns = `
	SELECT id, quiz_id, owner_id, answers, score, percentage,
	       correct_count, total_count, details, time_taken, xp_earned,
	       synced, created_at
	FROM quiz_attempts`

func scanAttempt(row scanner) (*schema.QuizAttempt, error) {
	var attempt schema.QuizAttempt
	var answersJSON string
	var detailsJSON sql.NullString
	var synced int
	var createdAt sql.NullString

	err := row.Scan(
		&attempt.ID,
		&attempt.QuizID,
		&attempt.OwnerID,
		&answersJSON,
		&attempt.Score,
		&attempt.Percentage,
		&attempt.CorrectCount,
		&attempt.TotalCount,
		&detailsJSON,
		&attempt.TimeTaken,
		&attempt.XPEarned,
		&synced,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	attempt.Synced = synced != 0
	attempt.CreatedAt = nullStringToTime(createdAt)

	if err := json.Unmarshal([]byte(answersJSON), &attempt.Answers); err != nil {
		return nil, fmt.Errorf("failed to unmarshal answers: %w", err)
	}
	if detailsJSON.Valid && detailsJSON.String != "" && detailsJSON.String != "null" {
		if err := json.Unmarshal([]byte(detailsJSON.String), &attempt.Details); err != nil {
			return nil, fmt.Errorf("failed to unmarshal details: %w", err)
		}
	}

	return &attempt, nil
}
