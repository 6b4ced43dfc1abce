package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/satchel-app/satchel/internal/schema"
)

// AppendProgress inserts one review event into the progress log and
// returns its assigned id. The log is append-only: review history is
// never updated in place, only accumulated.
func (s *Store) AppendProgress(ctx context.Context, p *schema.Progress) (int64, error) {
	if err := p.Validate(); err != nil {
		return 0, fmt.Errorf("invalid progress: %w", err)
	}
	if p.LastReview.IsZero() {
		p.LastReview = time.Now()
	}

	res, err := s.conn.ExecContext(ctx, `
	INSERT INTO user_progress (flashcard_id, owner_id, review_count, correct_count, last_review, difficulty)
	VALUES (?, ?, ?, ?, ?, ?)`,
		p.FlashcardID, p.OwnerID, p.ReviewCount, p.CorrectCount,
		p.LastReview.UTC().Format(timeFormat), p.Difficulty)
	if err != nil {
		return 0, fmt.Errorf("failed to append progress: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read progress id: %w", err)
	}
	p.ID = id
	return id, nil
}

// ListProgressByFlashcard returns the review history of one card,
// oldest first.
func (s *Store) ListProgressByFlashcard(ctx context.Context, flashcardID string) ([]*schema.Progress, error) {
	return s.listProgress(ctx, `
	SELECT id, flashcard_id, owner_id, review_count, correct_count, last_review, difficulty
	FROM user_progress WHERE flashcard_id = ? ORDER BY last_review ASC`, flashcardID)
}

// ListProgressByOwner returns a user's review history, oldest first.
func (s *Store) ListProgressByOwner(ctx context.Context, ownerID string) ([]*schema.Progress, error) {
	return s.listProgress(ctx, `
	SELECT id, flashcard_id, owner_id, review_count, correct_count, last_review, difficulty
	FROM user_progress WHERE owner_id = ? ORDER BY last_review ASC`, ownerID)
}

func (s *Store) listProgress(ctx context.Context, query string, args ...any) ([]*schema.Progress, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list progress: %w", err)
	}
	defer rows.Close()

	var events []*schema.Progress
	for rows.Next() {
		var p schema.Progress
		var lastReview sql.NullString
		var difficulty sql.NullString

		err := rows.Scan(&p.ID, &p.FlashcardID, &p.OwnerID, &p.ReviewCount,
			&p.CorrectCount, &lastReview, &difficulty)
		if err != nil {
			return nil, fmt.Errorf("failed to scan progress: %w", err)
		}

		p.LastReview = nullStringToTime(lastReview)
		p.Difficulty = difficulty.String
		events = append(events, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating progress: %w", err)
	}
	return events, nil
}

// CountProgress returns the number of logged review events.
func (s *Store) CountProgress(ctx context.Context) (int, error) {
	var count int
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM user_progress`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count progress: %w", err)
	}
	return count, nil
}
