package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/satchel-app/satchel/internal/schema"
)

// SaveQuiz upserts a quiz for offline use. The quiz must carry its full
// question list; a listing entry without questions is rejected rather
// than cached as a quiz the user can't actually take offline. The save
// stamps saved_at and infers a missing owner id from the nested creator.
func (s *Store) SaveQuiz(ctx context.Context, quiz *schema.Quiz) error {
	quiz.SetDefaults()
	if err := quiz.Validate(); err != nil {
		return fmt.Errorf("invalid quiz: %w", err)
	}
	quiz.SavedAt = time.Now()

	questionsJSON, err := json.Marshal(quiz.Questions)
	if err != nil {
		return fmt.Errorf("failed to marshal questions: %w", err)
	}

	query := `
	INSERT INTO quizzes (id, title, subject, difficulty, questions, owner_id, saved_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		subject = excluded.subject,
		difficulty = excluded.difficulty,
		questions = excluded.questions,
		owner_id = excluded.owner_id,
		saved_at = excluded.saved_at
	`

	_, err = s.conn.ExecContext(ctx, query,
		quiz.ID,
		quiz.Title,
		quiz.Subject,
		quiz.Difficulty,
		string(questionsJSON),
		quiz.OwnerID,
		quiz.SavedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("failed to save quiz %s: %w", quiz.ID, err)
	}

	return nil
}

// GetQuiz retrieves a quiz by id. Returns ErrNotFound if absent.
func (s *Store) GetQuiz(ctx context.Context, id string) (*schema.Quiz, error) {
	row := s.conn.QueryRowContext(ctx, `
	SELECT id, title, subject, difficulty, questions, owner_id, saved_at
	FROM quizzes WHERE id = ?`, id)

	quiz, err := scanQuiz(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("quiz %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get quiz %s: %w", id, err)
	}
	return quiz, nil
}

// ListQuizzes returns all cached quizzes, most recently saved first.
func (s *Store) ListQuizzes(ctx context.Context) ([]*schema.Quiz, error) {
	return s.listQuizzes(ctx, `
	SELECT id, title, subject, difficulty, questions, owner_id, saved_at
	FROM quizzes ORDER BY saved_at DESC`)
}

// ListQuizzesByOwner returns the cached quizzes owned by a user.
func (s *Store) ListQuizzesByOwner(ctx context.Context, ownerID string) ([]*schema.Quiz, error) {
	return s.listQuizzes(ctx, `
	SELECT id, title, subject, difficulty, questions, owner_id, saved_at
	FROM quizzes WHERE owner_id = ? ORDER BY saved_at DESC`, ownerID)
}

func (s *Store) listQuizzes(ctx context.Context, query string, args ...any) ([]*schema.Quiz, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list quizzes: %w", err)
	}
	defer rows.Close()

	var quizzes []*schema.Quiz
	for rows.Next() {
		quiz, err := scanQuiz(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan quiz: %w", err)
		}
		quizzes = append(quizzes, quiz)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating quizzes: %w", err)
	}
	return quizzes, nil
}

// DeleteQuiz removes a cached quiz. Deleting an absent quiz is a no-op.
func (s *Store) DeleteQuiz(ctx context.Context, id string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM quizzes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete quiz %s: %w", id, err)
	}
	return nil
}

// CountQuizzes returns the number of cached quizzes.
func (s *Store) CountQuizzes(ctx context.Context) (int, error) {
	var count int
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM quizzes`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count quizzes: %w", err)
	}
	return count, nil
}

// scanner covers both sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanQuiz(row scanner) (*schema.Quiz, error) {
	var quiz schema.Quiz
	var questionsJSON string
	var subject, difficulty, ownerID, savedAt sql.NullString

	err := row.Scan(&quiz.ID, &quiz.Title, &subject, &difficulty, &questionsJSON, &ownerID, &savedAt)
	if err != nil {
		return nil, err
	}

	quiz.Subject = subject.String
	quiz.Difficulty = difficulty.String
	quiz.OwnerID = ownerID.String
	quiz.SavedAt = nullStringToTime(savedAt)

	if err := json.Unmarshal([]byte(questionsJSON), &quiz.Questions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal questions: %w", err)
	}

	return &quiz, nil
}
