package schema

import (
	"fmt"
	"time"
)

// QuestionResult is the per-question detail of a graded attempt.
type QuestionResult struct {
	QuestionID  string `json:"question_id"`
	Correct     bool   `json:"correct"`
	Submitted   Answer `json:"submitted"`
	Expected    Answer `json:"expected"`
	Explanation string `json:"explanation,omitempty"`
}

// QuizAttempt is one graded quiz submission. Attempts are immutable once
// written, except for the Synced flag which transitions false to true
// exactly once when the remote API acknowledges the submission.
type QuizAttempt struct {
	ID           int64            `json:"id"`
	QuizID       string           `json:"quiz_id"`
	OwnerID      string           `json:"owner_id"`
	Answers      map[string]Answer `json:"answers"`
	Score        int              `json:"score"`
	Percentage   float64          `json:"percentage"`
	CorrectCount int              `json:"correct_count"`
	TotalCount   int              `json:"total_count"`
	Details      []QuestionResult `json:"details,omitempty"`
	TimeTaken    int              `json:"time_taken"`
	XPEarned     int              `json:"xp_earned"`
	Synced       bool             `json:"synced"`
	CreatedAt    time.Time        `json:"created_at"`
}

// Validate checks required attempt fields.
func (a *QuizAttempt) Validate() error {
	if a.QuizID == "" {
		return fmt.Errorf("quiz_id is required")
	}
	if a.OwnerID == "" {
		return fmt.Errorf("owner_id is required")
	}
	if a.TotalCount <= 0 {
		return fmt.Errorf("total_count must be positive (got %d)", a.TotalCount)
	}
	if a.Score < 0 || a.Score > 100 {
		return fmt.Errorf("score must be between 0 and 100 (got %d)", a.Score)
	}
	return nil
}
