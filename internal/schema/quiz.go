// Package schema provides the data structures persisted by the local store
// and exchanged with the remote API.
package schema

import (
	"fmt"
	"time"
)

// Question kinds understood by the scoring engine. Any other value is
// tolerated but always graded as incorrect.
const (
	KindSingleChoice   = "single_choice"
	KindMultipleChoice = "multiple_choice"
	KindTrueFalse      = "true_false"
)

// Difficulty tiers used for XP awards.
const (
	DifficultyEasy     = "easy"
	DifficultyMedium   = "medium"
	DifficultyHard     = "hard"
	DifficultyVeryHard = "very_hard"
)

// Creator identifies the user that owns an item, as nested in API
// responses. The store uses it to infer an owner id when the caller
// didn't set one explicitly.
type Creator struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Question is a single quiz question with its answer key.
type Question struct {
	ID          string   `json:"id"`
	Kind        string   `json:"kind"`
	Prompt      string   `json:"prompt"`
	Options     []string `json:"options,omitempty"`
	Correct     Answer   `json:"correct"`
	Explanation string   `json:"explanation,omitempty"`
}

// Quiz is a locally cached copy of a remote quiz. A quiz is only usable
// offline once it carries its full question list; a bare listing entry
// without questions is not considered downloaded.
type Quiz struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Subject    string     `json:"subject,omitempty"`
	Difficulty string     `json:"difficulty,omitempty"`
	Questions  []Question `json:"questions"`
	OwnerID    string     `json:"owner_id,omitempty"`
	Creator    *Creator   `json:"creator,omitempty"`
	SavedAt    time.Time  `json:"saved_at"`
}

// Validate checks that the quiz can be saved for offline use.
func (q *Quiz) Validate() error {
	if q.ID == "" {
		return fmt.Errorf("id is required")
	}
	if q.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(q.Questions) == 0 {
		return fmt.Errorf("quiz %s has no questions (not downloaded)", q.ID)
	}
	for i, question := range q.Questions {
		if question.ID == "" {
			return fmt.Errorf("question %d is missing an id", i)
		}
	}
	return nil
}

// SetDefaults fills derivable fields before persisting. The owner id is
// inferred from the nested creator so owner-indexed queries stay usable
// even when the caller only passed through an API response.
func (q *Quiz) SetDefaults() {
	if q.OwnerID == "" && q.Creator != nil {
		q.OwnerID = q.Creator.ID
	}
	if q.Difficulty == "" {
		q.Difficulty = DifficultyMedium
	}
}
