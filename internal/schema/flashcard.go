package schema

import (
	"fmt"
	"time"
)

// FlashcardSet is a locally cached copy of a remote flashcard set. The
// card count is informational only; the actual cards live in their own
// collection keyed by set id.
type FlashcardSet struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	CardCount   int       `json:"card_count,omitempty"`
	OwnerID     string    `json:"owner_id,omitempty"`
	Creator     *Creator  `json:"creator,omitempty"`
	SavedAt     time.Time `json:"saved_at"`
}

// Validate checks required flashcard set fields.
func (s *FlashcardSet) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("id is required")
	}
	if s.Title == "" {
		return fmt.Errorf("title is required")
	}
	return nil
}

// SetDefaults infers the owner id from the nested creator when unset.
func (s *FlashcardSet) SetDefaults() {
	if s.OwnerID == "" && s.Creator != nil {
		s.OwnerID = s.Creator.ID
	}
	if s.Tags == nil {
		s.Tags = []string{}
	}
}

// Flashcard is a single card belonging to a FlashcardSet. The set
// reference is not enforced transactionally; readers must tolerate a
// card whose set is missing.
type Flashcard struct {
	ID         string   `json:"id"`
	Front      string   `json:"front"`
	Back       string   `json:"back"`
	Tags       []string `json:"tags,omitempty"`
	Difficulty string   `json:"difficulty,omitempty"`
	SetID      string   `json:"set_id"`
	OwnerID    string   `json:"owner_id,omitempty"`
}

// Validate checks required flashcard fields.
func (c *Flashcard) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("id is required")
	}
	if c.SetID == "" {
		return fmt.Errorf("set_id is required")
	}
	if c.Front == "" {
		return fmt.Errorf("front is required")
	}
	return nil
}

// Progress is one review event for a flashcard. The collection is an
// append-only log: review events are only ever inserted, never updated.
type Progress struct {
	ID           int64     `json:"id"`
	FlashcardID  string    `json:"flashcard_id"`
	OwnerID      string    `json:"owner_id"`
	ReviewCount  int       `json:"review_count"`
	CorrectCount int       `json:"correct_count"`
	LastReview   time.Time `json:"last_review"`
	Difficulty   string    `json:"difficulty,omitempty"`
}

// Validate checks required progress fields.
func (p *Progress) Validate() error {
	if p.FlashcardID == "" {
		return fmt.Errorf("flashcard_id is required")
	}
	if p.OwnerID == "" {
		return fmt.Errorf("owner_id is required")
	}
	return nil
}
