package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/satchel-app/satchel/internal/schema"
)

// SaveFlashcardSet upserts a flashcard set's metadata. The card count is
// informational; the cards themselves are saved separately and keyed by
// set id.
func (s *Store) SaveFlashcardSet(ctx context.Context, set *schema.FlashcardSet) error {
	set.SetDefaults()
	if err := set.Validate(); err != nil {
		return fmt.Errorf("invalid flashcard set: %w", err)
	}
	set.SavedAt = time.Now()

	tagsJSON, err := json.Marshal(set.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	query := `
	INSERT INTO flashcard_sets (id, title, description, tags, card_count, owner_id, saved_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		description = excluded.description,
		tags = excluded.tags,
		card_count = excluded.card_count,
		owner_id = excluded.owner_id,
		saved_at = excluded.saved_at
	`

	_, err = s.conn.ExecContext(ctx, query,
		set.ID, set.Title, set.Description, string(tagsJSON),
		set.CardCount, set.OwnerID, set.SavedAt.UTC().Format(timeFormat))
	if err != nil {
		return fmt.Errorf("failed to save flashcard set %s: %w", set.ID, err)
	}

	return nil
}

const setColumns = `
	SELECT id, title, description, tags, card_count, owner_id, saved_at
	FROM flashcard_sets`

const cardColumns = `
	SELECT id, front, back, tags, difficulty, set_id, owner_id
	FROM flashcards`

// GetFlashcardSet retrieves a set by id. Returns ErrNotFound if absent.
func (s *Store) GetFlashcardSet(ctx context.Context, id string) (*schema.FlashcardSet, error) {
	row := s.conn.QueryRowContext(ctx, setColumns+` WHERE id = ?`, id)

	set, err := scanFlashcardSet(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("flashcard set %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get flashcard set %s: %w", id, err)
	}
	return set, nil
}

// ListFlashcardSets returns every cached set, most recently saved
// first.
func (s *Store) ListFlashcardSets(ctx context.Context) ([]*schema.FlashcardSet, error) {
	return s.listFlashcardSets(ctx, setColumns+` ORDER BY saved_at DESC`)
}

// ListFlashcardSetsByOwner returns the sets a user has saved offline.
func (s *Store) ListFlashcardSetsByOwner(ctx context.Context, ownerID string) ([]*schema.FlashcardSet, error) {
	return s.listFlashcardSets(ctx, setColumns+` WHERE owner_id = ? ORDER BY saved_at DESC`, ownerID)
}

func (s *Store) listFlashcardSets(ctx context.Context, query string, args ...any) ([]*schema.FlashcardSet, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list flashcard sets: %w", err)
	}
	defer rows.Close()

	var sets []*schema.FlashcardSet
	for rows.Next() {
		set, err := scanFlashcardSet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan flashcard set: %w", err)
		}
		sets = append(sets, set)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating flashcard sets: %w", err)
	}
	return sets, nil
}

// CountFlashcardSets returns the number of cached sets.
func (s *Store) CountFlashcardSets(ctx context.Context) (int, error) {
	var count int
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM flashcard_sets`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count flashcard sets: %w", err)
	}
	return count, nil
}

// DeleteFlashcardSet removes a set's metadata. The cards keyed by this
// set are left in place and become dangling; readers tolerate that.
func (s *Store) DeleteFlashcardSet(ctx context.Context, id string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM flashcard_sets WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete flashcard set %s: %w", id, err)
	}
	return nil
}

// SaveFlashcard upserts a single card. The set reference is not
// validated against the flashcard_sets collection.
func (s *Store) SaveFlashcard(ctx context.Context, card *schema.Flashcard) error {
	if err := card.Validate(); err != nil {
		return fmt.Errorf("invalid flashcard: %w", err)
	}

	tagsJSON, err := json.Marshal(card.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}

	query := `
	INSERT INTO flashcards (id, front, back, tags, difficulty, set_id, owner_id)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		front = excluded.front,
		back = excluded.back,
		tags = excluded.tags,
		difficulty = excluded.difficulty,
		set_id = excluded.set_id,
		owner_id = excluded.owner_id
	`

	_, err = s.conn.ExecContext(ctx, query,
		card.ID, card.Front, card.Back, string(tagsJSON),
		card.Difficulty, card.SetID, card.OwnerID)
	if err != nil {
		return fmt.Errorf("failed to save flashcard %s: %w", card.ID, err)
	}

	return nil
}

// GetFlashcard retrieves a card by id. Returns ErrNotFound if absent.
func (s *Store) GetFlashcard(ctx context.Context, id string) (*schema.Flashcard, error) {
	row := s.conn.QueryRowContext(ctx, cardColumns+` WHERE id = ?`, id)

	card, err := scanFlashcard(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("flashcard %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get flashcard %s: %w", id, err)
	}
	return card, nil
}

// ListFlashcards returns every cached card.
func (s *Store) ListFlashcards(ctx context.Context) ([]*schema.Flashcard, error) {
	return s.listFlashcards(ctx, cardColumns)
}

// ListFlashcardsBySet returns every card in a set.
func (s *Store) ListFlashcardsBySet(ctx context.Context, setID string) ([]*schema.Flashcard, error) {
	return s.listFlashcards(ctx, cardColumns+` WHERE set_id = ?`, setID)
}

// ListFlashcardsByOwner returns every card a user owns, across sets.
func (s *Store) ListFlashcardsByOwner(ctx context.Context, ownerID string) ([]*schema.Flashcard, error) {
	return s.listFlashcards(ctx, cardColumns+` WHERE owner_id = ?`, ownerID)
}

func (s *Store) listFlashcards(ctx context.Context, query string, args ...any) ([]*schema.Flashcard, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list flashcards: %w", err)
	}
	defer rows.Close()

	var cards []*schema.Flashcard
	for rows.Next() {
		card, err := scanFlashcard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan flashcard: %w", err)
		}
		cards = append(cards, card)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating flashcards: %w", err)
	}
	return cards, nil
}

// DeleteFlashcard removes a single card. Its progress log entries stay;
// the review history is append-only and survives the card.
func (s *Store) DeleteFlashcard(ctx context.Context, id string) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM flashcards WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete flashcard %s: %w", id, err)
	}
	return nil
}

// CountFlashcards returns the number of cached cards.
func (s *Store) CountFlashcards(ctx context.Context) (int, error) {
	var count int
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM flashcards`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count flashcards: %w", err)
	}
	return count, nil
}

func scanFlashcardSet(row scanner) (*schema.FlashcardSet, error) {
	var set schema.FlashcardSet
	var description, tagsJSON, ownerID, savedAt sql.NullString

	err := row.Scan(&set.ID, &set.Title, &description, &tagsJSON, &set.CardCount, &ownerID, &savedAt)
	if err != nil {
		return nil, err
	}

	set.Description = description.String
	set.OwnerID = ownerID.String
	set.SavedAt = nullStringToTime(savedAt)
	set.Tags = unmarshalTags(tagsJSON.String)

	return &set, nil
}

func scanFlashcard(row scanner) (*schema.Flashcard, error) {
	var card schema.Flashcard
	var back, tagsJSON, difficulty, ownerID sql.NullString

	err := row.Scan(&card.ID, &card.Front, &back, &tagsJSON, &difficulty, &card.SetID, &ownerID)
	if err != nil {
		return nil, err
	}

	card.Back = back.String
	card.Difficulty = difficulty.String
	card.OwnerID = ownerID.String
	card.Tags = unmarshalTags(tagsJSON.String)

	return &card, nil
}

func unmarshalTags(tagsJSON string) []string {
	if tagsJSON == "" || tagsJSON == "null" {
		return nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(tagsJSON), &tags); err != nil {
		return nil
	}
	return tags
}
