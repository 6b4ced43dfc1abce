package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/satchel-app/satchel/internal/schema"
)

func testSet(id, title string) *schema.FlashcardSet {
	return &schema.FlashcardSet{ID: id, Title: title, OwnerID: "user-1"}
}

func testCard(id, setID, ownerID string) *schema.Flashcard {
	return &schema.Flashcard{ID: id, SetID: setID, OwnerID: ownerID, Front: "front of " + id}
}

func TestListFlashcardSetsNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"set-a", "set-b", "set-c"} {
		if err := s.SaveFlashcardSet(ctx, testSet(id, "Set "+id)); err != nil {
			t.Fatalf("SaveFlashcardSet(%s) failed: %v", id, err)
		}
	}

	sets, err := s.ListFlashcardSets(ctx)
	if err != nil {
		t.Fatalf("ListFlashcardSets() failed: %v", err)
	}
	if len(sets) != 3 {
		t.Fatalf("ListFlashcardSets() returned %d sets, want 3", len(sets))
	}
	// Each save stamps saved_at, so the most recent save comes first.
	want := []string{"set-c", "set-b", "set-a"}
	for i, set := range sets {
		if set.ID != want[i] {
			t.Errorf("sets[%d].ID = %s, want %s", i, set.ID, want[i])
		}
	}

	count, err := s.CountFlashcardSets(ctx)
	if err != nil {
		t.Fatalf("CountFlashcardSets() failed: %v", err)
	}
	if count != 3 {
		t.Errorf("CountFlashcardSets() = %d, want 3", count)
	}
}

func TestListFlashcardsByOwner(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	cards := []*schema.Flashcard{
		testCard("card-1", "set-1", "alice"),
		testCard("card-2", "set-1", "bob"),
		testCard("card-3", "set-2", "alice"),
	}
	for _, card := range cards {
		if err := s.SaveFlashcard(ctx, card); err != nil {
			t.Fatalf("SaveFlashcard(%s) failed: %v", card.ID, err)
		}
	}

	all, err := s.ListFlashcards(ctx)
	if err != nil {
		t.Fatalf("ListFlashcards() failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("ListFlashcards() returned %d cards, want 3", len(all))
	}

	mine, err := s.ListFlashcardsByOwner(ctx, "alice")
	if err != nil {
		t.Fatalf("ListFlashcardsByOwner() failed: %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("ListFlashcardsByOwner(alice) returned %d cards, want 2", len(mine))
	}
	for _, card := range mine {
		if card.OwnerID != "alice" {
			t.Errorf("card %s owner = %s, want alice", card.ID, card.OwnerID)
		}
	}
}

func TestDeleteFlashcardKeepsReviewHistory(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	card := testCard("card-1", "set-1", "alice")
	if err := s.SaveFlashcard(ctx, card); err != nil {
		t.Fatalf("SaveFlashcard() failed: %v", err)
	}
	_, err := s.AppendProgress(ctx, &schema.Progress{
		FlashcardID: "card-1",
		OwnerID:     "alice",
		ReviewCount: 1,
	})
	if err != nil {
		t.Fatalf("AppendProgress() failed: %v", err)
	}

	if err := s.DeleteFlashcard(ctx, "card-1"); err != nil {
		t.Fatalf("DeleteFlashcard() failed: %v", err)
	}
	if _, err := s.GetFlashcard(ctx, "card-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetFlashcard() after delete = %v, want ErrNotFound", err)
	}

	// The review log is append-only and outlives the card.
	events, err := s.ListProgressByFlashcard(ctx, "card-1")
	if err != nil {
		t.Fatalf("ListProgressByFlashcard() failed: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("review events after delete = %d, want 1", len(events))
	}
}

func TestListDocumentsNewestFirst(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	docs := []*schema.Document{
		{ID: "doc-old", Title: "Old", OwnerID: "user-1", CreatedAt: base},
		{ID: "doc-new", Title: "New", OwnerID: "user-1", CreatedAt: base.Add(time.Hour)},
		{ID: "doc-mid", Title: "Mid", OwnerID: "user-1", CreatedAt: base.Add(time.Minute)},
	}
	for _, doc := range docs {
		if err := s.SaveDocument(ctx, doc); err != nil {
			t.Fatalf("SaveDocument(%s) failed: %v", doc.ID, err)
		}
	}

	got, err := s.ListDocuments(ctx)
	if err != nil {
		t.Fatalf("ListDocuments() failed: %v", err)
	}
	want := []string{"doc-new", "doc-mid", "doc-old"}
	if len(got) != len(want) {
		t.Fatalf("ListDocuments() returned %d documents, want %d", len(got), len(want))
	}
	for i, doc := range got {
		if doc.ID != want[i] {
			t.Errorf("docs[%d].ID = %s, want %s", i, doc.ID, want[i])
		}
	}
}
