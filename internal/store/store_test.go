package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/satchel-app/satchel/internal/schema"
)

// testStorePath returns a temporary path for test databases.
func testStorePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "satchel.db")
}

func openTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(context.Background(), testStorePath(t), 0)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenCreatesCollections(t *testing.T) {
	s := openTestStore(t)

	for _, table := range requiredTables {
		var count int
		err := s.conn.QueryRow(
			`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&count)
		if err != nil {
			t.Fatalf("failed to query table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("table %s does not exist", table)
		}
	}

	version, err := s.schemaVersion(context.Background())
	if err != nil {
		t.Fatalf("schemaVersion() failed: %v", err)
	}
	if version != latestVersion() {
		t.Errorf("schema version = %d, want %d", version, latestVersion())
	}
}

func TestOpenIdempotentAcrossRestarts(t *testing.T) {
	path := testStorePath(t)
	ctx := context.Background()

	s, err := Open(ctx, path, 0)
	if err != nil {
		t.Fatalf("first Open() failed: %v", err)
	}

	quiz := testQuiz("q-1")
	if err := s.SaveQuiz(ctx, quiz); err != nil {
		t.Fatalf("SaveQuiz() failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	// Reopening must not touch existing data.
	s, err = Open(ctx, path, 0)
	if err != nil {
		t.Fatalf("second Open() failed: %v", err)
	}
	defer s.Close()

	got, err := s.GetQuiz(ctx, "q-1")
	if err != nil {
		t.Fatalf("GetQuiz() after reopen failed: %v", err)
	}
	if got.Title != quiz.Title {
		t.Errorf("title = %q, want %q", got.Title, quiz.Title)
	}
}

func TestManagerSharedOpen(t *testing.T) {
	path := testStorePath(t)
	m := NewManager(path, 0, nil)

	var inits atomic.Int64
	realOpen := m.openFn
	m.openFn = func(ctx context.Context) (*Store, error) {
		inits.Add(1)
		// Widen the in-flight window so concurrent callers actually race.
		time.Sleep(50 * time.Millisecond)
		return realOpen(ctx)
	}

	const callers = 10
	handles := make([]*Store, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handles[i], errs[i] = m.Open(context.Background())
		}(i)
	}
	wg.Wait()
	defer m.Close()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: Open() failed: %v", i, errs[i])
		}
		if handles[i] != handles[0] {
			t.Errorf("caller %d received a different handle", i)
		}
	}

	if got := inits.Load(); got != 1 {
		t.Errorf("initialization ran %d times, want exactly 1", got)
	}
}

func TestManagerRetriesAfterFailure(t *testing.T) {
	m := NewManager(testStorePath(t), 0, nil)

	realOpen := m.openFn
	failures := 1
	m.openFn = func(ctx context.Context) (*Store, error) {
		if failures > 0 {
			failures--
			return nil, errors.New("disk on fire")
		}
		return realOpen(ctx)
	}

	if _, err := m.Open(context.Background()); err == nil {
		t.Fatal("first Open() should fail")
	}

	// The failed attempt must not wedge the manager.
	s, err := m.Open(context.Background())
	if err != nil {
		t.Fatalf("second Open() failed: %v", err)
	}
	defer m.Close()
	if s == nil {
		t.Fatal("second Open() returned nil store")
	}
}

func TestMigrationHealsMissingCollection(t *testing.T) {
	path := testStorePath(t)
	ctx := context.Background()

	s, err := Open(ctx, path, 0)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}

	// Simulate a partially migrated store: the version bookkeeping says
	// latest but a collection is gone.
	if _, err := s.conn.Exec(`DROP TABLE flashcards`); err != nil {
		t.Fatalf("failed to drop table: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	s, err = Open(ctx, path, 0)
	if err != nil {
		t.Fatalf("reopen of damaged store failed: %v", err)
	}
	defer s.Close()

	var count int
	err = s.conn.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='flashcards'`).Scan(&count)
	if err != nil {
		t.Fatalf("failed to query table: %v", err)
	}
	if count != 1 {
		t.Error("flashcards table was not recreated")
	}
}

func TestMigrationHealingPreservesData(t *testing.T) {
	path := testStorePath(t)
	ctx := context.Background()

	s, err := Open(ctx, path, 0)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if err := s.SaveQuiz(ctx, testQuiz("q-keep")); err != nil {
		t.Fatalf("SaveQuiz() failed: %v", err)
	}
	if _, err := s.conn.Exec(`DROP TABLE documents`); err != nil {
		t.Fatalf("failed to drop table: %v", err)
	}
	_ = s.Close()

	s, err = Open(ctx, path, 0)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s.Close()

	// The healing pass is additive; data in intact collections survives.
	if _, err := s.GetQuiz(ctx, "q-keep"); err != nil {
		t.Errorf("quiz lost during healing: %v", err)
	}
}

func TestSaveQuizStampsAndInfersOwner(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	quiz := &schema.Quiz{
		ID:      "q-1",
		Title:   "Photosynthesis",
		Creator: &schema.Creator{ID: "user-3", Name: "Ada"},
		Questions: []schema.Question{
			{ID: "q1", Kind: schema.KindSingleChoice, Correct: schema.SingleAnswer(0)},
		},
	}

	before := time.Now().Add(-1 * time.Second)
	if err := s.SaveQuiz(ctx, quiz); err != nil {
		t.Fatalf("SaveQuiz() failed: %v", err)
	}

	got, err := s.GetQuiz(ctx, "q-1")
	if err != nil {
		t.Fatalf("GetQuiz() failed: %v", err)
	}
	if got.OwnerID != "user-3" {
		t.Errorf("OwnerID = %q, want user-3 (inferred from creator)", got.OwnerID)
	}
	if got.SavedAt.Before(before) {
		t.Errorf("SavedAt = %v, was not stamped", got.SavedAt)
	}

	// The owner index must now find it.
	owned, err := s.ListQuizzesByOwner(ctx, "user-3")
	if err != nil {
		t.Fatalf("ListQuizzesByOwner() failed: %v", err)
	}
	if len(owned) != 1 {
		t.Errorf("owner listing returned %d quizzes, want 1", len(owned))
	}
}

func TestSaveQuizRejectsUndownloaded(t *testing.T) {
	s := openTestStore(t)

	err := s.SaveQuiz(context.Background(), &schema.Quiz{ID: "q-1", Title: "Listing stub"})
	if err == nil {
		t.Error("a quiz without questions must not be saved as downloaded")
	}
}

func TestAttemptRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	attempt := &schema.QuizAttempt{
		QuizID:       "q-1",
		OwnerID:      "user-1",
		Answers:      map[string]schema.Answer{"q1": schema.SingleAnswer(2)},
		Score:        60,
		Percentage:   60.0,
		CorrectCount: 3,
		TotalCount:   5,
		TimeTaken:    120,
		XPEarned:     64,
	}

	id, err := s.SaveAttempt(ctx, attempt)
	if err != nil {
		t.Fatalf("SaveAttempt() failed: %v", err)
	}
	if id == 0 {
		t.Fatal("SaveAttempt() returned id 0")
	}

	got, err := s.GetAttempt(ctx, id)
	if err != nil {
		t.Fatalf("GetAttempt() failed: %v", err)
	}
	if got.Synced {
		t.Error("new attempt should not be synced")
	}
	if got.Score != 60 || got.CorrectCount != 3 || got.TotalCount != 5 {
		t.Errorf("attempt fields lost: %+v", got)
	}
	if got.Answers["q1"].Index() != 2 {
		t.Errorf("answers lost: %+v", got.Answers)
	}

	if err := s.MarkAttemptSynced(ctx, id); err != nil {
		t.Fatalf("MarkAttemptSynced() failed: %v", err)
	}

	got, err = s.GetAttempt(ctx, id)
	if err != nil {
		t.Fatalf("GetAttempt() failed: %v", err)
	}
	if !got.Synced {
		t.Error("attempt should be synced after marking")
	}

	pending, err := s.ListUnsyncedAttempts(ctx)
	if err != nil {
		t.Fatalf("ListUnsyncedAttempts() failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("unsynced list has %d attempts, want 0", len(pending))
	}
}

func TestDocumentContentIsLazy(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	doc := &schema.Document{ID: "d-1", Title: "Lecture notes", Filename: "notes.pdf", PageCount: 12}
	if err := s.SaveDocument(ctx, doc); err != nil {
		t.Fatalf("SaveDocument() failed: %v", err)
	}

	// Metadata exists, content doesn't: that is the normal state until
	// the user asks for offline availability.
	if _, err := s.GetDocumentContent(ctx, "d-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("content of undownloaded document: err = %v, want ErrNotFound", err)
	}

	payload := []byte("%PDF-1.4 ...")
	if err := s.SaveDocumentContent(ctx, "d-1", payload); err != nil {
		t.Fatalf("SaveDocumentContent() failed: %v", err)
	}

	got, err := s.GetDocumentContent(ctx, "d-1")
	if err != nil {
		t.Fatalf("GetDocumentContent() failed: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("content = %q, want %q", got, payload)
	}
}

func TestDanglingFlashcardTolerated(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	card := &schema.Flashcard{ID: "c-1", Front: "amo", Back: "I love", SetID: "missing-set"}
	if err := s.SaveFlashcard(ctx, card); err != nil {
		t.Fatalf("SaveFlashcard() failed: %v", err)
	}

	// The parent set was never downloaded; the card must still read back
	// and the set lookup must miss cleanly instead of crashing.
	if _, err := s.GetFlashcard(ctx, "c-1"); err != nil {
		t.Fatalf("GetFlashcard() failed: %v", err)
	}
	if _, err := s.GetFlashcardSet(ctx, "missing-set"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing set: err = %v, want ErrNotFound", err)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if _, err := s.GetSetting(ctx, SettingAuthToken); !errors.Is(err, ErrNotFound) {
		t.Errorf("unset key: err = %v, want ErrNotFound", err)
	}

	if err := s.SetSetting(ctx, SettingAuthToken, "tok-123"); err != nil {
		t.Fatalf("SetSetting() failed: %v", err)
	}
	got, err := s.GetSetting(ctx, SettingAuthToken)
	if err != nil {
		t.Fatalf("GetSetting() failed: %v", err)
	}
	if got != "tok-123" {
		t.Errorf("value = %q, want tok-123", got)
	}

	if err := s.DeleteSetting(ctx, SettingAuthToken); err != nil {
		t.Fatalf("DeleteSetting() failed: %v", err)
	}
	if _, err := s.GetSetting(ctx, SettingAuthToken); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleted key: err = %v, want ErrNotFound", err)
	}
}

func TestTimestampStringsSortChronologically(t *testing.T) {
	// created_at columns are ordered as strings, so the stored format
	// must sort lexically in time order. A trimmed fraction breaks
	// that: ".1Z" compares after ".15Z" because 'Z' > '5'.
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	times := []time.Time{
		base,
		base.Add(100 * time.Millisecond),
		base.Add(150 * time.Millisecond),
		base.Add(time.Second),
	}

	var prev string
	for i, ts := range times {
		got := timeToNullString(ts)
		if !got.Valid {
			t.Fatalf("timeToNullString(%v) not valid", ts)
		}
		if i > 0 && got.String <= prev {
			t.Errorf("formatted %q does not sort after %q", got.String, prev)
		}
		if back := nullStringToTime(got); !back.Equal(ts) {
			t.Errorf("round trip = %v, want %v", back, ts)
		}
		prev = got.String
	}

	// The same pair through the store: sub-second ordering must hold.
	s := openTestStore(t)
	ctx := context.Background()
	docs := []*schema.Document{
		{ID: "doc-b", Title: "B", CreatedAt: base.Add(100 * time.Millisecond)},
		{ID: "doc-a", Title: "A", CreatedAt: base.Add(150 * time.Millisecond)},
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
	if len(got) != 2 || got[0].ID != "doc-a" || got[1].ID != "doc-b" {
		t.Errorf("ListDocuments() order wrong: got %+v", got)
	}
}

func testQuiz(id string) *schema.Quiz {
	return &schema.Quiz{
		ID:         id,
		Title:      "Test quiz",
		Subject:    "testing",
		Difficulty: schema.DifficultyEasy,
		OwnerID:    "user-1",
		Questions: []schema.Question{
			{ID: "q1", Kind: schema.KindSingleChoice, Prompt: "?", Correct: schema.SingleAnswer(0)},
		},
	}
}
