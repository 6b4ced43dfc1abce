package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/satchel-app/satchel/internal/schema"
	"github.com/satchel-app/satchel/internal/store"
)

// stubRemote records submissions and fails the actions listed in
// reject.
type stubRemote struct {
	mu       sync.Mutex
	submits  []string
	attempts []int64
	reject   map[string]error
}

func (r *stubRemote) Submit(ctx context.Context, token string, action schema.ActionType, payload json.RawMessage, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submits = append(r.submits, string(payload))
	if err, ok := r.reject[string(payload)]; ok {
		return err
	}
	return nil
}

func (r *stubRemote) SubmitAttempt(ctx context.Context, token string, attempt *schema.QuizAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, attempt.ID)
	if err, ok := r.reject[fmt.Sprintf("attempt-%d", attempt.ID)]; ok {
		return err
	}
	return nil
}

func newTestSyncer(t *testing.T, remote Remote) (*Syncer, *store.Store) {
	t.Helper()

	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "satchel.db"), 0)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	cfg := DefaultConfig()
	cfg.RetryDelay = time.Millisecond
	return New(s, remote, cfg, nil), s
}

func TestQueueDrainRoundTrip(t *testing.T) {
	remote := &stubRemote{}
	sy, _ := newTestSyncer(t, remote)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		payload := json.RawMessage(fmt.Sprintf(`{"n":%d}`, i))
		if _, err := sy.Enqueue(ctx, schema.ActionProgressUpdate, payload); err != nil {
			t.Fatalf("Enqueue() failed: %v", err)
		}
	}

	result := sy.Reconcile(ctx, "tok")
	if result.Synced != 3 || result.Failed != 0 {
		t.Fatalf("result = %+v, want 3 synced, 0 failed", result)
	}
	if !result.Success {
		t.Error("result should be successful")
	}

	pending, err := sy.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending() failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("queue has %d entries after drain, want 0", len(pending))
	}
}

func TestPartialFailureIsolation(t *testing.T) {
	remote := &stubRemote{reject: map[string]error{
		`{"n":2}`: fmt.Errorf("remote returned 500 Internal Server Error"),
	}}
	sy, _ := newTestSyncer(t, remote)
	ctx := context.Background()

	ids := make([]int64, 0, 3)
	for i := 1; i <= 3; i++ {
		id, err := sy.Enqueue(ctx, schema.ActionProgressUpdate,
			json.RawMessage(fmt.Sprintf(`{"n":%d}`, i)))
		if err != nil {
			t.Fatalf("Enqueue() failed: %v", err)
		}
		ids = append(ids, id)
	}

	result := sy.Reconcile(ctx, "tok")
	if result.Synced != 2 || result.Failed != 1 {
		t.Fatalf("result = %+v, want 2 synced, 1 failed", result)
	}
	if result.Success {
		t.Error("partial failure must not report success")
	}
	if len(result.Errors) != 1 {
		t.Errorf("errors = %v, want exactly 1", result.Errors)
	}

	pending, err := sy.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending() failed: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("queue has %d entries, want exactly the rejected one", len(pending))
	}
	if pending[0].ID != ids[1] {
		t.Errorf("surviving entry = %d, want %d", pending[0].ID, ids[1])
	}
	if pending[0].Retries != 1 {
		t.Errorf("retries = %d, want 1", pending[0].Retries)
	}
}

func TestAttemptLogSyncMarksNotDeletes(t *testing.T) {
	remote := &stubRemote{}
	sy, st := newTestSyncer(t, remote)
	ctx := context.Background()

	quiz := &schema.Quiz{
		ID: "q-1", Title: "Cells", Difficulty: schema.DifficultyEasy, OwnerID: "u-1",
		Questions: []schema.Question{
			{ID: "a", Kind: schema.KindSingleChoice, Correct: schema.SingleAnswer(1)},
		},
	}
	attempt, err := sy.RecordQuizAttempt(ctx, quiz,
		map[string]schema.Answer{"a": schema.SingleAnswer(1)}, 30)
	if err != nil {
		t.Fatalf("RecordQuizAttempt() failed: %v", err)
	}
	if attempt.Score != 100 {
		t.Fatalf("score = %d, want 100", attempt.Score)
	}

	result := sy.Reconcile(ctx, "tok")
	if result.Synced != 1 {
		t.Fatalf("result = %+v, want 1 synced", result)
	}

	// History stays readable locally; the attempt is flagged, not gone.
	got, err := st.GetAttempt(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("GetAttempt() after sync failed: %v", err)
	}
	if !got.Synced {
		t.Error("attempt not marked synced")
	}

	// A second pass finds nothing to do.
	result = sy.Reconcile(ctx, "tok")
	if result.Synced != 0 || !result.Success {
		t.Errorf("idle pass = %+v, want 0 synced and success", result)
	}
}

func TestRecordFlashcardReviewEnqueues(t *testing.T) {
	remote := &stubRemote{}
	sy, st := newTestSyncer(t, remote)
	ctx := context.Background()

	err := sy.RecordFlashcardReview(ctx, &schema.Progress{
		FlashcardID:  "c-1",
		OwnerID:      "u-1",
		ReviewCount:  1,
		CorrectCount: 1,
		LastReview:   time.Now(),
		Difficulty:   schema.DifficultyMedium,
	})
	if err != nil {
		t.Fatalf("RecordFlashcardReview() failed: %v", err)
	}

	progress, err := st.ListProgressByFlashcard(ctx, "c-1")
	if err != nil {
		t.Fatalf("ListProgressByFlashcard() failed: %v", err)
	}
	if len(progress) != 1 {
		t.Fatalf("progress log has %d events, want 1", len(progress))
	}

	pending, err := sy.ListPending(ctx)
	if err != nil {
		t.Fatalf("ListPending() failed: %v", err)
	}
	if len(pending) != 1 || pending[0].Action != schema.ActionFlashcardReview {
		t.Fatalf("pending = %+v, want one flashcard review", pending)
	}
}

func TestSyncWithRetryStopsOnFirstProgress(t *testing.T) {
	remote := &stubRemote{reject: map[string]error{
		`{"n":1}`: fmt.Errorf("remote returned 503"),
	}}
	sy, st := newTestSyncer(t, remote)
	ctx := context.Background()

	if _, err := sy.Enqueue(ctx, schema.ActionProgressUpdate, json.RawMessage(`{"n":1}`)); err != nil {
		t.Fatalf("Enqueue() failed: %v", err)
	}

	sy.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	sy.config.RetryAttempts = 3

	result := sy.SyncWithRetry(ctx, "tok")
	passes := len(remote.submits)
	if result.Synced != 0 {
		t.Fatalf("result = %+v, want 0 synced while remote rejects", result)
	}
	if passes != 3 {
		t.Errorf("remote saw %d passes, want 3 (retries exhausted)", passes)
	}

	// Entry survived with retry bookkeeping.
	pending, err := st.ListPendingActions(ctx)
	if err != nil {
		t.Fatalf("ListPendingActions() failed: %v", err)
	}
	if len(pending) != 1 || pending[0].Retries != 3 {
		t.Fatalf("pending = %+v, want one entry with 3 retries", pending)
	}

	// Once the remote heals, the next wrapped sync returns on its first
	// successful pass.
	remote.reject = nil
	result = sy.SyncWithRetry(ctx, "tok")
	if result.Synced != 1 || !result.Success {
		t.Errorf("result = %+v, want 1 synced after remote healed", result)
	}
}
