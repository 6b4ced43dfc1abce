// Package syncer records offline-capable mutations locally and replays
// them against the remote API when connectivity allows. It owns the
// sync queue's lifecycle: enqueue on mutation, delete on confirmed
// remote acceptance, retry bookkeeping on failure.
package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/satchel-app/satchel/internal/schema"
	"github.com/satchel-app/satchel/internal/scoring"
	"github.com/satchel-app/satchel/internal/store"
)

// Remote is the slice of the API client the syncer needs. Tests
// substitute a stub.
type Remote interface {
	Submit(ctx context.Context, token string, action schema.ActionType, payload json.RawMessage, idempotencyKey string) error
	SubmitAttempt(ctx context.Context, token string, attempt *schema.QuizAttempt) error
}

// Result aggregates one reconciliation pass. Success is true only when
// every item in every sub-sync went through.
type Result struct {
	Synced  int      `json:"synced"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
	Success bool     `json:"success"`
}

func (r *Result) merge(other Result) {
	r.Synced += other.Synced
	r.Failed += other.Failed
	r.Errors = append(r.Errors, other.Errors...)
}

// Config controls the bounded full-pass retry wrapper.
type Config struct {
	// RetryAttempts bounds SyncWithRetry's full reconciliation passes.
	RetryAttempts int

	// RetryDelay is the base delay between passes; pass n waits n times
	// this long.
	RetryDelay time.Duration
}

// DefaultConfig returns production settings.
func DefaultConfig() Config {
	return Config{
		RetryAttempts: 3,
		RetryDelay:    2 * time.Second,
	}
}

// Syncer drains local pending state to the remote API.
type Syncer struct {
	store  *store.Store
	remote Remote
	config Config
	logger *log.Logger

	// swappable in tests
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a syncer over a store and remote.
func New(s *store.Store, remote Remote, config Config, logger *log.Logger) *Syncer {
	if logger == nil {
		logger = log.New(log.Writer(), "[syncer] ", log.LstdFlags)
	}
	return &Syncer{
		store:  s,
		remote: remote,
		config: config,
		logger: logger,
		sleep: func(ctx context.Context, d time.Duration) error {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-timer.C:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}
}

// RecordQuizAttempt grades answers, persists the attempt to the local
// log, and returns it. The call never touches the network; the attempt
// is flagged unsynced and picked up by the next reconciliation.
func (s *Syncer) RecordQuizAttempt(ctx context.Context, quiz *schema.Quiz, answers map[string]schema.Answer, timeTaken int) (*schema.QuizAttempt, error) {
	result := scoring.Grade(quiz.Questions, answers, timeTaken)
	xp := scoring.AwardXP(result, quiz.Difficulty)

	attempt := &schema.QuizAttempt{
		QuizID:       quiz.ID,
		OwnerID:      quiz.OwnerID,
		Answers:      answers,
		Score:        result.Score,
		Percentage:   result.Percentage,
		CorrectCount: result.CorrectCount,
		TotalCount:   result.TotalCount,
		Details:      result.Details,
		TimeTaken:    timeTaken,
		XPEarned:     xp,
	}
	if _, err := s.store.SaveAttempt(ctx, attempt); err != nil {
		return nil, fmt.Errorf("failed to record attempt: %w", err)
	}

	s.logger.Printf("recorded attempt %d for quiz %s: %d%%, %d xp",
		attempt.ID, quiz.ID, attempt.Score, xp)
	return attempt, nil
}

// RecordFlashcardReview appends a progress event and enqueues its
// submission. Offline-safe: only the local store is touched.
func (s *Syncer) RecordFlashcardReview(ctx context.Context, p *schema.Progress) error {
	if _, err := s.store.AppendProgress(ctx, p); err != nil {
		return fmt.Errorf("failed to record review: %w", err)
	}

	payload, err := json.Marshal(map[string]any{
		"flashcard_id": p.FlashcardID,
		"owner_id":     p.OwnerID,
		"correct":      p.CorrectCount > 0,
		"difficulty":   p.Difficulty,
		"reviewed_at":  p.LastReview,
	})
	if err != nil {
		return fmt.Errorf("failed to encode review: %w", err)
	}
	if _, err := s.store.EnqueueAction(ctx, schema.ActionFlashcardReview, payload); err != nil {
		return fmt.Errorf("failed to enqueue review: %w", err)
	}
	return nil
}

// Enqueue appends a generic pending action. Never blocks on the
// network.
func (s *Syncer) Enqueue(ctx context.Context, action schema.ActionType, payload json.RawMessage) (int64, error) {
	return s.store.EnqueueAction(ctx, action, payload)
}

// ListPending returns the queue entries awaiting replay, oldest first.
func (s *Syncer) ListPending(ctx context.Context) ([]*schema.QueueEntry, error) {
	return s.store.ListPendingActions(ctx)
}

// Reconcile runs one full pass: the attempt-log sync and the action
// queue sync run concurrently and their results are merged. A single
// item's failure never aborts the rest of its batch.
func (s *Syncer) Reconcile(ctx context.Context, token string) Result {
	var attempts, queue Result

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		attempts = s.syncAttempts(ctx, token)
	}()
	go func() {
		defer wg.Done()
		queue = s.syncQueue(ctx, token)
	}()
	wg.Wait()

	var result Result
	result.merge(attempts)
	result.merge(queue)
	result.Success = result.Failed == 0 && len(result.Errors) == 0

	s.logger.Printf("reconciliation pass: %d synced, %d failed", result.Synced, result.Failed)
	return result
}

// syncAttempts pushes unsynced entries of the quiz attempt log. On
// acceptance an attempt is marked synced, not deleted, so local history
// stays visible.
func (s *Syncer) syncAttempts(ctx context.Context, token string) Result {
	var result Result

	attempts, err := s.store.ListUnsyncedAttempts(ctx)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("failed to list attempts: %v", err))
		return result
	}

	for _, attempt := range attempts {
		if err := s.remote.SubmitAttempt(ctx, token, attempt); err != nil {
			result.Failed++
			result.Errors = append(result.Errors,
				fmt.Sprintf("attempt %d: %v", attempt.ID, err))
			continue
		}
		if err := s.store.MarkAttemptSynced(ctx, attempt.ID); err != nil {
			result.Failed++
			result.Errors = append(result.Errors,
				fmt.Sprintf("attempt %d accepted but not marked: %v", attempt.ID, err))
			continue
		}
		result.Synced++
	}
	return result
}

// syncQueue replays pending actions. Acceptance deletes the entry (the
// queue's terminal state); failure increments its retry counter and
// leaves it for the next pass. No retry count triggers deletion.
func (s *Syncer) syncQueue(ctx context.Context, token string) Result {
	var result Result

	pending, err := s.store.ListPendingActions(ctx)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("failed to list queue: %v", err))
		return result
	}

	for _, entry := range pending {
		if err := s.remote.Submit(ctx, token, entry.Action, entry.Payload, entry.IdempotencyKey); err != nil {
			result.Failed++
			result.Errors = append(result.Errors,
				fmt.Sprintf("queue entry %d (%s): %v", entry.ID, entry.Action, err))
			if rerr := s.store.IncrementQueueRetry(ctx, entry.ID); rerr != nil {
				s.logger.Printf("failed to bump retries for entry %d: %v", entry.ID, rerr)
			}
			continue
		}
		if err := s.store.DeleteQueueEntry(ctx, entry.ID); err != nil {
			result.Failed++
			result.Errors = append(result.Errors,
				fmt.Sprintf("queue entry %d accepted but not deleted: %v", entry.ID, err))
			continue
		}
		result.Synced++
	}
	return result
}

// SyncWithRetry attempts full reconciliation passes with linearly
// increasing delay between them, returning the first result where at
// least one item synced, or the last result when attempts run out.
func (s *Syncer) SyncWithRetry(ctx context.Context, token string) Result {
	attempts := s.config.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var result Result
	for i := 0; i < attempts; i++ {
		if i > 0 {
			delay := time.Duration(i) * s.config.RetryDelay
			s.logger.Printf("retrying full sync in %s (pass %d/%d)", delay, i+1, attempts)
			if err := s.sleep(ctx, delay); err != nil {
				result.Errors = append(result.Errors, err.Error())
				return result
			}
		}
		result = s.Reconcile(ctx, token)
		if result.Synced > 0 || result.Success {
			return result
		}
	}
	return result
}
