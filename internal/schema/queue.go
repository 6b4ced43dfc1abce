package schema

import (
	"encoding/json"
	"fmt"
	"time"
)

// ActionType is the kind of mutation a queue entry replays against the
// remote API.
type ActionType string

const (
	ActionQuizAttempt     ActionType = "quiz_attempt"
	ActionFlashcardReview ActionType = "flashcard_review"
	ActionProgressUpdate  ActionType = "progress_update"
)

// Valid reports whether the action type is one the reconciler can
// dispatch.
func (a ActionType) Valid() bool {
	switch a {
	case ActionQuizAttempt, ActionFlashcardReview, ActionProgressUpdate:
		return true
	}
	return false
}

// QueueEntry is one pending offline mutation. Entries are deleted from
// the queue once the remote API accepts them; deletion is the terminal
// state. An entry that fails to replay keeps its place and has its retry
// counter incremented; no retry count ever deletes an entry on its own.
//
// The idempotency key is generated client-side at enqueue time and sent
// with every replay, so a crash between server-accept and local delete
// cannot double-count the action.
type QueueEntry struct {
	ID             int64           `json:"id"`
	Action         ActionType      `json:"action"`
	Payload        json.RawMessage `json:"payload"`
	IdempotencyKey string          `json:"idempotency_key"`
	CreatedAt      time.Time       `json:"created_at"`
	Synced         bool            `json:"synced"`
	Retries        int             `json:"retries"`
}

// Validate checks required queue entry fields.
func (e *QueueEntry) Validate() error {
	if !e.Action.Valid() {
		return fmt.Errorf("unknown action type %q", e.Action)
	}
	if len(e.Payload) == 0 {
		return fmt.Errorf("payload is required")
	}
	return nil
}
