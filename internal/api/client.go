// Package api is the typed client for the remote learning platform
// API. It speaks JSON over the request governor so every call benefits
// from caching, deduplication, and rate-limit handling.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/satchel-app/satchel/internal/governor"
	"github.com/satchel-app/satchel/internal/schema"
)

// Submission paths by action type. The path strings are an external
// contract and assumed stable.
var actionPaths = map[schema.ActionType]string{
	schema.ActionQuizAttempt:     "/api/quiz-attempts",
	schema.ActionFlashcardReview: "/api/flashcard-reviews",
	schema.ActionProgressUpdate:  "/api/progress",
}

// AttemptSubmission is the body of a quiz-attempt POST.
type AttemptSubmission struct {
	QuizID      string                   `json:"quiz_id"`
	OwnerID     string                   `json:"owner_id"`
	Answers     map[string]schema.Answer `json:"answers"`
	Score       int                      `json:"score"`
	TimeTaken   int                      `json:"time_taken"`
	CompletedAt time.Time                `json:"completed_at"`
}

// ReviewSubmission is the body of a flashcard-review POST.
type ReviewSubmission struct {
	FlashcardID string    `json:"flashcard_id"`
	OwnerID     string    `json:"owner_id"`
	Correct     bool      `json:"correct"`
	Difficulty  string    `json:"difficulty"`
	ReviewedAt  time.Time `json:"reviewed_at"`
}

// Client calls the remote API at a fixed base URL.
type Client struct {
	baseURL  string
	governor *governor.Governor
	logger   *log.Logger
}

// NewClient creates a client. The governor is shared with other
// callers so their traffic is governed together.
func NewClient(baseURL string, g *governor.Governor, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(log.Writer(), "[api] ", log.LstdFlags)
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		governor: g,
		logger:   logger,
	}
}

// Submit replays a queued action against its endpoint. The idempotency
// key travels as a header so a crash between server accept and local
// delete cannot double-record the action.
func (c *Client) Submit(ctx context.Context, token string, action schema.ActionType, payload json.RawMessage, idempotencyKey string) error {
	path, ok := actionPaths[action]
	if !ok {
		return fmt.Errorf("no endpoint for action type %q", action)
	}

	var headers map[string]string
	if idempotencyKey != "" {
		headers = map[string]string{"Idempotency-Key": idempotencyKey}
	}

	if _, err := c.governor.Post(ctx, c.baseURL+path, token, payload, headers); err != nil {
		return fmt.Errorf("failed to submit %s: %w", action, err)
	}
	return nil
}

// SubmitAttempt pushes one entry of the local attempt log.
func (c *Client) SubmitAttempt(ctx context.Context, token string, attempt *schema.QuizAttempt) error {
	body, err := json.Marshal(AttemptSubmission{
		QuizID:      attempt.QuizID,
		OwnerID:     attempt.OwnerID,
		Answers:     attempt.Answers,
		Score:       attempt.Score,
		TimeTaken:   attempt.TimeTaken,
		CompletedAt: attempt.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode attempt: %w", err)
	}

	if _, err := c.governor.Post(ctx, c.baseURL+actionPaths[schema.ActionQuizAttempt], token, body, nil); err != nil {
		return fmt.Errorf("failed to submit attempt for quiz %s: %w", attempt.QuizID, err)
	}
	return nil
}

// GetQuiz downloads a quiz with its questions.
func (c *Client) GetQuiz(ctx context.Context, token, id string) (*schema.Quiz, error) {
	data, err := c.governor.Get(ctx, c.baseURL+"/api/quizzes/"+id, token)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch quiz %s: %w", id, err)
	}

	var quiz schema.Quiz
	if err := json.Unmarshal(data, &quiz); err != nil {
		return nil, fmt.Errorf("failed to decode quiz %s: %w", id, err)
	}
	return &quiz, nil
}

// GetFlashcardSet downloads set metadata plus its cards.
func (c *Client) GetFlashcardSet(ctx context.Context, token, id string) (*schema.FlashcardSet, []*schema.Flashcard, error) {
	data, err := c.governor.Get(ctx, c.baseURL+"/api/flashcards/sets/"+id, token)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch flashcard set %s: %w", id, err)
	}

	var payload struct {
		schema.FlashcardSet
		Cards []*schema.Flashcard `json:"cards"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, nil, fmt.Errorf("failed to decode flashcard set %s: %w", id, err)
	}

	set := payload.FlashcardSet
	if set.CardCount == 0 {
		set.CardCount = len(payload.Cards)
	}
	for _, card := range payload.Cards {
		if card.SetID == "" {
			card.SetID = set.ID
		}
	}
	return &set, payload.Cards, nil
}
