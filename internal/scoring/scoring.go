// Package scoring grades quiz attempts against their answer keys.
//
// Everything in this package is pure: no I/O, no clock reads, no shared
// state. Identical inputs always produce identical results, so grading
// behaves the same whether the client is online or offline.
package scoring

import (
	"fmt"
	"math"

	"github.com/satchel-app/satchel/internal/schema"
)

// Result is the outcome of grading one attempt.
type Result struct {
	Score        int                     `json:"score"`      // 0-100, rounded
	Percentage   float64                 `json:"percentage"` // unrounded
	CorrectCount int                     `json:"correct_count"`
	TotalCount   int                     `json:"total_count"`
	TimeTaken    int                     `json:"time_taken"` // seconds
	Details      []schema.QuestionResult `json:"details"`
}

// Grade scores the submitted answers against the question list.
//
// Questions are graded by kind: single-choice answers must match the
// correct index exactly, multiple-choice answers are compared as sets
// (order-independent), and true/false uses the 0=false, 1=true encoding.
// A question with an unknown kind is graded incorrect with an
// explanatory detail rather than failing the whole attempt.
//
// timeTaken is the caller-measured elapsed time in seconds; it is passed
// through rather than read from a clock so grading stays deterministic.
func Grade(questions []schema.Question, answers map[string]schema.Answer, timeTaken int) Result {
	result := Result{
		TotalCount: len(questions),
		TimeTaken:  timeTaken,
		Details:    make([]schema.QuestionResult, 0, len(questions)),
	}

	for _, q := range questions {
		submitted := answers[q.ID]
		detail := schema.QuestionResult{
			QuestionID:  q.ID,
			Submitted:   submitted,
			Expected:    q.Correct,
			Explanation: q.Explanation,
		}

		switch q.Kind {
		case schema.KindSingleChoice:
			detail.Correct = !submitted.IsZero() && submitted.Index() == q.Correct.Index()
		case schema.KindMultipleChoice:
			detail.Correct = !submitted.IsZero() && submitted.Equal(q.Correct)
		case schema.KindTrueFalse:
			detail.Correct = !submitted.IsZero() && submitted.Index() == q.Correct.Index()
		default:
			detail.Correct = false
			detail.Explanation = fmt.Sprintf("unknown question type %q", q.Kind)
		}

		if detail.Correct {
			result.CorrectCount++
		}
		result.Details = append(result.Details, detail)
	}

	if result.TotalCount > 0 {
		result.Percentage = 100 * float64(result.CorrectCount) / float64(result.TotalCount)
		result.Score = int(math.Round(result.Percentage))
	}

	return result
}
