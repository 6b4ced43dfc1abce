package schema

import (
	"encoding/json"
	"testing"
)

func TestAnswerUnmarshalNumber(t *testing.T) {
	var a Answer
	if err := json.Unmarshal([]byte(`2`), &a); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if a.IsMulti() {
		t.Error("number should decode as a single answer")
	}
	if a.Index() != 2 {
		t.Errorf("Index() = %d, want 2", a.Index())
	}
}

func TestAnswerUnmarshalArray(t *testing.T) {
	var a Answer
	if err := json.Unmarshal([]byte(`[3,1]`), &a); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if !a.IsMulti() {
		t.Error("array should decode as a multi answer")
	}
	got := a.Indices()
	if len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Errorf("Indices() = %v, want [1 3]", got)
	}
}

func TestAnswerUnmarshalInvalid(t *testing.T) {
	var a Answer
	if err := json.Unmarshal([]byte(`"nope"`), &a); err == nil {
		t.Error("expected error for string answer")
	}
}

func TestAnswerMarshalRoundTrip(t *testing.T) {
	single, err := json.Marshal(SingleAnswer(1))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(single) != "1" {
		t.Errorf("single answer marshals to %s, want 1", single)
	}

	multi, err := json.Marshal(MultiAnswer(2, 0))
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(multi) != "[2,0]" {
		t.Errorf("multi answer marshals to %s, want [2,0]", multi)
	}
}

func TestAnswerEqualOrderIndependent(t *testing.T) {
	if !MultiAnswer(3, 1).Equal(MultiAnswer(1, 3)) {
		t.Error("[3,1] should equal [1,3]")
	}
	if MultiAnswer(1, 2).Equal(MultiAnswer(1, 3)) {
		t.Error("[1,2] should not equal [1,3]")
	}
	if SingleAnswer(1).Equal(SingleAnswer(2)) {
		t.Error("1 should not equal 2")
	}
}

func TestQuizSetDefaultsInfersOwner(t *testing.T) {
	quiz := &Quiz{
		ID:      "q-1",
		Title:   "Algebra basics",
		Creator: &Creator{ID: "user-9"},
		Questions: []Question{
			{ID: "q1", Kind: KindSingleChoice, Correct: SingleAnswer(0)},
		},
	}

	quiz.SetDefaults()
	if quiz.OwnerID != "user-9" {
		t.Errorf("OwnerID = %q, want user-9", quiz.OwnerID)
	}
}

func TestQuizValidateRequiresQuestions(t *testing.T) {
	quiz := &Quiz{ID: "q-1", Title: "Empty"}
	if err := quiz.Validate(); err == nil {
		t.Error("quiz without questions should not validate")
	}
}
