package schema

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Answer holds a submitted or expected answer for a question: a single
// option index for single-choice and true/false questions, or a set of
// indices for multiple-choice questions.
//
// On the wire an answer is either a bare JSON number or a JSON array of
// numbers; both shapes decode into the same type so callers never have to
// branch on the payload format.
type Answer struct {
	indices []int
	multi   bool
}

// SingleAnswer builds an answer holding one option index.
// True/false answers use the 0=false, 1=true encoding.
func SingleAnswer(index int) Answer {
	return Answer{indices: []int{index}}
}

// MultiAnswer builds an answer holding a set of option indices.
func MultiAnswer(indices ...int) Answer {
	out := make([]int, len(indices))
	copy(out, indices)
	return Answer{indices: out, multi: true}
}

// IsMulti reports whether the answer was given as a set of indices.
func (a Answer) IsMulti() bool {
	return a.multi
}

// IsZero reports whether the answer is empty (no submission).
func (a Answer) IsZero() bool {
	return a.indices == nil
}

// Index returns the single submitted index, or -1 for an empty answer.
// For multi answers this is the first index, which callers should not
// rely on; use Indices instead.
func (a Answer) Index() int {
	if len(a.indices) == 0 {
		return -1
	}
	return a.indices[0]
}

// Indices returns a sorted copy of the answer's indices.
func (a Answer) Indices() []int {
	out := make([]int, len(a.indices))
	copy(out, a.indices)
	sort.Ints(out)
	return out
}

// Equal reports whether two answers select the same options, ignoring
// the order indices were given in.
func (a Answer) Equal(b Answer) bool {
	as, bs := a.Indices(), b.Indices()
	if len(as) != len(bs) {
		return false
	}
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}

// MarshalJSON encodes a single answer as a bare number and a multi
// answer as an array, matching the remote contract.
func (a Answer) MarshalJSON() ([]byte, error) {
	if a.IsZero() {
		return []byte("null"), nil
	}
	if a.multi {
		return json.Marshal(a.indices)
	}
	return json.Marshal(a.indices[0])
}

// UnmarshalJSON accepts either a bare number or an array of numbers.
func (a *Answer) UnmarshalJSON(data []byte) error {
	var single int
	if err := json.Unmarshal(data, &single); err == nil {
		*a = SingleAnswer(single)
		return nil
	}

	var many []int
	if err := json.Unmarshal(data, &many); err == nil {
		*a = MultiAnswer(many...)
		return nil
	}

	if string(data) == "null" {
		*a = Answer{}
		return nil
	}

	return fmt.Errorf("answer must be a number or an array of numbers, got %s", data)
}
