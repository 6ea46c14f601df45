package exam

import (
	"github.com/google/uuid"
)

// AnswerStore maps question IDs to submitted answers, last-write-wins.
// It is not safe for concurrent use on its own; the owning Session
// serializes access under its mutex.
type AnswerStore struct {
	answers map[uuid.UUID]string
}

// NewAnswerStore creates an empty AnswerStore.
func NewAnswerStore() *AnswerStore {
	return &AnswerStore{answers: make(map[uuid.UUID]string)}
}

// Set records an answer, overwriting any prior value.
func (st *AnswerStore) Set(questionID uuid.UUID, value string) {
	st.answers[questionID] = value
}

// Get returns the stored answer, or the Unanswered sentinel if the question
// was never answered.
func (st *AnswerStore) Get(questionID uuid.UUID) string {
	v, ok := st.answers[questionID]
	if !ok {
		return Unanswered
	}
	return v
}

// Answered reports whether any value (including an explicit sentinel) was
// recorded for the question.
func (st *AnswerStore) Answered(questionID uuid.UUID) bool {
	_, ok := st.answers[questionID]
	return ok
}

// Len returns the number of recorded answers.
func (st *AnswerStore) Len() int {
	return len(st.answers)
}

// SubmissionList flattens the store into the grading request shape, in the
// order the questions were presented, substituting the Unanswered sentinel
// for questions never answered.
func (st *AnswerStore) SubmissionList(order []Question) []SubmittedAnswer {
	out := make([]SubmittedAnswer, len(order))
	for i, q := range order {
		out[i] = SubmittedAnswer{QuestionID: q.ID, Answer: st.Get(q.ID)}
	}
	return out
}

// Snapshot returns a copy of the stored answers keyed by question ID string.
func (st *AnswerStore) Snapshot() map[string]string {
	out := make(map[string]string, len(st.answers))
	for id, v := range st.answers {
		out[id.String()] = v
	}
	return out
}
