package exam

import (
	"fmt"

	"github.com/google/uuid"
)

// Kind discriminates the answer shape of a question.
type Kind string

const (
	KindMultipleChoice Kind = "MULTIPLE_CHOICE"
	KindTrueFalse      Kind = "TRUE_FALSE"
	KindFreeText       Kind = "FREE_TEXT"
)

// TrueFalse questions accept exactly these two answers.
const (
	AnswerVrai = "Vrai"
	AnswerFaux = "Faux"
)

// Unanswered is the sentinel recorded for questions the participant never
// answered. It is the timeout default for every kind, including TrueFalse:
// defaulting timeouts to "Faux" would grade them as wrong answers rather
// than blanks.
const Unanswered = ""

// Question is one immutable evaluation question as presented to the
// participant. Options is populated for MultipleChoice only.
type Question struct {
	ID      uuid.UUID
	Text    string
	Kind    Kind
	Options []string
	Points  int
}

// ValidateAnswer checks value against the question's expected answer shape.
// The unanswered sentinel is always accepted.
func (q *Question) ValidateAnswer(value string) error {
	if value == Unanswered {
		return nil
	}
	switch q.Kind {
	case KindMultipleChoice:
		for _, opt := range q.Options {
			if opt == value {
				return nil
			}
		}
		return fmt.Errorf("%w: %q is not an option of question %s", ErrInvalidAnswer, value, q.ID)
	case KindTrueFalse:
		if value == AnswerVrai || value == AnswerFaux {
			return nil
		}
		return fmt.Errorf("%w: true/false answer must be %q or %q", ErrInvalidAnswer, AnswerVrai, AnswerFaux)
	case KindFreeText:
		return nil
	default:
		return fmt.Errorf("%w: unknown question kind %q", ErrInvalidAnswer, q.Kind)
	}
}
