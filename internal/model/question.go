package model

import (
	"github.com/google/uuid"
)

// QuestionKind discriminates the answer shape of a question.
type QuestionKind string

const (
	QuestionKindMultipleChoice QuestionKind = "MULTIPLE_CHOICE"
	QuestionKindTrueFalse      QuestionKind = "TRUE_FALSE"
	QuestionKindFreeText       QuestionKind = "FREE_TEXT"
)

// TrueFalse questions accept exactly these two answers.
const (
	AnswerVrai = "Vrai"
	AnswerFaux = "Faux"
)

// Question represents a single evaluation question.
type Question struct {
	ID            uuid.UUID    `json:"id"`
	EvaluationID  uuid.UUID    `json:"evaluation_id"`
	Text          string       `json:"question_text"`
	Kind          QuestionKind `json:"kind"`
	Options       []string     `json:"options,omitempty"`
	CorrectAnswer string       `json:"correct_answer"`
	Points        int          `json:"points"`
	OrderNum      int          `json:"order_num"`
}

// AddQuestionRequest is the payload for adding a question to an evaluation.
type AddQuestionRequest struct {
	Text          string   `json:"question_text" binding:"required,min=1,max=2000"`
	Kind          string   `json:"kind" binding:"required,oneof=MULTIPLE_CHOICE TRUE_FALSE FREE_TEXT"`
	Options       []string `json:"options" binding:"omitempty,max=10,dive,min=1,max=500"`
	CorrectAnswer string   `json:"correct_answer" binding:"required,max=500"`
	Points        int      `json:"points" binding:"omitempty,min=1,max=100"`
	OrderNum      int      `json:"order_num" binding:"min=0"`
}

// ReplaceQuestionsRequest is the payload for bulk replacing questions.
type ReplaceQuestionsRequest struct {
	Questions []AddQuestionRequest `json:"questions" binding:"required,min=1,dive"`
}
