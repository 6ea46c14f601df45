package model

import (
	"time"

	"github.com/google/uuid"
)

// EvaluationStatus enumerates the possible states of an evaluation.
type EvaluationStatus string

const (
	EvaluationStatusDraft     EvaluationStatus = "DRAFT"
	EvaluationStatusPublished EvaluationStatus = "PUBLISHED"
	EvaluationStatusArchived  EvaluationStatus = "ARCHIVED"
)

// Evaluation represents a timed, surveilled quiz attached to a formation.
type Evaluation struct {
	ID              uuid.UUID        `json:"id"`
	Title           string           `json:"titre"`
	FormationCode   string           `json:"formation_code,omitempty"`
	TrainerID       int              `json:"trainer_id"`
	DurationMinutes int              `json:"duree"`
	PassMark        float64          `json:"seuil_reussite"`
	EntryToken      string           `json:"entry_token,omitempty"`
	QuestionCount   int              `json:"question_count"`
	Status          EvaluationStatus `json:"status"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// CreateEvaluationRequest is the payload for creating a new evaluation.
type CreateEvaluationRequest struct {
	Title           string  `json:"titre" binding:"required,min=3,max=255"`
	FormationCode   string  `json:"formation_code" binding:"omitempty,max=64"`
	DurationMinutes int     `json:"duree" binding:"required,min=1,max=480"`
	PassMark        float64 `json:"seuil_reussite" binding:"omitempty,min=0,max=100"`
	EntryToken      string  `json:"entry_token" binding:"omitempty,min=4,max=20"`
}

// UpdateEvaluationRequest is the payload for updating a draft evaluation.
type UpdateEvaluationRequest struct {
	Title           string   `json:"titre" binding:"omitempty,min=3,max=255"`
	FormationCode   string   `json:"formation_code" binding:"omitempty,max=64"`
	DurationMinutes int      `json:"duree" binding:"omitempty,min=1,max=480"`
	PassMark        *float64 `json:"seuil_reussite" binding:"omitempty,min=0,max=100"`
	EntryToken      string   `json:"entry_token" binding:"omitempty,min=4,max=20"`
}

// EvaluationPayload is the Redis-cached payload sent to participants
// (no correct answers).
type EvaluationPayload struct {
	EvaluationID uuid.UUID                `json:"evaluation_id"`
	Title        string                   `json:"titre"`
	Duration     int                      `json:"duree"`
	PassMark     float64                  `json:"seuil_reussite"`
	Questions    []QuestionForParticipant `json:"questions"`
}

// QuestionForParticipant is a question without the correct answer.
type QuestionForParticipant struct {
	ID       uuid.UUID    `json:"id"`
	Text     string       `json:"question_text"`
	Kind     QuestionKind `json:"kind"`
	Options  []string     `json:"options,omitempty"`
	Points   int          `json:"points"`
	OrderNum int          `json:"order_num"`
}

// GradingResult is the grading provider's verdict for one attempt.
type GradingResult struct {
	Score  float64 `json:"score"`
	Reussi bool    `json:"reussi"`
}
