package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates persisted evaluation session states.
type SessionStatus string

const (
	SessionStatusInProgress SessionStatus = "IN_PROGRESS"
	SessionStatusSubmitted  SessionStatus = "SUBMITTED"
	SessionStatusLocked     SessionStatus = "LOCKED"
)

// EvaluationSession represents a participant's attempt at an evaluation.
type EvaluationSession struct {
	ID             uuid.UUID     `json:"id"`
	EvaluationID   uuid.UUID     `json:"evaluation_id"`
	ParticipantID  int           `json:"participant_id"`
	StartedAt      time.Time     `json:"started_at"`
	FinishedAt     *time.Time    `json:"finished_at,omitempty"`
	Status         SessionStatus `json:"status"`
	FinalScore     *float64      `json:"final_score,omitempty"`
	Reussi         *bool         `json:"reussi,omitempty"`
	ViolationCount int           `json:"violation_count"`
	QuestionOrder  []string      `json:"question_order,omitempty"`
}

// JoinEvaluationRequest is the payload for a participant joining an evaluation.
type JoinEvaluationRequest struct {
	EntryToken string `json:"entry_token" binding:"required,min=4,max=20"`
}

// SessionState is what a reconnecting client needs to resume an attempt.
type SessionState struct {
	EvaluationID      uuid.UUID         `json:"evaluation_id"`
	ParticipantID     int               `json:"participant_id"`
	Status            SessionStatus     `json:"status"`
	CurrentIndex      int               `json:"current_index"`
	RemainingSeconds  int               `json:"remaining_seconds"`
	QuestionRemaining int               `json:"question_remaining_seconds"`
	ViolationCount    int               `json:"violation_count"`
	AutosavedAnswers  map[string]string `json:"autosaved_answers"`
}
