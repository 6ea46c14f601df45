package model

import (
	"time"

	"github.com/google/uuid"
)

// InteractionEvent is one audited client-side event during a session.
type InteractionEvent struct {
	EventType string `json:"event_type"`
	Details   string `json:"details,omitempty"`
}

// ViolationRecord is a persisted integrity violation.
type ViolationRecord struct {
	ID            int64     `json:"id"`
	SessionID     uuid.UUID `json:"session_id"`
	EvaluationID  uuid.UUID `json:"evaluation_id"`
	ParticipantID int       `json:"participant_id"`
	Kind          string    `json:"kind"`
	Details       string    `json:"details,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// SessionAnalysis is the post-hoc suspicion assessment of one session.
type SessionAnalysis struct {
	SessionID        uuid.UUID      `json:"session_id"`
	ViolationCount   int            `json:"violation_count"`
	ViolationsByKind map[string]int `json:"violations_by_kind"`
	SuspiciousScore  float64        `json:"suspicious_score"`
}

// SurveillanceReport is the trainer-facing report for one session.
type SurveillanceReport struct {
	Session   EvaluationSession `json:"session"`
	Timeline  []ViolationRecord `json:"timeline"`
	Analysis  SessionAnalysis   `json:"analysis"`
	CreatedAt time.Time         `json:"created_at"`
}
