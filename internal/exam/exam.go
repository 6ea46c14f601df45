// Package exam implements the in-memory proctored evaluation session engine:
// the per-attempt state machine, the global and per-question countdown clocks,
// the answer store, the integrity violation intake with its escalation policy,
// and the exactly-once submission pipeline. The engine never talks to storage
// directly; evaluations, grading and audit logging are reached through the
// collaborator interfaces below, implemented by the service layer.
package exam

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Engine errors.
var (
	ErrEmptyEvaluation = errors.New("evaluation has no questions")
	ErrSessionEnded    = errors.New("session already ended")
	ErrDisposed        = errors.New("session disposed")
	ErrLastQuestion    = errors.New("already at the last question")
	ErrUnknownQuestion = errors.New("question not part of this session")
	ErrInvalidAnswer   = errors.New("answer does not match question kind")
	ErrSubmitInFlight  = errors.New("submission already in progress")
)

// Evaluation is the engine-facing definition of one timed quiz. It carries no
// correct answers; grading stays behind the Grader interface.
type Evaluation struct {
	ID              uuid.UUID
	Title           string
	DurationMinutes int
	Questions       []Question
}

// SubmittedAnswer pairs a question with the answer given (or the unanswered
// sentinel), in presentation order.
type SubmittedAnswer struct {
	QuestionID uuid.UUID `json:"question_id"`
	Answer     string    `json:"answer"`
}

// Result is the grading verdict for one attempt. Score is 0-100.
type Result struct {
	Score  float64
	Passed bool
}

// EvaluationProvider fetches evaluation definitions.
type EvaluationProvider interface {
	GetEvaluation(ctx context.Context, evaluationID uuid.UUID) (*Evaluation, error)
}

// Grader is the single point of truth for scoring. The engine never computes
// a score itself.
type Grader interface {
	SubmitEvaluation(ctx context.Context, participantID int, evaluationID uuid.UUID, answers []SubmittedAnswer) (*Result, error)
}

// AuditLog receives integrity events best-effort: errors are logged and
// swallowed by the engine, never surfaced to the participant.
type AuditLog interface {
	LogInteraction(ctx context.Context, sessionID uuid.UUID, eventType, details string) error
	SessionEnded(ctx context.Context, sessionID uuid.UUID, status string) error
}

// EventSink receives session events for relay to the connected client.
// Implementations must not call back into the Session. A nil sink is valid;
// the session keeps running server-authoritatively without one.
type EventSink interface {
	// Warning is raised for every recorded violation, with the running count
	// over the configured threshold.
	Warning(count, threshold int, reason string)
	// QuestionTimeout signals the per-question clock expired and the session
	// auto-advanced to newIndex with a fresh budget.
	QuestionTimeout(newIndex, questionSeconds int)
	// TimeUp signals the global clock expired; a forced submission follows.
	TimeUp()
	// Locked signals the violation threshold was crossed; terminal.
	Locked(reason string)
	// SubmitFailed signals a retryable grading failure.
	SubmitFailed(err error)
	// Completed delivers the grading verdict. Invoked at most once.
	Completed(res Result)
}

// Default policy knobs.
const (
	DefaultQuestionSeconds    = 30
	DefaultViolationThreshold = 3
)

// Config carries the proctoring policy for new sessions.
type Config struct {
	// QuestionSeconds is the fixed per-question countdown budget.
	QuestionSeconds int
	// ViolationThreshold is the violation count at which the session locks.
	ViolationThreshold int
}

func (c Config) withDefaults() Config {
	if c.QuestionSeconds <= 0 {
		c.QuestionSeconds = DefaultQuestionSeconds
	}
	if c.ViolationThreshold <= 0 {
		c.ViolationThreshold = DefaultViolationThreshold
	}
	return c
}
