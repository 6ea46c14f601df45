package exam

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Loader builds live sessions from evaluation definitions. The question
// order is shuffled with a uniform Fisher–Yates permutation exactly once per
// session and stays fixed for the lifetime of the attempt.
type Loader struct {
	provider EvaluationProvider
	grader   Grader
	audit    AuditLog
	cfg      Config
	log      zerolog.Logger
}

// NewLoader creates a Loader wired to its collaborators.
func NewLoader(provider EvaluationProvider, grader Grader, audit AuditLog, cfg Config, log zerolog.Logger) *Loader {
	return &Loader{
		provider: provider,
		grader:   grader,
		audit:    audit,
		cfg:      cfg.withDefaults(),
		log:      log.With().Str("component", "exam_loader").Logger(),
	}
}

// Load fetches the evaluation definition and constructs an active session
// under the given identity. sessionID is the persisted attempt row's ID, so
// everything the engine audits under it (violations, session end) lands on
// the same key the trainer-facing reads query by. No clock runs until the
// caller starts the runner. Fails without side effects when the provider
// errors or the question set is empty, so the caller can surface a
// retryable load error.
func (l *Loader) Load(ctx context.Context, sessionID, evaluationID uuid.UUID, participantID int) (*Session, error) {
	ev, err := l.provider.GetEvaluation(ctx, evaluationID)
	if err != nil {
		return nil, fmt.Errorf("get evaluation: %w", err)
	}
	if len(ev.Questions) == 0 {
		return nil, ErrEmptyEvaluation
	}

	questions := make([]Question, len(ev.Questions))
	copy(questions, ev.Questions)
	rand.Shuffle(len(questions), func(i, j int) {
		questions[i], questions[j] = questions[j], questions[i]
	})

	s := &Session{
		ID:                sessionID,
		EvaluationID:      ev.ID,
		ParticipantID:     participantID,
		Title:             ev.Title,
		StartedAt:         time.Now(),
		cfg:               l.cfg,
		grader:            l.grader,
		audit:             l.audit,
		state:             StateActive,
		questions:         questions,
		globalRemaining:   ev.DurationMinutes * 60,
		questionRemaining: l.cfg.QuestionSeconds,
		answers:           NewAnswerStore(),
		monitor:           NewMonitor(),
		escalation:        NewEscalationPolicy(l.cfg.ViolationThreshold),
		stop:              make(chan struct{}),
	}
	s.log = l.log.With().
		Str("session_id", s.ID.String()).
		Str("evaluation_id", ev.ID.String()).
		Int("participant_id", participantID).
		Logger()
	s.monitor.Attach()

	l.log.Info().
		Str("evaluation_id", ev.ID.String()).
		Int("participant_id", participantID).
		Int("questions", len(questions)).
		Int("duration_s", s.globalRemaining).
		Msg("Session loaded")

	return s, nil
}
