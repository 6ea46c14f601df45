package exam

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// State is the lifecycle state of a session.
type State string

const (
	StateActive      State = "ACTIVE"
	StateSubmitting  State = "SUBMITTING"
	StateSubmitted   State = "SUBMITTED"
	StateSubmitError State = "SUBMIT_ERROR"
	StateLocked      State = "LOCKED"
)

// Terminal reports whether the state admits no further transitions.
func (s State) Terminal() bool {
	return s == StateSubmitted || s == StateLocked
}

type submitTrigger int

const (
	triggerManual submitTrigger = iota
	triggerTimeout
	triggerLock
)

const (
	auditTimeout  = 3 * time.Second
	submitTimeout = 15 * time.Second
)

// Session is one participant's live attempt at one evaluation. All shared
// state is guarded by a single mutex; every mutation is one synchronous
// critical section, so interleaved triggers (a timeout tick racing a manual
// submit, a violation racing a disposal) cannot corrupt the state machine.
// Event sink callbacks and collaborator calls are fired outside the lock.
type Session struct {
	ID            uuid.UUID
	EvaluationID  uuid.UUID
	ParticipantID int
	Title         string
	StartedAt     time.Time

	cfg    Config
	grader Grader
	audit  AuditLog
	log    zerolog.Logger

	mu                sync.Mutex
	state             State
	disposed          bool
	questions         []Question
	index             int
	globalRemaining   int
	questionRemaining int
	answers           *AnswerStore
	monitor           *Monitor
	escalation        *EscalationPolicy
	sink              EventSink
	release           func()
	submitGen         int
	completed         bool

	stop     chan struct{}
	stopOnce sync.Once
}

// run drives the two countdown clocks with one ticker per session. Both
// clocks stop the instant the stop channel closes; no tick is observed after
// a terminal transition or disposal.
func (s *Session) run() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

func (s *Session) stopClocksLocked() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// AttachSink binds the client event sink. At most one sink is bound at a
// time; attaching replaces the previous one.
func (s *Session) AttachSink(sink EventSink) {
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()
}

// DetachSink unbinds the client event sink. The session keeps running.
func (s *Session) DetachSink() {
	s.mu.Lock()
	s.sink = nil
	s.mu.Unlock()
}

// SetRelease registers the exclusive-resource release hook (e.g. telling the
// client to leave fullscreen). It is invoked exactly once, on the first
// terminal transition or on disposal, whichever comes first.
func (s *Session) SetRelease(f func()) {
	s.mu.Lock()
	s.release = f
	s.mu.Unlock()
}

// Tick advances both countdown clocks by one second. Exposed for the runner
// goroutine and for deterministic tests; a tick on a non-active session is a
// no-op.
func (s *Session) Tick() {
	s.mu.Lock()
	fire := s.tickLocked()
	s.mu.Unlock()
	runAll(fire)
}

func (s *Session) tickLocked() []func() {
	if s.disposed || s.state != StateActive {
		return nil
	}
	if s.globalRemaining > 0 {
		s.globalRemaining--
	}
	if s.questionRemaining > 0 {
		s.questionRemaining--
	}

	if s.globalRemaining == 0 {
		var fire []func()
		if sink := s.sink; sink != nil {
			fire = append(fire, func() { sink.TimeUp() })
		}
		return append(fire, s.beginSubmitLocked(triggerTimeout)...)
	}

	if s.questionRemaining == 0 {
		q := s.questions[s.index]
		if !s.answers.Answered(q.ID) {
			s.answers.Set(q.ID, Unanswered)
		}
		if s.index+1 >= len(s.questions) {
			return s.beginSubmitLocked(triggerTimeout)
		}
		s.index++
		s.questionRemaining = s.cfg.QuestionSeconds
		idx := s.index
		budget := s.cfg.QuestionSeconds
		if sink := s.sink; sink != nil {
			return []func(){func() { sink.QuestionTimeout(idx, budget) }}
		}
	}
	return nil
}

// Answer records the participant's answer for a question of this session.
// Last write wins. Rejected once the session has left the active state.
func (s *Session) Answer(questionID uuid.UUID, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return ErrDisposed
	}
	if s.state != StateActive {
		return ErrSessionEnded
	}
	q := s.questionLocked(questionID)
	if q == nil {
		return ErrUnknownQuestion
	}
	if err := q.ValidateAnswer(value); err != nil {
		return err
	}
	s.answers.Set(questionID, value)
	return nil
}

// Advance moves to the next question manually and resets the per-question
// clock to its full budget. Returns the new index.
func (s *Session) Advance() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return s.index, ErrDisposed
	}
	if s.state != StateActive {
		return s.index, ErrSessionEnded
	}
	if s.index+1 >= len(s.questions) {
		return s.index, ErrLastQuestion
	}
	s.index++
	s.questionRemaining = s.cfg.QuestionSeconds
	return s.index, nil
}

// ReportViolation feeds one integrity signal into the monitor. The violation
// counter is monotone; crossing the threshold locks the session irreversibly
// and forces a submission of the answers held at that moment. Violations
// reported after the session ended are dropped with ErrSessionEnded.
func (s *Session) ReportViolation(kind ViolationKind, detail string) (int, error) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return 0, ErrDisposed
	}
	_, ok := s.monitor.Record(kind, detail)
	if !ok {
		count := s.escalation.Count()
		s.mu.Unlock()
		return count, ErrSessionEnded
	}
	count, exceeded := s.escalation.Record()
	threshold := s.escalation.Threshold()
	reason := violationReason(kind, detail)

	fire := []func(){s.auditAsync(string(kind), detail)}
	if sink := s.sink; sink != nil {
		fire = append(fire, func() { sink.Warning(count, threshold, reason) })
	}

	if exceeded && s.state == StateActive {
		lockReason := fmt.Sprintf("surveillance: %d/%d violations, session verrouillée", count, threshold)
		if sink := s.sink; sink != nil {
			fire = append(fire, func() { sink.Locked(lockReason) })
		}
		fire = append(fire, s.beginSubmitLocked(triggerLock)...)
	}
	s.mu.Unlock()

	runAll(fire)
	return count, nil
}

func violationReason(kind ViolationKind, detail string) string {
	switch kind {
	case ViolationTabBlur:
		return "changement de fenêtre détecté"
	case ViolationVisibilityHidden:
		return "onglet masqué détecté"
	case ViolationCopy:
		return "copie détectée"
	case ViolationPaste:
		return "collage détecté"
	case ViolationPrintAttempt:
		return "tentative d'impression détectée"
	default:
		return detail
	}
}

// Submit triggers the submission pipeline manually. Valid from the active
// state and from a previous retryable submission failure.
func (s *Session) Submit() error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}
	switch s.state {
	case StateSubmitting:
		s.mu.Unlock()
		return ErrSubmitInFlight
	case StateSubmitted, StateLocked:
		s.mu.Unlock()
		return ErrSessionEnded
	}
	fire := s.beginSubmitLocked(triggerManual)
	s.mu.Unlock()

	runAll(fire)
	return nil
}

// beginSubmitLocked starts the submission pipeline: it moves the state
// machine, suspends both clocks permanently, snapshots the answer store in
// presentation order and schedules the grading call. The generation counter
// makes a late grading response for a superseded attempt a no-op.
func (s *Session) beginSubmitLocked(tr submitTrigger) []func() {
	if s.completed || s.state == StateSubmitting || s.state.Terminal() {
		return nil
	}
	if tr == triggerLock {
		s.state = StateLocked
		s.monitor.Detach()
	} else {
		s.state = StateSubmitting
	}
	s.stopClocksLocked()

	s.submitGen++
	gen := s.submitGen
	answers := s.answers.SubmissionList(s.questions)

	return []func(){func() { s.finishSubmit(gen, answers) }}
}

func (s *Session) finishSubmit(gen int, answers []SubmittedAnswer) {
	ctx, cancel := context.WithTimeout(context.Background(), submitTimeout)
	defer cancel()

	res, err := s.grader.SubmitEvaluation(ctx, s.ParticipantID, s.EvaluationID, answers)

	s.mu.Lock()
	fire := s.settleLocked(gen, res, err)
	s.mu.Unlock()
	runAll(fire)
}

// settleLocked applies the grading outcome, guarding against stale responses
// arriving after the session was disposed or superseded.
func (s *Session) settleLocked(gen int, res *Result, err error) []func() {
	if s.disposed || s.completed || gen != s.submitGen {
		return nil
	}

	if err != nil {
		s.log.Warn().Err(err).Str("session_id", s.ID.String()).Msg("Grading call failed")
		if s.state == StateLocked {
			// Escalation lock is terminal regardless of grading outcome.
			return s.completeLocked(Result{Score: 0, Passed: false})
		}
		s.state = StateSubmitError
		if sink := s.sink; sink != nil {
			gradeErr := err
			return []func(){func() { sink.SubmitFailed(gradeErr) }}
		}
		return nil
	}

	if s.state != StateLocked {
		s.state = StateSubmitted
	}
	return s.completeLocked(*res)
}

// completeLocked fires the one-and-only completion: listeners detached,
// exclusive resources released, verdict relayed, session end audited.
func (s *Session) completeLocked(res Result) []func() {
	if s.completed {
		return nil
	}
	s.completed = true
	s.monitor.Detach()

	var fire []func()
	if rel := s.release; rel != nil {
		s.release = nil
		fire = append(fire, rel)
	}
	if sink := s.sink; sink != nil {
		fire = append(fire, func() { sink.Completed(res) })
	}
	status := string(s.state)
	fire = append(fire, func() {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
			defer cancel()
			if err := s.audit.SessionEnded(ctx, s.ID, status); err != nil {
				s.log.Debug().Err(err).Msg("Session end audit dropped")
			}
		}()
	})
	return fire
}

// Dispose tears the session down synchronously: both clocks cancelled, the
// monitor detached, the release hook invoked. No sink callback fires after
// Dispose returns.
func (s *Session) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	s.sink = nil
	s.stopClocksLocked()
	s.monitor.Detach()
	rel := s.release
	s.release = nil
	s.mu.Unlock()

	if rel != nil {
		rel()
	}
}

// Done reports whether the session delivered its verdict or was disposed.
func (s *Session) Done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed || s.disposed
}

// auditAsync forwards one interaction to the audit collaborator best-effort,
// off the hot path. Failures are logged at debug and swallowed.
func (s *Session) auditAsync(eventType, details string) func() {
	return func() {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
			defer cancel()
			if err := s.audit.LogInteraction(ctx, s.ID, eventType, details); err != nil {
				s.log.Debug().Err(err).Str("event", eventType).Msg("Interaction audit dropped")
			}
		}()
	}
}

func (s *Session) questionLocked(id uuid.UUID) *Question {
	for i := range s.questions {
		if s.questions[i].ID == id {
			return &s.questions[i]
		}
	}
	return nil
}

func runAll(fire []func()) {
	for _, f := range fire {
		f()
	}
}

// ─── Snapshots ──────────────────────────────────────────────────────

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// CurrentIndex returns the index of the question currently presented.
func (s *Session) CurrentIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

// RemainingSeconds returns the global clock's remaining budget.
func (s *Session) RemainingSeconds() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.globalRemaining
}

// QuestionRemainingSeconds returns the per-question clock's remaining budget.
func (s *Session) QuestionRemainingSeconds() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.questionRemaining
}

// ViolationCount returns the monotone violation counter.
func (s *Session) ViolationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.escalation.Count()
}

// Questions returns a copy of the questions in presentation order.
func (s *Session) Questions() []Question {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Question, len(s.questions))
	copy(out, s.questions)
	return out
}

// QuestionOrder returns the presented question IDs in order, for audit
// persistence.
func (s *Session) QuestionOrder() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.questions))
	for i, q := range s.questions {
		out[i] = q.ID.String()
	}
	return out
}

// Violations returns a copy of the violation log in append order.
func (s *Session) Violations() []Violation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.monitor.Log()
}

// AnswersSnapshot returns a copy of the stored answers keyed by question ID.
func (s *Session) AnswersSnapshot() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answers.Snapshot()
}

// MonitorBalanced reports whether the integrity monitor's attach/detach
// cycle is symmetric, i.e. no listener leaked past teardown.
func (s *Session) MonitorBalanced() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.monitor.Balanced()
}
