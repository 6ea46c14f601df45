package exam

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ─── Fakes ──────────────────────────────────────────────────────────

type fakeProvider struct {
	ev  *Evaluation
	err error
}

func (p *fakeProvider) GetEvaluation(_ context.Context, _ uuid.UUID) (*Evaluation, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.ev, nil
}

type fakeGrader struct {
	mu    sync.Mutex
	calls int
	got   [][]SubmittedAnswer
	res   Result
	err   error
}

func (g *fakeGrader) SubmitEvaluation(_ context.Context, _ int, _ uuid.UUID, answers []SubmittedAnswer) (*Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.got = append(g.got, answers)
	if g.err != nil {
		return nil, g.err
	}
	res := g.res
	return &res, nil
}

func (g *fakeGrader) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func (g *fakeGrader) lastAnswers() []SubmittedAnswer {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.got) == 0 {
		return nil
	}
	return g.got[len(g.got)-1]
}

type fakeAudit struct {
	mu           sync.Mutex
	interactions []string
	ended        []string
	endedIDs     []uuid.UUID
	err          error
}

func (a *fakeAudit) LogInteraction(_ context.Context, _ uuid.UUID, eventType, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.interactions = append(a.interactions, eventType)
	return a.err
}

func (a *fakeAudit) SessionEnded(_ context.Context, sessionID uuid.UUID, status string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ended = append(a.ended, status)
	a.endedIDs = append(a.endedIDs, sessionID)
	return a.err
}

func (a *fakeAudit) lastEndedSession() uuid.UUID {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.endedIDs) == 0 {
		return uuid.Nil
	}
	return a.endedIDs[len(a.endedIDs)-1]
}

func (a *fakeAudit) interactionCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.interactions)
}

type recordSink struct {
	mu        sync.Mutex
	warnings  []int
	timeouts  []int
	timeUp    int
	locked    []string
	failed    []error
	completed []Result
}

func (s *recordSink) Warning(count, _ int, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warnings = append(s.warnings, count)
}

func (s *recordSink) QuestionTimeout(newIndex, _ int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeouts = append(s.timeouts, newIndex)
}

func (s *recordSink) TimeUp() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeUp++
}

func (s *recordSink) Locked(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locked = append(s.locked, reason)
}

func (s *recordSink) SubmitFailed(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, err)
}

func (s *recordSink) Completed(res Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = append(s.completed, res)
}

func (s *recordSink) completedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.completed)
}

func (s *recordSink) eventCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.warnings) + len(s.timeouts) + s.timeUp + len(s.locked) + len(s.failed) + len(s.completed)
}

// ─── Helpers ────────────────────────────────────────────────────────

func testEvaluation(n int) *Evaluation {
	qs := make([]Question, n)
	for i := range qs {
		qs[i] = Question{
			ID:     uuid.New(),
			Text:   "question",
			Kind:   KindFreeText,
			Points: 1,
		}
	}
	return &Evaluation{
		ID:              uuid.New(),
		Title:           "Sécurité au travail",
		DurationMinutes: 2,
		Questions:       qs,
	}
}

func newTestSession(t *testing.T, ev *Evaluation, grader *fakeGrader, cfg Config) (*Session, *recordSink, *fakeAudit) {
	t.Helper()
	audit := &fakeAudit{}
	loader := NewLoader(&fakeProvider{ev: ev}, grader, audit, cfg, zerolog.Nop())
	sess, err := loader.Load(context.Background(), uuid.New(), ev.ID, 7)
	require.NoError(t, err)
	sink := &recordSink{}
	sess.AttachSink(sink)
	return sess, sink, audit
}

func tick(s *Session, n int) {
	for i := 0; i < n; i++ {
		s.Tick()
	}
}

// ─── Timer coordination ─────────────────────────────────────────────

func TestTickRemainingTimeMonotone(t *testing.T) {
	sess, _, _ := newTestSession(t, testEvaluation(3), &fakeGrader{res: Result{Score: 50}}, Config{QuestionSeconds: 10})

	prevGlobal := sess.RemainingSeconds()
	prevQuestion := sess.QuestionRemainingSeconds()
	for i := 0; i < 200; i++ {
		sess.Tick()
		g, q := sess.RemainingSeconds(), sess.QuestionRemainingSeconds()
		assert.GreaterOrEqual(t, g, 0)
		assert.GreaterOrEqual(t, q, 0)
		assert.LessOrEqual(t, g, prevGlobal)
		if q > prevQuestion {
			// Only a question advance may refill the per-question clock.
			assert.Equal(t, 10, q)
		}
		prevGlobal, prevQuestion = g, q
	}
}

func TestGlobalTimeoutSubmitsAllUnanswered(t *testing.T) {
	// Scenario: 3 questions, 2 minutes, no answers given, per-question budget
	// larger than the whole exam so only the global clock can expire.
	ev := testEvaluation(3)
	grader := &fakeGrader{res: Result{Score: 0, Passed: false}}
	sess, sink, _ := newTestSession(t, ev, grader, Config{QuestionSeconds: 600})

	tick(sess, 120)

	assert.Equal(t, StateSubmitted, sess.State())
	assert.Equal(t, 1, sink.timeUp)
	require.Equal(t, 1, grader.callCount())

	answers := grader.lastAnswers()
	require.Len(t, answers, 3)
	for _, a := range answers {
		assert.Equal(t, Unanswered, a.Answer)
	}
	require.Equal(t, 1, sink.completedCount())
	assert.False(t, sink.completed[0].Passed)

	// Further ticks are no-ops: the clocks stopped on submission.
	tick(sess, 10)
	assert.Equal(t, 1, grader.callCount())
	assert.Equal(t, 1, sink.timeUp)
}

func TestQuestionTimeoutAdvancesAndResetsBudget(t *testing.T) {
	// Scenario: per-question clock expires on question 1 of 2 with no answer.
	ev := testEvaluation(2)
	grader := &fakeGrader{res: Result{Score: 0}}
	sess, sink, _ := newTestSession(t, ev, grader, Config{QuestionSeconds: 30})

	first := sess.Questions()[0]
	tick(sess, 30)

	assert.Equal(t, 1, sess.CurrentIndex())
	assert.Equal(t, 30, sess.QuestionRemainingSeconds())
	assert.Equal(t, []int{1}, sink.timeouts)
	assert.Equal(t, Unanswered, sess.AnswersSnapshot()[first.ID.String()])
	assert.Equal(t, StateActive, sess.State())
}

func TestQuestionTimeoutKeepsExistingAnswer(t *testing.T) {
	ev := testEvaluation(2)
	grader := &fakeGrader{res: Result{Score: 0}}
	sess, _, _ := newTestSession(t, ev, grader, Config{QuestionSeconds: 30})

	first := sess.Questions()[0]
	require.NoError(t, sess.Answer(first.ID, "ma réponse"))
	tick(sess, 30)

	assert.Equal(t, "ma réponse", sess.AnswersSnapshot()[first.ID.String()])
}

func TestLastQuestionTimeoutSubmits(t *testing.T) {
	ev := testEvaluation(1)
	grader := &fakeGrader{res: Result{Score: 0}}
	sess, sink, _ := newTestSession(t, ev, grader, Config{QuestionSeconds: 5})

	tick(sess, 5)

	assert.Equal(t, StateSubmitted, sess.State())
	assert.Equal(t, 1, grader.callCount())
	assert.Equal(t, 1, sink.completedCount())
	assert.Empty(t, sink.timeouts)
}

// ─── Answers and manual flow ────────────────────────────────────────

func TestManualSubmitSendsAnswersInPresentationOrder(t *testing.T) {
	ev := testEvaluation(3)
	grader := &fakeGrader{res: Result{Score: 100, Passed: true}}
	sess, sink, _ := newTestSession(t, ev, grader, Config{})

	order := sess.Questions()
	for i, q := range order {
		require.NoError(t, sess.Answer(q.ID, "réponse"))
		if i < len(order)-1 {
			idx, err := sess.Advance()
			require.NoError(t, err)
			assert.Equal(t, i+1, idx)
			assert.Equal(t, DefaultQuestionSeconds, sess.QuestionRemainingSeconds())
		}
	}
	require.NoError(t, sess.Submit())

	require.Equal(t, 1, grader.callCount())
	answers := grader.lastAnswers()
	require.Len(t, answers, 3)
	for i, a := range answers {
		assert.Equal(t, order[i].ID, a.QuestionID)
		assert.Equal(t, "réponse", a.Answer)
	}
	require.Equal(t, 1, sink.completedCount())
	assert.True(t, sink.completed[0].Passed)
	assert.InDelta(t, 100.0, sink.completed[0].Score, 0.001)
}

func TestAnswerValidationByKind(t *testing.T) {
	ev := &Evaluation{
		ID:              uuid.New(),
		DurationMinutes: 5,
		Questions: []Question{
			{ID: uuid.New(), Kind: KindMultipleChoice, Options: []string{"EPI", "Extincteur"}, Points: 2},
			{ID: uuid.New(), Kind: KindTrueFalse, Points: 1},
			{ID: uuid.New(), Kind: KindFreeText, Points: 1},
		},
	}
	grader := &fakeGrader{res: Result{Score: 0}}
	sess, _, _ := newTestSession(t, ev, grader, Config{})

	var mc, tf, ft Question
	for _, q := range sess.Questions() {
		switch q.Kind {
		case KindMultipleChoice:
			mc = q
		case KindTrueFalse:
			tf = q
		case KindFreeText:
			ft = q
		}
	}

	assert.ErrorIs(t, sess.Answer(mc.ID, "Casque"), ErrInvalidAnswer)
	assert.NoError(t, sess.Answer(mc.ID, "EPI"))
	assert.ErrorIs(t, sess.Answer(tf.ID, "oui"), ErrInvalidAnswer)
	assert.NoError(t, sess.Answer(tf.ID, AnswerFaux))
	assert.NoError(t, sess.Answer(ft.ID, "n'importe quoi"))
	assert.ErrorIs(t, sess.Answer(uuid.New(), "x"), ErrUnknownQuestion)
}

func TestAnswerLastWriteWins(t *testing.T) {
	ev := testEvaluation(1)
	sess, _, _ := newTestSession(t, ev, &fakeGrader{}, Config{})
	q := sess.Questions()[0]

	require.NoError(t, sess.Answer(q.ID, "premier"))
	require.NoError(t, sess.Answer(q.ID, "second"))
	assert.Equal(t, "second", sess.AnswersSnapshot()[q.ID.String()])
}

// ─── Exactly-once submission ────────────────────────────────────────

func TestConcurrentTriggersSubmitExactlyOnce(t *testing.T) {
	ev := testEvaluation(2)
	grader := &fakeGrader{res: Result{Score: 40}}
	sess, sink, _ := newTestSession(t, ev, grader, Config{QuestionSeconds: 600})

	// Exhaust the global clock to one second, then race a manual submit
	// against the expiring tick.
	tick(sess, 119)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		sess.Tick()
	}()
	go func() {
		defer wg.Done()
		_ = sess.Submit()
	}()
	wg.Wait()

	assert.Equal(t, 1, grader.callCount())
	assert.Equal(t, 1, sink.completedCount())
	assert.ErrorIs(t, sess.Submit(), ErrSessionEnded)
}

func TestSubmitFailureIsRetryable(t *testing.T) {
	ev := testEvaluation(1)
	grader := &fakeGrader{err: errors.New("grading unavailable")}
	sess, sink, _ := newTestSession(t, ev, grader, Config{})

	require.NoError(t, sess.Submit())
	assert.Equal(t, StateSubmitError, sess.State())
	require.Len(t, sink.failed, 1)
	assert.Zero(t, sink.completedCount())

	// Retry succeeds once the grader recovers.
	grader.mu.Lock()
	grader.err = nil
	grader.res = Result{Score: 75, Passed: true}
	grader.mu.Unlock()

	require.NoError(t, sess.Submit())
	assert.Equal(t, StateSubmitted, sess.State())
	assert.Equal(t, 2, grader.callCount())
	require.Equal(t, 1, sink.completedCount())
	assert.True(t, sink.completed[0].Passed)
}

// ─── Violations and escalation ──────────────────────────────────────

func TestViolationThresholdLocksAndForcesSubmission(t *testing.T) {
	// Scenario: TabBlur, Copy, Paste in sequence with threshold 3.
	ev := testEvaluation(2)
	grader := &fakeGrader{res: Result{Score: 10, Passed: false}}
	sess, sink, audit := newTestSession(t, ev, grader, Config{ViolationThreshold: 3})

	count, err := sess.ReportViolation(ViolationTabBlur, "blur")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = sess.ReportViolation(ViolationCopy, "copy")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = sess.ReportViolation(ViolationPaste, "paste")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	assert.Equal(t, StateLocked, sess.State())
	assert.Equal(t, []int{1, 2, 3}, sink.warnings)
	require.Len(t, sink.locked, 1)
	require.Equal(t, 1, sink.completedCount())
	assert.Equal(t, 1, grader.callCount())

	// The lock is one-way: later violations are dropped, the counter stays.
	_, err = sess.ReportViolation(ViolationCopy, "late")
	assert.ErrorIs(t, err, ErrSessionEnded)
	assert.Equal(t, 3, sess.ViolationCount())

	// No answer mutation is observable past the lock.
	q := sess.Questions()[0]
	assert.ErrorIs(t, sess.Answer(q.ID, "trop tard"), ErrSessionEnded)

	before := sink.eventCount()
	tick(sess, 5)
	assert.Equal(t, before, sink.eventCount())

	// Audit forwarding is asynchronous fire-and-forget.
	assert.Eventually(t, func() bool { return audit.interactionCount() == 3 },
		time.Second, 10*time.Millisecond)
}

func TestLockedSubmissionFailureStillCompletesWithZero(t *testing.T) {
	ev := testEvaluation(1)
	grader := &fakeGrader{err: errors.New("grading down")}
	sess, sink, _ := newTestSession(t, ev, grader, Config{ViolationThreshold: 1})

	_, err := sess.ReportViolation(ViolationPrintAttempt, "print")
	require.NoError(t, err)

	assert.Equal(t, StateLocked, sess.State())
	require.Equal(t, 1, sink.completedCount())
	assert.Zero(t, sink.completed[0].Score)
	assert.False(t, sink.completed[0].Passed)
	assert.Empty(t, sink.failed)
}

func TestViolationCounterMonotone(t *testing.T) {
	ev := testEvaluation(1)
	sess, _, _ := newTestSession(t, ev, &fakeGrader{res: Result{}}, Config{ViolationThreshold: 100})

	prev := 0
	kinds := []ViolationKind{ViolationTabBlur, ViolationVisibilityHidden, ViolationCopy, ViolationPaste, ViolationPrintAttempt}
	for i := 0; i < 20; i++ {
		count, err := sess.ReportViolation(kinds[i%len(kinds)], "")
		require.NoError(t, err)
		assert.Greater(t, count, prev)
		prev = count
	}
	assert.Equal(t, 20, sess.ViolationCount())
	assert.Len(t, sess.Violations(), 20)
}

func TestAuditFailuresAreSwallowed(t *testing.T) {
	ev := testEvaluation(1)
	grader := &fakeGrader{res: Result{Score: 100, Passed: true}}
	audit := &fakeAudit{err: errors.New("audit sink down")}
	loader := NewLoader(&fakeProvider{ev: ev}, grader, audit, Config{}, zerolog.Nop())
	sess, err := loader.Load(context.Background(), uuid.New(), ev.ID, 7)
	require.NoError(t, err)

	_, err = sess.ReportViolation(ViolationCopy, "copy")
	require.NoError(t, err)
	require.NoError(t, sess.Submit())
	assert.Equal(t, StateSubmitted, sess.State())
}

// ─── Teardown ───────────────────────────────────────────────────────

func TestDisposeStopsEverything(t *testing.T) {
	ev := testEvaluation(2)
	grader := &fakeGrader{res: Result{Score: 0}}
	sess, sink, _ := newTestSession(t, ev, grader, Config{QuestionSeconds: 2})

	released := 0
	sess.SetRelease(func() { released++ })
	sess.Dispose()

	assert.Equal(t, 1, released)
	assert.True(t, sess.MonitorBalanced())

	before := sink.eventCount()
	tick(sess, 10)
	_, err := sess.ReportViolation(ViolationCopy, "")
	assert.ErrorIs(t, err, ErrDisposed)
	assert.ErrorIs(t, sess.Submit(), ErrDisposed)
	assert.Equal(t, before, sink.eventCount())
	assert.Zero(t, grader.callCount())

	// Dispose is idempotent and never double-releases.
	sess.Dispose()
	assert.Equal(t, 1, released)
}

func TestMonitorDetachSymmetricOnEveryExit(t *testing.T) {
	cases := map[string]func(s *Session){
		"manual submit": func(s *Session) { _ = s.Submit() },
		"global timeout": func(s *Session) {
			tick(s, s.RemainingSeconds())
		},
		"lock": func(s *Session) {
			for i := 0; i < 3; i++ {
				_, _ = s.ReportViolation(ViolationTabBlur, "")
			}
		},
		"dispose": func(s *Session) { s.Dispose() },
	}

	for name, end := range cases {
		t.Run(name, func(t *testing.T) {
			ev := testEvaluation(1)
			sess, _, _ := newTestSession(t, ev, &fakeGrader{res: Result{}}, Config{QuestionSeconds: 600, ViolationThreshold: 3})
			end(sess)
			assert.True(t, sess.MonitorBalanced())
		})
	}
}

func TestReleaseFiresOnceOnTerminal(t *testing.T) {
	ev := testEvaluation(1)
	sess, _, _ := newTestSession(t, ev, &fakeGrader{res: Result{Score: 100, Passed: true}}, Config{})

	released := 0
	sess.SetRelease(func() { released++ })

	require.NoError(t, sess.Submit())
	assert.Equal(t, 1, released)

	sess.Dispose()
	assert.Equal(t, 1, released)
}

// ─── Randomization ──────────────────────────────────────────────────

func TestQuestionOrderStableAfterLoad(t *testing.T) {
	ev := testEvaluation(10)
	sess, _, _ := newTestSession(t, ev, &fakeGrader{res: Result{}}, Config{})

	first := sess.QuestionOrder()
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, sess.QuestionOrder())
	}

	// The order is a permutation of the source questions.
	seen := make(map[string]bool, len(first))
	for _, id := range first {
		seen[id] = true
	}
	require.Len(t, seen, len(ev.Questions))
	for _, q := range ev.Questions {
		assert.True(t, seen[q.ID.String()])
	}
}
