package exam

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadBuildsActiveSession(t *testing.T) {
	ev := testEvaluation(4)
	loader := NewLoader(&fakeProvider{ev: ev}, &fakeGrader{}, &fakeAudit{}, Config{QuestionSeconds: 45}, zerolog.Nop())

	sess, err := loader.Load(context.Background(), uuid.New(), ev.ID, 12)
	require.NoError(t, err)

	assert.Equal(t, StateActive, sess.State())
	assert.Equal(t, ev.ID, sess.EvaluationID)
	assert.Equal(t, 12, sess.ParticipantID)
	assert.Equal(t, ev.DurationMinutes*60, sess.RemainingSeconds())
	assert.Equal(t, 45, sess.QuestionRemainingSeconds())
	assert.Equal(t, 0, sess.CurrentIndex())
	assert.Len(t, sess.Questions(), 4)
	assert.Zero(t, sess.ViolationCount())
}

func TestLoadCarriesProvidedSessionID(t *testing.T) {
	// The session must run under the identity the caller persisted, not a
	// freshly minted one: audit writes keyed by the session ID have to match
	// the stored attempt row.
	ev := testEvaluation(2)
	loader := NewLoader(&fakeProvider{ev: ev}, &fakeGrader{}, &fakeAudit{}, Config{}, zerolog.Nop())

	id := uuid.New()
	sess, err := loader.Load(context.Background(), id, ev.ID, 3)
	require.NoError(t, err)
	assert.Equal(t, id, sess.ID)
}

func TestSessionEndAuditedUnderProvidedID(t *testing.T) {
	ev := testEvaluation(1)
	grader := &fakeGrader{res: Result{Score: 100, Passed: true}}
	audit := &fakeAudit{}
	loader := NewLoader(&fakeProvider{ev: ev}, grader, audit, Config{QuestionSeconds: 600}, zerolog.Nop())

	id := uuid.New()
	sess, err := loader.Load(context.Background(), id, ev.ID, 3)
	require.NoError(t, err)
	require.NoError(t, sess.Submit())

	assert.Eventually(t, func() bool {
		return audit.lastEndedSession() == id
	}, time.Second, 10*time.Millisecond)
}

func TestLoadFailsOnEmptyQuestionSet(t *testing.T) {
	ev := testEvaluation(0)
	loader := NewLoader(&fakeProvider{ev: ev}, &fakeGrader{}, &fakeAudit{}, Config{}, zerolog.Nop())

	sess, err := loader.Load(context.Background(), uuid.New(), ev.ID, 1)
	assert.Nil(t, sess)
	assert.ErrorIs(t, err, ErrEmptyEvaluation)
}

func TestLoadWrapsProviderError(t *testing.T) {
	cause := errors.New("provider unreachable")
	loader := NewLoader(&fakeProvider{err: cause}, &fakeGrader{}, &fakeAudit{}, Config{}, zerolog.Nop())

	sess, err := loader.Load(context.Background(), uuid.New(), uuid.New(), 1)
	assert.Nil(t, sess)
	assert.ErrorIs(t, err, cause)
}

func TestLoadShufflesOncePerSession(t *testing.T) {
	// With 20 questions, 30 independent loads yielding the identical order
	// would mean the shuffle is not applied.
	ev := testEvaluation(20)
	loader := NewLoader(&fakeProvider{ev: ev}, &fakeGrader{}, &fakeAudit{}, Config{}, zerolog.Nop())

	sourceOrder := make([]string, len(ev.Questions))
	for i, q := range ev.Questions {
		sourceOrder[i] = q.ID.String()
	}

	allSame := true
	for i := 0; i < 30; i++ {
		sess, err := loader.Load(context.Background(), uuid.New(), ev.ID, i)
		require.NoError(t, err)
		order := sess.QuestionOrder()
		require.Len(t, order, len(sourceOrder))
		for j := range order {
			if order[j] != sourceOrder[j] {
				allSame = false
			}
		}
	}
	assert.False(t, allSame)
}

func TestConfigDefaults(t *testing.T) {
	c := Config{}.withDefaults()
	assert.Equal(t, DefaultQuestionSeconds, c.QuestionSeconds)
	assert.Equal(t, DefaultViolationThreshold, c.ViolationThreshold)

	c = Config{QuestionSeconds: 90, ViolationThreshold: 5}.withDefaults()
	assert.Equal(t, 90, c.QuestionSeconds)
	assert.Equal(t, 5, c.ViolationThreshold)
}
