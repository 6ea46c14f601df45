package exam

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(ev *Evaluation, grader *fakeGrader) *Registry {
	loader := NewLoader(&fakeProvider{ev: ev}, grader, &fakeAudit{}, Config{QuestionSeconds: 600}, zerolog.Nop())
	return NewRegistry(loader, zerolog.Nop())
}

func TestRegistryResumesLiveSession(t *testing.T) {
	ev := testEvaluation(5)
	reg := newTestRegistry(ev, &fakeGrader{res: Result{}})
	defer reg.DisposeAll()

	first, resumed, err := reg.Start(context.Background(), uuid.New(), ev.ID, 1)
	require.NoError(t, err)
	assert.False(t, resumed)

	// A second start for the same pair returns the same session: same
	// shuffled order, same clocks, one session per pair.
	second, resumed, err := reg.Start(context.Background(), uuid.New(), ev.ID, 1)
	require.NoError(t, err)
	assert.True(t, resumed)
	assert.Same(t, first, second)
	assert.Equal(t, first.QuestionOrder(), second.QuestionOrder())
	assert.Equal(t, 1, reg.Len())
}

func TestRegistryResumeKeepsSessionIdentity(t *testing.T) {
	ev := testEvaluation(3)
	reg := newTestRegistry(ev, &fakeGrader{res: Result{}})
	defer reg.DisposeAll()

	id := uuid.New()
	first, _, err := reg.Start(context.Background(), id, ev.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, id, first.ID)

	// A reconnect passes the same persisted row ID; even a caller passing a
	// different one must get the original identity back.
	second, resumed, err := reg.Start(context.Background(), uuid.New(), ev.ID, 1)
	require.NoError(t, err)
	assert.True(t, resumed)
	assert.Equal(t, id, second.ID)
}

func TestRegistrySeparateSessionsPerParticipant(t *testing.T) {
	ev := testEvaluation(5)
	reg := newTestRegistry(ev, &fakeGrader{res: Result{}})
	defer reg.DisposeAll()

	a, _, err := reg.Start(context.Background(), uuid.New(), ev.ID, 1)
	require.NoError(t, err)
	b, _, err := reg.Start(context.Background(), uuid.New(), ev.ID, 2)
	require.NoError(t, err)

	assert.NotSame(t, a, b)
	assert.Equal(t, 2, reg.Len())
	assert.Same(t, a, reg.Get(ev.ID, 1))
	assert.Same(t, b, reg.Get(ev.ID, 2))
}

func TestRegistrySweepsFinishedSession(t *testing.T) {
	ev := testEvaluation(1)
	grader := &fakeGrader{res: Result{Score: 100, Passed: true}}
	reg := newTestRegistry(ev, grader)
	defer reg.DisposeAll()

	first, _, err := reg.Start(context.Background(), uuid.New(), ev.ID, 1)
	require.NoError(t, err)
	require.NoError(t, first.Submit())
	require.True(t, first.Done())

	replacement, resumed, err := reg.Start(context.Background(), uuid.New(), ev.ID, 1)
	require.NoError(t, err)
	assert.False(t, resumed)
	assert.NotSame(t, first, replacement)
}

func TestRegistryRemoveDisposes(t *testing.T) {
	ev := testEvaluation(2)
	reg := newTestRegistry(ev, &fakeGrader{res: Result{}})

	sess, _, err := reg.Start(context.Background(), uuid.New(), ev.ID, 1)
	require.NoError(t, err)

	reg.Remove(ev.ID, 1)
	assert.Nil(t, reg.Get(ev.ID, 1))
	assert.Zero(t, reg.Len())
	assert.True(t, sess.Done())
	assert.True(t, sess.MonitorBalanced())
}

func TestRegistryDisposeAll(t *testing.T) {
	ev := testEvaluation(2)
	reg := newTestRegistry(ev, &fakeGrader{res: Result{}})

	var sessions []*Session
	for i := 1; i <= 4; i++ {
		s, _, err := reg.Start(context.Background(), uuid.New(), ev.ID, i)
		require.NoError(t, err)
		sessions = append(sessions, s)
	}

	reg.DisposeAll()
	assert.Zero(t, reg.Len())
	for _, s := range sessions {
		assert.True(t, s.Done())
	}
}
