package exam

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnswerStoreLastWriteWins(t *testing.T) {
	st := NewAnswerStore()
	q := uuid.New()

	assert.Equal(t, Unanswered, st.Get(q))
	assert.False(t, st.Answered(q))

	st.Set(q, "a")
	st.Set(q, "b")
	assert.Equal(t, "b", st.Get(q))
	assert.True(t, st.Answered(q))
	assert.Equal(t, 1, st.Len())
}

func TestSubmissionListFollowsPresentationOrder(t *testing.T) {
	order := []Question{
		{ID: uuid.New(), Kind: KindFreeText},
		{ID: uuid.New(), Kind: KindFreeText},
		{ID: uuid.New(), Kind: KindFreeText},
	}
	st := NewAnswerStore()
	// Answer out of order, skip the middle question.
	st.Set(order[2].ID, "troisième")
	st.Set(order[0].ID, "première")

	list := st.SubmissionList(order)
	require.Len(t, list, 3)
	assert.Equal(t, order[0].ID, list[0].QuestionID)
	assert.Equal(t, "première", list[0].Answer)
	assert.Equal(t, Unanswered, list[1].Answer)
	assert.Equal(t, "troisième", list[2].Answer)
}

func TestExplicitSentinelCountsAsAnswered(t *testing.T) {
	st := NewAnswerStore()
	q := uuid.New()
	st.Set(q, Unanswered)
	assert.True(t, st.Answered(q))
	assert.Equal(t, Unanswered, st.Get(q))
}
