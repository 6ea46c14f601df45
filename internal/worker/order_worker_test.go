package worker

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestOrderDedupeKeepsNewestPerAttempt(t *testing.T) {
	evA := uuid.NewString()
	evB := uuid.NewString()

	batch := []*orderPayload{
		{EvaluationID: evA, ParticipantID: 1, Order: []string{"q1", "q2"}},
		{EvaluationID: evB, ParticipantID: 1, Order: []string{"q3"}},
		{EvaluationID: evA, ParticipantID: 1, Order: []string{"q2", "q1"}},
		{EvaluationID: evA, ParticipantID: 2, Order: []string{"q1"}},
	}

	out := dedupe(batch)

	assert.Len(t, out, 3)
	assert.Equal(t, []string{"q2", "q1"}, out[0].Order) // superseded in place
	assert.Equal(t, evB, out[1].EvaluationID)
	assert.Equal(t, 2, out[2].ParticipantID)
}

func TestOrderDedupeNoDuplicates(t *testing.T) {
	batch := []*orderPayload{
		{EvaluationID: uuid.NewString(), ParticipantID: 1},
		{EvaluationID: uuid.NewString(), ParticipantID: 2},
	}
	out := dedupe(batch)
	assert.Len(t, out, 2)
	assert.Equal(t, batch[0], out[0])
	assert.Equal(t, batch[1], out[1])
}
