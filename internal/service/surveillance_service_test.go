package service

import (
	"testing"

	"github.com/Breniell/certtrack-proctor/internal/model"
	"github.com/stretchr/testify/assert"
)

func timeline(kinds ...string) []model.ViolationRecord {
	records := make([]model.ViolationRecord, len(kinds))
	for i, k := range kinds {
		records[i] = model.ViolationRecord{Kind: k}
	}
	return records
}

func TestViolationBreakdownWeighsByKind(t *testing.T) {
	byKind, score := violationBreakdown(timeline("PASTE", "TAB_BLUR", "TAB_BLUR"))

	assert.Equal(t, map[string]int{"PASTE": 1, "TAB_BLUR": 2}, byKind)
	assert.Equal(t, 45.0, score) // 25 + 10 + 10
}

func TestViolationBreakdownUnknownKindDefaultWeight(t *testing.T) {
	byKind, score := violationBreakdown(timeline("MOUSE_JIGGLE"))

	assert.Equal(t, 1, byKind["MOUSE_JIGGLE"])
	assert.Equal(t, 5.0, score)
}

func TestViolationBreakdownScoreClampedAt100(t *testing.T) {
	kinds := make([]string, 10)
	for i := range kinds {
		kinds[i] = "PASTE"
	}
	_, score := violationBreakdown(timeline(kinds...))
	assert.Equal(t, 100.0, score)
}

func TestViolationBreakdownEmptyTimeline(t *testing.T) {
	byKind, score := violationBreakdown(nil)
	assert.Empty(t, byKind)
	assert.Zero(t, score)
}
