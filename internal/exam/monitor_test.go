package exam

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMonitorGateDropsWhileDetached(t *testing.T) {
	m := NewMonitor()
	assert.False(t, m.Attached())

	_, ok := m.Record(ViolationCopy, "before attach")
	assert.False(t, ok)
	assert.Empty(t, m.Log())

	m.Attach()
	assert.True(t, m.Attached())

	v, ok := m.Record(ViolationTabBlur, "blur")
	assert.True(t, ok)
	assert.Equal(t, ViolationTabBlur, v.Kind)
	assert.False(t, v.OccurredAt.IsZero())

	m.Detach()
	_, ok = m.Record(ViolationPaste, "after detach")
	assert.False(t, ok)
	assert.Len(t, m.Log(), 1)
}

func TestMonitorAttachDetachIdempotent(t *testing.T) {
	m := NewMonitor()
	m.Attach()
	m.Attach()
	m.Detach()
	m.Detach()
	assert.True(t, m.Balanced())

	m.Attach()
	assert.False(t, m.Balanced())
	m.Detach()
	assert.True(t, m.Balanced())
}

func TestKnownViolationKind(t *testing.T) {
	for _, k := range []ViolationKind{
		ViolationTabBlur, ViolationVisibilityHidden, ViolationCopy,
		ViolationPaste, ViolationPrintAttempt,
	} {
		assert.True(t, KnownViolationKind(k))
	}
	assert.False(t, KnownViolationKind("MOUSE_MOVE"))
}
