package exam

import (
	"time"
)

// ViolationKind enumerates the client-reported integrity signals.
type ViolationKind string

const (
	ViolationTabBlur          ViolationKind = "TAB_BLUR"
	ViolationVisibilityHidden ViolationKind = "VISIBILITY_HIDDEN"
	ViolationCopy             ViolationKind = "COPY"
	ViolationPaste            ViolationKind = "PASTE"
	ViolationPrintAttempt     ViolationKind = "PRINT_ATTEMPT"
)

// KnownViolationKind reports whether kind is one of the recognized signals.
func KnownViolationKind(kind ViolationKind) bool {
	switch kind {
	case ViolationTabBlur, ViolationVisibilityHidden, ViolationCopy,
		ViolationPaste, ViolationPrintAttempt:
		return true
	}
	return false
}

// Violation is one appended entry of a session's violation log.
type Violation struct {
	Kind       ViolationKind `json:"kind"`
	Detail     string        `json:"detail,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
}

// Monitor is the integrity intake for one session: an append-only violation
// log behind an attached/detached gate. Attach and Detach are symmetric —
// the session detaches the monitor on every exit path (submit, timeout,
// lock, dispose), after which Record drops events.
//
// Not safe for concurrent use on its own; the owning Session serializes
// access under its mutex.
type Monitor struct {
	attached bool
	attaches int
	detaches int
	log      []Violation
}

// NewMonitor creates a detached Monitor.
func NewMonitor() *Monitor {
	return &Monitor{}
}

// Attach opens the intake. Idempotent.
func (m *Monitor) Attach() {
	if m.attached {
		return
	}
	m.attached = true
	m.attaches++
}

// Detach closes the intake. Idempotent.
func (m *Monitor) Detach() {
	if !m.attached {
		return
	}
	m.attached = false
	m.detaches++
}

// Attached reports whether the intake accepts events.
func (m *Monitor) Attached() bool { return m.attached }

// Balanced reports whether every Attach has been matched by a Detach.
func (m *Monitor) Balanced() bool { return !m.attached && m.attaches == m.detaches }

// Record appends one violation to the log. Events arriving while detached
// are dropped and reported as such.
func (m *Monitor) Record(kind ViolationKind, detail string) (Violation, bool) {
	if !m.attached {
		return Violation{}, false
	}
	v := Violation{Kind: kind, Detail: detail, OccurredAt: time.Now()}
	m.log = append(m.log, v)
	return v, true
}

// Log returns a copy of the violation log in append order.
func (m *Monitor) Log() []Violation {
	out := make([]Violation, len(m.log))
	copy(out, m.log)
	return out
}
