package exam

// EscalationPolicy accumulates violations into a monotone counter and decides
// when a session must be locked. One canonical policy is applied to every
// surveilled session: reaching the threshold locks the attempt and forces a
// submission of the answers held at that moment.
//
// Not safe for concurrent use on its own; the owning Session serializes
// access under its mutex.
type EscalationPolicy struct {
	threshold int
	count     int
}

// NewEscalationPolicy creates a policy with the given lock threshold.
func NewEscalationPolicy(threshold int) *EscalationPolicy {
	if threshold <= 0 {
		threshold = DefaultViolationThreshold
	}
	return &EscalationPolicy{threshold: threshold}
}

// Record increments the counter by exactly one and reports whether the
// threshold has been reached. The counter never decreases.
func (p *EscalationPolicy) Record() (count int, exceeded bool) {
	p.count++
	return p.count, p.count >= p.threshold
}

// Count returns the current violation count.
func (p *EscalationPolicy) Count() int { return p.count }

// Threshold returns the configured lock threshold.
func (p *EscalationPolicy) Threshold() int { return p.threshold }
