package clock

import "time"

// FakeClock is a manually advanced Clock for tests. Composition stamps
// issued_at and due_at from the injected clock, so pinning it yields stable
// invoice numbers and byte-identical rendered documents.
type FakeClock struct {
	now time.Time
}

func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t.UTC()}
}

func (c *FakeClock) Now() time.Time {
	return c.now
}

// Advance moves the clock forward, e.g. past a due date or the recovery
// staleness threshold.
func (c *FakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}
