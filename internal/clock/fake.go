package clock

import "time"

// FakeClock is a manually advanced Clock for tests. It reports UTC and
// only moves when told to, so due dates and overdue derivation are
// reproducible across runs.
type FakeClock struct {
	current time.Time
}

func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{current: start.UTC()}
}

func (f *FakeClock) Now() time.Time { return f.current }

// Advance moves the clock forward by d.
func (f *FakeClock) Advance(d time.Duration) {
	f.current = f.current.Add(d)
}
