package timer

import "time"

// FakeScheduler is a simulated clock for tests. Timers only fire from Advance
// or AdvanceTo, synchronously, in deadline order (ties in arm order).
// Not safe for concurrent use.
type FakeScheduler struct {
	now    time.Time
	next   Handle
	timers []fakeTimer
}

type fakeTimer struct {
	h  Handle
	at time.Time
	fn func()
}

// NewFakeScheduler creates a FakeScheduler whose clock starts at start.
func NewFakeScheduler(start time.Time) *FakeScheduler {
	return &FakeScheduler{now: start}
}

// Arm schedules fn at Now()+d.
func (f *FakeScheduler) Arm(d time.Duration, fn func()) Handle {
	f.next++
	f.timers = append(f.timers, fakeTimer{h: f.next, at: f.now.Add(d), fn: fn})
	return f.next
}

// Cancel removes a pending timer.
func (f *FakeScheduler) Cancel(h Handle) {
	for i, t := range f.timers {
		if t.h == h {
			f.timers = append(f.timers[:i], f.timers[i+1:]...)
			return
		}
	}
}

// Now returns the simulated time.
func (f *FakeScheduler) Now() time.Time {
	return f.now
}

// Pending returns the number of armed timers.
func (f *FakeScheduler) Pending() int {
	return len(f.timers)
}

// Advance moves the clock forward by d, firing every timer that falls due.
func (f *FakeScheduler) Advance(d time.Duration) {
	f.AdvanceTo(f.now.Add(d))
}

// AdvanceTo moves the clock to target, firing every timer due at or before it.
// Callbacks see Now() equal to their own deadline and may arm or cancel timers.
func (f *FakeScheduler) AdvanceTo(target time.Time) {
	for {
		i := f.earliest()
		if i < 0 || f.timers[i].at.After(target) {
			break
		}
		t := f.timers[i]
		f.timers = append(f.timers[:i], f.timers[i+1:]...)
		if t.at.After(f.now) {
			f.now = t.at
		}
		t.fn()
	}
	if target.After(f.now) {
		f.now = target
	}
}

func (f *FakeScheduler) earliest() int {
	best := -1
	for i, t := range f.timers {
		if best < 0 || t.at.Before(f.timers[best].at) {
			best = i
		}
	}
	return best
}
