// Package timer provides cancelable one-shot timers behind a small port so the
// decoder can be driven by a simulated clock in tests and by real timers in
// the daemon.
package timer

import "time"

// Handle identifies an armed timer. The zero Handle is never issued, so it can
// be used as "no timer armed" and cancelled safely.
type Handle uint64

// Scheduler arms and cancels one-shot callbacks.
type Scheduler interface {
	// Arm schedules fn to run once after d and returns its handle.
	Arm(d time.Duration, fn func()) Handle

	// Cancel prevents the timer from running. Cancelling an unknown,
	// already-fired or already-cancelled handle is a no-op.
	Cancel(h Handle)

	// Now returns the scheduler's notion of the current time.
	Now() time.Time
}
