package timer

import (
	"sync"
	"time"
)

// LoopScheduler uses real timers but never runs callbacks on the timer
// goroutine. Expired handles are queued on Fired() and the owning loop runs
// them with Run, so callbacks execute on the same goroutine as everything
// else the loop does.
type LoopScheduler struct {
	mu      sync.Mutex
	next    Handle
	pending map[Handle]*pendingTimer
	fired   chan Handle
	done    chan struct{}
	closed  bool
	now     func() time.Time
}

type pendingTimer struct {
	t  *time.Timer
	at time.Time
	fn func()
}

// NewLoopScheduler creates a LoopScheduler. now is used for Now(); pass
// time.Now outside of tests.
func NewLoopScheduler(now func() time.Time) *LoopScheduler {
	return &LoopScheduler{
		pending: make(map[Handle]*pendingTimer),
		fired:   make(chan Handle, 16),
		done:    make(chan struct{}),
		now:     now,
	}
}

// Arm schedules fn to run on the loop goroutine after d.
func (s *LoopScheduler) Arm(d time.Duration, fn func()) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.next++
	h := s.next
	if s.closed {
		return h
	}

	p := &pendingTimer{at: s.now().Add(d), fn: fn}
	p.t = time.AfterFunc(d, func() {
		select {
		case s.fired <- h:
		case <-s.done:
		}
	})
	s.pending[h] = p
	return h
}

// Cancel stops the timer. A handle that already expired but has not been Run
// yet is dropped as well.
func (s *LoopScheduler) Cancel(h Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.pending[h]; ok {
		p.t.Stop()
		delete(s.pending, h)
	}
}

// Now returns the current time from the configured clock.
func (s *LoopScheduler) Now() time.Time {
	return s.now()
}

// Fired delivers handles whose delay has elapsed.
func (s *LoopScheduler) Fired() <-chan Handle {
	return s.fired
}

// Run executes the callback for an expired handle. Handles cancelled after
// they were queued are ignored.
func (s *LoopScheduler) Run(h Handle) {
	s.mu.Lock()
	p, ok := s.pending[h]
	delete(s.pending, h)
	s.mu.Unlock()

	if ok {
		p.fn()
	}
}

// RunDue runs, in deadline order, every pending callback due at or before t,
// whether or not its handle has reached Fired() yet. Ties run in arm order.
// Callbacks may arm or cancel timers; newly armed timers that are already due
// run too.
func (s *LoopScheduler) RunDue(t time.Time) {
	for {
		s.mu.Lock()
		var (
			best Handle
			bp   *pendingTimer
		)
		for h, p := range s.pending {
			if p.at.After(t) {
				continue
			}
			if bp == nil || p.at.Before(bp.at) || (p.at.Equal(bp.at) && h < best) {
				best, bp = h, p
			}
		}
		if bp != nil {
			bp.t.Stop()
			delete(s.pending, best)
		}
		s.mu.Unlock()

		if bp == nil {
			return
		}
		bp.fn()
	}
}

// Pending returns the number of armed timers that have not run or been cancelled.
func (s *LoopScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Close stops all timers and releases goroutines blocked on Fired().
func (s *LoopScheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
	for h, p := range s.pending {
		p.t.Stop()
		delete(s.pending, h)
	}
}
