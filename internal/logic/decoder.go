package logic

import (
	"time"

	"github.com/sweeney/blink-morse/internal/timer"
)

// Decoder is the single entry point for EAR samples. It owns the segmenter,
// the symbol buffer and both gap timers. It is not safe for concurrent use:
// Observe, Reset and scheduler callbacks must all run on one goroutine.
type Decoder struct {
	cfg   Config
	sched timer.Scheduler
	emit  func(Event)

	seg *Segmenter
	asm Assembler

	charTimer timer.Handle
	wordTimer timer.Handle

	startTime     time.Time
	lastHeartbeat time.Time
	counts        Counts
}

// NewDecoder creates a decoder in the Idle state. emit receives every event
// synchronously; it may be nil.
func NewDecoder(cfg Config, sched timer.Scheduler, emit func(Event)) *Decoder {
	if emit == nil {
		emit = func(Event) {}
	}
	start := sched.Now()
	return &Decoder{
		cfg:           cfg,
		sched:         sched,
		emit:          emit,
		seg:           NewSegmenter(cfg.EARThreshold),
		startTime:     start,
		lastHeartbeat: start,
	}
}

// Observe feeds one EAR sample taken at now.
func (d *Decoder) Observe(ear float64, now time.Time) {
	ev := d.seg.Observe(ear, now)

	switch ev.Kind {
	case SegmentBlinkStarted:
		// A blink in progress always wins over pending gap resolution,
		// even if a character commit was about to fire.
		d.cancelTimers()
		d.counts.Blinks++
		d.emit(Event{
			Timestamp: now,
			Type:      EventBlinkStart,
			State:     StateBlinking,
			Buffer:    d.asm.Buffer(),
		})

	case SegmentBlinkEnded:
		sym := Classify(ev.Duration, d.cfg.DotTime)
		d.asm.OnSymbol(sym)
		if sym == Dot {
			d.counts.Dots++
		} else {
			d.counts.Dashes++
		}

		buf := d.asm.Buffer()
		d.emit(Event{
			Timestamp: now,
			Type:      EventBlinkEnd,
			State:     StateIdle,
			Buffer:    buf,
			Duration:  ev.Duration,
		})
		d.emit(Event{
			Timestamp: now,
			Type:      EventSymbol,
			State:     StateIdle,
			Buffer:    buf,
			Symbol:    sym,
		})

		d.armTimers(now)
	}
}

// Reset clears the buffer, cancels both timers and forces Idle.
// The committed output belongs to the consumer and is not touched.
func (d *Decoder) Reset() {
	d.cancelTimers()
	d.asm.Reset()
	d.seg.Reset()
	d.counts.Resets++
	d.emit(Event{
		Timestamp: d.sched.Now(),
		Type:      EventReset,
		State:     StateIdle,
	})
}

// State returns Blinking while the eyes are below threshold.
func (d *Decoder) State() State {
	if d.seg.EyeState().Closed {
		return StateBlinking
	}
	return StateIdle
}

// Buffer returns the pending Morse pattern.
func (d *Decoder) Buffer() string {
	return d.asm.Buffer()
}

// Config returns the decoder's configuration.
func (d *Decoder) Config() Config {
	return d.cfg
}

// Counts returns a copy of the activity counters.
func (d *Decoder) Counts() Counts {
	return d.counts
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if the interval has not elapsed or
// if interval is <= 0 (disabled).
func (d *Decoder) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}
	if now.Sub(d.lastHeartbeat) < interval {
		return nil
	}

	d.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(d.startTime),
		Counts:    d.counts,
	}
}

// armTimers (re)arms both gap timers measured from end, the time of the
// sample that ended the blink. Arming a timer of one kind invalidates the
// previous timer of that kind.
func (d *Decoder) armTimers(end time.Time) {
	lag := d.sched.Now().Sub(end)
	d.sched.Cancel(d.charTimer)
	d.sched.Cancel(d.wordTimer)
	d.charTimer = d.sched.Arm(d.cfg.CharGap-lag, d.onCharGap)
	d.wordTimer = d.sched.Arm(d.cfg.WordGap-lag, d.onWordGap)
}

func (d *Decoder) cancelTimers() {
	d.sched.Cancel(d.charTimer)
	d.sched.Cancel(d.wordTimer)
	d.charTimer = 0
	d.wordTimer = 0
}

func (d *Decoder) onCharGap() {
	d.charTimer = 0

	r, ok := d.asm.OnCharacterGapElapsed()
	if !ok {
		return
	}

	typ := EventChar
	if r == UnknownChar {
		typ = EventUnknown
		d.counts.Unknowns++
	} else {
		d.counts.Chars++
	}
	d.emit(Event{
		Timestamp: d.sched.Now(),
		Type:      typ,
		State:     d.State(),
		Char:      r,
	})
}

func (d *Decoder) onWordGap() {
	d.wordTimer = 0

	r := d.asm.OnWordGapElapsed()
	d.counts.Spaces++
	d.emit(Event{
		Timestamp: d.sched.Now(),
		Type:      EventSpace,
		State:     d.State(),
		Buffer:    d.asm.Buffer(),
		Char:      r,
	})
}
