package logic

import "time"

// Debouncer turns a sampled push-button level into debounced press edges.
type Debouncer struct {
	duration time.Duration

	// Current stable (debounced) level
	stable bool
	// Level observed during debounce
	pending    bool
	hasPending bool
	// Time when pending level was first observed
	pendingSince time.Time
	// Whether we have established a baseline
	baselined bool
}

// NewDebouncer creates a debouncer requiring a level to hold for duration.
func NewDebouncer(duration time.Duration) *Debouncer {
	return &Debouncer{duration: duration}
}

// Process takes a new sample and reports whether a debounced
// released-to-pressed transition just happened. A button already held at
// startup becomes the baseline and does not count as a press.
func (b *Debouncer) Process(pressed bool, now time.Time) bool {
	if !b.baselined {
		if !b.hasPending || b.pending != pressed {
			// Start observing, or level changed during baseline: restart
			b.observe(pressed, now)
			return false
		}
		if now.Sub(b.pendingSince) >= b.duration {
			b.stable = pressed
			b.baselined = true
			b.hasPending = false
		}
		return false
	}

	if pressed == b.stable {
		// No change from stable level, clear any pending
		b.hasPending = false
		return false
	}

	if !b.hasPending || b.pending != pressed {
		b.observe(pressed, now)
		return false
	}

	if now.Sub(b.pendingSince) >= b.duration {
		b.stable = pressed
		b.hasPending = false
		return pressed
	}
	return false
}

// IsBaselined returns whether the debouncer has established a baseline.
func (b *Debouncer) IsBaselined() bool {
	return b.baselined
}

// Pressed returns the debounced level.
func (b *Debouncer) Pressed() bool {
	return b.stable
}

func (b *Debouncer) observe(pressed bool, now time.Time) {
	b.pending = pressed
	b.hasPending = true
	b.pendingSince = now
}
