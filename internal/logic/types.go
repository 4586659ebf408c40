// Package logic contains the blink-to-Morse decoding state machine.
// This package has NO I/O dependencies (no camera, MQTT, HTTP or OS).
// Sample times are passed in as time.Time and gap timers go through the
// timer.Scheduler port, so everything here runs under a simulated clock.
package logic

import (
	"errors"
	"math"
	"time"
)

// Symbol is one Morse element.
type Symbol byte

const (
	Dot  Symbol = '.'
	Dash Symbol = '-'
)

func (s Symbol) String() string {
	return string(rune(s))
}

// UnknownChar is committed when the buffer matches no table entry.
const UnknownChar = '?'

// WordSeparator is committed when the word gap elapses.
const WordSeparator = ' '

// State is the decoder's blink state.
type State string

const (
	StateIdle     State = "IDLE"
	StateBlinking State = "BLINKING"
)

// EventType identifies what the decoder just did.
type EventType string

const (
	EventBlinkStart EventType = "BLINK_START"
	EventBlinkEnd   EventType = "BLINK_END"
	EventSymbol     EventType = "SYMBOL"
	EventChar       EventType = "CHAR"
	EventUnknown    EventType = "UNKNOWN"
	EventSpace      EventType = "SPACE"
	EventReset      EventType = "RESET"
)

// Event is emitted synchronously on every state transition, buffer change
// and committed output character.
type Event struct {
	Timestamp time.Time
	Type      EventType
	State     State
	// Buffer is the live Morse buffer after the event.
	Buffer string
	// Symbol is set for EventSymbol.
	Symbol Symbol
	// Duration is the blink length for EventBlinkEnd.
	Duration time.Duration
	// Char is the committed character for EventChar, EventUnknown and EventSpace.
	Char rune
}

// IsOutput reports whether the event appends to the committed output stream.
func (e Event) IsOutput() bool {
	switch e.Type {
	case EventChar, EventUnknown, EventSpace:
		return true
	}
	return false
}

// Config holds the decoder's tuning constants.
type Config struct {
	// EARThreshold is the eye aspect ratio below which eyes count as closed.
	EARThreshold float64
	// DotTime: blinks shorter than this are dots, everything else is a dash.
	DotTime time.Duration
	// DashTime is a nominal dash length. Informational only; there is no
	// upper bound on dash duration.
	DashTime time.Duration
	// CharGap is the silence after a blink before the buffer is committed.
	CharGap time.Duration
	// WordGap is the silence after a blink before a word separator is committed.
	WordGap time.Duration
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		EARThreshold: 0.25,
		DotTime:      200 * time.Millisecond,
		DashTime:     500 * time.Millisecond,
		CharGap:      1000 * time.Millisecond,
		WordGap:      3000 * time.Millisecond,
	}
}

var (
	// ErrInvalidThreshold indicates the EAR threshold must be a positive finite number.
	ErrInvalidThreshold = errors.New("ear threshold must be positive and finite")
	// ErrInvalidDotTime indicates the dot/dash boundary must be positive.
	ErrInvalidDotTime = errors.New("dot time must be positive")
	// ErrInvalidDashTime indicates the nominal dash time must not be negative.
	ErrInvalidDashTime = errors.New("dash time must not be negative")
	// ErrInvalidCharGap indicates the character gap must be positive.
	ErrInvalidCharGap = errors.New("character gap must be positive")
	// ErrInvalidWordGap indicates the word gap must be longer than the character gap.
	ErrInvalidWordGap = errors.New("word gap must exceed character gap")
)

// Validate checks that the config describes a usable decoder.
func (c Config) Validate() error {
	if c.EARThreshold <= 0 || math.IsNaN(c.EARThreshold) || math.IsInf(c.EARThreshold, 0) {
		return ErrInvalidThreshold
	}
	if c.DotTime <= 0 {
		return ErrInvalidDotTime
	}
	if c.DashTime < 0 {
		return ErrInvalidDashTime
	}
	if c.CharGap <= 0 {
		return ErrInvalidCharGap
	}
	if c.WordGap <= c.CharGap {
		return ErrInvalidWordGap
	}
	return nil
}

// Counts tracks decoder activity since startup.
type Counts struct {
	Blinks   int
	Dots     int
	Dashes   int
	Chars    int
	Unknowns int
	Spaces   int
	Resets   int
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    Counts
}
