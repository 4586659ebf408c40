package logic

import (
	"math"
	"time"
)

// SegmentKind classifies the outcome of a single EAR sample.
type SegmentKind int

const (
	SegmentNone SegmentKind = iota
	SegmentBlinkStarted
	SegmentBlinkEnded
)

// SegmenterEvent is returned by Segmenter.Observe.
type SegmenterEvent struct {
	Kind SegmentKind
	// Duration is set for SegmentBlinkEnded.
	Duration time.Duration
}

// EyeState is the segmenter's view of the eyes.
// ClosedSince is non-zero iff Closed is true.
type EyeState struct {
	Closed      bool
	ClosedSince time.Time
}

// Segmenter turns a sampled EAR signal into blink start/end events.
type Segmenter struct {
	threshold float64
	eye       EyeState
}

// NewSegmenter creates a segmenter that treats EAR below threshold as closed.
func NewSegmenter(threshold float64) *Segmenter {
	return &Segmenter{threshold: threshold}
}

// Observe processes one sample. Nothing is emitted while the state is unchanged.
func (s *Segmenter) Observe(ear float64, now time.Time) SegmenterEvent {
	closed := eyesClosed(ear, s.threshold)

	switch {
	case closed && !s.eye.Closed:
		s.eye = EyeState{Closed: true, ClosedSince: now}
		return SegmenterEvent{Kind: SegmentBlinkStarted}

	case !closed && s.eye.Closed:
		d := now.Sub(s.eye.ClosedSince)
		if d < 0 {
			d = 0
		}
		s.eye = EyeState{}
		return SegmenterEvent{Kind: SegmentBlinkEnded, Duration: d}
	}

	return SegmenterEvent{Kind: SegmentNone}
}

// EyeState returns the current eye state.
func (s *Segmenter) EyeState() EyeState {
	return s.eye
}

// Reset forces the eyes open without emitting anything.
func (s *Segmenter) Reset() {
	s.eye = EyeState{}
}

// eyesClosed fails safe: NaN, infinite and negative ratios count as open.
func eyesClosed(ear, threshold float64) bool {
	if math.IsNaN(ear) || math.IsInf(ear, 0) || ear < 0 {
		return false
	}
	return ear < threshold
}
