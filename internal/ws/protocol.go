// Package ws carries EAR samples from capture pages into the daemon and
// broadcasts decoder events back out over websockets.
package ws

import (
	"time"

	"github.com/sweeney/blink-morse/internal/ear"
	"github.com/sweeney/blink-morse/internal/logic"
)

// Outbound message types.
const (
	MsgSnapshot = "snapshot"
	MsgEvent    = "event"
)

// Inbound message types.
const (
	MsgSample    = "sample"
	MsgLandmarks = "landmarks"
	MsgReset     = "reset"
)

// WSMessage is the envelope for everything sent to clients.
type WSMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// EventPayload is a decoder event as seen by the browser.
type EventPayload struct {
	Timestamp  string `json:"timestamp"`
	Event      string `json:"event"`
	State      string `json:"state"`
	Buffer     string `json:"buffer"`
	Symbol     string `json:"symbol,omitempty"`
	Char       string `json:"char,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

// NewEventPayload converts a decoder event.
func NewEventPayload(ev logic.Event) EventPayload {
	p := EventPayload{
		Timestamp: ev.Timestamp.UTC().Format(time.RFC3339Nano),
		Event:     string(ev.Type),
		State:     string(ev.State),
		Buffer:    ev.Buffer,
	}
	if ev.Type == logic.EventSymbol {
		p.Symbol = ev.Symbol.String()
	}
	if ev.IsOutput() {
		p.Char = string(ev.Char)
	}
	if ev.Type == logic.EventBlinkEnd {
		p.DurationMs = ev.Duration.Milliseconds()
	}
	return p
}

// InboundMessage is what capture clients send. Exactly one of EAR, Face or
// Left/Right is used depending on Type.
type InboundMessage struct {
	Type string `json:"type"`
	// EAR is a pre-computed eye aspect ratio (Type "sample").
	EAR *float64 `json:"ear,omitempty"`
	// Left and Right are the six landmarks of each eye (Type "landmarks").
	Left  []ear.Point `json:"left,omitempty"`
	Right []ear.Point `json:"right,omitempty"`
	// Face is a full face mesh (Type "landmarks"), used when Left/Right are absent.
	Face []ear.Point `json:"face,omitempty"`
}

// Ratio extracts the EAR carried by a sample or landmarks message.
func (m InboundMessage) Ratio() (float64, bool) {
	switch m.Type {
	case MsgSample:
		if m.EAR == nil {
			return 0, false
		}
		return *m.EAR, true

	case MsgLandmarks:
		if len(m.Left) == 6 && len(m.Right) == 6 {
			var l, r [6]ear.Point
			copy(l[:], m.Left)
			copy(r[:], m.Right)
			return (ear.EyeRatio(l) + ear.EyeRatio(r)) / 2, true
		}
		if len(m.Face) > 0 {
			return ear.FaceRatio(m.Face), true
		}
	}
	return 0, false
}
