// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/blink-morse/internal/logic"
)

// Topic is the MQTT topic for decoder events.
const Topic = "blinkmorse/decoder/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "blinkmorse/decoder/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a decoder event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event logic.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Decoder DecoderPayload `json:"decoder"`
}

// DecoderPayload contains the decoder event details.
type DecoderPayload struct {
	Timestamp  string `json:"timestamp"`
	Event      string `json:"event"`
	State      string `json:"state"`
	Buffer     string `json:"buffer"`
	Symbol     string `json:"symbol,omitempty"`
	Char       string `json:"char,omitempty"`
	DurationMs *int64 `json:"duration_ms,omitempty"`
}

// FormatPayload creates the JSON payload for a decoder event.
func FormatPayload(event logic.Event) ([]byte, error) {
	p := DecoderPayload{
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339Nano),
		Event:     string(event.Type),
		State:     string(event.State),
		Buffer:    event.Buffer,
	}
	switch event.Type {
	case logic.EventSymbol:
		p.Symbol = event.Symbol.String()
	case logic.EventBlinkEnd:
		ms := event.Duration.Milliseconds()
		p.DurationMs = &ms
	case logic.EventChar, logic.EventUnknown, logic.EventSpace:
		p.Char = string(event.Char)
	}
	return json.Marshal(Payload{Decoder: p})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// NopPublisher discards everything. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(logic.Event) error       { return nil }
func (NopPublisher) PublishSystem(SystemEvent) error { return nil }
func (NopPublisher) Close() error                    { return nil }
func (NopPublisher) IsConnected() bool               { return false }
