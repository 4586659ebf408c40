package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string     `json:"event,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	State         string     `json:"state"`
	Buffer        string     `json:"buffer"`
	Text          string     `json:"text"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	StartTime     string     `json:"start_time"`
	Timestamp     string     `json:"timestamp"`
	MQTT          MQTTStatus `json:"mqtt"`
	Clients       int        `json:"clients"`
	Counts        CountsJSON `json:"counts"`
	Config        ConfigJSON `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of decoder counters.
type CountsJSON struct {
	Blinks   int `json:"blinks"`
	Dots     int `json:"dots"`
	Dashes   int `json:"dashes"`
	Chars    int `json:"chars"`
	Unknowns int `json:"unknowns"`
	Spaces   int `json:"spaces"`
	Resets   int `json:"resets"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	EARThreshold float64 `json:"ear_threshold"`
	DotTimeMs    int64   `json:"dot_time_ms"`
	DashTimeMs   int64   `json:"dash_time_ms"`
	CharGapMs    int64   `json:"char_gap_ms"`
	WordGapMs    int64   `json:"word_gap_ms"`
	HeartbeatMs  int64   `json:"heartbeat_ms"`
	Broker       string  `json:"broker"`
	HTTPAddr     string  `json:"http_addr"`
	Input        string  `json:"input"`
}

func buildInner(snap Snapshot) StatusInner {
	return StatusInner{
		State:         string(snap.State),
		Buffer:        snap.Buffer,
		Text:          snap.Text,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Clients:       snap.Clients,
		Counts: CountsJSON{
			Blinks:   snap.Counts.Blinks,
			Dots:     snap.Counts.Dots,
			Dashes:   snap.Counts.Dashes,
			Chars:    snap.Counts.Chars,
			Unknowns: snap.Counts.Unknowns,
			Spaces:   snap.Counts.Spaces,
			Resets:   snap.Counts.Resets,
		},
		Config: ConfigJSON{
			EARThreshold: snap.Config.EARThreshold,
			DotTimeMs:    snap.Config.DotTimeMs,
			DashTimeMs:   snap.Config.DashTimeMs,
			CharGapMs:    snap.Config.CharGapMs,
			WordGapMs:    snap.Config.WordGapMs,
			HeartbeatMs:  snap.Config.HeartbeatMs,
			Broker:       snap.Config.Broker,
			HTTPAddr:     snap.Config.HTTPAddr,
			Input:        snap.Config.Input,
		},
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
