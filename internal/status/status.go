// Package status provides a thread-safe status tracker for the blink-morse daemon.
// It is the output sink for decoder events and owns the committed output log;
// HTTP handlers and websocket clients read from it.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/blink-morse/internal/logic"
)

// Config contains daemon configuration for display.
type Config struct {
	EARThreshold float64
	DotTimeMs    int64
	DashTimeMs   int64
	CharGapMs    int64
	WordGapMs    int64
	HeartbeatMs  int64
	Broker       string
	HTTPAddr     string
	Input        string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	State         logic.State
	Buffer        string
	Text          string
	Counts        logic.Counts
	LastEvent     *logic.Event
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Clients       int
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	text []rune
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			State:     logic.StateIdle,
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// Apply records a decoder event: state and live buffer are replaced, output
// characters are appended to the log. The log is never rewritten here.
func (t *Tracker) Apply(ev logic.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if ev.State != "" {
		t.snap.State = ev.State
	}
	t.snap.Buffer = ev.Buffer
	if ev.IsOutput() {
		t.text = append(t.text, ev.Char)
	}
	last := ev
	t.snap.LastEvent = &last
}

// SetCounts records the decoder's activity counters.
func (t *Tracker) SetCounts(c logic.Counts) {
	t.mu.Lock()
	t.snap.Counts = c
	t.mu.Unlock()
}

// ClearText empties the output log. Only the sink's own reset does this.
func (t *Tracker) ClearText() {
	t.mu.Lock()
	t.text = nil
	t.mu.Unlock()
}

// Text returns the committed output.
func (t *Tracker) Text() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return string(t.text)
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetClients sets the number of connected websocket clients.
func (t *Tracker) SetClients(n int) {
	t.mu.Lock()
	t.snap.Clients = n
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Text = string(t.text)
	if s.LastEvent != nil {
		last := *s.LastEvent
		s.LastEvent = &last
	}
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
