package main

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sweeney/blink-morse/internal/config"
	"github.com/sweeney/blink-morse/internal/ear"
	"github.com/sweeney/blink-morse/internal/gpio"
	"github.com/sweeney/blink-morse/internal/logic"
	"github.com/sweeney/blink-morse/internal/mqtt"
	"github.com/sweeney/blink-morse/internal/status"
	"github.com/sweeney/blink-morse/internal/timer"
	"github.com/sweeney/blink-morse/internal/web"
	"github.com/sweeney/blink-morse/internal/ws"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// Gap timers run on real time in these tests, so keep them short but with
// enough slack that queued samples are always consumed first.
var testDecoder = logic.Config{
	EARThreshold: 0.25,
	DotTime:      200 * time.Millisecond,
	DashTime:     500 * time.Millisecond,
	CharGap:      150 * time.Millisecond,
	WordGap:      400 * time.Millisecond,
}

// fakeClock returns a function that yields start, start+step, start+2*step, ...
// on successive calls. Not safe for concurrent use (only called from the loop goroutine).
func fakeClock(start time.Time, step time.Duration) func() time.Time {
	n := 0
	return func() time.Time {
		t := start.Add(time.Duration(n) * step)
		n++
		return t
	}
}

// blinkSamples renders a Morse pattern as EAR samples timestamped from
// start: 50ms closures for dots, 400ms for dashes.
func blinkSamples(start time.Time, pattern string) []ear.Sample {
	var out []ear.Sample
	t := start
	for _, c := range pattern {
		d := 50 * time.Millisecond
		if c == '-' {
			d = 400 * time.Millisecond
		}
		out = append(out,
			ear.Sample{EAR: 0.1, Time: t},
			ear.Sample{EAR: 0.3, Time: t.Add(d)},
		)
		t = t.Add(d + 100*time.Millisecond)
	}
	return out
}

type harness struct {
	loop    *loop
	pub     *mqtt.FakePublisher
	tracker *status.Tracker
	samples chan ear.Sample
	resets  chan struct{}
	tick    chan time.Time
	sig     chan os.Signal
	errCh   chan error
}

// startLoop runs the loop in the background. clock drives ticks and the
// scheduler's Now; nil means real time.
func startLoop(t *testing.T, clock func() time.Time, configure func(*loop)) *harness {
	t.Helper()
	if clock == nil {
		clock = time.Now
	}
	sched := timer.NewLoopScheduler(clock)
	t.Cleanup(sched.Close)

	h := &harness{
		pub:     mqtt.NewFakePublisher(),
		tracker: status.NewTracker(epoch, status.Config{}),
		samples: make(chan ear.Sample, 64),
		resets:  make(chan struct{}, 1),
		tick:    make(chan time.Time),
		sig:     make(chan os.Signal, 1),
		errCh:   make(chan error, 1),
	}
	h.loop = &loop{
		cfg:        testDecoder,
		sched:      sched,
		publisher:  h.pub,
		mqttStatus: h.pub,
		tracker:    h.tracker,
		debounce:   0,
		heartbeat:  0,
		now:        clock,
		samples:    h.samples,
		resets:     h.resets,
		tick:       h.tick,
		sig:        h.sig,
	}
	if configure != nil {
		configure(h.loop)
	}
	go func() { h.errCh <- h.loop.run() }()
	return h
}

func (h *harness) feed(samples []ear.Sample) {
	for _, s := range samples {
		h.samples <- s
	}
}

// stop delivers sig and waits for the loop to exit. The fake publisher may
// be inspected afterwards.
func (h *harness) stop(t *testing.T, sig os.Signal) {
	t.Helper()
	h.sig <- sig
	select {
	case err := <-h.errCh:
		if err != nil {
			t.Fatalf("runLoop returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runLoop did not exit")
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func systemEvents(pub *mqtt.FakePublisher, name string) []mqtt.SystemEvent {
	var out []mqtt.SystemEvent
	for _, se := range pub.SystemEvents {
		if se.Event == name {
			out = append(out, se)
		}
	}
	return out
}

func TestRunLoopShutdownSIGTERM(t *testing.T) {
	h := startLoop(t, nil, nil)
	h.stop(t, syscall.SIGTERM)

	if len(h.pub.Events) != 0 {
		t.Errorf("expected 0 decoder events, got %d", len(h.pub.Events))
	}
	if len(h.pub.SystemEvents) != 1 {
		t.Fatalf("expected 1 system event, got %d", len(h.pub.SystemEvents))
	}
	se := h.pub.SystemEvents[0]
	if se.Event != "SHUTDOWN" || se.Reason != "SIGTERM" {
		t.Errorf("got %s/%s, want SHUTDOWN/SIGTERM", se.Event, se.Reason)
	}
	if !se.Retained {
		t.Error("expected Retained=true for SHUTDOWN")
	}

	var sj status.StatusJSON
	if err := json.Unmarshal(h.pub.SystemPayloads[0], &sj); err != nil {
		t.Fatalf("shutdown payload: %v", err)
	}
	if sj.Status.Event != "SHUTDOWN" || sj.Status.State != "IDLE" {
		t.Errorf("shutdown payload: %+v", sj.Status)
	}
}

func TestRunLoopShutdownSIGINT(t *testing.T) {
	h := startLoop(t, nil, nil)
	h.stop(t, syscall.SIGINT)

	if got := systemEvents(h.pub, "SHUTDOWN"); len(got) != 1 || got[0].Reason != "SIGINT" {
		t.Errorf("expected one SHUTDOWN with reason SIGINT, got %+v", h.pub.SystemEvents)
	}
}

func TestRunLoopDecodesCharacterAndWord(t *testing.T) {
	h := startLoop(t, nil, nil)
	h.feed(blinkSamples(time.Now(), "..."))

	waitFor(t, `text "S "`, func() bool { return h.tracker.Text() == "S " })
	h.stop(t, syscall.SIGTERM)

	if got := h.pub.Text(); got != "S " {
		t.Errorf("published text: got %q, want %q", got, "S ")
	}

	var symbols int
	for _, ev := range h.pub.Events {
		if ev.Type == logic.EventSymbol {
			symbols++
			if ev.Symbol != logic.Dot {
				t.Errorf("expected dots only, got %s", ev.Symbol)
			}
		}
	}
	if symbols != 3 {
		t.Errorf("expected 3 SYMBOL events, got %d", symbols)
	}

	last := h.pub.Events[len(h.pub.Events)-1]
	if last.Type != logic.EventSpace {
		t.Errorf("last event: got %s, want SPACE", last.Type)
	}

	snap := h.tracker.Snapshot()
	if snap.Counts.Dots != 3 || snap.Counts.Chars != 1 || snap.Counts.Spaces != 1 {
		t.Errorf("counts: %+v", snap.Counts)
	}
}

func TestRunLoopDashesAndUnknown(t *testing.T) {
	h := startLoop(t, nil, nil)
	h.feed(blinkSamples(time.Now(), "--"))
	waitFor(t, "M", func() bool { return h.tracker.Text() == "M " })

	h.feed(blinkSamples(time.Now(), "......"))
	waitFor(t, "unknown", func() bool { return h.tracker.Text() == "M ? " })
	h.stop(t, syscall.SIGTERM)

	if c := h.tracker.Snapshot().Counts; c.Unknowns != 1 || c.Dashes != 2 {
		t.Errorf("counts: %+v", c)
	}
}

func TestRunLoopResetRequest(t *testing.T) {
	h := startLoop(t, nil, nil)
	h.feed(blinkSamples(time.Now(), "."))
	waitFor(t, "E", func() bool { return h.tracker.Text() == "E " })

	// Start a new character, then reset before it commits.
	h.feed(blinkSamples(time.Now(), "-"))
	waitFor(t, "buffer", func() bool { return h.tracker.Snapshot().Buffer == "-" })
	h.resets <- struct{}{}
	waitFor(t, "reset", func() bool { return h.tracker.Snapshot().Counts.Resets == 1 })

	// Both gaps have long passed; nothing may commit after the reset.
	time.Sleep(testDecoder.WordGap + 100*time.Millisecond)
	h.stop(t, syscall.SIGTERM)

	snap := h.tracker.Snapshot()
	if snap.Text != "" {
		t.Errorf("reset should clear text, got %q", snap.Text)
	}
	if snap.Buffer != "" {
		t.Errorf("reset should clear buffer, got %q", snap.Buffer)
	}
	if got := h.pub.Text(); got != "E " {
		t.Errorf("published text: got %q, want %q", got, "E ")
	}

	var resets int
	for _, ev := range h.pub.Events {
		if ev.Type == logic.EventReset {
			resets++
		}
	}
	if resets != 1 {
		t.Errorf("expected 1 RESET event, got %d", resets)
	}
}

func TestRunLoopButtonReset(t *testing.T) {
	// released x3 (baseline), pressed x3 (one press), released x3
	levels := []bool{false, false, false, true, true, true, false, false, false}
	reader := gpio.NewFakeReader(levels)
	clock := fakeClock(epoch, 20*time.Millisecond)

	h := startLoop(t, clock, func(l *loop) {
		l.button = reader
		l.debounce = 30 * time.Millisecond
	})
	for range levels {
		h.tick <- time.Time{}
	}
	h.stop(t, syscall.SIGTERM)

	if c := h.tracker.Snapshot().Counts; c.Resets != 1 {
		t.Errorf("resets: got %d, want 1", c.Resets)
	}
	if len(h.pub.Events) != 1 || h.pub.Events[0].Type != logic.EventReset {
		t.Errorf("expected a single RESET event, got %+v", h.pub.Events)
	}
}

func TestRunLoopButtonHeldAtStartup(t *testing.T) {
	levels := []bool{true, true, true, true, true}
	reader := gpio.NewFakeReader(levels)
	clock := fakeClock(epoch, 20*time.Millisecond)

	h := startLoop(t, clock, func(l *loop) {
		l.button = reader
		l.debounce = 30 * time.Millisecond
	})
	for range levels {
		h.tick <- time.Time{}
	}
	h.stop(t, syscall.SIGTERM)

	if len(h.pub.Events) != 0 {
		t.Errorf("a button held at startup is not a press, got %+v", h.pub.Events)
	}
}

func TestRunLoopGPIOReadError(t *testing.T) {
	reader := gpio.NewFakeReader([]bool{false})
	reader.ReadError = errors.New("gpio fault")

	h := startLoop(t, fakeClock(epoch, 100*time.Millisecond), func(l *loop) { l.button = reader })
	for i := 0; i < 4; i++ {
		h.tick <- time.Time{}
	}
	h.stop(t, syscall.SIGTERM)

	if len(systemEvents(h.pub, "SHUTDOWN")) != 1 {
		t.Error("expected SHUTDOWN system event after GPIO errors")
	}
}

func TestRunLoopHeartbeat(t *testing.T) {
	// Clock calls: decoder start t0, then one per tick at +5m, +10m, +15m, +20m.
	// The heartbeat fires on the +15m tick only.
	clock := fakeClock(epoch, 5*time.Minute)
	h := startLoop(t, clock, func(l *loop) { l.heartbeat = 15 * time.Minute })
	for i := 0; i < 4; i++ {
		h.tick <- time.Time{}
	}
	h.stop(t, syscall.SIGTERM)

	hbs := systemEvents(h.pub, "HEARTBEAT")
	if len(hbs) != 1 {
		t.Fatalf("expected 1 HEARTBEAT event, got %d", len(hbs))
	}
	if !hbs[0].Timestamp.Equal(epoch.Add(15 * time.Minute)) {
		t.Errorf("heartbeat timestamp: got %v", hbs[0].Timestamp)
	}
	if hbs[0].Retained {
		t.Error("heartbeat should not be retained")
	}
	var sj status.StatusJSON
	if err := json.Unmarshal(hbs[0].RawPayload, &sj); err != nil || sj.Status.Event != "HEARTBEAT" {
		t.Errorf("heartbeat payload: %s (%v)", hbs[0].RawPayload, err)
	}
	if len(systemEvents(h.pub, "SHUTDOWN")) != 1 {
		t.Error("expected SHUTDOWN")
	}
}

// stallingPublisher blocks heartbeat publishes, as a slow broker would.
type stallingPublisher struct {
	*mqtt.FakePublisher
	stall time.Duration
}

func (p *stallingPublisher) PublishSystem(event mqtt.SystemEvent) error {
	if event.Event == "HEARTBEAT" {
		time.Sleep(p.stall)
	}
	return p.FakePublisher.PublishSystem(event)
}

// A blink that started before the character gap elapsed must cancel the
// commit even when the loop only gets to it after the timer has expired.
func TestRunLoopStallKeepsSampleOrder(t *testing.T) {
	for run := 0; run < 5; run++ {
		h := startLoop(t, nil, func(l *loop) {
			l.heartbeat = time.Millisecond
			l.publisher = &stallingPublisher{
				FakePublisher: l.publisher.(*mqtt.FakePublisher),
				stall:         400 * time.Millisecond,
			}
		})

		t0 := time.Now()
		h.feed([]ear.Sample{{EAR: 0.1, Time: t0}, {EAR: 0.3, Time: t0.Add(50 * time.Millisecond)}})
		waitFor(t, "first dot", func() bool { return h.tracker.Snapshot().Buffer == "." })

		// The heartbeat stalls the loop past the character gap deadline
		// (t0+200ms) while the second dot is queued.
		h.tick <- time.Time{}
		time.Sleep(20 * time.Millisecond)
		h.feed([]ear.Sample{{EAR: 0.1, Time: t0.Add(70 * time.Millisecond)}, {EAR: 0.3, Time: t0.Add(120 * time.Millisecond)}})

		waitFor(t, "space", func() bool { return strings.HasSuffix(h.tracker.Text(), " ") })
		h.stop(t, syscall.SIGTERM)

		if got := h.tracker.Text(); got != "I " {
			t.Fatalf("run %d: got %q, want %q", run, got, "I ")
		}
		if len(systemEvents(h.pub, "HEARTBEAT")) != 1 {
			t.Errorf("run %d: expected one heartbeat", run)
		}
	}
}

func TestRunLoopPublishError(t *testing.T) {
	h := startLoop(t, nil, nil)
	h.pub.PublishError = errors.New("broker unavailable")
	h.feed(blinkSamples(time.Now(), ".-"))

	waitFor(t, "A", func() bool { return h.tracker.Text() == "A " })
	h.stop(t, syscall.SIGTERM)

	if len(h.pub.Events) != 0 {
		t.Errorf("expected 0 recorded events (publish failed), got %d", len(h.pub.Events))
	}
	if len(systemEvents(h.pub, "SHUTDOWN")) != 1 {
		t.Error("expected SHUTDOWN system event despite publish errors")
	}
}

func TestRunLoopMQTTStatusTracked(t *testing.T) {
	clock := fakeClock(epoch, 100*time.Millisecond)
	h := startLoop(t, clock, nil)
	h.pub.Connected = true
	h.tick <- time.Time{}
	waitFor(t, "mqtt status", func() bool { return h.tracker.Snapshot().MQTTConnected })
	h.stop(t, syscall.SIGTERM)
}

func TestRunLoopWebsocketEndToEnd(t *testing.T) {
	samples := make(chan ear.Sample, 64)
	resets := make(chan struct{}, 1)
	hub := ws.NewHub(samples, resets, time.Now)
	t.Cleanup(hub.Close)

	h := startLoop(t, nil, func(l *loop) {
		l.hub = hub
		l.samples = samples
		l.resets = resets
	})

	srv := web.New(":0", h.tracker, hub, resets)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitFor(t, "client registered", func() bool { return hub.ClientCount() == 1 })

	// A quick close/open pair is a dot.
	conn.WriteJSON(map[string]any{"type": "sample", "ear": 0.1})
	conn.WriteJSON(map[string]any{"type": "sample", "ear": 0.3})

	var sawChar bool
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	for !sawChar {
		var msg struct {
			Type    string          `json:"type"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		if msg.Type != ws.MsgEvent {
			continue
		}
		var p ws.EventPayload
		json.Unmarshal(msg.Payload, &p)
		if p.Event == "CHAR" {
			if p.Char != "E" {
				t.Errorf("char: got %q, want E", p.Char)
			}
			sawChar = true
		}
	}

	// Reset over the socket clears the text and pushes a snapshot.
	conn.WriteJSON(map[string]any{"type": "reset"})
	for {
		var msg struct {
			Type    string            `json:"type"`
			Payload status.StatusJSON `json:"payload"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read after reset: %v", err)
		}
		if msg.Type == ws.MsgSnapshot {
			if msg.Payload.Status.Text != "" {
				t.Errorf("snapshot after reset: text %q", msg.Payload.Status.Text)
			}
			break
		}
	}
	h.stop(t, syscall.SIGTERM)
}

func TestStatusConfig(t *testing.T) {
	cfg := config.Defaults()
	cfg.Input.CSV = "session.csv"

	sc := statusConfig(cfg)
	if sc.DotTimeMs != 200 || sc.CharGapMs != 1000 || sc.WordGapMs != 3000 || sc.DashTimeMs != 500 {
		t.Errorf("timings: %+v", sc)
	}
	if sc.HeartbeatMs != (15 * time.Minute).Milliseconds() {
		t.Errorf("heartbeat: got %d", sc.HeartbeatMs)
	}
	if sc.Input != "csv:session.csv" || sc.Broker != cfg.MQTT.Broker || sc.HTTPAddr != cfg.HTTP.Addr {
		t.Errorf("strings: %+v", sc)
	}
}
