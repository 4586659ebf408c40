// Command blink-morse decodes eye blinks into Morse text and publishes the
// result to MQTT and to connected browsers.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

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

func main() {
	configPath := flag.String("config", "blink-morse.yaml", "Path to YAML config (missing file uses defaults)")
	printConfig := flag.Bool("print-config", false, "Print the effective config and exit")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("fatal: load config: %v", err)
	}

	if *printConfig {
		data, err := cfg.Marshal()
		if err != nil {
			log.Fatalf("fatal: marshal config: %v", err)
		}
		os.Stdout.Write(data)
		return
	}

	if err := run(cfg); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// brokerClient is what the daemon needs from an MQTT connection.
type brokerClient interface {
	mqtt.Publisher
	mqtt.ConnectionStatus
}

func run(cfg config.Config) error {
	// Initialize GPIO reset button
	var button gpio.Reader
	if cfg.GPIO.Enabled {
		r, err := gpio.NewRealReader(cfg.GPIO.ResetPin)
		if err != nil {
			return fmt.Errorf("init gpio: %w", err)
		}
		defer r.Close()
		button = r
	}

	// Initialize MQTT
	var publisher brokerClient = mqtt.NopPublisher{}
	if cfg.MQTT.Broker != "" {
		publisher = mqtt.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID)
	}
	defer publisher.Close()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), statusConfig(cfg))

	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	samples := make(chan ear.Sample, 256)
	resets := make(chan struct{}, 1)

	// Sample source: a CSV recording, or browsers over /ws
	if cfg.Input.CSV != "" {
		f, err := os.Open(cfg.Input.CSV)
		if err != nil {
			return fmt.Errorf("open csv input: %w", err)
		}
		defer f.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		src := ear.NewCSVSource(f, time.Now())
		go func() {
			err := ear.Replay(ctx, src, samples, nil)
			switch {
			case err == nil:
				log.Printf("replay of %s finished", cfg.Input.CSV)
			case !errors.Is(err, context.Canceled):
				log.Printf("replay error: %v", err)
			}
		}()
	}

	// Start HTTP server and websocket hub
	var hub *ws.Hub
	if cfg.HTTP.Addr != "" {
		var hubSamples chan<- ear.Sample
		if cfg.Input.CSV == "" {
			hubSamples = samples
		}
		hub = ws.NewHub(hubSamples, resets, time.Now)
		defer hub.Close()

		srv := web.New(cfg.HTTP.Addr, tracker, hub, resets)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()
		log.Printf("http server listening on %s", cfg.HTTP.Addr)
	}

	sched := timer.NewLoopScheduler(time.Now)
	defer sched.Close()

	d := cfg.Decoder
	log.Printf("started: threshold=%.3f dot=%v char_gap=%v word_gap=%v input=%s broker=%q heartbeat=%v",
		d.EARThreshold, d.DotTime, d.CharGap, d.WordGap, cfg.InputName(), cfg.MQTT.Broker, cfg.Heartbeat)

	ticker := time.NewTicker(cfg.Poll)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	l := &loop{
		cfg:        cfg.DecoderConfig(),
		sched:      sched,
		publisher:  publisher,
		mqttStatus: publisher,
		tracker:    tracker,
		hub:        hub,
		button:     button,
		debounce:   cfg.GPIO.Debounce,
		heartbeat:  cfg.Heartbeat,
		now:        time.Now,
		samples:    samples,
		resets:     resets,
		tick:       ticker.C,
		sig:        sigCh,
	}
	return l.run()
}

// loop owns the decoder. Every decoder call, including gap timer callbacks,
// happens on the goroutine running run.
type loop struct {
	cfg        logic.Config
	sched      *timer.LoopScheduler
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	hub        *ws.Hub     // nil when HTTP is disabled
	button     gpio.Reader // nil when GPIO is disabled
	debounce   time.Duration
	heartbeat  time.Duration
	now        func() time.Time

	samples <-chan ear.Sample
	resets  <-chan struct{}
	tick    <-chan time.Time
	sig     <-chan os.Signal

	decoder   *logic.Decoder
	debouncer *logic.Debouncer
}

func (l *loop) run() error {
	l.decoder = logic.NewDecoder(l.cfg, l.sched, l.emit)
	l.debouncer = logic.NewDebouncer(l.debounce)

	for {
		select {
		case s := <-l.sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			l.refreshStatus()
			snap := l.tracker.Snapshot()
			event := mqtt.SystemEvent{
				Timestamp:  l.now(),
				Event:      "SHUTDOWN",
				Reason:     signalName,
				Retained:   true,
				RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", signalName),
			}
			if err := l.publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case s := <-l.samples:
			l.observe(s)

		case h := <-l.sched.Fired():
			// Samples queued while the loop was busy may predate the expiry.
			l.drainSamples()
			l.sched.Run(h)

		case <-l.resets:
			l.reset("request")

		case <-l.tick:
			t := l.now()

			if l.button != nil {
				pressed, err := l.button.Read()
				if err != nil {
					log.Printf("gpio read error: %v", err)
				} else if l.debouncer.Process(pressed, t) {
					l.reset("button")
				}
			}

			if hbData := l.decoder.CheckHeartbeat(t, l.heartbeat); hbData != nil {
				log.Printf("heartbeat: uptime=%v blinks=%d chars=%d unknown=%d spaces=%d",
					hbData.Uptime, hbData.Counts.Blinks, hbData.Counts.Chars, hbData.Counts.Unknowns, hbData.Counts.Spaces)

				l.refreshStatus()
				snap := l.tracker.Snapshot()
				hbEvent := mqtt.SystemEvent{
					Timestamp:  hbData.Timestamp,
					Event:      "HEARTBEAT",
					RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
				}
				if err := l.publisher.PublishSystem(hbEvent); err != nil {
					log.Printf("heartbeat publish error: %v", err)
				}
			}

			l.refreshStatus()
		}
	}
}

// observe runs every gap timer due by the sample's time, then feeds the
// sample, so the decoder sees timers and samples in timestamp order.
func (l *loop) observe(s ear.Sample) {
	l.sched.RunDue(s.Time)
	l.decoder.Observe(s.EAR, s.Time)
}

// drainSamples observes the samples already queued, without waiting for more.
func (l *loop) drainSamples() {
	for n := len(l.samples); n > 0; n-- {
		select {
		case s := <-l.samples:
			l.observe(s)
		default:
			return
		}
	}
}

// emit is the decoder's output sink.
func (l *loop) emit(ev logic.Event) {
	logEvent(ev)
	l.tracker.Apply(ev)
	l.tracker.SetCounts(l.decoder.Counts())
	if err := l.publisher.Publish(ev); err != nil {
		log.Printf("publish error: %v", err)
		// Don't crash on publish failure
	}
	if l.hub != nil {
		l.hub.Broadcast(ev)
	}
}

// reset clears the decoder and the committed text, then pushes a fresh
// snapshot so pages drop their copy of the text too.
func (l *loop) reset(source string) {
	log.Printf("reset requested (%s)", source)
	l.decoder.Reset()
	l.tracker.ClearText()
	if l.hub != nil {
		l.hub.BroadcastRaw(ws.MsgSnapshot, status.FormatJSON(l.tracker.Snapshot()))
	}
}

func (l *loop) refreshStatus() {
	l.tracker.SetCounts(l.decoder.Counts())
	if l.mqttStatus != nil {
		l.tracker.SetMQTTConnected(l.mqttStatus.IsConnected())
	}
	if l.hub != nil {
		l.tracker.SetClients(l.hub.ClientCount())
	}
}

func logEvent(ev logic.Event) {
	switch ev.Type {
	case logic.EventSymbol:
		log.Printf("event: SYMBOL %s (buffer %s)", ev.Symbol, ev.Buffer)
	case logic.EventChar, logic.EventUnknown:
		log.Printf("event: %s %q", ev.Type, ev.Char)
	case logic.EventSpace, logic.EventReset:
		log.Printf("event: %s", ev.Type)
	}
}

func statusConfig(cfg config.Config) status.Config {
	return status.Config{
		EARThreshold: cfg.Decoder.EARThreshold,
		DotTimeMs:    cfg.Decoder.DotTime.Milliseconds(),
		DashTimeMs:   cfg.Decoder.DashTime.Milliseconds(),
		CharGapMs:    cfg.Decoder.CharGap.Milliseconds(),
		WordGapMs:    cfg.Decoder.WordGap.Milliseconds(),
		HeartbeatMs:  cfg.Heartbeat.Milliseconds(),
		Broker:       cfg.MQTT.Broker,
		HTTPAddr:     cfg.HTTP.Addr,
		Input:        cfg.InputName(),
	}
}
