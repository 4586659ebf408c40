package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/blink-morse/internal/ear"
	"github.com/sweeney/blink-morse/internal/logic"
	"github.com/sweeney/blink-morse/internal/status"
)

var funcs = template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"orDash": func(s string) string {
		if s == "" {
			return "-"
		}
		return s
	},
}

var (
	indexTmpl   = template.Must(template.New("index").Funcs(funcs).Parse(styleHTML + liveJS + indexHTML))
	captureTmpl = template.Must(template.New("capture").Funcs(funcs).Parse(styleHTML + liveJS + captureHTML))
)

const styleHTML = `{{define "style"}}<style>
body { font-family: monospace; max-width: 640px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
#text { font-size: 1.6em; min-height: 1.4em; padding: 8px; border: 1px solid #ddd; white-space: pre-wrap; word-break: break-all; }
#buffer { font-size: 1.4em; letter-spacing: 0.2em; }
.BLINKING { color: #c60; font-weight: bold; }
.IDLE { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
.live-dot { display: inline-block; width: 8px; height: 8px; border-radius: 50%; margin-left: 6px; vertical-align: middle; }
.live-dot.ok { background: green; }
.live-dot.err { background: red; }
.live-dot.pending { background: orange; }
video { width: 100%; transform: scaleX(-1); background: #000; }
button { font-family: monospace; font-size: 1em; padding: 4px 12px; }
</style>{{end}}`

// liveJS keeps the page in sync with the daemon over /ws. The capture page
// also uses the returned socket to stream samples.
const liveJS = `{{define "live"}}<script>
var live = (function() {
  var dot = document.getElementById("live-dot");
  var stateEl = document.getElementById("state");
  var bufferEl = document.getElementById("buffer");
  var textEl = document.getElementById("text");
  var proto = location.protocol === "https:" ? "wss://" : "ws://";
  var self = { sock: null };

  function setDot(cls, title) {
    dot.className = "live-dot " + cls;
    dot.title = title;
  }

  function setState(s) {
    stateEl.textContent = s;
    stateEl.className = s;
  }

  function onMessage(e) {
    var msg;
    try { msg = JSON.parse(e.data); } catch (err) { return; }
    var p = msg.payload || {};
    if (msg.type === "snapshot" && p.status) {
      setState(p.status.state);
      bufferEl.textContent = p.status.buffer || "-";
      textEl.textContent = p.status.text;
      return;
    }
    if (msg.type !== "event") return;
    setState(p.state);
    bufferEl.textContent = p.buffer || "-";
    if (p.event === "CHAR" || p.event === "UNKNOWN" || p.event === "SPACE") {
      textEl.textContent += p.char;
    }
  }

  function connect() {
    setDot("pending", "connecting");
    var sock = new WebSocket(proto + location.host + "/ws");
    sock.onopen = function() { setDot("ok", "live"); };
    sock.onmessage = onMessage;
    sock.onclose = function() {
      setDot("err", "offline");
      self.sock = null;
      setTimeout(connect, 2000);
    };
    self.sock = sock;
  }

  self.send = function(obj) {
    if (self.sock && self.sock.readyState === WebSocket.OPEN) {
      self.sock.send(JSON.stringify(obj));
    }
  };

  self.reset = function() {
    fetch("/reset", { method: "POST" });
  };

  connect();
  return self;
})();
</script>{{end}}`

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Blink Morse</title>
{{template "style"}}
</head>
<body>
<h1>Blink Morse{{if .Live}}<span id="live-dot" class="live-dot pending" title="connecting"></span>{{end}}</h1>

<h2>Output</h2>
<div id="text">{{.Text}}</div>
{{if .Live}}<p><button onclick="live.reset()">Reset</button> <a href="/capture">Capture</a></p>{{end}}

<h2>Decoder</h2>
<table>
<tr><th>State</th><td id="state" class="{{.State}}">{{.State}}</td></tr>
<tr><th>Buffer</th><td id="buffer">{{orDash .Buffer}}</td></tr>
{{if .LastEvent}}<tr><th>Last event</th><td>{{.LastEvent.Type}} at {{.LastEvent.Timestamp.UTC.Format "15:04:05.000"}}</td></tr>{{end}}
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Websocket clients</th><td>{{.Clients}}</td></tr>
<tr><th>Input</th><td>{{.Config.Input}}</td></tr>
</table>

<h2>Counts</h2>
<table>
<tr><th>Blinks</th><td>{{.Counts.Blinks}}</td></tr>
<tr><th>Dots</th><td>{{.Counts.Dots}}</td></tr>
<tr><th>Dashes</th><td>{{.Counts.Dashes}}</td></tr>
<tr><th>Characters</th><td>{{.Counts.Chars}}</td></tr>
<tr><th>Unknown</th><td>{{.Counts.Unknowns}}</td></tr>
<tr><th>Spaces</th><td>{{.Counts.Spaces}}</td></tr>
<tr><th>Resets</th><td>{{.Counts.Resets}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>EAR threshold</th><td>{{.Config.EARThreshold}}</td></tr>
<tr><th>Dot time</th><td>{{.Config.DotTimeMs}}ms</td></tr>
<tr><th>Dash time</th><td>{{.Config.DashTimeMs}}ms</td></tr>
<tr><th>Character gap</th><td>{{.Config.CharGapMs}}ms</td></tr>
<tr><th>Word gap</th><td>{{.Config.WordGapMs}}ms</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
{{if .Live}}{{template "live"}}{{end}}
</body>
</html>
`

const captureHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Blink Morse Capture</title>
{{template "style"}}
<script src="https://cdn.jsdelivr.net/npm/@mediapipe/camera_utils/camera_utils.js" crossorigin="anonymous"></script>
<script src="https://cdn.jsdelivr.net/npm/@mediapipe/face_mesh/face_mesh.js" crossorigin="anonymous"></script>
</head>
<body>
<h1>Blink Morse Capture<span id="live-dot" class="live-dot pending" title="connecting"></span></h1>

<video id="video" autoplay playsinline muted></video>

<table>
<tr><th>EAR</th><td id="ear">-</td></tr>
<tr><th>Threshold</th><td>{{.Config.EARThreshold}}</td></tr>
<tr><th>State</th><td id="state" class="{{.State}}">{{.State}}</td></tr>
<tr><th>Buffer</th><td id="buffer">{{orDash .Buffer}}</td></tr>
</table>

<div id="text">{{.Text}}</div>
<p><button onclick="live.reset()">Reset</button> <a href="/">Status</a></p>

{{template "live"}}
<script>
(function() {
  var LEFT = {{.LeftEye}};
  var RIGHT = {{.RightEye}};
  var video = document.getElementById("video");
  var earEl = document.getElementById("ear");

  function pick(lm, idx) {
    var w = video.videoWidth || 1, h = video.videoHeight || 1;
    return idx.map(function(i) { return { x: lm[i].x * w, y: lm[i].y * h }; });
  }

  function dist(a, b) { return Math.hypot(a.x - b.x, a.y - b.y); }

  function ratio(p) {
    var d = dist(p[0], p[3]);
    return d === 0 ? NaN : (dist(p[1], p[5]) + dist(p[2], p[4])) / (2 * d);
  }

  var mesh = new FaceMesh({
    locateFile: function(f) { return "https://cdn.jsdelivr.net/npm/@mediapipe/face_mesh/" + f; }
  });
  mesh.setOptions({ maxNumFaces: 1, refineLandmarks: false, minDetectionConfidence: 0.5, minTrackingConfidence: 0.5 });
  mesh.onResults(function(res) {
    if (!res.multiFaceLandmarks || res.multiFaceLandmarks.length === 0) return;
    var lm = res.multiFaceLandmarks[0];
    var left = pick(lm, LEFT), right = pick(lm, RIGHT);
    earEl.textContent = ((ratio(left) + ratio(right)) / 2).toFixed(3);
    live.send({ type: "landmarks", left: left, right: right });
  });

  var camera = new Camera(video, {
    onFrame: function() { return mesh.send({ image: video }); },
    width: 640,
    height: 480
  });
  camera.start();
})();
</script>
</body>
</html>
`

type pageData struct {
	status.Snapshot
	Uptime   time.Duration
	Live     bool
	LeftEye  [6]int
	RightEye [6]int
}

func newPageData(snap status.Snapshot, live bool) pageData {
	// Snapshot has Uptime() method but template needs a Duration field.
	if snap.State == "" {
		snap.State = logic.StateIdle
	}
	return pageData{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Live:     live,
		LeftEye:  ear.LeftEye,
		RightEye: ear.RightEye,
	}
}

func renderIndex(w io.Writer, snap status.Snapshot, live bool) {
	indexTmpl.Execute(w, newPageData(snap, live))
}

func renderCapture(w io.Writer, snap status.Snapshot) {
	captureTmpl.Execute(w, newPageData(snap, true))
}
