// Package web provides the HTTP surface of the blink-morse daemon: a status
// page, a capture page, JSON status, reset and the websocket endpoint.
package web

import (
	"context"
	"encoding/json"
	"net"
	"net/http"

	"github.com/sweeney/blink-morse/internal/status"
	"github.com/sweeney/blink-morse/internal/ws"
)

// Server serves the status and capture pages over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	hub        *ws.Hub
	resets     chan<- struct{}
}

// New creates a Server that reads state from the given tracker. hub may be
// nil, in which case /ws is not served. Reset requests are queued on resets
// without blocking.
func New(addr string, tracker *status.Tracker, hub *ws.Hub, resets chan<- struct{}) *Server {
	s := &Server{tracker: tracker, hub: hub, resets: resets}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("/capture", s.handleCapture)
	mux.HandleFunc("/reset", s.handleReset)
	if hub != nil {
		mux.HandleFunc("/ws", s.handleWS)
	}

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Handler returns the server's request router.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderIndex(w, snap, s.hub != nil)
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		http.Error(w, "websocket input disabled", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderCapture(w, s.tracker.Snapshot())
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	select {
	case s.resets <- struct{}{}:
	default:
		// A reset is already queued.
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.hub.ServeWS(w, r, SnapshotMessage(s.tracker.Snapshot()))
}

// SnapshotMessage encodes a status snapshot as a websocket message.
func SnapshotMessage(snap status.Snapshot) []byte {
	data, err := json.Marshal(ws.WSMessage{
		Type:    ws.MsgSnapshot,
		Payload: json.RawMessage(status.FormatJSON(snap)),
	})
	if err != nil {
		return nil
	}
	return data
}
