// Package web provides the HTTP status page, JSON endpoint, console commands
// and a WebSocket live feed for the spa-bridge daemon.
package web

import (
	"context"
	"encoding/json"
	"net"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/sweeney/spa-bridge/internal/spa"
	"github.com/sweeney/spa-bridge/internal/status"
)

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	intents    chan<- spa.Intent
	hub        *hub
}

// New creates a Server that reads state from the given tracker and sends
// console and WebSocket commands to intents. A nil intents channel makes
// the server read-only.
func New(addr string, tracker *status.Tracker, intents chan<- spa.Intent) *Server {
	s := &Server{
		tracker: tracker,
		intents: intents,
		hub:     newHub(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("/console", s.handleConsole)
	mux.HandleFunc("/ws", s.handleWS)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Handler returns the root handler. Useful for tests.
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

// Shutdown gracefully shuts down the server and drops live clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.closeAll()
	return s.httpServer.Shutdown(ctx)
}

// Notify pushes a change to every WebSocket client. It never blocks.
func (s *Server) Notify(attribute string) {
	snap := s.tracker.Snapshot()
	s.hub.broadcast(Message{
		Type:      "change",
		Attribute: attribute,
		Spa:       ptr(status.BuildSpa(snap)),
	})
}

func ptr[T any](v T) *T { return &v }

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap, s.intents != nil)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

// ConsoleResponse is the reply to a console command.
type ConsoleResponse struct {
	OK     bool   `json:"ok"`
	Intent string `json:"intent,omitempty"`
	Error  string `json:"error,omitempty"`
}

// handleConsole accepts POST target=<attribute>&value=<value>.
func (s *Server) handleConsole(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		writeConsole(w, http.StatusBadRequest, ConsoleResponse{Error: err.Error()})
		return
	}
	in, err := s.submit(r.PostForm.Get("target"), r.PostForm.Get("value"))
	if err != nil {
		code := http.StatusBadRequest
		if err == errBusy || err == errReadOnly {
			code = http.StatusServiceUnavailable
		}
		writeConsole(w, code, ConsoleResponse{Error: err.Error()})
		return
	}
	writeConsole(w, http.StatusAccepted, ConsoleResponse{OK: true, Intent: in.String()})
}

func writeConsole(w http.ResponseWriter, code int, resp ConsoleResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(resp)
}

// submit parses a command and hands it to the main loop without blocking.
func (s *Server) submit(target, value string) (spa.Intent, error) {
	if s.intents == nil {
		return spa.Intent{}, errReadOnly
	}
	in, err := spa.ParseIntent(target, value)
	if err != nil {
		return spa.Intent{}, err
	}
	select {
	case s.intents <- in:
		log.Info().Stringer("intent", in).Msg("web: command received")
		return in, nil
	default:
		return spa.Intent{}, errBusy
	}
}
