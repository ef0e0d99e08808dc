package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/p32929/github-trending-repos/internal/cache"
	"github.com/p32929/github-trending-repos/internal/events"
	"github.com/p32929/github-trending-repos/internal/refresh"
)

// Server exposes the HTTP API: the refresh trigger, the synchronous
// trending endpoint, and the SSE progress feed.
type Server struct {
	coord *refresh.Coordinator
	store *cache.Store
	hub   *events.Hub
	mux   *http.ServeMux
}

// NewServer wires handlers onto an HTTP mux.
func NewServer(coord *refresh.Coordinator, store *cache.Store, hub *events.Hub) *Server {
	s := &Server{
		coord: coord,
		store: store,
		hub:   hub,
		mux:   http.NewServeMux(),
	}
	s.routes()
	return s
}

// ServeHTTP satisfies the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/refresh", s.handleRefresh)
	s.mux.HandleFunc("/api/trending", s.handleTrending)
	s.mux.HandleFunc("/api/events", s.handleEvents)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	payload := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
		"fetching":  s.coord.InFlight(),
	}
	if snap := s.store.Get(); snap != nil {
		payload["generatedAt"] = snap.GeneratedAt
		payload["repos"] = len(snap.Repos)
	}
	writeJSON(w, http.StatusOK, payload)
}

// handleRefresh is the trigger endpoint: it answers immediately with
// cached / started / in-progress, and the data itself arrives through
// the events stream.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	force := r.URL.Query().Get("force") == "true"
	token := r.URL.Query().Get("token")

	result := s.coord.Trigger(force, token)
	slog.Debug("refresh triggered",
		"status", result.Status,
		"force", force,
		"session", token != "",
	)
	writeJSON(w, http.StatusOK, result)
}

// handleTrending is the synchronous-polling shape: it blocks until a
// fresh set exists and returns it directly.
func (s *Server) handleTrending(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	force := r.URL.Query().Get("force") == "true"

	snap, err := s.coord.Refresh(r.Context(), force)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleEvents streams progress events over SSE. Without a token the
// stream is broadcast mode (every event of every run, starting with a
// synthetic cached event when a valid set exists). With a token it is
// session mode: only events of runs that token joined, and the stream
// ends when that run does.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	token := r.URL.Query().Get("token")

	var ch <-chan events.Event
	var cancel func()
	if token != "" {
		ch, cancel = s.hub.Session(token)
	} else {
		ch, cancel = s.hub.Subscribe()
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// Late joiners get no replay, but a valid cache is worth a
	// synthetic cached event so dashboards render immediately.
	if token == "" {
		if snap := s.store.Get(); snap != nil && s.store.Valid(time.Now()) {
			if err := writeEvent(w, refresh.CachedEvent(snap)); err != nil {
				return
			}
			flusher.Flush()
		}
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := writeEvent(w, ev); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, ev events.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data)
	return err
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

func methodNotAllowed(w http.ResponseWriter, allowed string) {
	w.Header().Set("Allow", allowed)
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
}
