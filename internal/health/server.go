// Package health serves a small HTTP status surface: liveness with queue
// depths, and the current emoji ranking snapshot.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"time"
)

// QueueStats reports pending items per conversation.
type QueueStats interface {
	Stats() map[string]int
}

// Rankings exposes the popularity table.
type Rankings interface {
	Snapshot() map[string]int
	HotSetDisplay() []string
	Known() int
}

// ChannelStatus reports whether each chat channel is connected.
type ChannelStatus interface {
	GetStatus() map[string]interface{}
}

// Server is the status HTTP server.
type Server struct {
	addr     string
	version  string
	started  time.Time
	queues   QueueStats
	rankings Rankings
	channels ChannelStatus

	httpServer *http.Server
	mux        *http.ServeMux
}

// NewServer creates a status server. Either source may be nil.
func NewServer(addr, version string, queues QueueStats, rankings Rankings) *Server {
	return &Server{
		addr:     addr,
		version:  version,
		started:  time.Now(),
		queues:   queues,
		rankings: rankings,
	}
}

// SetChannels adds channel status to /health.
func (s *Server) SetChannels(c ChannelStatus) { s.channels = c }

// BuildMux creates and caches the mux with all routes registered.
func (s *Server) BuildMux() *http.ServeMux {
	if s.mux != nil {
		return s.mux
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /rankings", s.handleRankings)
	s.mux = mux
	return mux
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.BuildMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	slog.Info("health server starting", "addr", s.addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("health server: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Round(time.Second).String(),
	}
	if s.queues != nil {
		stats := s.queues.Stats()
		pending := 0
		for _, n := range stats {
			pending += n
		}
		body["queues"] = stats
		body["pending"] = pending
	}
	if s.channels != nil {
		body["channels"] = s.channels.GetStatus()
	}
	if s.rankings != nil {
		body["known_emoji"] = s.rankings.Known()
	}
	writeJSON(w, http.StatusOK, body)
}

type rankingEntry struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func (s *Server) handleRankings(w http.ResponseWriter, r *http.Request) {
	if s.rankings == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "rankings unavailable"})
		return
	}
	snap := s.rankings.Snapshot()
	entries := make([]rankingEntry, 0, len(snap))
	for name, n := range snap {
		entries = append(entries, rankingEntry{Name: name, Count: n})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Name < entries[j].Name
	})
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"hot_set":  s.rankings.HotSetDisplay(),
		"rankings": entries,
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
