// Package api exposes the archiver over HTTP: starting and stopping crawls,
// streaming progress and logs, and reading the archive back out.
package api

import (
	"encoding/json"
	"net/http"

	"dynamics-archiver-go/internal/archiver"
	"dynamics-archiver-go/internal/cache"
	"dynamics-archiver-go/internal/config"
	"dynamics-archiver-go/internal/registry"
)

type Server struct {
	registry *registry.CrawlRegistry
	archiver *archiver.Archiver
	mux      *http.ServeMux
}

func NewServer() *Server {
	reg := registry.New()
	return NewServerWith(reg, archiver.New(reg, cache.NewFromConfig(config.AppConfig)))
}

// NewServerWith wires an explicit registry and archiver, for tests.
func NewServerWith(reg *registry.CrawlRegistry, a *archiver.Archiver) *Server {
	s := &Server{
		registry: reg,
		archiver: a,
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("POST /space/auto/{host_mid}/start", s.handleCrawlStart)
	s.mux.HandleFunc("POST /space/auto/{host_mid}/stop", s.handleCrawlStop)
	s.mux.HandleFunc("GET /space/auto/{host_mid}/progress", s.handleProgressSSE)
	s.mux.HandleFunc("GET /space/auto/progress", s.handleProgressAll)
	s.mux.HandleFunc("GET /db/hosts", s.handleDBHosts)
	s.mux.HandleFunc("GET /db/space/{host_mid}", s.handleDBSpace)
	s.mux.HandleFunc("GET /db/space/{host_mid}/export", s.handleDBExport)
	s.mux.HandleFunc("GET /detail/{dynamic_id}", s.handleDetail)
	s.mux.HandleFunc("GET /logs", s.handleLogs)
	s.mux.HandleFunc("GET /ws/logs", s.handleWSLogs)
	s.mux.HandleFunc("GET /ws/progress", s.handleWSProgress)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
