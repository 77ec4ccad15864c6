package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"dynamics-archiver-go/internal/archiver"
	"dynamics-archiver-go/internal/config"
	"dynamics-archiver-go/internal/registry"
)

func boolQuery(r *http.Request, key string, def bool) bool {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func (s *Server) handleCrawlStart(w http.ResponseWriter, r *http.Request) {
	hostMID := r.PathValue("host_mid")
	opts := archiver.Options{
		NeedTop:   boolQuery(r, "need_top", config.AppConfig.NeedTop),
		SaveMedia: boolQuery(r, "save_media", config.AppConfig.SaveMedia),
	}

	// The run owns its lifetime; the request only launches it.
	started := make(chan error, 1)
	go func() {
		res, err := s.archiver.Run(context.Background(), hostMID, opts)
		if err != nil {
			if errors.Is(err, registry.ErrAlreadyRunning) {
				started <- err
				return
			}
			started <- nil
			slog.Error("crawl run failed", "host_mid", hostMID, "err", err)
			return
		}
		started <- nil
		slog.Info("crawl run finished", "host_mid", hostMID, "pages", res.Pages, "items", res.Items, "reason", res.Reason)
	}()

	// Only a Begin rejection surfaces synchronously; it happens before the
	// first page fetch, so a short wait is enough.
	select {
	case err := <-started:
		if err != nil {
			writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error()})
			return
		}
	case <-time.After(50 * time.Millisecond):
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"host_mid": hostMID,
		"status":   "started",
	})
}

func (s *Server) handleCrawlStop(w http.ResponseWriter, r *http.Request) {
	hostMID := r.PathValue("host_mid")
	if !s.registry.RequestStop(hostMID) {
		writeJSON(w, http.StatusOK, map[string]any{
			"host_mid": hostMID,
			"stopped":  false,
			"message":  "no crawl running",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"host_mid": hostMID,
		"stopped":  true,
		"message":  "stop requested, current page will finish first",
	})
}

func (s *Server) handleProgressAll(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"runs": s.registry.All()})
}

// handleProgressSSE streams the owner's progress as server-sent events until
// the client goes away.
func (s *Server) handleProgressSSE(w http.ResponseWriter, r *http.Request) {
	hostMID := r.PathValue("host_mid")
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "streaming unsupported"})
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	send := func() bool {
		b, err := json.Marshal(s.registry.Snapshot(hostMID))
		if err != nil {
			return false
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", b); err != nil {
			return false
		}
		flusher.Flush()
		return true
	}

	if !send() {
		return
	}
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if !send() {
				return
			}
		}
	}
}

func (s *Server) handleDetail(w http.ResponseWriter, r *http.Request) {
	dynamicID := r.PathValue("dynamic_id")
	saveMedia := boolQuery(r, "save_media", config.AppConfig.SaveMedia)

	it, err := s.archiver.ArchiveDetail(r.Context(), dynamicID, saveMedia)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item": it})
}
