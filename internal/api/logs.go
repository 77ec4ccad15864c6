package api

import (
	"net/http"
	"strconv"

	"dynamics-archiver-go/internal/logger"
)

const maxLogLimit = 2000

// handleLogs returns the newest buffered log events, oldest first. The limit
// query parameter caps at the ring size.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	limit = max(0, min(limit, maxLogLimit))
	writeJSON(w, http.StatusOK, map[string]any{"logs": logger.Recent(limit)})
}
