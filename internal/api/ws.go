package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/websocket"

	"dynamics-archiver-go/internal/logger"
)

// serveWS upgrades the request with any origin allowed; the API is meant to
// sit behind the operator's own reverse proxy.
func serveWS(w http.ResponseWriter, r *http.Request, handler func(*websocket.Conn)) {
	websocket.Server{
		Handshake: func(cfg *websocket.Config, req *http.Request) error { return nil },
		Handler: func(conn *websocket.Conn) {
			conn.PayloadType = websocket.TextFrame
			handler(conn)
		},
	}.ServeHTTP(w, r)
}

// handleWSLogs streams log events as they happen, one JSON line per frame.
func (s *Server) handleWSLogs(w http.ResponseWriter, r *http.Request) {
	serveWS(w, r, func(conn *websocket.Conn) {
		ch, cancel := logger.Subscribe()
		defer cancel()

		for msg := range ch {
			if err := websocket.Message.Send(conn, string(msg)); err != nil {
				return
			}
		}
	})
}

// handleWSProgress pushes crawl progress snapshots on a fixed interval,
// either for one owner (host_mid query) or for every registered run.
func (s *Server) handleWSProgress(w http.ResponseWriter, r *http.Request) {
	interval := time.Second
	if v := strings.TrimSpace(r.URL.Query().Get("interval_ms")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			if n < 100 {
				n = 100
			}
			if n > 5000 {
				n = 5000
			}
			interval = time.Duration(n) * time.Millisecond
		}
	}
	hostMID := strings.TrimSpace(r.URL.Query().Get("host_mid"))

	serveWS(w, r, func(conn *websocket.Conn) {
		send := func() bool {
			var payload any
			if hostMID != "" {
				payload = s.registry.Snapshot(hostMID)
			} else {
				payload = map[string]any{"runs": s.registry.All()}
			}
			b, err := json.Marshal(payload)
			if err != nil {
				return false
			}
			b = append(b, '\n')
			return websocket.Message.Send(conn, string(b)) == nil
		}

		if !send() {
			return
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for range ticker.C {
			if !send() {
				return
			}
		}
	})
}
