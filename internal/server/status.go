package server

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hoofbeat/hoofbeat/internal/version"
)

// The status user interface is compiled into the binary: three static
// assets, no templating and no directory listing.
var (
	//go:embed web/html/index.htm
	indexPage []byte
	//go:embed web/style/main.css
	stylesheet []byte
	//go:embed web/js/main.js
	javascript []byte
)

// sseHeartbeatInterval paces comment frames that keep idle event-stream
// connections from being reaped by intermediaries.
const sseHeartbeatInterval = 30 * time.Second

// handleStatus routes the status surface. Any method other than GET is
// refused before the path is even considered.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	switch r.URL.Path {
	case "/":
		writeAsset(w, "text/html; charset=utf-8", indexPage)
	case "/style/main.css":
		writeAsset(w, "text/css; charset=utf-8", stylesheet)
	case "/js/main.js":
		writeAsset(w, "text/javascript; charset=utf-8", javascript)
	case "/event-stream/":
		s.handleEventStream(w, r)
	case "/ws":
		s.handleWebSocket(w, r)
	case "/api/status":
		s.handleAPIStatus(w, r)
	default:
		writeNotFound(w)
	}
}

func writeAsset(w http.ResponseWriter, contentType string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Write(body)
}

// handleEventStream attaches one fan-out subscription to the connection
// and forwards each change notification as an SSE data frame. The
// subscription detaches when the client goes; nothing propagates to other
// subscribers.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeInternalError(w)
		return
	}

	sub := s.hub.Subscribe()
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(sseHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := io.WriteString(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case n, ok := <-sub.C():
			if !ok {
				return
			}
			data, err := json.Marshal(n)
			if err != nil {
				s.logger.Error(r.Context(), err, "failed to encode notification")
				continue
			}
			if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// handleAPIStatus reports the current tree snapshot and fan-out state.
func (s *Server) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	tree := s.trees.Tree()
	if tree == nil {
		writeInternalError(w)
		return
	}

	resp := map[string]interface{}{
		"project_root": tree.RootPath,
		"tree": map[string]interface{}{
			"files":         tree.FileCount,
			"directories":   tree.DirCount,
			"scanned_at":    tree.ScannedAt.UTC(),
			"scan_duration": tree.ScanDuration.String(),
		},
		"subscribers": s.hub.Subscribers(),
		"sequence":    s.hub.Sequence(),
		"version":     version.Get(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Debug(r.Context(), "failed to write status response", "error", err.Error())
	}
}
