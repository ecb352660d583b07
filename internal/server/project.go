package server

import (
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
)

// Fixed response bodies, matching on every status the promise that the
// body carries no request-derived content.
const (
	notFoundBody         = "HTTP 404. File not found."
	methodNotAllowedBody = "HTTP 405. Method not allowed."
	internalErrorBody    = "HTTP 500. Internal server error."
)

// streamChunkSize bounds per-request copy buffers so memory use is
// independent of file size.
const streamChunkSize = 32 * 1024

// handleProject serves files from the project root. Only GET is accepted;
// unresolvable paths and traversal attempts are normal 404 outcomes, not
// errors.
func (s *Server) handleProject(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	if s.root == "" {
		// Required process-wide state is unexpectedly absent: this
		// request fails, the server does not.
		writeInternalError(w)
		return
	}

	target, err := Resolve(s.root, s.exclude, r.URL.Path)
	if err != nil {
		writeNotFound(w)
		return
	}

	f, err := os.Open(target)
	if err != nil {
		// The file vanished between resolution and open; still a 404.
		writeNotFound(w)
		return
	}
	defer f.Close()

	if ct := mime.TypeByExtension(filepath.Ext(target)); ct != "" {
		w.Header().Set("Content-Type", ct)
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
	}

	// Stream in bounded chunks. A write failure here means the client
	// went away; that is their business, not the server's.
	buf := make([]byte, streamChunkSize)
	if _, err := io.CopyBuffer(w, f, buf); err != nil {
		s.logger.Debug(r.Context(), "client disconnected mid-stream",
			"path", r.URL.Path, "error", err.Error())
	}
}

func writeNotFound(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	io.WriteString(w, notFoundBody)
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	w.Header().Set("Allow", http.MethodGet)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusMethodNotAllowed)
	io.WriteString(w, methodNotAllowedBody)
}

func writeInternalError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusInternalServerError)
	io.WriteString(w, internalErrorBody)
}
