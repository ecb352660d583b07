package server

import (
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// handleWebSocket carries the same change notifications as the SSE
// endpoint over a websocket, for clients that prefer a socket to an
// EventSource. Each connection holds exactly one fan-out subscription.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		// Accept has already written the handshake failure.
		s.logger.Debug(r.Context(), "websocket accept failed", "error", err.Error())
		return
	}
	defer conn.CloseNow()

	sub := s.hub.Subscribe()
	defer sub.Close()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "server shutting down")
			return
		case n, ok := <-sub.C():
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "stream closed")
				return
			}
			if err := wsjson.Write(ctx, conn, n); err != nil {
				// Protocol errors and abrupt disconnects are isolated to
				// this connection.
				s.logger.Debug(ctx, "websocket write failed", "error", err.Error())
				return
			}
		}
	}
}
