package mcp

import (
	"context"
	"net/http"

	"golang.org/x/net/websocket"
)

// HandleWebSocket serves the transport over a WebSocket connection: each text
// frame carries one JSON-RPC message and each response is sent as one frame.
// Connections without an Origin header are accepted so that non-browser
// clients can connect.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws := websocket.Server{
		Handshake: func(cfg *websocket.Config, req *http.Request) error {
			origin, err := websocket.Origin(cfg, req)
			if err == nil {
				cfg.Origin = origin
			}
			return nil
		},
		Handler: func(conn *websocket.Conn) {
			s.serveWS(r.Context(), conn)
		},
	}
	ws.ServeHTTP(w, r)
}

func (s *Server) serveWS(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()
	s.logger.Info("mcp: websocket connection opened", "remote_addr", conn.Request().RemoteAddr)

	for {
		var msg []byte
		if err := websocket.Message.Receive(conn, &msg); err != nil {
			s.logger.Debug("mcp: websocket connection closed", "error", err)
			return
		}
		resp := s.Handle(ctx, msg)
		if resp == nil {
			continue
		}
		if err := websocket.Message.Send(conn, string(resp)); err != nil {
			s.logger.Warn("mcp: websocket send failed", "error", err)
			return
		}
	}
}
