package httpapi

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/jtoivan/authd/internal/cryptox"
	"github.com/jtoivan/authd/internal/server/services"
)

// handleSocketToken mints a one-time WebSocket handshake token bound to the
// caller's user and session. The cache's TTL is the only lifetime the token
// has.
func (s *Server) handleSocketToken(w http.ResponseWriter, r *http.Request, current *services.CurrentUser) {
	token, err := cryptox.GenerateToken(s.cfg.WebSocket.TokenLength)
	if err != nil {
		s.writeError(w, s.errorResponse(r.Context(), err))
		return
	}

	sep := s.cfg.Redis.KeySeparator
	key := strings.Join([]string{"websocket-token", "account", token}, sep)
	value := current.User.ID + sep + base64.RawURLEncoding.EncodeToString(current.SessionIDHash)
	if err := s.store.SetEx(r.Context(), key, value, s.cfg.WebSocket.TokenLifetime); err != nil {
		s.writeError(w, s.errorResponse(r.Context(), err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": token})
}

// handleSocket upgrades the connection and hands it to the presence hub.
// Only the configured browser client may connect.
func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Origin") != s.cfg.Client.Origin {
		s.writeError(w, &apiError{
			status: http.StatusForbidden,
			alert:  Alert{Source: "auth", ID: services.ErrForbidden.Error()},
		})
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		s.log.Debug(r.Context(), "websocket upgrade failed", "error", err)
		return
	}
	go s.hub.Serve(context.WithoutCancel(r.Context()), ws)
}

func (s *Server) handleSocketClients(w http.ResponseWriter, r *http.Request) {
	snapshot := s.hub.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data": map[string]any{
			"connections": snapshot.Sessions,
			"rooms":       snapshot.Rooms,
		},
	})
}
