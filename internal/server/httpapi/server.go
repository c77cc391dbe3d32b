// Package httpapi exposes the authentication core over HTTP: the auth
// endpoints, the double-submit CSRF guard, and the WebSocket entry points
// of the presence manager. Every error leaves as a JSON alert list with a
// stable (source, id) pair.
package httpapi

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/jtoivan/authd/internal/logging"
	"github.com/jtoivan/authd/internal/server/cache"
	"github.com/jtoivan/authd/internal/server/config"
	"github.com/jtoivan/authd/internal/server/services"
	"github.com/jtoivan/authd/internal/server/wsocket"
)

type Server struct {
	cfg      *config.Config
	auth     *services.AuthService
	hub      *wsocket.Hub
	store    cache.Cache
	log      logging.Logger
	upgrader websocket.Upgrader
}

func NewServer(cfg *config.Config, auth *services.AuthService, hub *wsocket.Hub, store cache.Cache, log logging.Logger) *Server {
	return &Server{
		cfg:   cfg,
		auth:  auth,
		hub:   hub,
		store: store,
		log:   log,
		// The Origin header is compared against the configured client
		// before the upgrade is attempted.
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}
