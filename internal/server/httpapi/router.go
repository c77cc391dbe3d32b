package httpapi

import (
	"net/http"

	"github.com/jtoivan/authd/internal/server/services"
)

// Routes assembles the endpoint tree. The CSRF guard wraps the auth guard
// so the double-submit check always runs first.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /auth/csrf-token", s.handleCSRFToken)
	mux.Handle("POST /auth/login", s.requireCSRF(http.HandlerFunc(s.handleLogin)))
	mux.Handle("POST /auth/logout",
		s.requireCSRF(s.requireAuth(services.AllowPasswordChangeReason, s.handleLogout)))
	mux.Handle("POST /auth/logout/all-sessions",
		s.requireCSRF(s.requireAuth(services.AllowPasswordChangeReason, s.handleLogoutAll)))
	mux.HandleFunc("POST /auth/restore-session", s.handleRestoreSession)

	mux.HandleFunc("GET /account/socket", s.handleSocket)
	mux.HandleFunc("GET /account/socket/clients", s.handleSocketClients)
	mux.Handle("POST /account/socket/token",
		s.requireCSRF(s.requireAuth(0, s.handleSocketToken)))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, notFoundError())
	})

	return mux
}
