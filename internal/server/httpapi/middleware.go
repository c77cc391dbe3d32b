package httpapi

import (
	"errors"
	"net/http"

	"github.com/jtoivan/authd/internal/cryptox"
	"github.com/jtoivan/authd/internal/server/services"
)

// requireCSRF enforces double-submit CSRF protection: the token cookie must
// match the token header byte for byte. Every failure response still
// carries a usable token, both as a cookie and in the body, so the client
// can retry without an extra round trip.
func (s *Server) requireCSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(s.cfg.CSRF.Cookie)
		if err != nil {
			s.csrfFailure(w, r, "missing-cookie")
			return
		}
		header := r.Header.Get(s.cfg.CSRF.Header)
		if header == "" {
			s.csrfFailure(w, r, "missing-header")
			return
		}
		if !cryptox.ConstantTimeEquals([]byte(cookie.Value), []byte(header)) {
			s.csrfFailure(w, r, "mismatch")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) csrfFailure(w http.ResponseWriter, r *http.Request, id string) {
	token, clearSession, err := s.usableCSRFToken(r)
	if err != nil {
		s.writeError(w, s.errorResponse(r.Context(), err))
		return
	}
	cookies := []*http.Cookie{s.newCookie(s.cfg.CSRF.Cookie, token, s.cfg.CSRF.CookieLifetime)}
	if clearSession {
		cookies = append(cookies, s.clearCookie(s.cfg.Session.Cookie))
	}
	s.writeError(w, &apiError{
		status:    http.StatusBadRequest,
		alert:     Alert{Source: "csrf", ID: id},
		cookies:   cookies,
		csrfToken: token,
	})
}

// usableCSRFToken picks the token a failed request should be answered
// with: the live session's token when the caller has one, a fresh token
// otherwise. A session cookie that names an unknown or expired session
// is reported for clearing.
func (s *Server) usableCSRFToken(r *http.Request) (string, bool, error) {
	clearSession := false
	if cookie, err := r.Cookie(s.cfg.Session.Cookie); err == nil {
		session, err := s.auth.SessionByCookie(r.Context(), cookie.Value)
		switch {
		case err == nil:
			return session.CSRFToken, false, nil
		case errors.Is(err, services.ErrNotLoggedIn), errors.Is(err, services.ErrSessionExpired):
			clearSession = true
		default:
			return "", false, err
		}
	}
	token, err := cryptox.GenerateToken(s.cfg.CSRF.TokenLength)
	return token, clearSession, err
}

// authedHandler is a handler that runs with a resolved current user.
type authedHandler func(w http.ResponseWriter, r *http.Request, current *services.CurrentUser)

// requireAuth resolves the session cookie to a current user before calling
// the handler. Stale credentials are cleared along with the error response:
// an unknown or expired session drops the session cookie, a disabled
// account drops the remember cookie as well.
func (s *Server) requireAuth(opts services.AuthOptions, next authedHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(s.cfg.Session.Cookie)
		if err != nil {
			s.writeError(w, &apiError{
				status: http.StatusUnauthorized,
				alert:  Alert{Source: "auth", ID: services.ErrNotLoggedIn.Error()},
			})
			return
		}

		current, err := s.auth.Authenticate(r.Context(), cookie.Value, opts)
		if err != nil {
			e := s.errorResponse(r.Context(), err)
			switch {
			case errors.Is(err, services.ErrNotLoggedIn), errors.Is(err, services.ErrSessionExpired):
				e.cookies = append(e.cookies, s.clearCookie(s.cfg.Session.Cookie))
			case errors.Is(err, services.ErrAccountDisabled):
				e.cookies = append(e.cookies,
					s.clearCookie(s.cfg.RememberToken.Cookie),
					s.clearCookie(s.cfg.Session.Cookie))
			}
			s.writeError(w, e)
			return
		}
		next(w, r, current)
	})
}
