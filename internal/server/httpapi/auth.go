package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/jtoivan/authd/internal/cryptox"
	"github.com/jtoivan/authd/internal/server/services"
)

// handleCSRFToken hands out the token double-submit requests must echo: the
// session's own token for a logged-in caller, a fresh one otherwise. A
// stale session cookie is cleared on the way out.
func (s *Server) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	var (
		token        string
		clearSession bool
	)
	if cookie, err := r.Cookie(s.cfg.Session.Cookie); err == nil {
		session, err := s.auth.SessionByCookie(r.Context(), cookie.Value)
		switch {
		case err == nil:
			token = session.CSRFToken
		case errors.Is(err, services.ErrNotLoggedIn), errors.Is(err, services.ErrSessionExpired):
			clearSession = true
		default:
			s.writeError(w, s.errorResponse(r.Context(), err))
			return
		}
	}
	if token == "" {
		var err error
		if token, err = cryptox.GenerateToken(s.cfg.CSRF.TokenLength); err != nil {
			s.writeError(w, s.errorResponse(r.Context(), err))
			return
		}
	}

	http.SetCookie(w, s.newCookie(s.cfg.CSRF.Cookie, token, s.cfg.CSRF.CookieLifetime))
	if clearSession {
		http.SetCookie(w, s.clearCookie(s.cfg.Session.Cookie))
	}
	writeJSON(w, http.StatusOK, map[string]any{s.cfg.CSRF.ResponseField: token})
}

type loginRequest struct {
	Username string  `json:"username"`
	Password string  `json:"password"`
	TOTP     *string `json:"totp"`
	Remember bool    `json:"remember"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	// A live session short-circuits; a stale session cookie is cleared on
	// whatever error follows.
	clearSession := false
	if cookie, err := r.Cookie(s.cfg.Session.Cookie); err == nil {
		_, err := s.auth.SessionByCookie(r.Context(), cookie.Value)
		switch {
		case err == nil:
			s.writeError(w, s.errorResponse(r.Context(), services.ErrAlreadyLoggedIn))
			return
		case errors.Is(err, services.ErrNotLoggedIn), errors.Is(err, services.ErrSessionExpired):
			clearSession = true
		default:
			s.writeError(w, s.errorResponse(r.Context(), err))
			return
		}
	}

	var in loginRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		s.writeError(w, invalidData(err.Error()))
		return
	}

	result, err := s.auth.Login(r.Context(), services.LoginInput{
		Username: in.Username,
		Password: in.Password,
		TOTP:     in.TOTP,
		Remember: in.Remember,
	})
	if err != nil {
		e := s.errorResponse(r.Context(), err)
		if clearSession && e.status != http.StatusInternalServerError {
			e.cookies = append(e.cookies, s.clearCookie(s.cfg.Session.Cookie))
		}
		s.writeError(w, e)
		return
	}

	http.SetCookie(w, s.newCookie(s.cfg.Session.Cookie, result.SessionID, 0))
	http.SetCookie(w, s.newCookie(s.cfg.CSRF.Cookie, result.CSRFToken, s.cfg.CSRF.CookieLifetime))
	if result.RememberCookie != "" {
		http.SetCookie(w, s.newCookie(s.cfg.RememberToken.Cookie, result.RememberCookie, s.cfg.RememberToken.CookieLifetime))
	}

	body := map[string]any{
		s.cfg.CSRF.ResponseField: result.CSRFToken,
		"user": map[string]any{
			"id":                     result.User.ID,
			"username":               result.User.Username,
			"totp_enabled":           result.TOTPEnabled,
			"password_change_reason": result.User.PasswordChangeReason,
			"icon":                   result.User.Icon,
			"language":               result.User.Language,
			"sudo_until":             result.SudoUntil.Format(time.RFC3339),
		},
	}
	if len(result.Warnings) > 0 {
		warnings := make([]Alert, 0, len(result.Warnings))
		for _, id := range result.Warnings {
			warnings = append(warnings, Alert{Source: "auth", ID: id})
		}
		body["warnings"] = warnings
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, current *services.CurrentUser) {
	rememberCookie := ""
	hasRemember := false
	if cookie, err := r.Cookie(s.cfg.RememberToken.Cookie); err == nil {
		rememberCookie = cookie.Value
		hasRemember = true
	}

	csrfToken, err := s.auth.Logout(r.Context(), current, rememberCookie)
	if err != nil {
		s.writeError(w, s.errorResponse(r.Context(), err))
		return
	}

	http.SetCookie(w, s.newCookie(s.cfg.CSRF.Cookie, csrfToken, s.cfg.CSRF.CookieLifetime))
	http.SetCookie(w, s.clearCookie(s.cfg.Session.Cookie))
	if hasRemember {
		http.SetCookie(w, s.clearCookie(s.cfg.RememberToken.Cookie))
	}
	writeJSON(w, http.StatusOK, map[string]any{s.cfg.CSRF.ResponseField: csrfToken})
}

func (s *Server) handleLogoutAll(w http.ResponseWriter, r *http.Request, current *services.CurrentUser) {
	csrfToken, err := s.auth.LogoutAll(r.Context(), current)
	if err != nil {
		s.writeError(w, s.errorResponse(r.Context(), err))
		return
	}

	http.SetCookie(w, s.newCookie(s.cfg.CSRF.Cookie, csrfToken, s.cfg.CSRF.CookieLifetime))
	http.SetCookie(w, s.clearCookie(s.cfg.Session.Cookie))
	if _, err := r.Cookie(s.cfg.RememberToken.Cookie); err == nil {
		http.SetCookie(w, s.clearCookie(s.cfg.RememberToken.Cookie))
	}
	writeJSON(w, http.StatusOK, map[string]any{s.cfg.CSRF.ResponseField: csrfToken})
}

// handleRestoreSession exchanges a remember cookie for a fresh session. The
// remember cookie is replaced with the rotated value on success and dropped
// on any expected failure.
func (s *Server) handleRestoreSession(w http.ResponseWriter, r *http.Request) {
	if _, err := r.Cookie(s.cfg.Session.Cookie); err == nil {
		s.writeError(w, s.errorResponse(r.Context(), services.ErrAlreadyLoggedIn))
		return
	}
	cookie, err := r.Cookie(s.cfg.RememberToken.Cookie)
	if err != nil {
		s.writeError(w, s.errorResponse(r.Context(), services.ErrMissingRememberToken))
		return
	}

	result, err := s.auth.Restore(r.Context(), cookie.Value)
	if err != nil {
		e := s.errorResponse(r.Context(), err)
		if e.status != http.StatusInternalServerError {
			e.cookies = append(e.cookies, s.clearCookie(s.cfg.RememberToken.Cookie))
		}
		s.writeError(w, e)
		return
	}

	http.SetCookie(w, s.newCookie(s.cfg.CSRF.Cookie, result.CSRFToken, s.cfg.CSRF.CookieLifetime))
	http.SetCookie(w, s.newCookie(s.cfg.RememberToken.Cookie, result.RememberCookie, s.cfg.RememberToken.CookieLifetime))
	http.SetCookie(w, s.newCookie(s.cfg.Session.Cookie, result.SessionID, 0))
	writeJSON(w, http.StatusOK, map[string]any{s.cfg.CSRF.ResponseField: result.CSRFToken})
}
