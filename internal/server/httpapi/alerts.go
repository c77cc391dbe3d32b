package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jtoivan/authd/internal/server/services"
)

// Alert is the unit of the error body: a stable (source, id) pair plus
// optional safe detail.
type Alert struct {
	Source  string `json:"source"`
	ID      string `json:"id"`
	Details string `json:"details,omitempty"`
}

// apiError is a fully described HTTP error response. The csrfToken, when
// set, is stitched into the body under the configured response field.
type apiError struct {
	status    int
	alert     Alert
	cookies   []*http.Cookie
	csrfToken string
}

var serviceAlerts = []struct {
	err    error
	status int
}{
	{services.ErrAccountDisabled, http.StatusForbidden},
	{services.ErrAlreadyLoggedIn, http.StatusBadRequest},
	{services.ErrForbidden, http.StatusForbidden},
	{services.ErrInvalidCredentials, http.StatusBadRequest},
	{services.ErrInvalidRememberToken, http.StatusBadRequest},
	{services.ErrInvalidTOTP, http.StatusBadRequest},
	{services.ErrMissingRememberToken, http.StatusBadRequest},
	{services.ErrMissingTOTP, http.StatusBadRequest},
	{services.ErrNotLoggedIn, http.StatusUnauthorized},
	{services.ErrPasswordChangeRequired, http.StatusBadRequest},
	{services.ErrRememberTokenSecretMismatch, http.StatusBadRequest},
	{services.ErrSessionExpired, http.StatusForbidden},
	{services.ErrTOTPReuse, http.StatusBadRequest},
}

// errorResponse maps a service error onto its HTTP shape. Anything outside
// the user-facing set is logged in full and reported as an opaque internal
// error.
func (s *Server) errorResponse(ctx context.Context, err error) *apiError {
	for _, m := range serviceAlerts {
		if errors.Is(err, m.err) {
			return &apiError{
				status: m.status,
				alert:  Alert{Source: "auth", ID: m.err.Error()},
			}
		}
	}
	s.log.Error(ctx, "internal error", "error", err)
	return internalError()
}

func internalError() *apiError {
	return &apiError{
		status: http.StatusInternalServerError,
		alert:  Alert{Source: "general", ID: "internal-server-error"},
	}
}

func invalidData(details string) *apiError {
	return &apiError{
		status: http.StatusBadRequest,
		alert:  Alert{Source: "general", ID: "invalid-data", Details: details},
	}
}

func notFoundError() *apiError {
	return &apiError{
		status: http.StatusNotFound,
		alert:  Alert{Source: "general", ID: "not-found"},
	}
}

func (s *Server) writeError(w http.ResponseWriter, e *apiError) {
	for _, c := range e.cookies {
		http.SetCookie(w, c)
	}
	body := map[string]any{"errors": []Alert{e.alert}}
	if e.csrfToken != "" {
		body[s.cfg.CSRF.ResponseField] = e.csrfToken
	}
	writeJSON(w, e.status, body)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
