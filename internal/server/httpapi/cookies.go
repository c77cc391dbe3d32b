package httpapi

import (
	"net/http"
	"strings"
	"time"
)

func (s *Server) sameSite() http.SameSite {
	switch strings.ToLower(s.cfg.Cookie.SameSite) {
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteStrictMode
	}
}

// newCookie builds a cookie with the configured shared attributes. A zero
// lifetime makes a session-scoped cookie with no max-age.
func (s *Server) newCookie(name, value string, lifetime time.Duration) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     s.cfg.Cookie.Path,
		HttpOnly: true,
		Secure:   s.cfg.Cookie.Secure,
		SameSite: s.sameSite(),
	}
	if lifetime > 0 {
		c.MaxAge = int(lifetime.Seconds())
	}
	return c
}

func (s *Server) clearCookie(name string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Path:     s.cfg.Cookie.Path,
		HttpOnly: true,
		Secure:   s.cfg.Cookie.Secure,
		SameSite: s.sameSite(),
		MaxAge:   -1,
	}
}
