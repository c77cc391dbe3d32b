package models

import "time"

// Session is a login session row. IDHash is the one-way hash of the random
// session id; the plaintext id exists only in the session cookie.
type Session struct {
	IDHash    []byte
	UserID    string
	CSRFToken string
	Expires   time.Time
	SudoUntil *time.Time
}

// Expired reports whether the session has passed its expiry. Expiry is
// checked lazily at read time; there is no background sweep.
func (s *Session) Expired(now time.Time) bool {
	return s.Expires.Before(now)
}
