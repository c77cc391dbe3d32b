package models

// User is an account row. Password is the Argon2id hash sealed in an AEAD
// envelope, never plaintext; TOTPKey is the AEAD-sealed TOTP key, nil when
// two-factor is disabled. LastTOTPStep is the most recently accepted TOTP
// time step and only ever moves forward.
type User struct {
	ID                   string
	Active               bool
	Username             string
	Password             []byte
	TOTPKey              []byte
	LastTOTPStep         *int64
	PasswordChangeReason *PasswordChangeReason
	Icon                 *string
	Language             Language
}

// TOTPEnabled reports whether the account has a TOTP key enrolled.
func (u *User) TOTPEnabled() bool {
	return len(u.TOTPKey) > 0
}
