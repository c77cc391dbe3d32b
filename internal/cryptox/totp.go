package cryptox

import (
	"crypto/subtle"
	"encoding/base32"
	"errors"
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// ErrTOTPMismatch is returned by VerifyTOTP when no step within the
// configured window produces the supplied code.
var ErrTOTPMismatch = errors.New("totp does not match within window")

// TOTPOptions describe how one-time codes are derived.
type TOTPOptions struct {
	Algorithm otp.Algorithm
	Digits    int
	Period    uint // seconds per time step
	Window    uint // steps of clock skew tolerated on either side
}

// TOTPAlgorithm maps a configured algorithm name ("SHA-1", "SHA-256",
// "SHA-512") to the underlying HMAC algorithm.
func TOTPAlgorithm(name string) (otp.Algorithm, error) {
	switch name {
	case "SHA-1":
		return otp.AlgorithmSHA1, nil
	case "SHA-256":
		return otp.AlgorithmSHA256, nil
	case "SHA-512":
		return otp.AlgorithmSHA512, nil
	}
	return 0, fmt.Errorf("unknown TOTP algorithm %q", name)
}

// GenerateTOTP derives the code for key at the given absolute time step.
func GenerateTOTP(key []byte, step int64, opts TOTPOptions) (string, error) {
	secret := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(key)
	at := time.Unix(step*int64(opts.Period), 0).UTC()
	code, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    opts.Period,
		Digits:    otp.Digits(opts.Digits),
		Algorithm: opts.Algorithm,
	})
	if err != nil {
		return "", fmt.Errorf("generating totp: %w", err)
	}
	return code, nil
}

// VerifyTOTP searches the current time step and up to Window adjacent steps
// in both directions for a match, comparing each candidate in constant time.
// It returns the absolute step index that matched so callers can enforce
// monotonic single use; a window of zero disables skew tolerance entirely.
func VerifyTOTP(key []byte, code string, now time.Time, opts TOTPOptions) (int64, error) {
	current := now.Unix() / int64(opts.Period)
	if totpMatches(key, code, current, opts) {
		return current, nil
	}
	for i := int64(1); i <= int64(opts.Window); i++ {
		if totpMatches(key, code, current-i, opts) {
			return current - i, nil
		}
		if totpMatches(key, code, current+i, opts) {
			return current + i, nil
		}
	}
	return 0, ErrTOTPMismatch
}

func totpMatches(key []byte, code string, step int64, opts TOTPOptions) bool {
	expected, err := GenerateTOTP(key, step, opts)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1
}
