// Package services contains the server-side authentication logic: session
// lookup, login and logout orchestration, persistent-login restore with
// hijack detection, and TOTP verification. All multi-row mutations run in a
// single transaction; every user-facing failure is one of the sentinel
// errors below, matched by the HTTP layer with errors.Is.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jtoivan/authd/internal/common"
	"github.com/jtoivan/authd/internal/cryptox"
	"github.com/jtoivan/authd/internal/dbx"
	"github.com/jtoivan/authd/internal/logging"
	"github.com/jtoivan/authd/internal/server/config"
	"github.com/jtoivan/authd/internal/server/models"
	"github.com/jtoivan/authd/internal/server/repositories/repomanager"
)

// User-facing failures. The message doubles as the stable alert id.
var (
	ErrAlreadyLoggedIn             = errors.New("already-logged-in")
	ErrInvalidCredentials          = errors.New("invalid-credentials")
	ErrMissingTOTP                 = errors.New("missing-totp")
	ErrInvalidTOTP                 = errors.New("invalid-totp")
	ErrTOTPReuse                   = errors.New("totp-reuse")
	ErrAccountDisabled             = errors.New("account-disabled")
	ErrNotLoggedIn                 = errors.New("not-logged-in")
	ErrSessionExpired              = errors.New("session-expired")
	ErrPasswordChangeRequired      = errors.New("password-change-required")
	ErrMissingRememberToken        = errors.New("missing-remember-token")
	ErrInvalidRememberToken        = errors.New("invalid-remember-token")
	ErrRememberTokenSecretMismatch = errors.New("remember-token-secret-mismatch")
	ErrForbidden                   = errors.New("forbidden")
)

// WarningUnusedTOTP is reported when a login supplies a code but the
// account has no TOTP key; the code is ignored, never accepted as a factor.
const WarningUnusedTOTP = "unused-totp"

// AuthOptions adjust what Authenticate loads and allows.
type AuthOptions uint8

const (
	// WithPermissions also loads the user's permission set.
	WithPermissions AuthOptions = 1 << iota

	// AllowPasswordChangeReason lets the request through even when the
	// account is flagged for a forced password change. The logout
	// endpoints need this.
	AllowPasswordChangeReason
)

// CurrentUser is the authenticated caller attached to a request.
type CurrentUser struct {
	User          models.User
	SessionIDHash []byte
	SudoUntil     *time.Time
	Permissions   []models.Permission
}

// LoginInput carries the credentials of a login attempt. TOTP is nil when
// the field was omitted.
type LoginInput struct {
	Username string
	Password string
	TOTP     *string
	Remember bool
}

// LoginResult is a successful login: the fresh session and CSRF token
// plaintexts for the cookies, the remember cookie value when requested, and
// the profile fields echoed to the client.
type LoginResult struct {
	User           models.User
	TOTPEnabled    bool
	Warnings       []string
	SessionID      string
	CSRFToken      string
	RememberCookie string
	SudoUntil      time.Time
}

// RestoreResult is a successful session restore from a remember token.
type RestoreResult struct {
	SessionID      string
	CSRFToken      string
	RememberCookie string
}

// AuthService implements the authentication core over the relational store.
type AuthService struct {
	db       *sql.DB
	repos    repomanager.RepositoryManager
	cfg      *config.Config
	aesKey   []byte
	totpOpts cryptox.TOTPOptions
	log      logging.Logger
	now      func() time.Time
}

func NewAuthService(db *sql.DB, repos repomanager.RepositoryManager, cfg *config.Config, log logging.Logger) (*AuthService, error) {
	aesKey, err := cfg.AESKey()
	if err != nil {
		return nil, err
	}
	algorithm, err := cryptox.TOTPAlgorithm(cfg.TOTP.Algorithm)
	if err != nil {
		return nil, err
	}
	return &AuthService{
		db:     db,
		repos:  repos,
		cfg:    cfg,
		aesKey: aesKey,
		totpOpts: cryptox.TOTPOptions{
			Algorithm: algorithm,
			Digits:    cfg.TOTP.Digits,
			Period:    cfg.TOTP.Period,
			Window:    cfg.TOTP.Window,
		},
		log: log,
		now: time.Now,
	}, nil
}

// SessionByCookie resolves a session cookie value to its session row.
// Unknown ids map to ErrNotLoggedIn and expired sessions to
// ErrSessionExpired; expiry is evaluated lazily against the current time.
func (s *AuthService) SessionByCookie(ctx context.Context, cookieValue string) (*models.Session, error) {
	session, err := s.repos.Sessions(s.db).Get(ctx, cryptox.Hash(cookieValue))
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, ErrNotLoggedIn
		}
		return nil, fmt.Errorf("looking up session: %w", err)
	}
	if session.Expired(s.now()) {
		return nil, ErrSessionExpired
	}
	return session, nil
}

// Authenticate resolves a session cookie value to the current user,
// applying the account-state checks layered on top of session validity.
func (s *AuthService) Authenticate(ctx context.Context, cookieValue string, opts AuthOptions) (*CurrentUser, error) {
	idHash := cryptox.Hash(cookieValue)
	session, user, err := s.repos.Sessions(s.db).GetWithUser(ctx, idHash)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, ErrNotLoggedIn
		}
		return nil, fmt.Errorf("looking up session: %w", err)
	}
	if session.Expired(s.now()) {
		return nil, ErrSessionExpired
	}
	if !user.Active {
		return nil, ErrAccountDisabled
	}
	if user.PasswordChangeReason != nil && opts&AllowPasswordChangeReason == 0 {
		return nil, ErrPasswordChangeRequired
	}

	current := &CurrentUser{
		User:          *user,
		SessionIDHash: idHash,
		SudoUntil:     session.SudoUntil,
	}
	if opts&WithPermissions != 0 {
		permissions, err := s.repos.Users(s.db).Permissions(ctx, user.ID)
		if err != nil {
			return nil, fmt.Errorf("loading permissions: %w", err)
		}
		current.Permissions = permissions
	}
	return current, nil
}

// Login verifies a username/password pair (and TOTP code when the account
// has a key enrolled) and creates a session plus an optional remember
// token, all in one transaction. A missing user and a wrong password
// produce the same error so the response shape cannot enumerate usernames.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	user, err := s.repos.Users(s.db).GetByUsername(ctx, in.Username)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	ok, err := cryptox.VerifyPassword(in.Password, user.Password, s.aesKey)
	if err != nil {
		return nil, fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	result := &LoginResult{User: *user, SudoUntil: now.Add(s.cfg.Session.SudoLifetime)}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if user.TOTPEnabled() {
			result.TOTPEnabled = true
			if in.TOTP == nil {
				return ErrMissingTOTP
			}
			key, err := cryptox.Decrypt(user.TOTPKey, s.aesKey)
			if err != nil {
				return fmt.Errorf("decrypting totp key: %w", err)
			}
			step, err := cryptox.VerifyTOTP(key, *in.TOTP, now, s.totpOpts)
			if err != nil {
				if errors.Is(err, cryptox.ErrTOTPMismatch) {
					return ErrInvalidTOTP
				}
				return fmt.Errorf("verifying totp: %w", err)
			}
			if user.LastTOTPStep != nil && step <= *user.LastTOTPStep {
				return ErrTOTPReuse
			}
			n, err := s.repos.Users(tx).SetLastTOTPStep(ctx, user.ID, step)
			if err != nil {
				return err
			}
			if n != 1 {
				return fmt.Errorf("last_totp_step updated for %d users in login", n)
			}
		} else if in.TOTP != nil {
			result.Warnings = append(result.Warnings, WarningUnusedTOTP)
		}

		if !user.Active {
			return ErrAccountDisabled
		}

		sessionID, csrfToken, err := s.newSessionTokens()
		if err != nil {
			return err
		}
		sudoUntil := result.SudoUntil
		if err := s.repos.Sessions(tx).Create(ctx, &models.Session{
			IDHash:    cryptox.Hash(sessionID),
			UserID:    user.ID,
			CSRFToken: csrfToken,
			Expires:   now.Add(s.cfg.Session.Lifetime),
			SudoUntil: &sudoUntil,
		}); err != nil {
			return err
		}
		result.SessionID = sessionID
		result.CSRFToken = csrfToken

		if in.Remember {
			cookie, err := s.createRememberToken(ctx, tx, user.ID)
			if err != nil {
				return err
			}
			result.RememberCookie = cookie
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Logout deletes the caller's session and, when a remember cookie is
// supplied, the remember token it names. Exactly one session row must go
// away; any other count is an internal inconsistency. The returned CSRF
// token replaces the one that died with the session.
func (s *AuthService) Logout(ctx context.Context, current *CurrentUser, rememberCookie string) (string, error) {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		n, err := s.repos.Sessions(tx).Delete(ctx, current.SessionIDHash)
		if err != nil {
			return err
		}
		if n != 1 {
			return fmt.Errorf("%d sessions deleted in logout", n)
		}

		if rememberCookie != "" {
			if id, _, ok := strings.Cut(rememberCookie, s.cfg.RememberToken.Separator); ok {
				n, err := s.repos.RememberTokens(tx).Delete(ctx, cryptox.Hash(id))
				if err != nil {
					return err
				}
				if n > 1 {
					return fmt.Errorf("%d remember tokens deleted in logout", n)
				}
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return cryptox.GenerateToken(s.cfg.CSRF.TokenLength)
}

// LogoutAll deletes every session and remember token the caller owns.
func (s *AuthService) LogoutAll(ctx context.Context, current *CurrentUser) (string, error) {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		n, err := s.repos.Sessions(tx).DeleteAllForUser(ctx, current.User.ID)
		if err != nil {
			return err
		}
		if n == 0 {
			return errors.New("0 sessions deleted in logout-all-sessions")
		}
		_, err = s.repos.RememberTokens(tx).DeleteAllForUser(ctx, current.User.ID)
		return err
	})
	if err != nil {
		return "", err
	}
	return cryptox.GenerateToken(s.cfg.CSRF.TokenLength)
}

// Restore exchanges a remember cookie for a fresh session. On success the
// stored secret is rotated in the same transaction, so the old cookie value
// fails on any second use. A valid id with a wrong secret is treated as a
// hijack: every session and remember token of that user is revoked and the
// account is flagged for a password change, fail-closed.
func (s *AuthService) Restore(ctx context.Context, rememberCookie string) (*RestoreResult, error) {
	id, secret, ok := strings.Cut(rememberCookie, s.cfg.RememberToken.Separator)
	if !ok {
		return nil, ErrInvalidRememberToken
	}
	idHash := cryptox.Hash(id)

	token, err := s.repos.RememberTokens(s.db).Get(ctx, idHash)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, ErrInvalidRememberToken
		}
		return nil, fmt.Errorf("looking up remember token: %w", err)
	}

	if !cryptox.ConstantTimeEquals(cryptox.Hash(secret), token.SecretHash) {
		if err := s.revokeCredentials(ctx, token.UserID); err != nil {
			return nil, err
		}
		s.log.Warn(ctx, "remember-token secret mismatch, credentials revoked", "user_id", token.UserID)
		return nil, ErrRememberTokenSecretMismatch
	}

	if !token.UserActive {
		return nil, ErrAccountDisabled
	}

	result := &RestoreResult{}
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		sessionID, csrfToken, err := s.newSessionTokens()
		if err != nil {
			return err
		}
		if err := s.repos.Sessions(tx).Create(ctx, &models.Session{
			IDHash:    cryptox.Hash(sessionID),
			UserID:    token.UserID,
			CSRFToken: csrfToken,
			Expires:   s.now().Add(s.cfg.Session.Lifetime),
		}); err != nil {
			return err
		}

		newSecret, err := cryptox.GenerateToken(s.cfg.RememberToken.SecretLength)
		if err != nil {
			return err
		}
		n, err := s.repos.RememberTokens(tx).RotateSecret(ctx, idHash, cryptox.Hash(newSecret))
		if err != nil {
			return err
		}
		if n != 1 {
			return fmt.Errorf("secret rotated for %d remember tokens in restore", n)
		}

		result.SessionID = sessionID
		result.CSRFToken = csrfToken
		result.RememberCookie = id + s.cfg.RememberToken.Separator + newSecret
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// revokeCredentials removes every session and remember token of the user
// and flags the account. The revocation commits on its own so it survives
// the error returned to the caller.
func (s *AuthService) revokeCredentials(ctx context.Context, userID string) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.repos.Sessions(tx).DeleteAllForUser(ctx, userID); err != nil {
			return err
		}
		if _, err := s.repos.RememberTokens(tx).DeleteAllForUser(ctx, userID); err != nil {
			return err
		}
		n, err := s.repos.Users(tx).SetPasswordChangeReason(ctx, userID, models.PasswordChangeReasonSessionCompromise)
		if err != nil {
			return err
		}
		if n != 1 {
			return fmt.Errorf("password_change_reason updated for %d users in restore", n)
		}
		return nil
	})
}

func (s *AuthService) newSessionTokens() (sessionID, csrfToken string, err error) {
	sessionID, err = cryptox.GenerateToken(s.cfg.Session.IDLength)
	if err != nil {
		return "", "", err
	}
	csrfToken, err = cryptox.GenerateToken(s.cfg.CSRF.TokenLength)
	if err != nil {
		return "", "", err
	}
	return sessionID, csrfToken, nil
}

func (s *AuthService) createRememberToken(ctx context.Context, tx dbx.DBTX, userID string) (string, error) {
	id, err := cryptox.GenerateToken(s.cfg.RememberToken.IDLength)
	if err != nil {
		return "", err
	}
	secret, err := cryptox.GenerateToken(s.cfg.RememberToken.SecretLength)
	if err != nil {
		return "", err
	}
	if err := s.repos.RememberTokens(tx).Create(ctx, &models.RememberToken{
		IDHash:     cryptox.Hash(id),
		UserID:     userID,
		SecretHash: cryptox.Hash(secret),
	}); err != nil {
		return "", err
	}
	return id + s.cfg.RememberToken.Separator + secret, nil
}
