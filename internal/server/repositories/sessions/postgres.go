// Package sessions persists login-session rows, keyed by the one-way hash
// of the session cookie value.
package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jtoivan/authd/internal/common"
	"github.com/jtoivan/authd/internal/dbx"
	"github.com/jtoivan/authd/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO sessions (id, user_id, csrf_token, expires, sudo_until)
		VALUES ($1, $2, $3, $4, $5)
	`
	res, err := r.db.ExecContext(ctx, query,
		session.IDHash, session.UserID, session.CSRFToken, session.Expires, session.SudoUntil)
	if err != nil {
		return fmt.Errorf("error performing sql request: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n != 1 {
		return fmt.Errorf("%d sessions inserted", n)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, idHash []byte) (*models.Session, error) {
	query := `
		SELECT id, user_id, csrf_token, expires, sudo_until
		FROM sessions
		WHERE id = $1
	`
	session := &models.Session{}
	err := r.db.QueryRowContext(ctx, query, idHash).Scan(
		&session.IDHash, &session.UserID, &session.CSRFToken, &session.Expires, &session.SudoUntil)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("error performing sql request: %w", err)
	}
	return session, nil
}

func (r *PostgresRepository) GetWithUser(ctx context.Context, idHash []byte) (*models.Session, *models.User, error) {
	query := `
		SELECT
			sessions.id, sessions.user_id, sessions.csrf_token, sessions.expires, sessions.sudo_until,
			users.id, users.active, users.username, users.password, users.totp_key,
			users.last_totp_step, users.password_change_reason, users.icon, users.language
		FROM sessions
		JOIN users ON users.id = sessions.user_id
		WHERE sessions.id = $1
	`
	session := &models.Session{}
	user := &models.User{}
	err := r.db.QueryRowContext(ctx, query, idHash).Scan(
		&session.IDHash, &session.UserID, &session.CSRFToken, &session.Expires, &session.SudoUntil,
		&user.ID, &user.Active, &user.Username, &user.Password, &user.TOTPKey,
		&user.LastTOTPStep, &user.PasswordChangeReason, &user.Icon, &user.Language)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, common.ErrNotFound
		}
		return nil, nil, fmt.Errorf("error performing sql request: %w", err)
	}
	return session, user, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, idHash []byte) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, idHash)
	if err != nil {
		return 0, fmt.Errorf("error performing sql request: %w", err)
	}
	return res.RowsAffected()
}

func (r *PostgresRepository) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("error performing sql request: %w", err)
	}
	return res.RowsAffected()
}
