// Package users persists account rows.
package users

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

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, active, username, password, totp_key, last_totp_step, password_change_reason, icon, language)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.Active, user.Username, user.Password, user.TOTPKey,
		user.LastTOTPStep, user.PasswordChangeReason, user.Icon, user.Language)
	if err != nil {
		return fmt.Errorf("error performing sql request: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `
		SELECT id, active, username, password, totp_key, last_totp_step, password_change_reason, icon, language
		FROM users
		WHERE lower(username) = lower($1)
	`
	user := &models.User{}
	err := r.db.QueryRowContext(ctx, query, username).Scan(
		&user.ID, &user.Active, &user.Username, &user.Password, &user.TOTPKey,
		&user.LastTOTPStep, &user.PasswordChangeReason, &user.Icon, &user.Language)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("error performing sql request: %w", err)
	}
	return user, nil
}

func (r *PostgresRepository) SetLastTOTPStep(ctx context.Context, userID string, step int64) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET last_totp_step = $1 WHERE id = $2`, step, userID)
	if err != nil {
		return 0, fmt.Errorf("error performing sql request: %w", err)
	}
	return res.RowsAffected()
}

func (r *PostgresRepository) SetPasswordChangeReason(ctx context.Context, userID string, reason models.PasswordChangeReason) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_change_reason = $1 WHERE id = $2`, reason, userID)
	if err != nil {
		return 0, fmt.Errorf("error performing sql request: %w", err)
	}
	return res.RowsAffected()
}

func (r *PostgresRepository) Permissions(ctx context.Context, userID string) ([]models.Permission, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT permission FROM permissions WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("error performing sql request: %w", err)
	}
	defer rows.Close()

	var permissions []models.Permission
	for rows.Next() {
		var p models.Permission
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("error scanning permission: %w", err)
		}
		permissions = append(permissions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading permissions: %w", err)
	}
	return permissions, nil
}
