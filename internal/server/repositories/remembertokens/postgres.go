// Package remembertokens persists persistent-login tokens. Both the key and
// the secret column hold one-way hashes only.
package remembertokens

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

func (r *PostgresRepository) Create(ctx context.Context, token *models.RememberToken) error {
	query := `INSERT INTO remember_tokens (id, user_id, secret) VALUES ($1, $2, $3)`
	res, err := r.db.ExecContext(ctx, query, token.IDHash, token.UserID, token.SecretHash)
	if err != nil {
		return fmt.Errorf("error performing sql request: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n != 1 {
		return fmt.Errorf("%d remember tokens inserted", n)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, idHash []byte) (*TokenWithUser, error) {
	query := `
		SELECT remember_tokens.id, remember_tokens.user_id, remember_tokens.secret, users.active
		FROM remember_tokens
		JOIN users ON users.id = remember_tokens.user_id
		WHERE remember_tokens.id = $1
	`
	token := &TokenWithUser{}
	err := r.db.QueryRowContext(ctx, query, idHash).Scan(
		&token.IDHash, &token.UserID, &token.SecretHash, &token.UserActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("error performing sql request: %w", err)
	}
	return token, nil
}

func (r *PostgresRepository) RotateSecret(ctx context.Context, idHash, secretHash []byte) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE remember_tokens SET secret = $1 WHERE id = $2`, secretHash, idHash)
	if err != nil {
		return 0, fmt.Errorf("error performing sql request: %w", err)
	}
	return res.RowsAffected()
}

func (r *PostgresRepository) Delete(ctx context.Context, idHash []byte) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM remember_tokens WHERE id = $1`, idHash)
	if err != nil {
		return 0, fmt.Errorf("error performing sql request: %w", err)
	}
	return res.RowsAffected()
}

func (r *PostgresRepository) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM remember_tokens WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("error performing sql request: %w", err)
	}
	return res.RowsAffected()
}
