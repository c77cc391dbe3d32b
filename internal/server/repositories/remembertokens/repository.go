package remembertokens

import (
	"context"

	"github.com/jtoivan/authd/internal/server/models"
)

// TokenWithUser is a remember-token row joined with the owning account's
// active flag, fetched in one query during session restore.
type TokenWithUser struct {
	models.RememberToken
	UserActive bool
}

type Repository interface {
	// Create inserts a new remember-token row.
	Create(ctx context.Context, token *models.RememberToken) error

	// Get looks a token up by id hash, joining the owning user's active
	// flag.
	Get(ctx context.Context, idHash []byte) (*TokenWithUser, error)

	// RotateSecret replaces the stored secret hash, returning rows
	// affected.
	RotateSecret(ctx context.Context, idHash, secretHash []byte) (int64, error)

	// Delete removes one token by id hash, returning rows affected.
	Delete(ctx context.Context, idHash []byte) (int64, error)

	// DeleteAllForUser removes every token owned by the user, returning
	// rows affected.
	DeleteAllForUser(ctx context.Context, userID string) (int64, error)
}
