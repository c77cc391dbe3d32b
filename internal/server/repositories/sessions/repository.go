package sessions

import (
	"context"

	"github.com/jtoivan/authd/internal/server/models"
)

type Repository interface {
	// Create inserts a new session row.
	Create(ctx context.Context, session *models.Session) error

	// Get looks a session up by the hash of its cookie id.
	Get(ctx context.Context, idHash []byte) (*models.Session, error)

	// GetWithUser returns a session together with its owning user.
	GetWithUser(ctx context.Context, idHash []byte) (*models.Session, *models.User, error)

	// Delete removes one session by id hash, returning rows affected.
	Delete(ctx context.Context, idHash []byte) (int64, error)

	// DeleteAllForUser removes every session owned by the user, returning
	// rows affected.
	DeleteAllForUser(ctx context.Context, userID string) (int64, error)
}
