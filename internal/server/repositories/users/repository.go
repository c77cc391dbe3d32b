package users

import (
	"context"

	"github.com/jtoivan/authd/internal/server/models"
)

type Repository interface {
	// Create inserts a new user row.
	Create(ctx context.Context, user *models.User) error

	// GetByUsername looks a user up by case-insensitive username.
	GetByUsername(ctx context.Context, username string) (*models.User, error)

	// SetLastTOTPStep records the most recently accepted TOTP time step.
	// It returns the number of rows affected; anything other than one is an
	// invariant violation at the call site.
	SetLastTOTPStep(ctx context.Context, userID string, step int64) (int64, error)

	// SetPasswordChangeReason flags the account as requiring a password
	// change. Returns the number of rows affected.
	SetPasswordChangeReason(ctx context.Context, userID string, reason models.PasswordChangeReason) (int64, error)

	// Permissions returns the user's permission set.
	Permissions(ctx context.Context, userID string) ([]models.Permission, error)
}
