package users

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/jtoivan/authd/internal/common"
	"github.com/jtoivan/authd/internal/server/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func userColumns() []string {
	return []string{
		"id", "active", "username", "password", "totp_key",
		"last_totp_step", "password_change_reason", "icon", "language",
	}
}

func TestGetByUsername_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows(userColumns()).
		AddRow("u-1", true, "Alice", []byte("envelope"), nil, nil, nil, nil, "en-US")
	mock.ExpectQuery(`SELECT id, active, username, password, totp_key`).
		WithArgs("alice").
		WillReturnRows(rows)

	got, err := repo.GetByUsername(context.Background(), "alice")
	if err != nil {
		t.Fatalf("GetByUsername error: %v", err)
	}
	if got.ID != "u-1" || got.Username != "Alice" || !got.Active {
		t.Fatalf("unexpected user: %+v", got)
	}
	if got.TOTPEnabled() {
		t.Fatalf("expected TOTP disabled for nil key")
	}
	if got.Language != models.LanguageEnUS {
		t.Fatalf("unexpected language: %v", got.Language)
	}
}

func TestGetByUsername_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT id, active, username, password, totp_key`).
		WithArgs("nobody").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByUsername(context.Background(), "nobody")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetLastTOTPStep(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE users SET last_totp_step = \$1 WHERE id = \$2`).
		WithArgs(int64(56666666), "u-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := repo.SetLastTOTPStep(context.Background(), "u-1", 56666666)
	if err != nil {
		t.Fatalf("SetLastTOTPStep error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row affected, got %d", n)
	}
}

func TestSetPasswordChangeReason(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE users SET password_change_reason = \$1 WHERE id = \$2`).
		WithArgs(models.PasswordChangeReasonSessionCompromise, "u-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := repo.SetPasswordChangeReason(context.Background(), "u-1", models.PasswordChangeReasonSessionCompromise)
	if err != nil {
		t.Fatalf("SetPasswordChangeReason error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row affected, got %d", n)
	}
}

func TestPermissions(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"permission"}).
		AddRow("view_user").
		AddRow("edit_user")
	mock.ExpectQuery(`SELECT permission FROM permissions WHERE user_id = \$1`).
		WithArgs("u-1").
		WillReturnRows(rows)

	got, err := repo.Permissions(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("Permissions error: %v", err)
	}
	if len(got) != 2 || got[0] != models.PermissionViewUser || got[1] != models.PermissionEditUser {
		t.Fatalf("unexpected permissions: %v", got)
	}
}
