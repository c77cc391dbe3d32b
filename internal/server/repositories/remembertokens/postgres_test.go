package remembertokens

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

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO remember_tokens`).
		WithArgs([]byte("id-hash"), "u-1", []byte("secret-hash")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Create(context.Background(), &models.RememberToken{
		IDHash:     []byte("id-hash"),
		UserID:     "u-1",
		SecretHash: []byte("secret-hash"),
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
}

func TestGet_JoinsUserActive(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "user_id", "secret", "active"}).
		AddRow([]byte("id-hash"), "u-1", []byte("secret-hash"), false)
	mock.ExpectQuery(`FROM remember_tokens\s+JOIN users ON users.id = remember_tokens.user_id`).
		WithArgs([]byte("id-hash")).
		WillReturnRows(rows)

	got, err := repo.Get(context.Background(), []byte("id-hash"))
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.UserID != "u-1" || got.UserActive {
		t.Fatalf("unexpected token: %+v", got)
	}
}

func TestGet_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM remember_tokens\s+JOIN users ON users.id = remember_tokens.user_id`).
		WithArgs([]byte("missing")).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), []byte("missing"))
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRotateSecret(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE remember_tokens SET secret = \$1 WHERE id = \$2`).
		WithArgs([]byte("new-hash"), []byte("id-hash")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := repo.RotateSecret(context.Background(), []byte("id-hash"), []byte("new-hash"))
	if err != nil {
		t.Fatalf("RotateSecret error: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 row affected, got %d", n)
	}
}

func TestDeleteAllForUser(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM remember_tokens WHERE user_id = \$1`).
		WithArgs("u-1").
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := repo.DeleteAllForUser(context.Background(), "u-1")
	if err != nil {
		t.Fatalf("DeleteAllForUser error: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rows deleted, got %d", n)
	}
}
