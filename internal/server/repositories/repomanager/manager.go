// Package repomanager wires concrete repositories to database handles. A
// service asks the manager for a repository over either the pooled *sql.DB
// or an open transaction, so the same code path serves both.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/jtoivan/authd/internal/dbx"
	"github.com/jtoivan/authd/internal/server/repositories/remembertokens"
	"github.com/jtoivan/authd/internal/server/repositories/sessions"
	"github.com/jtoivan/authd/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(ctx context.Context, db *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Sessions(db dbx.DBTX) sessions.Repository
	RememberTokens(db dbx.DBTX) remembertokens.Repository
}
