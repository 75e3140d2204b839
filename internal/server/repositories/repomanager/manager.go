package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/gophmedia/internal/dbx"
	"github.com/dmitrijs2005/gophmedia/internal/server/catalog"
	"github.com/dmitrijs2005/gophmedia/internal/server/repositories/jobs"
	"github.com/dmitrijs2005/gophmedia/internal/server/repositories/sessions"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Sessions(db *sql.DB) sessions.Repository
	Jobs(db dbx.DBTX) jobs.Repository
	Catalog(db dbx.DBTX) catalog.Catalog
}
