package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/keywarden/internal/dbx"
	"github.com/dmitrijs2005/keywarden/internal/server/repositories/contacts"
	"github.com/dmitrijs2005/keywarden/internal/server/repositories/escrows"
	"github.com/dmitrijs2005/keywarden/internal/server/repositories/owners"
	"github.com/dmitrijs2005/keywarden/internal/server/repositories/records"
	"github.com/dmitrijs2005/keywarden/internal/server/repositories/requests"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Owners(db dbx.DBTX) owners.Repository
	Contacts(db dbx.DBTX) contacts.Repository
	Records(db dbx.DBTX) records.Repository
	Escrows(db dbx.DBTX) escrows.Repository
	Requests(db dbx.DBTX) requests.Repository
}
