// Package sqlstore implements cloudfactory.Store on top of database/sql,
// adapted from storage/sql's flavor/replacer translation layer: the same
// query text is issued against postgres, sqlite3 or mysql by swapping only
// the flavor, rather than maintaining three copies of the schema and
// queries. Token storage needs far less than dex's full storage.Storage
// surface, so this keeps the flavor/translate idea but drops the
// transaction-retry machinery sql.go needed for its multi-table GC pass.
package sqlstore

import (
	"context"
	"database/sql"
	"regexp"

	// register the postgres and mysql drivers; sqlite3 registers lib/pq-style.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	cloudstorage "github.com/cloudcore/cloudcore"
)

// Flavor names a SQL dialect accounts are translated for.
type Flavor string

const (
	FlavorPostgres Flavor = "postgres"
	FlavorSQLite3  Flavor = "sqlite3"
	FlavorMySQL    Flavor = "mysql"
)

var bindRegexp = regexp.MustCompile(`\$\d+`)

// translate rewrites the postgres-flavored schema/query text below for the
// given dialect, the same bind-and-keyword substitution storage/sql.go's
// flavor.translate performs.
func (f Flavor) translate(query string) string {
	switch f {
	case FlavorSQLite3, FlavorMySQL:
		return bindRegexp.ReplaceAllString(query, "?")
	default:
		return query
	}
}

const createTableStmt = `
CREATE TABLE IF NOT EXISTS cloudcore_accounts (
	provider_name text NOT NULL,
	refresh_token text NOT NULL,
	PRIMARY KEY (provider_name)
);`

// Store is a Store backed by a SQL table of (provider_name, refresh_token)
// rows, one per logged-in account.
type Store struct {
	DB     *sql.DB
	Flavor Flavor
}

// Open opens driverName/dsn and ensures the accounts table exists.
func Open(ctx context.Context, flavor Flavor, driverName, dsn string) (*Store, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, cloudstorage.Errorf(cloudstorage.CodeFailure, "sqlstore: open %s: %v", driverName, err)
	}
	s := &Store{DB: db, Flavor: flavor}
	if _, err := db.ExecContext(ctx, flavor.translate(createTableStmt)); err != nil {
		return nil, cloudstorage.Errorf(cloudstorage.CodeFailure, "sqlstore: create table: %v", err)
	}
	return s, nil
}

func (s *Store) Load(ctx context.Context) (map[string]string, error) {
	rows, err := s.DB.QueryContext(ctx, s.Flavor.translate(`SELECT provider_name, refresh_token FROM cloudcore_accounts`))
	if err != nil {
		return nil, cloudstorage.Errorf(cloudstorage.CodeFailure, "sqlstore: query accounts: %v", err)
	}
	defer rows.Close()

	accounts := map[string]string{}
	for rows.Next() {
		var name, token string
		if err := rows.Scan(&name, &token); err != nil {
			return nil, cloudstorage.Errorf(cloudstorage.CodeFailure, "sqlstore: scan account: %v", err)
		}
		accounts[name] = token
	}
	return accounts, rows.Err()
}

// Save replaces the full set of accounts in one transaction, the pattern
// storage/sql.go's executeTx wraps multi-statement writes in, trimmed to
// the single serializable-isolation-free case a token table needs.
func (s *Store) Save(ctx context.Context, accounts map[string]string) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return cloudstorage.Errorf(cloudstorage.CodeFailure, "sqlstore: begin tx: %v", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.Flavor.translate(`DELETE FROM cloudcore_accounts`)); err != nil {
		return cloudstorage.Errorf(cloudstorage.CodeFailure, "sqlstore: clear accounts: %v", err)
	}
	insert := s.Flavor.translate(`INSERT INTO cloudcore_accounts (provider_name, refresh_token) VALUES ($1, $2)`)
	for name, token := range accounts {
		if _, err := tx.ExecContext(ctx, insert, name, token); err != nil {
			return cloudstorage.Errorf(cloudstorage.CodeFailure, "sqlstore: insert account %s: %v", name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return cloudstorage.Errorf(cloudstorage.CodeFailure, "sqlstore: commit: %v", err)
	}
	return nil
}
