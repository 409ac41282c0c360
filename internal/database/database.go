package database

import (
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Dialect captures the few places where SQLite and Postgres differ.
type Dialect struct {
	Name       string
	PrimaryKey string
	Money      string
	Bool       string
	// ForUpdate is appended to SELECTs that read rows about to be modified.
	ForUpdate string
}

var (
	SQLite = Dialect{
		Name:       "sqlite",
		PrimaryKey: "INTEGER PRIMARY KEY AUTOINCREMENT",
		Money:      "TEXT",
		Bool:       "INTEGER",
	}
	Postgres = Dialect{
		Name:       "pgx",
		PrimaryKey: "BIGSERIAL PRIMARY KEY",
		Money:      "NUMERIC(14,2)",
		Bool:       "BOOLEAN",
		ForUpdate:  " FOR UPDATE",
	}
)

// DialectFor returns the dialect for a driver name.
func DialectFor(driver string) Dialect {
	if driver == Postgres.Name {
		return Postgres
	}
	return SQLite
}

// Connect opens a database with the given driver ("sqlite" or "pgx").
func Connect(driver, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s database: %w", driver, err)
	}

	if driver != SQLite.Name {
		db.SetMaxOpenConns(10)
		return db, nil
	}

	// SQLite allows a single writer; one connection also keeps :memory:
	// databases alive for the life of the pool.
	db.SetMaxOpenConns(1)
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}
	return db, nil
}
