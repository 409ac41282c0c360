// Package testdb provides an in-memory database for tests.
package testdb

import (
	"testing"

	"github.com/jmoiron/sqlx"

	"pharmacy/m/internal/database"
	"pharmacy/m/internal/migrations"
)

// New creates a fresh in-memory SQLite database with the schema applied.
func New(t *testing.T) *sqlx.DB {
	t.Helper()

	db, err := database.Connect(database.SQLite.Name, ":memory:")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	if err := migrations.Run(db, database.SQLite); err != nil {
		db.Close()
		t.Fatalf("creating test database schema: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}
