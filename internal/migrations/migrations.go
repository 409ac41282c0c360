package migrations

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"pharmacy/m/internal/database"
)

// schema statements are written once and specialised per dialect through the
// {pk}, {money} and {bool} placeholders. Each statement must be idempotent;
// append new statements at the end.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS pharmacies (
		id {pk},
		name TEXT NOT NULL,
		address TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id {pk},
		email TEXT NOT NULL UNIQUE,
		full_name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'STAFF' CHECK (role IN ('ADMIN', 'STAFF')),
		pharmacy_id INTEGER REFERENCES pharmacies(id),
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS drugs (
		id {pk},
		name TEXT NOT NULL,
		generic_name TEXT NOT NULL DEFAULT '',
		dosage TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		unit TEXT NOT NULL DEFAULT 'pcs',
		controlled_drug {bool} NOT NULL DEFAULT FALSE,
		requires_prescription {bool} NOT NULL DEFAULT FALSE,
		min_stock_quantity INTEGER NOT NULL DEFAULT 10,
		created_at TEXT NOT NULL,
		UNIQUE (name, dosage)
	)`,
	`CREATE TABLE IF NOT EXISTS inventory_batches (
		id {pk},
		drug_id INTEGER NOT NULL REFERENCES drugs(id),
		pharmacy_id INTEGER REFERENCES pharmacies(id),
		quantity INTEGER NOT NULL CHECK (quantity >= 0),
		unit_price {money} NOT NULL,
		batch_number TEXT,
		expiry_date TEXT NOT NULL,
		received_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_batches_fefo
		ON inventory_batches (drug_id, expiry_date, received_at)`,
	`CREATE TABLE IF NOT EXISTS sales (
		id {pk},
		pharmacy_id INTEGER REFERENCES pharmacies(id),
		receipt_number TEXT NOT NULL UNIQUE,
		total_amount {money} NOT NULL,
		discount_amount {money} NOT NULL,
		final_amount {money} NOT NULL,
		status TEXT NOT NULL DEFAULT 'COMPLETED' CHECK (status IN ('COMPLETED', 'VOIDED')),
		customer_name TEXT,
		sold_by INTEGER NOT NULL REFERENCES users(id),
		sale_date TEXT NOT NULL,
		voided_at TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sales_pharmacy_date ON sales (pharmacy_id, sale_date)`,
	`CREATE TABLE IF NOT EXISTS sale_items (
		id {pk},
		sale_id INTEGER NOT NULL REFERENCES sales(id),
		drug_id INTEGER NOT NULL REFERENCES drugs(id),
		batch_id INTEGER REFERENCES inventory_batches(id),
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		unit_price {money} NOT NULL,
		total_price {money} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sale_items_sale ON sale_items (sale_id)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id {pk},
		user_id INTEGER,
		role TEXT,
		action TEXT NOT NULL,
		resource TEXT NOT NULL,
		resource_id TEXT,
		details TEXT,
		ip TEXT,
		user_agent TEXT,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS prescriptions (
		id {pk},
		pharmacy_id INTEGER REFERENCES pharmacies(id),
		patient_name TEXT NOT NULL,
		patient_age REAL,
		patient_weight REAL,
		doctor_name TEXT NOT NULL,
		prescribed_drugs TEXT NOT NULL,
		notes TEXT,
		status TEXT NOT NULL CHECK (status IN ('PENDING', 'APPROVED', 'REJECTED')),
		approved_by INTEGER REFERENCES users(id),
		approved_at TEXT,
		rejection_reason TEXT,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS drug_interactions (
		drug_id_1 INTEGER NOT NULL REFERENCES drugs(id),
		drug_id_2 INTEGER NOT NULL REFERENCES drugs(id),
		severity TEXT NOT NULL CHECK (severity IN ('mild', 'moderate', 'severe')),
		description TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (drug_id_1, drug_id_2)
	)`,
	`CREATE TABLE IF NOT EXISTS dosage_limits (
		id {pk},
		drug_id INTEGER NOT NULL REFERENCES drugs(id),
		min_age_years REAL,
		max_age_years REAL,
		min_weight_kg REAL,
		max_daily_dose REAL
	)`,
}

// Run creates the database schema for the given dialect.
func Run(db *sqlx.DB, dialect database.Dialect) error {
	r := strings.NewReplacer("{pk}", dialect.PrimaryKey, "{money}", dialect.Money, "{bool}", dialect.Bool)
	for i, stmt := range schema {
		if _, err := db.Exec(r.Replace(stmt)); err != nil {
			return fmt.Errorf("running migration %d: %w", i+1, err)
		}
	}
	return nil
}
