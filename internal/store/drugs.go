package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"pharmacy/m/domain"
)

const drugColumns = `id, name, generic_name, dosage, category, unit, controlled_drug,
	requires_prescription, min_stock_quantity, created_at`

// DrugFilter narrows ListDrugs. Zero values mean no filter.
type DrugFilter struct {
	Search     string
	Category   string
	Controlled *bool
}

// CreateDrug inserts a catalog entry.
func (q *Queries) CreateDrug(ctx context.Context, d domain.Drug) (*domain.Drug, error) {
	id, err := q.insert(ctx,
		`INSERT INTO drugs (name, generic_name, dosage, category, unit, controlled_drug,
		                    requires_prescription, min_stock_quantity, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.Name, d.GenericName, d.Dosage, d.Category, d.Unit, d.ControlledDrug,
		d.RequiresPrescription, d.MinStockQuantity, q.timestamp(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating drug: %w", err)
	}
	return q.GetDrug(ctx, id)
}

// UpsertCatalogDrug inserts a drug unless one with the same name and dosage
// exists. It reports whether a row was written.
func (q *Queries) UpsertCatalogDrug(ctx context.Context, d domain.Drug) (bool, error) {
	n, err := q.exec(ctx,
		`INSERT INTO drugs (name, generic_name, dosage, category, unit, controlled_drug,
		                    requires_prescription, min_stock_quantity, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT DO NOTHING`,
		d.Name, d.GenericName, d.Dosage, d.Category, d.Unit, d.ControlledDrug,
		d.RequiresPrescription, d.MinStockQuantity, q.timestamp(),
	)
	if err != nil {
		return false, fmt.Errorf("inserting catalog drug: %w", err)
	}
	return n > 0, nil
}

// GetDrug returns a drug by id.
func (q *Queries) GetDrug(ctx context.Context, id int64) (*domain.Drug, error) {
	var d domain.Drug
	err := q.get(ctx, &d, `SELECT `+drugColumns+` FROM drugs WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting drug: %w", err)
	}
	return &d, nil
}

// GetDrugsByID returns the drugs among ids, keyed by id. Missing ids are
// simply absent from the map.
func (q *Queries) GetDrugsByID(ctx context.Context, ids []int64) (map[int64]domain.Drug, error) {
	out := make(map[int64]domain.Drug, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query, args, err := sqlx.In(`SELECT `+drugColumns+` FROM drugs WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("preparing drug lookup: %w", err)
	}
	var drugs []domain.Drug
	if err := q.selectAll(ctx, &drugs, query, args...); err != nil {
		return nil, fmt.Errorf("looking up drugs: %w", err)
	}
	for _, d := range drugs {
		out[d.ID] = d
	}
	return out, nil
}

// ListDrugs returns catalog entries ordered by name.
func (q *Queries) ListDrugs(ctx context.Context, f DrugFilter) ([]domain.Drug, error) {
	query := `SELECT ` + drugColumns + ` FROM drugs WHERE 1=1`
	var args []any
	if f.Search != "" {
		like := "%" + f.Search + "%"
		query += ` AND (LOWER(name) LIKE LOWER(?) OR LOWER(generic_name) LIKE LOWER(?))`
		args = append(args, like, like)
	}
	if f.Category != "" {
		query += ` AND category = ?`
		args = append(args, f.Category)
	}
	if f.Controlled != nil {
		query += ` AND controlled_drug = ?`
		args = append(args, *f.Controlled)
	}
	query += ` ORDER BY name, id`

	var drugs []domain.Drug
	if err := q.selectAll(ctx, &drugs, query, args...); err != nil {
		return nil, fmt.Errorf("listing drugs: %w", err)
	}
	return drugs, nil
}

// UpdateDrug overwrites the mutable catalog fields of a drug.
func (q *Queries) UpdateDrug(ctx context.Context, d domain.Drug) (*domain.Drug, error) {
	n, err := q.exec(ctx,
		`UPDATE drugs SET name = ?, generic_name = ?, dosage = ?, category = ?, unit = ?,
		        controlled_drug = ?, requires_prescription = ?, min_stock_quantity = ?
		 WHERE id = ?`,
		d.Name, d.GenericName, d.Dosage, d.Category, d.Unit, d.ControlledDrug,
		d.RequiresPrescription, d.MinStockQuantity, d.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("updating drug: %w", err)
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	return q.GetDrug(ctx, d.ID)
}
