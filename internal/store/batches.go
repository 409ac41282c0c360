package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"pharmacy/m/domain"
)

const batchColumns = `b.id, b.drug_id, b.pharmacy_id, b.quantity, b.unit_price, b.batch_number, b.expiry_date, b.received_at`

// scopeFilter restricts rows to one pharmacy plus the shared pool. A nil
// scope means no restriction.
func scopeFilter(column string, scope *int64) (string, []any) {
	if scope == nil {
		return "", nil
	}
	return fmt.Sprintf(" AND (%s = ? OR %s IS NULL)", column, column), []any{*scope}
}

// NewBatch is the input for CreateBatch.
type NewBatch struct {
	DrugID      int64
	PharmacyID  *int64
	Quantity    int64
	UnitPrice   decimal.Decimal
	BatchNumber *string
	ExpiryDate  string
}

// CreateBatch records received stock.
func (q *Queries) CreateBatch(ctx context.Context, b NewBatch) (*domain.InventoryBatch, error) {
	id, err := q.insert(ctx,
		`INSERT INTO inventory_batches (drug_id, pharmacy_id, quantity, unit_price, batch_number, expiry_date, received_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.DrugID, b.PharmacyID, b.Quantity, b.UnitPrice, b.BatchNumber, b.ExpiryDate, q.timestamp(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating batch: %w", err)
	}
	return q.GetBatch(ctx, id)
}

// GetBatch returns a batch with its drug name.
func (q *Queries) GetBatch(ctx context.Context, id int64) (*domain.InventoryBatch, error) {
	var b domain.InventoryBatch
	err := q.get(ctx, &b,
		`SELECT `+batchColumns+`, d.name AS drug_name
		 FROM inventory_batches b
		 JOIN drugs d ON d.id = b.drug_id
		 WHERE b.id = ?`, id,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting batch: %w", err)
	}
	return &b, nil
}

// ListBatches returns batches visible to scope, optionally for one drug,
// ordered by expiry.
func (q *Queries) ListBatches(ctx context.Context, scope *int64, drugID int64) ([]domain.InventoryBatch, error) {
	query := `SELECT ` + batchColumns + `, d.name AS drug_name
	          FROM inventory_batches b
	          JOIN drugs d ON d.id = b.drug_id
	          WHERE 1=1`
	var args []any
	if drugID > 0 {
		query += ` AND b.drug_id = ?`
		args = append(args, drugID)
	}
	clause, scopeArgs := scopeFilter("b.pharmacy_id", scope)
	query += clause + ` ORDER BY b.expiry_date, b.received_at, b.id`
	args = append(args, scopeArgs...)

	var batches []domain.InventoryBatch
	if err := q.selectAll(ctx, &batches, query, args...); err != nil {
		return nil, fmt.Errorf("listing batches: %w", err)
	}
	return batches, nil
}

// ListStockedBatches returns batches with quantity on hand, joined with the
// drug name, for alert computation.
func (q *Queries) ListStockedBatches(ctx context.Context, scope *int64) ([]domain.InventoryBatch, error) {
	clause, args := scopeFilter("b.pharmacy_id", scope)
	var batches []domain.InventoryBatch
	err := q.selectAll(ctx, &batches,
		`SELECT `+batchColumns+`, d.name AS drug_name
		 FROM inventory_batches b
		 JOIN drugs d ON d.id = b.drug_id
		 WHERE b.quantity > 0`+clause+`
		 ORDER BY b.expiry_date, b.received_at, b.id`, args...,
	)
	if err != nil {
		return nil, fmt.Errorf("listing stocked batches: %w", err)
	}
	return batches, nil
}

// AllocatableBatches returns the FEFO candidate set for a drug: stock on
// hand, not expired as of today, visible to scope. Rows come back in
// allocation order and are locked on dialects that support it.
func (q *Queries) AllocatableBatches(ctx context.Context, drugID int64, scope *int64, today string) ([]domain.InventoryBatch, error) {
	clause, scopeArgs := scopeFilter("b.pharmacy_id", scope)
	args := append([]any{drugID, today}, scopeArgs...)

	var batches []domain.InventoryBatch
	err := q.selectAll(ctx, &batches,
		`SELECT `+batchColumns+`
		 FROM inventory_batches b
		 WHERE b.drug_id = ? AND b.quantity > 0 AND b.expiry_date >= ?`+clause+`
		 ORDER BY b.expiry_date, b.received_at, b.id`+q.dialect.ForUpdate, args...,
	)
	if err != nil {
		return nil, fmt.Errorf("listing allocatable batches: %w", err)
	}
	return batches, nil
}

// DeductBatch subtracts quantity from a batch. The update only applies when
// enough stock remains; otherwise ErrStockConflict is returned and nothing
// changes.
func (q *Queries) DeductBatch(ctx context.Context, batchID, quantity int64) error {
	n, err := q.exec(ctx,
		`UPDATE inventory_batches SET quantity = quantity - ? WHERE id = ? AND quantity >= ?`,
		quantity, batchID, quantity,
	)
	if err != nil {
		return fmt.Errorf("deducting batch %d: %w", batchID, err)
	}
	if n == 0 {
		return fmt.Errorf("deducting batch %d: %w", batchID, ErrStockConflict)
	}
	return nil
}

// RestoreBatch adds quantity back to a batch.
func (q *Queries) RestoreBatch(ctx context.Context, batchID, quantity int64) error {
	n, err := q.exec(ctx,
		`UPDATE inventory_batches SET quantity = quantity + ? WHERE id = ?`,
		quantity, batchID,
	)
	if err != nil {
		return fmt.Errorf("restoring batch %d: %w", batchID, err)
	}
	if n == 0 {
		return fmt.Errorf("restoring batch %d: %w", batchID, ErrNotFound)
	}
	return nil
}

// SetBatchQuantity overwrites the quantity on hand (stock count correction).
func (q *Queries) SetBatchQuantity(ctx context.Context, batchID, quantity int64) error {
	n, err := q.exec(ctx, `UPDATE inventory_batches SET quantity = ? WHERE id = ?`, quantity, batchID)
	if err != nil {
		return fmt.Errorf("updating batch quantity: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
