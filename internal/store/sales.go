package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"pharmacy/m/domain"
)

const saleColumns = `id, pharmacy_id, receipt_number, total_amount, discount_amount, final_amount,
	status, customer_name, sold_by, sale_date, voided_at`

// NewSale is the header written by checkout.
type NewSale struct {
	PharmacyID     *int64
	ReceiptNumber  string
	TotalAmount    decimal.Decimal
	DiscountAmount decimal.Decimal
	FinalAmount    decimal.Decimal
	CustomerName   *string
	SoldBy         int64
}

// NewSaleItem is one allocation line written by checkout.
type NewSaleItem struct {
	SaleID     int64
	DrugID     int64
	BatchID    *int64
	Quantity   int64
	UnitPrice  decimal.Decimal
	TotalPrice decimal.Decimal
}

// CreateSale inserts a completed sale header and returns its id.
func (q *Queries) CreateSale(ctx context.Context, s NewSale) (int64, error) {
	id, err := q.insert(ctx,
		`INSERT INTO sales (pharmacy_id, receipt_number, total_amount, discount_amount, final_amount,
		                    status, customer_name, sold_by, sale_date)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.PharmacyID, s.ReceiptNumber, s.TotalAmount, s.DiscountAmount, s.FinalAmount,
		domain.SaleStatusCompleted, s.CustomerName, s.SoldBy, q.timestamp(),
	)
	if err != nil {
		return 0, fmt.Errorf("creating sale: %w", err)
	}
	return id, nil
}

// CreateSaleItem inserts one sale line.
func (q *Queries) CreateSaleItem(ctx context.Context, it NewSaleItem) error {
	_, err := q.insert(ctx,
		`INSERT INTO sale_items (sale_id, drug_id, batch_id, quantity, unit_price, total_price)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		it.SaleID, it.DrugID, it.BatchID, it.Quantity, it.UnitPrice, it.TotalPrice,
	)
	if err != nil {
		return fmt.Errorf("creating sale item: %w", err)
	}
	return nil
}

// GetSale returns a sale with its items.
func (q *Queries) GetSale(ctx context.Context, id int64) (*domain.Sale, error) {
	return q.getSale(ctx, id, "")
}

// GetSaleForUpdate is GetSale with the header row locked on dialects that
// support it. Only meaningful inside a transaction.
func (q *Queries) GetSaleForUpdate(ctx context.Context, id int64) (*domain.Sale, error) {
	return q.getSale(ctx, id, q.dialect.ForUpdate)
}

func (q *Queries) getSale(ctx context.Context, id int64, suffix string) (*domain.Sale, error) {
	var s domain.Sale
	err := q.get(ctx, &s, `SELECT `+saleColumns+` FROM sales WHERE id = ?`+suffix, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting sale: %w", err)
	}

	items, err := q.saleItems(ctx, []int64{s.ID})
	if err != nil {
		return nil, err
	}
	s.Items = items[s.ID]
	if s.Items == nil {
		s.Items = []domain.SaleItem{}
	}
	return &s, nil
}

// MarkSaleVoided flips a completed sale to voided. It reports false when the
// sale was not in the completed state.
func (q *Queries) MarkSaleVoided(ctx context.Context, id int64) (bool, error) {
	n, err := q.exec(ctx,
		`UPDATE sales SET status = ?, voided_at = ? WHERE id = ? AND status = ?`,
		domain.SaleStatusVoided, q.timestamp(), id, domain.SaleStatusCompleted,
	)
	if err != nil {
		return false, fmt.Errorf("voiding sale: %w", err)
	}
	return n > 0, nil
}

// ListSales returns sales visible to scope, newest first, each with items.
// Unlike batches, sales have no shared pool: a scoped caller only sees its own
// pharmacy.
func (q *Queries) ListSales(ctx context.Context, scope *int64, limit, offset int) ([]domain.Sale, error) {
	query := `SELECT ` + saleColumns + ` FROM sales WHERE 1=1`
	var args []any
	if scope != nil {
		query += ` AND pharmacy_id = ?`
		args = append(args, *scope)
	}
	query += ` ORDER BY sale_date DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	sales := []domain.Sale{}
	if err := q.selectAll(ctx, &sales, query, args...); err != nil {
		return nil, fmt.Errorf("listing sales: %w", err)
	}
	if len(sales) == 0 {
		return sales, nil
	}

	ids := make([]int64, len(sales))
	for i, s := range sales {
		ids[i] = s.ID
	}
	items, err := q.saleItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range sales {
		sales[i].Items = items[sales[i].ID]
		if sales[i].Items == nil {
			sales[i].Items = []domain.SaleItem{}
		}
	}
	return sales, nil
}

func (q *Queries) saleItems(ctx context.Context, saleIDs []int64) (map[int64][]domain.SaleItem, error) {
	query, args, err := sqlx.In(
		`SELECT si.id, si.sale_id, si.drug_id, si.batch_id, si.quantity, si.unit_price, si.total_price,
		        d.name AS drug_name
		 FROM sale_items si
		 JOIN drugs d ON d.id = si.drug_id
		 WHERE si.sale_id IN (?)
		 ORDER BY si.id`, saleIDs)
	if err != nil {
		return nil, fmt.Errorf("preparing sale items query: %w", err)
	}
	var items []domain.SaleItem
	if err := q.selectAll(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("listing sale items: %w", err)
	}
	bySale := make(map[int64][]domain.SaleItem, len(saleIDs))
	for _, it := range items {
		bySale[it.SaleID] = append(bySale[it.SaleID], it)
	}
	return bySale, nil
}
