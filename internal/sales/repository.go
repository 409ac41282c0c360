package sales

import (
	"context"

	"pharmacy/m/domain"
	"pharmacy/m/internal/store"
)

// Ledger is the set of reads and writes checkout and void need. Inside a
// transaction every call runs on the same connection.
type Ledger interface {
	AllocatableBatches(ctx context.Context, drugID int64, scope *int64, today string) ([]domain.InventoryBatch, error)
	DeductBatch(ctx context.Context, batchID, quantity int64) error
	RestoreBatch(ctx context.Context, batchID, quantity int64) error
	CreateSale(ctx context.Context, s store.NewSale) (int64, error)
	CreateSaleItem(ctx context.Context, it store.NewSaleItem) error
	GetSale(ctx context.Context, id int64) (*domain.Sale, error)
	GetSaleForUpdate(ctx context.Context, id int64) (*domain.Sale, error)
	MarkSaleVoided(ctx context.Context, id int64) (bool, error)
	ListSales(ctx context.Context, scope *int64, limit, offset int) ([]domain.Sale, error)
}

// Repository is a Ledger that can also open a transaction.
type Repository interface {
	Ledger
	InTx(ctx context.Context, fn func(Ledger) error) error
}

type storeRepository struct {
	*store.Store
}

// NewRepository adapts a store to Repository.
func NewRepository(st *store.Store) Repository {
	return storeRepository{st}
}

func (r storeRepository) InTx(ctx context.Context, fn func(Ledger) error) error {
	return r.Store.InTx(ctx, func(q *store.Queries) error { return fn(q) })
}
