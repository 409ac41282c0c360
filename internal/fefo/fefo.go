// Package fefo picks the batches a sale line draws from: first expiring, first
// out. Planning is pure; applying a plan is the caller's job.
package fefo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"pharmacy/m/domain"
)

// ErrInsufficientStock is matched by every *InsufficientStockError.
var ErrInsufficientStock = errors.New("insufficient stock")

// InsufficientStockError reports the drug that could not be covered.
type InsufficientStockError struct {
	DrugID    int64
	Requested int64
	Available int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("Insufficient stock for drug %d", e.DrugID)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// Entry is a draw of Quantity units from one batch at its unit price.
type Entry struct {
	BatchID   int64           `json:"batch_id"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// Total is Quantity times UnitPrice.
func (e Entry) Total() decimal.Decimal {
	return e.UnitPrice.Mul(decimal.NewFromInt(e.Quantity))
}

// Allocation is an ordered list of entries whose quantities add up to the
// requested amount.
type Allocation []Entry

// Quantity is the sum of entry quantities.
func (a Allocation) Quantity() int64 {
	var n int64
	for _, e := range a {
		n += e.Quantity
	}
	return n
}

// Total is the sum of entry totals.
func (a Allocation) Total() decimal.Decimal {
	sum := decimal.Zero
	for _, e := range a {
		sum = sum.Add(e.Total())
	}
	return sum
}

// Eligible reports whether a batch may be drawn from on day today for scope.
// A nil scope sees every pharmacy.
func Eligible(b domain.InventoryBatch, today string, scope *int64) bool {
	if b.Quantity <= 0 || b.ExpiryDate < today {
		return false
	}
	if scope == nil || b.PharmacyID == nil {
		return true
	}
	return *b.PharmacyID == *scope
}

// Plan allocates quantity units of drugID from batches. Ineligible batches
// are skipped and the rest are drawn from in expiry, receipt and id order.
// taken holds units already promised to earlier lines of the same cart and
// may be nil; Plan never modifies it or the batches.
func Plan(drugID int64, batches []domain.InventoryBatch, quantity int64, today string, scope *int64, taken map[int64]int64) (Allocation, error) {
	candidates := make([]domain.InventoryBatch, 0, len(batches))
	var available int64
	for _, b := range batches {
		if b.DrugID != drugID || !Eligible(b, today, scope) {
			continue
		}
		b.Quantity -= taken[b.ID]
		if b.Quantity <= 0 {
			continue
		}
		candidates = append(candidates, b)
		available += b.Quantity
	}
	if quantity <= 0 || available < quantity {
		return nil, &InsufficientStockError{DrugID: drugID, Requested: quantity, Available: available}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.ExpiryDate != b.ExpiryDate {
			return a.ExpiryDate < b.ExpiryDate
		}
		if a.ReceivedAt != b.ReceivedAt {
			return a.ReceivedAt < b.ReceivedAt
		}
		return a.ID < b.ID
	})

	remaining := quantity
	alloc := make(Allocation, 0, 2)
	for _, b := range candidates {
		if remaining == 0 {
			break
		}
		take := min(remaining, b.Quantity)
		alloc = append(alloc, Entry{BatchID: b.ID, Quantity: take, UnitPrice: b.UnitPrice})
		remaining -= take
	}
	return alloc, nil
}

// BatchSource lists the candidate batches of a drug visible to scope. Rows
// that are expired or empty may be included; Plan filters them.
type BatchSource interface {
	AllocatableBatches(ctx context.Context, drugID int64, scope *int64, today string) ([]domain.InventoryBatch, error)
}

// Allocator plans allocations against a BatchSource.
type Allocator struct {
	now func() time.Time
}

// NewAllocator returns an allocator. A nil clock means time.Now.
func NewAllocator(now func() time.Time) *Allocator {
	if now == nil {
		now = time.Now
	}
	return &Allocator{now: now}
}

// Today is the current date in UTC, formatted like expiry dates.
func (a *Allocator) Today() string {
	return a.now().UTC().Format(domain.DateLayout)
}

// Allocate reads the candidate batches of drugID from src and plans an
// allocation of quantity units.
func (a *Allocator) Allocate(ctx context.Context, src BatchSource, drugID, quantity int64, scope *int64, taken map[int64]int64) (Allocation, error) {
	today := a.Today()
	batches, err := src.AllocatableBatches(ctx, drugID, scope, today)
	if err != nil {
		return nil, err
	}
	return Plan(drugID, batches, quantity, today, scope, taken)
}

// Take records an allocation in taken so later lines see reduced stock.
func Take(taken map[int64]int64, alloc Allocation) {
	for _, e := range alloc {
		taken[e.BatchID] += e.Quantity
	}
}
